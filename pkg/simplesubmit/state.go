package simplesubmit

import (
	"fmt"
	"time"
)

// State is a step of the submission pipeline
type State int

const (
	StateIdle State = iota
	StateValidating
	StateUploadingThumbnail
	StateCreatingResource
	StateSettingMetadata
	StateUploadingFiles
	StateSettingVisibility
	StateFinalizing
	StateSucceeded
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateValidating:         "validating",
	StateUploadingThumbnail: "uploading_thumbnail",
	StateCreatingResource:   "creating_resource",
	StateSettingMetadata:    "setting_metadata",
	StateUploadingFiles:     "uploading_files",
	StateSettingVisibility:  "setting_visibility",
	StateFinalizing:         "finalizing",
	StateSucceeded:          "succeeded",
	StateFailed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state name in JSON responses
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Outcome is what executing one state produced, as far as the transition function cares
type Outcome struct {
	Err            error
	HasThumbnail   bool
	FilesRemaining int
}

// Transition returns the state that follows from after the given outcome.
// Any error leads to StateFailed; terminal states never change.
func Transition(from State, o Outcome) State {
	if from.Terminal() {
		return from
	}
	if o.Err != nil {
		return StateFailed
	}

	switch from {
	case StateIdle:
		return StateValidating
	case StateValidating:
		if o.HasThumbnail {
			return StateUploadingThumbnail
		}
		return StateCreatingResource
	case StateUploadingThumbnail:
		return StateCreatingResource
	case StateCreatingResource:
		return StateSettingMetadata
	case StateSettingMetadata:
		return StateUploadingFiles
	case StateUploadingFiles:
		if o.FilesRemaining > 0 {
			return StateUploadingFiles
		}
		return StateSettingVisibility
	case StateSettingVisibility:
		return StateFinalizing
	case StateFinalizing:
		return StateSucceeded
	}
	return StateFailed
}

// EventKind tags a progress log entry
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventWarning  EventKind = "warning"
	EventFailure  EventKind = "failure"
	EventSuccess  EventKind = "success"
)

// Event is one entry of the ordered progress log
type Event struct {
	State   State     `json:"state"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Result is the terminal outcome of a pipeline run
type Result struct {
	State       State
	ResourceID  string
	ResourceURL string
	Events      []Event
	Err         error

	// Orphaned is set when the run failed after the resource was created.
	// The resource stays in the repository, partially configured.
	Orphaned bool
}

// Succeeded reports whether the run completed
func (r *Result) Succeeded() bool {
	return r.State == StateSucceeded
}
