package simplesubmit

import (
	"context"
)

// Hooks let callers observe a run without changing it.
// They are called synchronously on the pipeline goroutine.
type Hooks struct {
	OnEvent          []EventHook
	OnStateChange    []StateChangeHook
	OnUploadProgress []UploadProgressHook
}

// EventHook is called for every progress log entry
type EventHook func(ctx context.Context, event Event)

// StateChangeHook is called whenever the pipeline moves to a new state
type StateChangeHook func(ctx context.Context, from, to State)

// UploadProgressHook is called with the thumbnail transfer progress
type UploadProgressHook func(ctx context.Context, fileName string, fraction float64)

// AddEventHook registers an event hook
func (h *Hooks) AddEventHook(hook EventHook) {
	h.OnEvent = append(h.OnEvent, hook)
}

// AddStateChangeHook registers a state change hook
func (h *Hooks) AddStateChangeHook(hook StateChangeHook) {
	h.OnStateChange = append(h.OnStateChange, hook)
}

// AddUploadProgressHook registers an upload progress hook
func (h *Hooks) AddUploadProgressHook(hook UploadProgressHook) {
	h.OnUploadProgress = append(h.OnUploadProgress, hook)
}

func (h *Hooks) executeEvent(ctx context.Context, event Event) {
	if h == nil {
		return
	}
	for _, hook := range h.OnEvent {
		hook(ctx, event)
	}
}

func (h *Hooks) executeStateChange(ctx context.Context, from, to State) {
	if h == nil {
		return
	}
	for _, hook := range h.OnStateChange {
		hook(ctx, from, to)
	}
}

func (h *Hooks) executeUploadProgress(ctx context.Context, fileName string, fraction float64) {
	if h == nil {
		return
	}
	for _, hook := range h.OnUploadProgress {
		hook(ctx, fileName, fraction)
	}
}
