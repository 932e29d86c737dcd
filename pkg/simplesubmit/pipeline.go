package simplesubmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Pipeline drives a draft through validation, thumbnail upload and the
// repository calls. A Pipeline is not safe for concurrent Submit calls;
// callers use InProgress to refuse resubmission.
type Pipeline struct {
	repository Repository
	thumbnails ThumbnailStore
	identity   Identity
	drafts     DraftKeeper
	profile    Profile
	hooks      *Hooks
	logger     *slog.Logger
	now        func() time.Time

	inProgress atomic.Bool
}

// Option represents a functional option for configuring the pipeline
type Option func(*Pipeline)

// WithRepository sets the content repository client
func WithRepository(repo Repository) Option {
	return func(p *Pipeline) {
		p.repository = repo
	}
}

// WithThumbnailStore sets the object store used for thumbnails
func WithThumbnailStore(store ThumbnailStore) Option {
	return func(p *Pipeline) {
		p.thumbnails = store
	}
}

// WithIdentity sets the identity used to check for a bearer token
func WithIdentity(identity Identity) Option {
	return func(p *Pipeline) {
		p.identity = identity
	}
}

// WithDraftKeeper sets the session manager whose draft is cleared on success
func WithDraftKeeper(keeper DraftKeeper) Option {
	return func(p *Pipeline) {
		p.drafts = keeper
	}
}

// WithProfile sets the contribution profile (resource type and required keyword)
func WithProfile(profile Profile) Option {
	return func(p *Pipeline) {
		p.profile = profile
	}
}

// WithHooks sets lifecycle observers
func WithHooks(hooks *Hooks) Option {
	return func(p *Pipeline) {
		p.hooks = hooks
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock overrides the time source used for event timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates a pipeline with the given options
func NewPipeline(options ...Option) (*Pipeline, error) {
	p := &Pipeline{
		profile: ProfileFor(ContributionApp),
		logger:  slog.Default(),
		now:     time.Now,
	}

	for _, option := range options {
		option(p)
	}

	if p.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if p.identity == nil {
		return nil, fmt.Errorf("identity is required")
	}

	return p, nil
}

// InProgress reports whether a Submit call is currently running
func (p *Pipeline) InProgress() bool {
	return p.inProgress.Load()
}

// run is the mutable state of one Submit call
type run struct {
	state        State
	draft        Draft
	payload      *Payload
	thumbnailURL string
	resourceID   string
	resourceURL  string
	queue        []File
	next         int
	events       []Event
	err          error
}

// Submit runs the pipeline to a terminal state. Remote calls are made one at a time.
func (p *Pipeline) Submit(ctx context.Context, draft Draft) *Result {
	p.inProgress.Store(true)
	defer p.inProgress.Store(false)

	r := &run{state: StateIdle, draft: draft}

	for !r.state.Terminal() {
		outcome := p.step(ctx, r)
		from := r.state
		r.state = Transition(from, outcome)

		if outcome.Err != nil {
			r.err = outcome.Err
			p.emit(ctx, r, from, EventFailure, outcome.Err.Error())
		}
		if from != r.state {
			p.hooks.executeStateChange(ctx, from, r.state)
		}
	}

	if r.state == StateSucceeded {
		p.succeed(ctx, r)
	} else {
		p.logger.Error("Submission failed", "resource_id", r.resourceID, "err", r.err)
	}

	return &Result{
		State:       r.state,
		ResourceID:  r.resourceID,
		ResourceURL: r.resourceURL,
		Events:      r.events,
		Err:         r.err,
		Orphaned:    r.err != nil && r.resourceID != "",
	}
}

// step executes the current state and reports its outcome
func (p *Pipeline) step(ctx context.Context, r *run) Outcome {
	switch r.state {
	case StateIdle:
		return p.authenticate(ctx, r)
	case StateValidating:
		return p.validate(ctx, r)
	case StateUploadingThumbnail:
		return p.uploadThumbnail(ctx, r)
	case StateCreatingResource:
		return p.createResource(ctx, r)
	case StateSettingMetadata:
		return p.setMetadata(ctx, r)
	case StateUploadingFiles:
		return p.uploadNextFile(ctx, r)
	case StateSettingVisibility:
		return p.setVisibility(ctx, r)
	case StateFinalizing:
		return p.finalize(ctx, r)
	}
	return Outcome{Err: fmt.Errorf("no step for state %s", r.state)}
}

func (p *Pipeline) authenticate(ctx context.Context, r *run) Outcome {
	if p.identity.AccessToken() == "" {
		return Outcome{Err: ErrAuthenticationRequired}
	}
	return Outcome{}
}

func (p *Pipeline) validate(ctx context.Context, r *run) Outcome {
	payload, err := Validate(r.draft, p.profile)
	if err != nil {
		return Outcome{Err: err}
	}
	r.payload = payload
	p.emit(ctx, r, r.state, EventProgress, "Submission validated")
	return Outcome{HasThumbnail: r.draft.Thumbnail != nil}
}

func (p *Pipeline) uploadThumbnail(ctx context.Context, r *run) Outcome {
	if p.thumbnails == nil {
		return Outcome{Err: ErrNoThumbnailStore}
	}

	thumb := *r.draft.Thumbnail
	url, err := p.thumbnails.Upload(ctx, thumb, func(fraction float64) {
		p.hooks.executeUploadProgress(ctx, thumb.Name, fraction)
	})
	if err != nil {
		return Outcome{Err: err}
	}

	r.thumbnailURL = url
	p.emit(ctx, r, r.state, EventProgress, fmt.Sprintf("Thumbnail uploaded: %s", url))
	return Outcome{}
}

func (p *Pipeline) createResource(ctx context.Context, r *run) Outcome {
	id, err := p.repository.CreateResource(ctx, CreateResourceRequest{
		ResourceType:  r.payload.ResourceType,
		Title:         r.payload.Title,
		Abstract:      r.payload.Abstract,
		Keywords:      r.payload.Keywords,
		Coverages:     r.payload.CoverageMetadata(),
		ExtraMetadata: r.payload.ExtraMetadata(r.thumbnailURL),
	})
	if err != nil {
		return Outcome{Err: err}
	}
	if id == "" {
		return Outcome{Err: ErrMissingResourceID}
	}

	r.resourceID = id
	p.emit(ctx, r, r.state, EventProgress, fmt.Sprintf("Resource created (ID: %s)", id))
	return Outcome{}
}

func (p *Pipeline) setMetadata(ctx context.Context, r *run) Outcome {
	err := p.repository.SetScienceMetadata(ctx, r.resourceID, ScienceMetadata{
		FundingAgencies: r.payload.FundingAgencies,
		Creators:        r.payload.Authors,
	})
	if err != nil {
		return Outcome{Err: err}
	}

	r.queue = append(append([]File{}, r.draft.Files...),
		BuildReadme(r.payload.Title, r.payload.Abstract, r.payload.Authors, r.payload.Keywords))
	p.emit(ctx, r, r.state, EventProgress, "Funding agencies and authors updated")
	return Outcome{}
}

func (p *Pipeline) uploadNextFile(ctx context.Context, r *run) Outcome {
	f := r.queue[r.next]
	if err := p.repository.UploadFile(ctx, r.resourceID, f); err != nil {
		return Outcome{Err: err}
	}

	r.next++
	p.emit(ctx, r, r.state, EventProgress, fmt.Sprintf("Uploaded file: %s", f.Name))
	return Outcome{FilesRemaining: len(r.queue) - r.next}
}

func (p *Pipeline) setVisibility(ctx context.Context, r *run) Outcome {
	switch v := r.payload.Visibility; v {
	case VisibilityPublic, VisibilityPrivate:
		if err := p.repository.SetAccessRules(ctx, r.resourceID, v == VisibilityPublic); err != nil {
			return Outcome{Err: err}
		}
		p.emit(ctx, r, r.state, EventProgress, fmt.Sprintf("Resource made %s", v))

	case VisibilityDiscoverable:
		if err := p.repository.SetFlag(ctx, r.resourceID, FlagMakeDiscoverable); err != nil {
			return Outcome{Err: err}
		}
		if err := p.repository.SetFlag(ctx, r.resourceID, FlagEnablePrivateSharingLink); err != nil {
			return Outcome{Err: err}
		}
		p.emit(ctx, r, r.state, EventProgress, "Resource made discoverable with private link sharing enabled")

	default:
		p.emit(ctx, r, r.state, EventWarning, "Invalid visibility setting, skipping…")
	}
	return Outcome{}
}

func (p *Pipeline) finalize(ctx context.Context, r *run) Outcome {
	r.resourceURL = p.repository.ResourceURL(r.resourceID)

	if r.payload.PageURL == "" {
		meta := r.payload.ExtraMetadata(r.thumbnailURL)
		meta["url"] = r.resourceURL
		if err := p.repository.SetCustomMetadata(ctx, r.resourceID, meta); err != nil {
			p.logger.Warn("Failed to set custom metadata", "resource_id", r.resourceID, "err", err)
			p.emit(ctx, r, r.state, EventWarning, fmt.Sprintf("Could not record resource URL: %v", err))
		}
	}

	return Outcome{}
}

func (p *Pipeline) succeed(ctx context.Context, r *run) {
	if p.drafts != nil {
		if err := p.drafts.ClearDraft(ctx); err != nil {
			p.logger.Warn("Failed to clear saved draft", "err", err)
		}
	}

	p.emit(ctx, r, r.state, EventSuccess,
		fmt.Sprintf("Resource created successfully! Visit your %s at %s", p.profile.Label, r.resourceURL))
	p.logger.Info("Submission succeeded", "resource_id", r.resourceID, "url", r.resourceURL)
}

func (p *Pipeline) emit(ctx context.Context, r *run, state State, kind EventKind, message string) {
	event := Event{
		State:   state,
		Kind:    kind,
		Message: message,
		Time:    p.now(),
	}
	r.events = append(r.events, event)
	p.hooks.executeEvent(ctx, event)
}

// IsValidationError reports whether err is a user-correctable draft problem
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
