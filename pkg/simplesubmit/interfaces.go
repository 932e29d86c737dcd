package simplesubmit

import (
	"context"
)

// ProgressFunc receives the fraction (0..1) of a blob transferred so far
type ProgressFunc func(fraction float64)

// Flag is a resource flag understood by the repository
type Flag string

const (
	FlagMakeDiscoverable         Flag = "make_discoverable"
	FlagEnablePrivateSharingLink Flag = "enable_private_sharing_link"
)

// CreateResourceRequest is the body of a create-resource call
type CreateResourceRequest struct {
	ResourceType  string
	Title         string
	Abstract      string
	Keywords      []string
	Coverages     []map[string]Coverage
	ExtraMetadata map[string]string
}

// ScienceMetadata is the body of a science-metadata update
type ScienceMetadata struct {
	FundingAgencies []FundingAgency `json:"funding_agencies"`
	Creators        []Author        `json:"creators"`
}

// Repository defines the remote content repository operations used by the pipeline.
// None of them retry.
type Repository interface {
	// CreateResource creates the resource and returns its ID
	CreateResource(ctx context.Context, req CreateResourceRequest) (string, error)

	// SetScienceMetadata replaces funding agencies and creators
	SetScienceMetadata(ctx context.Context, resourceID string, meta ScienceMetadata) error

	// UploadFile attaches one file to the resource
	UploadFile(ctx context.Context, resourceID string, file File) error

	// SetAccessRules makes the resource public or private
	SetAccessRules(ctx context.Context, resourceID string, public bool) error

	// SetFlag sets a single resource flag
	SetFlag(ctx context.Context, resourceID string, flag Flag) error

	// SetCustomMetadata posts arbitrary key/value metadata
	SetCustomMetadata(ctx context.Context, resourceID string, meta map[string]string) error

	// ResourceURL returns the public landing page of a resource
	ResourceURL(resourceID string) string
}

// ThumbnailStore uploads a blob to object storage and returns its public URL
type ThumbnailStore interface {
	Upload(ctx context.Context, file File, progress ProgressFunc) (string, error)
}

// Identity is everything the pipeline needs from the identity provider
type Identity interface {
	// AccessToken returns the current bearer token, or "" when not logged in
	AccessToken() string

	// LoginInProgress reports whether a login redirect has been started and not completed
	LoginInProgress() bool

	// LogIn starts a login
	LogIn(ctx context.Context) error
}

// DraftKeeper is the part of the session manager the pipeline touches on success
type DraftKeeper interface {
	ClearDraft(ctx context.Context) error
}

// StaticIdentity is an Identity holding a fixed token. LogIn is not supported.
type StaticIdentity string

func (s StaticIdentity) AccessToken() string   { return string(s) }
func (s StaticIdentity) LoginInProgress() bool { return false }
func (s StaticIdentity) LogIn(ctx context.Context) error {
	return ErrAuthenticationRequired
}
