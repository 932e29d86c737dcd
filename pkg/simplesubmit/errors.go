package simplesubmit

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrAuthenticationRequired indicates no bearer token is available
	ErrAuthenticationRequired = errors.New("Please authenticate with HydroShare first.")

	// ErrMissingResourceID indicates the repository accepted a create call without returning an ID
	ErrMissingResourceID = errors.New("No resource ID returned")

	// ErrNoThumbnailStore indicates a thumbnail was supplied but no store is configured
	ErrNoThumbnailStore = errors.New("no thumbnail store configured")
)

// ValidationError is a user-correctable problem with a draft. It never involves the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TransportError is an unexpected response from the content repository.
// Message holds the repository-supplied body, if any.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s failed (HTTP %d): %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s failed (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s failed (HTTP %d)", e.Op, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UploadError is a failure from the object store
type UploadError struct {
	Key        string
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("S3 upload failed (HTTP %d): %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("S3 upload failed: %s", msg)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
