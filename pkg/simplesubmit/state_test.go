package simplesubmit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		from     State
		outcome  Outcome
		expected State
	}{
		{"idle starts validation", StateIdle, Outcome{}, StateValidating},
		{"missing token fails", StateIdle, Outcome{Err: ErrAuthenticationRequired}, StateFailed},
		{"thumbnail first", StateValidating, Outcome{HasThumbnail: true}, StateUploadingThumbnail},
		{"no thumbnail skips upload", StateValidating, Outcome{}, StateCreatingResource},
		{"validation error fails", StateValidating, Outcome{Err: &ValidationError{}}, StateFailed},
		{"thumbnail uploaded", StateUploadingThumbnail, Outcome{}, StateCreatingResource},
		{"thumbnail failure fails", StateUploadingThumbnail, Outcome{Err: boom}, StateFailed},
		{"created", StateCreatingResource, Outcome{}, StateSettingMetadata},
		{"metadata set", StateSettingMetadata, Outcome{}, StateUploadingFiles},
		{"more files", StateUploadingFiles, Outcome{FilesRemaining: 2}, StateUploadingFiles},
		{"last file", StateUploadingFiles, Outcome{}, StateSettingVisibility},
		{"file failure fails", StateUploadingFiles, Outcome{Err: boom, FilesRemaining: 1}, StateFailed},
		{"visibility set", StateSettingVisibility, Outcome{}, StateFinalizing},
		{"finalized", StateFinalizing, Outcome{}, StateSucceeded},
		{"succeeded is terminal", StateSucceeded, Outcome{Err: boom}, StateSucceeded},
		{"failed is terminal", StateFailed, Outcome{}, StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Transition(tt.from, tt.outcome))
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uploading_thumbnail", StateUploadingThumbnail.String())
	assert.Equal(t, "unknown", State(99).String())

	text, err := StateSettingVisibility.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "setting_visibility", string(text))

	var parsed State
	assert.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, StateSettingVisibility, parsed)
	assert.Error(t, parsed.UnmarshalText([]byte("bogus")))
}

func TestState_Terminal(t *testing.T) {
	for s := StateIdle; s <= StateFailed; s++ {
		assert.Equal(t, s == StateSucceeded || s == StateFailed, s.Terminal(), s.String())
	}
}
