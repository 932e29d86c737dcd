package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"github.com/tendant/simple-submit/pkg/simplesubmit/hydroshare/hydrosharetest"
)

func writeDraft(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Model Output.csv"), []byte("a,b\n1,2\n"), 0o644))
	path := filepath.Join(dir, "draft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

var draftYAML = `contribution: dataset
title: Flood Model
authors: Ana, Bo
abstract: ` + strings.Repeat("x", simplesubmit.MinAbstractLength) + `
keywords: flood, rain
visibility: private
funding_agencies:
  - agency_name: NSF
    award_title: Water
    award_number: "123"
    agency_url: https://nsf.gov
files:
  - Model Output.csv
`

func TestLoadDraft(t *testing.T) {
	df, closeFiles, err := loadDraft(writeDraft(t, draftYAML))
	require.NoError(t, err)
	defer closeFiles()

	assert.Equal(t, simplesubmit.ContributionDataset, df.Contribution)
	assert.Equal(t, "Flood Model", df.Title)
	assert.Equal(t, simplesubmit.VisibilityPrivate, df.Visibility)
	require.Len(t, df.FundingAgencies, 1)
	assert.Equal(t, "123", df.FundingAgencies[0].AwardNumber)

	require.Len(t, df.Draft.Files, 1)
	assert.Equal(t, "model_output.csv", df.Draft.Files[0].Name)
	assert.Equal(t, int64(8), df.Draft.Files[0].Size)
	data, err := io.ReadAll(df.Draft.Files[0].Reader)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
	assert.Nil(t, df.Draft.Thumbnail)
}

func TestLoadDraft_Errors(t *testing.T) {
	_, _, err := loadDraft(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, _, err = loadDraft(writeDraft(t, "files:\n  - nope.csv\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.csv")

	_, _, err = loadDraft(writeDraft(t, "title: [unterminated"))
	assert.Error(t, err)
}

func TestSubmitCommand(t *testing.T) {
	server := hydrosharetest.NewServer()
	defer server.Close()
	t.Setenv("S3_BUCKET_NAME", "")

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		writeDraft(t, draftYAML),
		"--token", "hs-token",
		"--api-url", server.BaseURL(),
		"--site-url", server.URL,
	})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Resource: "+server.URL+"/resource/abc123")
	assert.Contains(t, out.String(), "[success]")

	var uploaded []string
	for _, c := range server.Calls() {
		assert.Equal(t, "Bearer hs-token", c.Authorization)
		if c.Endpoint == hydrosharetest.EndpointFiles {
			uploaded = append(uploaded, c.FileName)
		}
	}
	assert.Equal(t, []string{"model_output.csv", "README.md"}, uploaded)
}

func TestSubmitCommand_MissingToken(t *testing.T) {
	server := hydrosharetest.NewServer()
	defer server.Close()
	t.Setenv("HS_TOKEN", "")
	t.Setenv("S3_BUCKET_NAME", "")

	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{writeDraft(t, draftYAML), "--api-url", server.BaseURL()})

	err := cmd.Execute()
	require.ErrorIs(t, err, simplesubmit.ErrAuthenticationRequired)
	assert.Empty(t, server.Calls())
}
