package simplesubmit

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var longAbstract = strings.Repeat("a", MinAbstractLength)

func validDraft() Draft {
	return Draft{
		Title:    "Flood Model",
		Authors:  "Ana, Bo",
		Abstract: longAbstract,
		Keywords: "flood, hydrology",
		FundingAgencies: []FundingAgency{{
			AgencyName: "NSF", AwardTitle: "Water", AwardNumber: "123", AgencyURL: "https://nsf.gov",
		}},
	}
}

func validationField(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected a ValidationError, got %v", err)
	return ve.Field
}

func TestValidate_Success(t *testing.T) {
	payload, err := Validate(validDraft(), ProfileFor(ContributionApp))
	require.NoError(t, err)

	assert.Equal(t, "ToolResource", payload.ResourceType)
	assert.Equal(t, "Flood Model", payload.Title)
	assert.Equal(t, []Author{{Name: "Ana"}, {Name: "Bo"}}, payload.Authors)
	assert.Equal(t, []string{"flood", "hydrology", "nwm_portal_app"}, payload.Keywords)
	assert.Equal(t, VisibilityPublic, payload.Visibility)
	assert.NotNil(t, payload.Coverages)
	assert.Empty(t, payload.Coverages)
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Draft)
		field   string
		message string
	}{
		{
			name:    "blank title",
			mutate:  func(d *Draft) { d.Title = "   " },
			field:   "title",
			message: "Title is required.",
		},
		{
			name:    "abstract one short",
			mutate:  func(d *Draft) { d.Abstract = strings.Repeat("a", MinAbstractLength-1) },
			field:   "abstract",
			message: "Abstract must be at least 150 characters.",
		},
		{
			name:   "abstract padding does not count",
			mutate: func(d *Draft) { d.Abstract = "  " + strings.Repeat("a", MinAbstractLength-1) + "  " },
			field:  "abstract",
		},
		{
			name:   "only separators as authors",
			mutate: func(d *Draft) { d.Authors = " , ,, " },
			field:  "authors",
		},
		{
			name: "incomplete funding agency",
			mutate: func(d *Draft) {
				d.FundingAgencies = []FundingAgency{{AgencyName: "NSF", AwardTitle: "Water", AwardNumber: "123"}}
			},
			field: "funding_agencies",
		},
		{
			name: "presentation path not a pdf",
			mutate: func(d *Draft) {
				d.PresentationPath = "slides.pptx"
				d.Files = []File{NewFile("slides.pptx", "", nil)}
			},
			field:   "presentation_path",
			message: "Presentation filename must be a PDF file for embedding.",
		},
		{
			name: "presentation path not among files",
			mutate: func(d *Draft) {
				d.PresentationPath = "talk.pdf"
				d.Files = []File{NewFile("other.pdf", "", nil)}
			},
			field:   "presentation_path",
			message: "Presentation filename must exist within the uploaded files.",
		},
		{
			name: "title checked before abstract",
			mutate: func(d *Draft) {
				d.Title = ""
				d.Abstract = ""
			},
			field: "title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)

			payload, err := Validate(d, ProfileFor(ContributionApp))
			require.Error(t, err)
			assert.Nil(t, payload)
			assert.Equal(t, tt.field, validationField(t, err))
			if tt.message != "" {
				assert.Equal(t, tt.message, err.Error())
			}
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestValidate_AbstractCountsCharacters(t *testing.T) {
	d := validDraft()
	d.Abstract = strings.Repeat("é", MinAbstractLength)

	_, err := Validate(d, ProfileFor(ContributionApp))
	assert.NoError(t, err)
}

func TestValidate_KeepsOnlyCompleteFundingAgencies(t *testing.T) {
	d := validDraft()
	d.FundingAgencies = append(d.FundingAgencies,
		FundingAgency{AgencyName: "DOE"},
		FundingAgency{AgencyName: " NOAA ", AwardTitle: "Rain", AwardNumber: "9", AgencyURL: "https://noaa.gov "},
	)

	payload, err := Validate(d, ProfileFor(ContributionApp))
	require.NoError(t, err)
	require.Len(t, payload.FundingAgencies, 2)
	assert.Equal(t, "NSF", payload.FundingAgencies[0].AgencyName)
	assert.Equal(t, "NOAA", payload.FundingAgencies[1].AgencyName)
	assert.Equal(t, "https://noaa.gov", payload.FundingAgencies[1].AgencyURL)
}

func TestValidate_PresentationPath(t *testing.T) {
	d := validDraft()
	d.AttachFiles(ContributionPresentation, NewFile("My Talk.PDF", "application/pdf", []byte("%PDF")))
	require.Equal(t, "my_talk.PDF", d.PresentationPath)

	payload, err := Validate(d, ProfileFor(ContributionPresentation))
	require.NoError(t, err)
	assert.Equal(t, "my_talk.PDF", payload.PresentationPath)
	assert.Equal(t, "CompositeResource", payload.ResourceType)
	assert.Equal(t, "nwm_portal_presentation", payload.Keywords[len(payload.Keywords)-1])
}

func TestNormalizeKeywords(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"empty", "", []string{"nwm_portal_app"}},
		{"commas and spaces", "a, b  c,,d", []string{"a", "b", "c", "d", "nwm_portal_app"}},
		{"required already present", "nwm_portal_app, flood", []string{"flood", "nwm_portal_app"}},
		{"required repeated", "nwm_portal_app nwm_portal_app", []string{"nwm_portal_app"}},
		{"required in other case", "NWM_Portal_App flood", []string{"flood", "nwm_portal_app"}},
		{"duplicates collapse", "flood flood rain flood", []string{"flood", "rain", "nwm_portal_app"}},
		{"newlines and tabs", "flood\nrain\tsnow", []string{"flood", "rain", "snow", "nwm_portal_app"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeKeywords(tt.text, "nwm_portal_app")
			assert.Equal(t, tt.expected, got)

			count := 0
			for _, kw := range got {
				if kw == "nwm_portal_app" {
					count++
				}
			}
			assert.Equal(t, 1, count)
		})
	}
}

func TestParseAuthors(t *testing.T) {
	assert.Equal(t, []Author{{Name: "Ana Lopez"}, {Name: "Bo"}}, ParseAuthors(" Ana Lopez ,, Bo, "))
	assert.Empty(t, ParseAuthors(""))
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"My File (v2).CSV", "my_file_v2.CSV"},
		{"  spaced   name .txt", "spaced_name.txt"},
		{"Data__Set.tar.gz", "data_set.tar.gz"},
		{"README", "readme"},
		{"trailing.", "trailing"},
		{"résumé.pdf", "r_sum.pdf"},
		{"ok-name_1.py", "ok-name_1.py"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFileName(tt.in))
		})
	}
}

func TestDraft_AttachFiles(t *testing.T) {
	t.Run("presentation with leading pdf", func(t *testing.T) {
		var d Draft
		d.AttachFiles(ContributionPresentation,
			NewFile("Slides Final.pdf", "application/pdf", nil),
			NewFile("notes.txt", "text/plain", nil))
		assert.Equal(t, "slides_final.pdf", d.PresentationPath)
		assert.Equal(t, "notes.txt", d.Files[1].Name)
	})

	t.Run("presentation without leading pdf", func(t *testing.T) {
		var d Draft
		d.AttachFiles(ContributionPresentation,
			NewFile("notes.txt", "text/plain", nil),
			NewFile("slides.pdf", "application/pdf", nil))
		assert.Empty(t, d.PresentationPath)
	})

	t.Run("presentation keeps chosen path", func(t *testing.T) {
		d := Draft{PresentationPath: "slides_final.pdf"}
		d.AttachFiles(ContributionPresentation,
			NewFile("Handout.pdf", "application/pdf", nil),
			NewFile("slides_final.pdf", "application/pdf", nil))
		assert.Equal(t, "slides_final.pdf", d.PresentationPath)
		assert.Equal(t, "handout.pdf", d.Files[0].Name)
	})

	t.Run("blank path is filled", func(t *testing.T) {
		d := Draft{PresentationPath: "  "}
		d.AttachFiles(ContributionPresentation, NewFile("Handout.pdf", "application/pdf", nil))
		assert.Equal(t, "handout.pdf", d.PresentationPath)
	})

	t.Run("other types never fill the path", func(t *testing.T) {
		var d Draft
		d.AttachFiles(ContributionApp, NewFile("slides.pdf", "application/pdf", nil))
		assert.Empty(t, d.PresentationPath)
		assert.Equal(t, "slides.pdf", d.Files[0].Name)
	})
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, Profile{Label: "Product", ResourceType: "ToolResource", RequiredKeyword: "nwm_portal_app"},
		ProfileFor(ContributionApp))
	assert.Equal(t, "nwm_portal_data", ProfileFor(ContributionDataset).RequiredKeyword)
	assert.Equal(t, "Contribution", ProfileFor("widget").Label)
}

func TestPayload_ExtraMetadata(t *testing.T) {
	p := &Payload{PageURL: "https://app.example.org", PresentationPath: "talk.pdf"}

	assert.Equal(t, map[string]string{
		"page_url":      "https://app.example.org",
		"thumbnail_url": "https://cdn.example.org/t.png",
		"pres_path":     "talk.pdf",
	}, p.ExtraMetadata("https://cdn.example.org/t.png"))

	assert.Empty(t, (&Payload{}).ExtraMetadata(""))
}

func TestPayload_CoverageMetadata(t *testing.T) {
	p := &Payload{Coverages: []Coverage{{Type: "box", Value: map[string]interface{}{"north": 45.0}}}}

	got := p.CoverageMetadata()
	require.Len(t, got, 1)
	assert.Equal(t, "box", got[0]["coverage"].Type)
	assert.NotNil(t, (&Payload{}).CoverageMetadata())
}
