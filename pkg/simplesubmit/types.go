package simplesubmit

import (
	"bytes"
	"io"
	"regexp"
	"strings"
)

// Visibility controls how a resource is exposed once it has been created
type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityPrivate      Visibility = "private"
	VisibilityDiscoverable Visibility = "discoverable"
)

// ContributionType identifies which kind of contribution a draft describes
type ContributionType string

const (
	ContributionApp          ContributionType = "app"
	ContributionDataset      ContributionType = "dataset"
	ContributionPresentation ContributionType = "presentation"
	ContributionCourse       ContributionType = "course"
)

// Profile carries the per-contribution settings sent to the repository
type Profile struct {
	Label           string
	ResourceType    string
	RequiredKeyword string
}

var profiles = map[ContributionType]Profile{
	ContributionApp:          {Label: "Product", ResourceType: "ToolResource", RequiredKeyword: "nwm_portal_app"},
	ContributionDataset:      {Label: "Dataset", ResourceType: "CompositeResource", RequiredKeyword: "nwm_portal_data"},
	ContributionPresentation: {Label: "Presentation", ResourceType: "CompositeResource", RequiredKeyword: "nwm_portal_presentation"},
	ContributionCourse:       {Label: "Course", ResourceType: "CompositeResource", RequiredKeyword: "nwm_portal_module"},
}

// ProfileFor returns the profile for a contribution type. Unknown types get the
// generic "Contribution" profile.
func ProfileFor(t ContributionType) Profile {
	if p, ok := profiles[t]; ok {
		return p
	}
	return Profile{Label: "Contribution", ResourceType: "ToolResource", RequiredKeyword: "nwm_portal_app"}
}

// FundingAgency is one funding record. All four fields must be set for the record to be kept.
type FundingAgency struct {
	AgencyName  string `json:"agency_name" yaml:"agency_name"`
	AwardTitle  string `json:"award_title" yaml:"award_title"`
	AwardNumber string `json:"award_number" yaml:"award_number"`
	AgencyURL   string `json:"agency_url" yaml:"agency_url"`
}

// complete reports whether every field is non-empty after trimming
func (f FundingAgency) complete() bool {
	return strings.TrimSpace(f.AgencyName) != "" &&
		strings.TrimSpace(f.AwardTitle) != "" &&
		strings.TrimSpace(f.AwardNumber) != "" &&
		strings.TrimSpace(f.AgencyURL) != ""
}

// Coverage is a spatial or temporal coverage record, e.g.
// {Type: "period", Value: {"start": "2000-01-01", "end": "2010-12-31"}}
type Coverage struct {
	Type  string                 `json:"type" yaml:"type"`
	Value map[string]interface{} `json:"value" yaml:"value"`
}

// Author is a single creator record
type Author struct {
	Name string `json:"name"`
}

// File is a named blob. Reader is consumed once by an upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// NewFile wraps an in-memory blob
func NewFile(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Reader:      bytes.NewReader(data),
	}
}

// Draft is the user-editable description of a resource before submission
type Draft struct {
	Title            string          `json:"title" yaml:"title"`
	Authors          string          `json:"authors" yaml:"authors"`
	Abstract         string          `json:"abstract" yaml:"abstract"`
	Keywords         string          `json:"keywords" yaml:"keywords"`
	PageURL          string          `json:"inputUrl" yaml:"page_url"`
	DocsURL          string          `json:"docsUrl" yaml:"docs_url"`
	FundingAgencies  []FundingAgency `json:"fundingAgencies" yaml:"funding_agencies"`
	Coverages        []Coverage      `json:"coverages" yaml:"coverages"`
	PresentationPath string          `json:"presPath" yaml:"presentation_path"`
	Visibility       Visibility      `json:"visibility" yaml:"visibility"`

	// Runtime only, never persisted
	Files     []File `json:"-" yaml:"-"`
	Thumbnail *File  `json:"-" yaml:"-"`
}

// AttachFiles sanitizes the file names and stores the files on the draft.
// Presentations without a presentation path get one filled from a leading PDF.
func (d *Draft) AttachFiles(t ContributionType, files ...File) {
	d.Files = make([]File, 0, len(files))
	for _, f := range files {
		f.Name = SanitizeFileName(f.Name)
		d.Files = append(d.Files, f)
	}

	if t == ContributionPresentation && len(d.Files) > 0 &&
		strings.TrimSpace(d.PresentationPath) == "" &&
		strings.HasSuffix(strings.ToLower(d.Files[0].Name), ".pdf") {
		d.PresentationPath = d.Files[0].Name
	}
}

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	disallowedChar = regexp.MustCompile(`[^a-z0-9._-]`)
	underscoreRun  = regexp.MustCompile(`_{2,}`)
)

// SanitizeFileName normalizes the part before the first dot; everything after it is kept.
func SanitizeFileName(name string) string {
	base, ext, hasExt := strings.Cut(name, ".")

	base = strings.ToLower(base)
	base = whitespaceRun.ReplaceAllString(base, "_")
	base = disallowedChar.ReplaceAllString(base, "_")
	base = underscoreRun.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	if hasExt && ext != "" {
		return base + "." + ext
	}
	return base
}

// Payload is the validated, normalized form of a Draft. Only Validate produces one.
type Payload struct {
	ResourceType     string
	Title            string
	Abstract         string
	Authors          []Author
	Keywords         []string
	FundingAgencies  []FundingAgency
	Coverages        []Coverage
	PageURL          string
	DocsURL          string
	PresentationPath string
	Visibility       Visibility
}

// CoverageMetadata returns the coverage records in the repository's metadata array shape
func (p *Payload) CoverageMetadata() []map[string]Coverage {
	out := make([]map[string]Coverage, 0, len(p.Coverages))
	for _, c := range p.Coverages {
		out = append(out, map[string]Coverage{"coverage": c})
	}
	return out
}

// ExtraMetadata returns the key/value metadata attached to the resource. Empty values are omitted.
func (p *Payload) ExtraMetadata(thumbnailURL string) map[string]string {
	extra := make(map[string]string)
	if p.PageURL != "" {
		extra["page_url"] = p.PageURL
	}
	if thumbnailURL != "" {
		extra["thumbnail_url"] = thumbnailURL
	}
	if p.DocsURL != "" {
		extra["docs_url"] = p.DocsURL
	}
	if p.PresentationPath != "" {
		extra["pres_path"] = p.PresentationPath
	}
	return extra
}
