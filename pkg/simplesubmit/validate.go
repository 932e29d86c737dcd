package simplesubmit

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinAbstractLength is the minimum abstract length in characters
const MinAbstractLength = 150

var keywordSeparator = regexp.MustCompile(`[,\s]+`)

// Validate checks a draft and produces the payload sent to the repository.
// Rules are applied in order and the first failure is returned.
func Validate(draft Draft, profile Profile) (*Payload, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "Title is required."}
	}

	abstract := strings.TrimSpace(draft.Abstract)
	if utf8.RuneCountInString(abstract) < MinAbstractLength {
		return nil, &ValidationError{Field: "abstract", Message: "Abstract must be at least 150 characters."}
	}

	authors := ParseAuthors(draft.Authors)
	if len(authors) == 0 {
		return nil, &ValidationError{Field: "authors", Message: "At least one author is required, separated by commas."}
	}

	agencies := CompleteFundingAgencies(draft.FundingAgencies)
	if len(agencies) == 0 {
		return nil, &ValidationError{Field: "funding_agencies", Message: "At least one complete funding agency entry is required."}
	}

	presPath := strings.TrimSpace(draft.PresentationPath)
	if presPath != "" {
		if !strings.HasSuffix(strings.ToLower(presPath), ".pdf") {
			return nil, &ValidationError{Field: "presentation_path", Message: "Presentation filename must be a PDF file for embedding."}
		}
		found := false
		for _, f := range draft.Files {
			if f.Name == presPath {
				found = true
				break
			}
		}
		if !found {
			return nil, &ValidationError{Field: "presentation_path", Message: "Presentation filename must exist within the uploaded files."}
		}
	}

	visibility := draft.Visibility
	if visibility == "" {
		visibility = VisibilityPublic
	}

	coverages := draft.Coverages
	if coverages == nil {
		coverages = []Coverage{}
	}

	return &Payload{
		ResourceType:     profile.ResourceType,
		Title:            title,
		Abstract:         abstract,
		Authors:          authors,
		Keywords:         NormalizeKeywords(draft.Keywords, profile.RequiredKeyword),
		FundingAgencies:  agencies,
		Coverages:        coverages,
		PageURL:          strings.TrimSpace(draft.PageURL),
		DocsURL:          strings.TrimSpace(draft.DocsURL),
		PresentationPath: presPath,
		Visibility:       visibility,
	}, nil
}

// ParseAuthors splits a comma separated author list into records, dropping blanks
func ParseAuthors(s string) []Author {
	var authors []Author
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			authors = append(authors, Author{Name: name})
		}
	}
	return authors
}

// CompleteFundingAgencies keeps only records with all four fields set, trimmed
func CompleteFundingAgencies(in []FundingAgency) []FundingAgency {
	var out []FundingAgency
	for _, fa := range in {
		if !fa.complete() {
			continue
		}
		out = append(out, FundingAgency{
			AgencyName:  strings.TrimSpace(fa.AgencyName),
			AwardTitle:  strings.TrimSpace(fa.AwardTitle),
			AwardNumber: strings.TrimSpace(fa.AwardNumber),
			AgencyURL:   strings.TrimSpace(fa.AgencyURL),
		})
	}
	return out
}

// NormalizeKeywords splits free text on commas and whitespace and returns a
// deduplicated list that contains required exactly once. Variants of required
// that differ only in case are folded into it.
func NormalizeKeywords(text, required string) []string {
	required = strings.TrimSpace(required)
	seen := make(map[string]struct{})
	var keywords []string

	for _, kw := range keywordSeparator.Split(text, -1) {
		kw = strings.TrimSpace(kw)
		if kw == "" || strings.EqualFold(kw, required) {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}

	if required != "" {
		keywords = append(keywords, required)
	}
	return keywords
}
