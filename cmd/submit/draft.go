package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"gopkg.in/yaml.v3"
)

// draftFile is the on-disk form of a submission. Paths are relative to the file.
type draftFile struct {
	Contribution       simplesubmit.ContributionType `yaml:"contribution"`
	simplesubmit.Draft `yaml:",inline"`

	Files     []string `yaml:"files"`
	Thumbnail string   `yaml:"thumbnail"`
}

// loadDraft reads a YAML draft and opens the files it lists. The returned func closes them.
func loadDraft(path string) (*draftFile, func(), error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read draft: %w", err)
	}

	var df draftFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, nil, fmt.Errorf("failed to parse draft %s: %w", path, err)
	}
	if df.Contribution == "" {
		df.Contribution = simplesubmit.ContributionApp
	}

	dir := filepath.Dir(path)
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	open := func(name string) (simplesubmit.File, error) {
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		f, err := os.Open(name)
		if err != nil {
			return simplesubmit.File{}, err
		}
		opened = append(opened, f)

		info, err := f.Stat()
		if err != nil {
			return simplesubmit.File{}, err
		}
		contentType := mime.TypeByExtension(filepath.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return simplesubmit.File{
			Name:        filepath.Base(name),
			ContentType: contentType,
			Size:        info.Size(),
			Reader:      f,
		}, nil
	}

	files := make([]simplesubmit.File, 0, len(df.Files))
	for _, name := range df.Files {
		f, err := open(name)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		files = append(files, f)
	}
	df.Draft.AttachFiles(df.Contribution, files...)

	if df.Thumbnail != "" {
		thumb, err := open(df.Thumbnail)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open thumbnail %s: %w", df.Thumbnail, err)
		}
		df.Draft.Thumbnail = &thumb
	}

	return &df, closeAll, nil
}
