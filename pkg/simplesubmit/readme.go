package simplesubmit

import (
	"fmt"
	"strings"
)

// ReadmeFileName is the name of the generated description document
const ReadmeFileName = "README.md"

// BuildReadme renders the Markdown description uploaded alongside the user's files
func BuildReadme(title, abstract string, authors []Author, keywords []string) File {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		names = append(names, a.Name)
	}

	content := fmt.Sprintf("# %s\n\n**Authors:** %s\n\n**Keywords:** %s\n\n## Abstract\n\n%s\n",
		strings.TrimSpace(title),
		strings.Join(names, ", "),
		strings.Join(keywords, ", "),
		strings.TrimSpace(abstract),
	)

	return NewFile(ReadmeFileName, "text/markdown", []byte(content))
}
