package objectkey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates an object key for a file. The file name is only
	// consulted for its extension.
	GenerateKey(fileName string) string
}

// UUIDGenerator names objects <uuid>.<ext>, keeping the original extension
type UUIDGenerator struct {
	// NewID returns the random part of the key (default: uuid.New)
	NewID func() uuid.UUID
}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{
		NewID: uuid.New,
	}
}

func (g *UUIDGenerator) GenerateKey(fileName string) string {
	newID := g.NewID
	if newID == nil {
		newID = uuid.New
	}

	id := newID().String()
	if ext := Extension(fileName); ext != "" {
		return fmt.Sprintf("%s.%s", id, ext)
	}
	return id
}

// PrefixedGenerator places keys from a base generator under a fixed prefix
// Structure: {prefix}/{uuid}.{ext}
type PrefixedGenerator struct {
	BaseGenerator Generator
	Prefix        string
}

func NewPrefixedGenerator(prefix string) *PrefixedGenerator {
	return &PrefixedGenerator{
		BaseGenerator: NewUUIDGenerator(),
		Prefix:        prefix,
	}
}

func (g *PrefixedGenerator) GenerateKey(fileName string) string {
	baseKey := g.BaseGenerator.GenerateKey(fileName)

	prefix := strings.Trim(sanitizePathComponent(g.Prefix), "/")
	if prefix == "" {
		return baseKey
	}
	return fmt.Sprintf("%s/%s", prefix, baseKey)
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(fileName string) string
}

func NewCustomFuncGenerator(fn func(fileName string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(fileName string) string {
	return g.GenerateFunc(fileName)
}

// Extension returns the lower-cased extension of fileName without the dot,
// restricted to characters that are safe in a key.
func Extension(fileName string) string {
	ext := strings.TrimPrefix(path.Ext(path.Base(strings.ReplaceAll(fileName, "\\", "/"))), ".")
	ext = strings.ToLower(ext)

	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sanitizePathComponent(component string) string {
	replacer := strings.NewReplacer(
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return strings.ToLower(replacer.Replace(component))
}

// NewRecommendedGenerator returns the generator used for thumbnails
func NewRecommendedGenerator() Generator {
	return NewUUIDGenerator()
}
