package objectkey

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func fixedID() uuid.UUID {
	return uuid.MustParse("987fcdeb-51a2-43d1-9f12-345678901234")
}

func TestUUIDGenerator(t *testing.T) {
	gen := &UUIDGenerator{NewID: fixedID}

	tests := []struct {
		name     string
		fileName string
		expected string
	}{
		{"png", "logo.png", "987fcdeb-51a2-43d1-9f12-345678901234.png"},
		{"upper case extension", "Logo.PNG", "987fcdeb-51a2-43d1-9f12-345678901234.png"},
		{"double extension keeps last", "archive.tar.gz", "987fcdeb-51a2-43d1-9f12-345678901234.gz"},
		{"no extension", "thumbnail", "987fcdeb-51a2-43d1-9f12-345678901234"},
		{"path components ignored", "../../etc/passwd.jpg", "987fcdeb-51a2-43d1-9f12-345678901234.jpg"},
		{"unsafe extension characters dropped", "x.j/pg", "987fcdeb-51a2-43d1-9f12-345678901234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := gen.GenerateKey(tt.fileName)
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestUUIDGenerator_Uniqueness(t *testing.T) {
	gen := NewUUIDGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := gen.GenerateKey("same-name.png")
		if seen[key] {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = true
		if strings.Contains(key, "same-name") {
			t.Errorf("original file name leaked into key: %s", key)
		}
	}
}

func TestPrefixedGenerator(t *testing.T) {
	gen := &PrefixedGenerator{
		BaseGenerator: &UUIDGenerator{NewID: fixedID},
		Prefix:        "Thumbnails/Apps",
	}

	key := gen.GenerateKey("icon.svg")
	expected := "thumbnails/apps/987fcdeb-51a2-43d1-9f12-345678901234.svg"
	if key != expected {
		t.Errorf("expected %s, got %s", expected, key)
	}

	gen.Prefix = ""
	if key := gen.GenerateKey("icon.svg"); key != "987fcdeb-51a2-43d1-9f12-345678901234.svg" {
		t.Errorf("empty prefix should not add a separator, got %s", key)
	}
}

func TestCustomFuncGenerator(t *testing.T) {
	gen := NewCustomFuncGenerator(func(fileName string) string {
		return "custom/" + Extension(fileName)
	})

	if key := gen.GenerateKey("a.webp"); key != "custom/webp" {
		t.Errorf("expected custom/webp, got %s", key)
	}
}
