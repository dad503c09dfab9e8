// Package source models the units janitor operates on and parses them with
// tree-sitter.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Unit is one file processed independently by the pipeline. ID is the
// display identifier (usually the path as given on the command line); Path
// is absolute and keys backups and locks.
type Unit struct {
	ID       string
	Path     string
	Language Language
	Content  []byte
}

// Load reads a unit from disk
func Load(path string) (*Unit, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	lang := Detect(abs)
	if !lang.Supported() {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
	return &Unit{
		ID:       filepath.ToSlash(filepath.Clean(path)),
		Path:     abs,
		Language: lang,
		Content:  content,
	}, nil
}

// FromBytes builds an in-memory unit (e.g. for the HTTP API)
func FromBytes(id string, lang Language, content []byte) *Unit {
	if lang == LanguageUnknown {
		lang = Detect(id)
	}
	return &Unit{ID: id, Path: id, Language: lang, Content: content}
}

// WithContent returns a copy of the unit carrying different content, used
// to analyze candidates under the original unit's identity.
func (u *Unit) WithContent(content []byte) *Unit {
	c := *u
	c.Content = content
	return &c
}

// Hash returns the hex sha256 of the content
func (u *Unit) Hash() string {
	return HashBytes(u.Content)
}

// HashBytes returns the hex sha256 of data
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
