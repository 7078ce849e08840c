// Package templates persists one form template per hostname so repeat runs
// against a site can skip discovery.
//
// Identity is the hostname alone: every path on a host shares one template,
// and saving always replaces whatever was stored before.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/v0xg/formcheck/internal/form"
)

// ErrInvalidURL is returned when a URL cannot be parsed.
var ErrInvalidURL = errors.New("invalid url")

// Template is the persisted document.
type Template struct {
	FormIndex    int           `json:"formIndex"`
	FormSelector string        `json:"formSelector"`
	Mapping      *form.Mapping `json:"mapping"`
	URL          string        `json:"url"`
	Hostname     string        `json:"hostname"`
	SavedAt      time.Time     `json:"savedAt"`
}

// Store keeps templates as JSON files in a directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create template dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Hostname returns the template identity for rawURL; "site" when the URL has
// no host.
func Hostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if h := u.Hostname(); h != "" {
		return strings.ToLower(h), nil
	}
	return "site", nil
}

// safeFilename keeps letters, digits, '-' and '.', replacing the rest with '_'.
func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, s)
}

func (s *Store) path(host string) string {
	return filepath.Join(s.dir, safeFilename(host)+".json")
}

// Save overwrites the template for rawURL's hostname and returns the file
// path written. A nil mapping is stored as an empty one.
func (s *Store) Save(rawURL, selector string, formIndex int, mapping *form.Mapping) (string, error) {
	host, err := Hostname(rawURL)
	if err != nil {
		return "", err
	}
	if mapping == nil {
		mapping = form.NewMapping()
	}
	t := Template{
		FormIndex:    formIndex,
		FormSelector: selector,
		Mapping:      mapping,
		URL:          rawURL,
		Hostname:     host,
		SavedAt:      s.now().UTC(),
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal template: %w", err)
	}

	path := s.path(host)
	tmp, err := os.CreateTemp(s.dir, ".tmpl-*")
	if err != nil {
		return "", fmt.Errorf("failed to write template: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write template: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write template: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to write template: %w", err)
	}
	return path, nil
}

// Load returns the template for rawURL's hostname. A missing template is
// reported as ok == false with a nil error.
func (s *Store) Load(rawURL string) (*Template, bool, error) {
	host, err := Hostname(rawURL)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.path(host))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read template: %w", err)
	}

	t := &Template{Mapping: form.NewMapping()}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, false, fmt.Errorf("corrupt template for %s: %w", host, err)
	}
	if t.Mapping == nil {
		t.Mapping = form.NewMapping()
	}
	return t, true, nil
}
