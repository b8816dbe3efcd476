package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/target/bookshelf/internal/domain/nav"
)

// NavigationConfig selects the navigation table.
type NavigationConfig struct {
	// File is an optional YAML declaration replacing the built-in table.
	File string `env:"FILE"`
	// DenyUndeclared refuses routes missing from the table. A value in File takes precedence.
	DenyUndeclared bool `env:"DENY_UNDECLARED" envDefault:"false"`
}

// Sanitize trims the file path.
func (c *NavigationConfig) Sanitize() {
	c.File = strings.TrimSpace(c.File)
}

// DefaultNavigation returns the built-in entries of the library app in display order.
func DefaultNavigation() []nav.Entry {
	return []nav.Entry{
		{Path: "/", Label: "Home", Visibility: nav.VisibilityAlways},
		{Path: "/books", Label: "Browse", Visibility: nav.VisibilityAlways},
		{Path: "/my-books", Label: "My Books", Visibility: nav.VisibilityAuthenticatedOnly},
		{Path: "/bookmarks", Label: "Bookmarks", Visibility: nav.VisibilityAuthenticatedOnly},
		{Path: "/reviews", Label: "Reviews", Visibility: nav.VisibilityAuthenticatedOnly},
		{Path: "/profile", Label: "Profile", Visibility: nav.VisibilityAuthenticatedOnly},
		{Path: "/login", Label: "Login", Visibility: nav.VisibilityAnonymousOnly},
		{Path: "/signup", Label: "Sign up", Visibility: nav.VisibilityAnonymousOnly},
	}
}

type navigationFile struct {
	DenyUndeclared *bool       `yaml:"deny_undeclared"`
	Entries        []nav.Entry `yaml:"entries"`
}

// LoadNavigation builds the validated navigation table from the built-in entries or from File.
func LoadNavigation(cfg NavigationConfig) (nav.Table, error) {
	opts := nav.TableOptions{DenyUndeclared: cfg.DenyUndeclared}
	if cfg.File == "" {
		return nav.MustTable(DefaultNavigation(), opts), nil
	}

	raw, err := os.ReadFile(cfg.File)
	if err != nil {
		return nav.Table{}, fmt.Errorf("read navigation file: %w", err)
	}
	return ParseNavigation(raw, opts)
}

// ParseNavigation decodes a YAML navigation declaration. Unknown keys are rejected.
func ParseNavigation(raw []byte, opts nav.TableOptions) (nav.Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var file navigationFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nav.Table{}, fmt.Errorf("decode navigation file: %w", err)
	}
	if len(file.Entries) == 0 {
		return nav.Table{}, fmt.Errorf("%w: no entries declared", nav.ErrInvalidTable)
	}
	if file.DenyUndeclared != nil {
		opts.DenyUndeclared = *file.DenyUndeclared
	}
	return nav.NewTable(file.Entries, opts)
}
