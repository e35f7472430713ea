package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set is one catalog as it appears in a YAML catalog file.
type Set struct {
	Key     `yaml:",inline"`
	Entries []Entry `yaml:"entries"`
}

// Document is the top level of a YAML catalog file:
//
//	catalogs:
//	  - kind: mrTypes
//	    name: LP
//	    entries:
//	      - value: SIMPLE
//	        concatenated: LP MR SIMPLE
type Document struct {
	Catalogs []Set `yaml:"catalogs"`
}

// ReadFile parses and validates a YAML catalog file.
func ReadFile(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Parse(path, b)
}

// Parse decodes and validates YAML catalog content; name is used in errors.
func Parse(name string, b []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("parse %s: %w", name, err)
	}
	for i, s := range doc.Catalogs {
		if err := s.Key.Validate(); err != nil {
			return Document{}, fmt.Errorf("%s: catalog %d: %w", name, i, err)
		}
		for j, e := range s.Entries {
			if strings.TrimSpace(e.Value) == "" {
				return Document{}, fmt.Errorf("%s: catalog %s entry %d: empty value", name, s.Key, j)
			}
		}
	}
	return doc, nil
}

// IsCatalogFile reports whether path has a YAML extension.
func IsCatalogFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// FileProvider serves catalogs straight from the YAML files of a directory.
// Files are re-read on every fetch; a key present in several files takes
// its entries from the last file in lexical order.
type FileProvider struct {
	Dir string
}

func (p FileProvider) Fetch(ctx context.Context, key Key) ([]Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	names, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}
	entries := []Entry{}
	for _, de := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if de.IsDir() || !IsCatalogFile(de.Name()) {
			continue
		}
		doc, err := ReadFile(filepath.Join(p.Dir, de.Name()))
		if err != nil {
			return nil, err
		}
		for _, s := range doc.Catalogs {
			if s.Key == key {
				entries = s.Entries
			}
		}
	}
	return entries, nil
}
