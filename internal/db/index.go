package db

import (
	"errors"
	"strconv"
	"strings"
)

// TagSeparator splits multi-valued TAG fields written by this service.
const TagSeparator = "|"

// TagValue normalizes a value for TAG fields so the separator never splits it.
func TagValue(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, TagSeparator, " "))
}

// IndexFieldType enumerates supported FT index field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a tag field.
	IndexFieldTag
	// IndexFieldText is a text field.
	IndexFieldText
)

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name string
	Type IndexFieldType

	Sortable bool
	// Missing enables ismissing() queries on the field.
	Missing bool

	// TAG options
	TagSeparator     string
	TagCaseSensitive bool
}

// IndexDefinition is an FT index over resource hashes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool)
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return errors.New("field name is required at index " + strconv.Itoa(i))
		}
		if seen[f.Name] {
			return errors.New("duplicate field name: " + f.Name)
		}
		seen[f.Name] = true
	}

	return nil
}

// Schema returns the field name to type mapping used by query compilation.
func (idx *IndexDefinition) Schema() map[string]IndexFieldType {
	m := make(map[string]IndexFieldType, len(idx.Fields))
	for _, f := range idx.Fields {
		m[f.Name] = f.Type
	}
	return m
}

// HasText reports whether any field supports full-text queries.
func (idx *IndexDefinition) HasText() bool {
	for _, f := range idx.Fields {
		if f.Type == IndexFieldText {
			return true
		}
	}
	return false
}

// ResolvedIndex names the index a query runs against and the paths it
// can filter on.
type ResolvedIndex struct {
	Name   string
	Schema map[string]IndexFieldType
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
