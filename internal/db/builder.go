package db

import "strings"

// IndexBuilder assembles an IndexDefinition field by field.
//
// Every TAG field uses TagSeparator so multi-valued fields written by the
// resource repository split the same way they were joined. Non-sortable
// fields are created with INDEXMISSING so filters can ask for empty values.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts an index named name.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix restricts the index to keys starting with any of prefixes.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Tag adds an exact-match field: uuids, flags, references, short strings.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldTag, TagSeparator: TagSeparator, Missing: true})
}

// SortableTag adds a case-sensitive TAG that can order results, such as
// the exact title.
func (b *IndexBuilder) SortableTag(name string) *IndexBuilder {
	return b.add(IndexField{
		Name:             name,
		Type:             IndexFieldTag,
		TagSeparator:     TagSeparator,
		TagCaseSensitive: true,
		Sortable:         true,
	})
}

// Numeric adds a range-filterable field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldNumeric, Missing: true})
}

// SortableNumeric adds a numeric field results can be ordered by.
func (b *IndexBuilder) SortableNumeric(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldNumeric, Sortable: true})
}

// Text adds a full-text field. Stores without text search skip it.
func (b *IndexBuilder) Text(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldText})
}

func (b *IndexBuilder) add(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Build validates the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}

// MustBuild is Build for definitions fixed at compile time.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic("db: invalid index " + b.def.Name + ": " + err.Error())
	}
	return def
}

var fieldTypeNames = map[IndexFieldType]string{
	IndexFieldNumeric: "NUMERIC",
	IndexFieldTag:     "TAG",
	IndexFieldText:    "TEXT",
}

// String renders a short FT.CREATE-like summary for logs.
func (idx *IndexDefinition) String() string {
	var sb strings.Builder
	sb.WriteString(idx.Name)
	if len(idx.Prefixes) > 0 {
		sb.WriteString(" [" + strings.Join(idx.Prefixes, " ") + "]")
	}
	for _, f := range idx.Fields {
		sb.WriteString(" " + f.Name + ":" + fieldTypeNames[f.Type])
		if f.Sortable {
			sb.WriteString(":SORTABLE")
		}
	}
	return sb.String()
}
