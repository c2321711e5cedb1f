package resource

import (
	"github.com/kailas-cloud/resdex/internal/db"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
)

func commonFields(b *db.IndexBuilder) *db.IndexBuilder {
	return b.
		Tag(stored.FieldUUID).
		Tag(stored.FieldBundle).
		Text(stored.FieldTitle).
		SortableTag(stored.FieldTitleExact).
		Tag(stored.FieldPublished).
		Tag(stored.FieldPrivate).
		Tag(stored.FieldProvider).
		Tag(stored.FieldAuthor).
		SortableNumeric(stored.FieldCreated).
		SortableNumeric(stored.FieldChanged).
		Tag(stored.FieldParent).
		Tag(stored.FieldRefs)
}

// KindIndex is the index over every resource of kind.
func KindIndex(prefix string, kind domtype.Kind) *db.IndexDefinition {
	return commonFields(db.NewIndex(kind.Plural()).
		Prefix(prefix + kind.Plural() + ":")).
		MustBuild()
}

// TypeIndex is the index over resources of one type, including its fields.
func TypeIndex(prefix string, t domtype.ResourceType) (*db.IndexDefinition, error) {
	b := commonFields(db.NewIndex(t.IndexName()).
		Prefix(prefix + t.Kind().Plural() + ":" + t.MachineName() + ":"))
	for _, f := range t.Fields() {
		addField(b, f)
	}
	return b.Build()
}

func addField(b *db.IndexBuilder, f field.Definition) {
	name := f.Name()
	switch f.FieldType() {
	case field.StringLong:
		b.Text(name)
	case field.Integer, field.Timestamp:
		b.Numeric(name)
	case field.DateRange:
		b.Numeric(name).Numeric(name + stored.SuffixEnd)
	case field.Geofield:
		b.Numeric(name + stored.SuffixLat).Numeric(name + stored.SuffixLon)
	case field.EntityReference, field.EntityReferenceUUID:
		b.Tag(name).Tag(name + stored.SuffixLabel)
	default:
		b.Tag(name)
	}
}

// Companions lists the flat names derived from a field, itself first.
func Companions(f field.Definition) []string {
	name := f.Name()
	switch f.FieldType() {
	case field.DateRange:
		return []string{name, name + stored.SuffixEnd}
	case field.Geofield:
		return []string{name, name + stored.SuffixLat, name + stored.SuffixLon}
	case field.EntityReference, field.EntityReferenceUUID:
		return []string{name, name + stored.SuffixLabel}
	}
	return []string{name}
}
