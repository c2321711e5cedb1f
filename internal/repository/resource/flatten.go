package resource

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
)

func boolTag(b bool) string {
	if b {
		return stored.TagTrue
	}
	return stored.TagFalse
}

// flatten builds the hash written for e: the indexable fields plus the
// stored blob.
func flatten(e stored.Entity, blob []byte) map[string]string {
	m := map[string]string{
		stored.FieldUUID:      e.UUID,
		stored.FieldBundle:    e.Bundle,
		stored.FieldTitle:     e.Title,
		stored.FieldPublished: boolTag(e.Published),
		stored.FieldPrivate:   boolTag(e.Private),
		stored.FieldProvider:  e.Owner,
		stored.FieldCreated:   strconv.FormatInt(e.Created, 10),
		stored.FieldChanged:   strconv.FormatInt(e.Changed, 10),
		stored.FieldStored:    string(blob),
	}
	setTags(m, stored.FieldTitleExact, []string{e.Title})
	setTags(m, stored.FieldAuthor, []string{e.Author})
	setTags(m, stored.FieldParent, []string{e.Parent})

	refs := e.Snapshot().References()
	setTags(m, stored.FieldRefs, refs)

	for name, f := range e.Fields {
		flattenField(m, name, f)
	}
	return m
}

func flattenField(m map[string]string, name string, f stored.Field) {
	if len(f.Items) == 0 {
		return
	}
	first := f.Items[0]

	switch f.Type {
	case field.StringLong:
		parts := make([]string, 0, len(f.Items))
		for _, it := range f.Items {
			parts = append(parts, it.Value)
		}
		if s := strings.TrimSpace(strings.Join(parts, " ")); s != "" {
			m[name] = s
		}
	case field.Integer, field.Timestamp:
		setNumber(m, name, first.Value)
	case field.DateRange:
		setNumber(m, name, first.Value)
		setNumber(m, name+stored.SuffixEnd, first.End)
	case field.Geofield:
		if first.Lat != nil && first.Lon != nil {
			m[name+stored.SuffixLat] = strconv.FormatFloat(*first.Lat, 'f', -1, 64)
			m[name+stored.SuffixLon] = strconv.FormatFloat(*first.Lon, 'f', -1, 64)
		}
	case field.EntityReference, field.EntityReferenceUUID:
		ids := make([]string, 0, len(f.Items))
		labels := make([]string, 0, len(f.Items))
		for _, it := range f.Items {
			ids = append(ids, it.TargetUUID)
			labels = append(labels, it.Label)
		}
		setTags(m, name, ids)
		setTags(m, name+stored.SuffixLabel, labels)
	case field.Boolean:
		b, err := strconv.ParseBool(first.Value)
		if err == nil {
			m[name] = boolTag(b)
		}
	case field.Link:
		uris := make([]string, 0, len(f.Items))
		for _, it := range f.Items {
			uris = append(uris, it.URI)
		}
		setTags(m, name, uris)
	default:
		vals := make([]string, 0, len(f.Items))
		for _, it := range f.Items {
			vals = append(vals, it.Value)
		}
		setTags(m, name, vals)
	}
}

func setTags(m map[string]string, name string, values []string) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = db.TagValue(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) > 0 {
		m[name] = strings.Join(out, db.TagSeparator)
	}
}

func setNumber(m map[string]string, name, v string) {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		m[name] = v
	}
}
