package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain"
	domquery "github.com/kailas-cloud/resdex/internal/domain/query"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
	"github.com/kailas-cloud/resdex/internal/usecase/access"
)

// Request paths that name a common field under another name.
var aliases = map[string]string{
	"label":        stored.FieldTitle,
	"name":         stored.FieldTitle,
	"status":       stored.FieldPublished,
	"uid":          stored.FieldProvider,
	"provider":     stored.FieldProvider,
	"type":         stored.FieldBundle,
	"vid":          stored.FieldBundle,
	"parent_uuid":  stored.FieldParent,
	"created_date": stored.FieldCreated,
}

// Property suffixes of "field.property" paths.
var properties = map[string]string{
	"value":       "",
	"target_id":   "",
	"target_uuid": "",
	"uuid":        "",
	"uri":         "",
	"label":       stored.SuffixLabel,
	"name":        stored.SuffixLabel,
	"end_value":   stored.SuffixEnd,
	"end":         stored.SuffixEnd,
	"lat":         stored.SuffixLat,
	"lon":         stored.SuffixLon,
}

var boolFields = map[string]bool{
	stored.FieldPublished: true,
	stored.FieldPrivate:   true,
}

var timeFields = map[string]bool{
	stored.FieldCreated: true,
	stored.FieldChanged: true,
}

// resolver maps request paths onto flat index fields and normalizes
// filter values to the form they were indexed in.
type resolver struct {
	t        *domtype.ResourceType
	schema   map[string]db.IndexFieldType
	provider string
}

// resolve returns the index field for path and the field definition it
// belongs to, if any. exact selects title_exact over the TEXT title.
func (r resolver) resolve(path string, exact bool) (string, *field.Definition, error) {
	base, prop, _ := strings.Cut(path, ".")
	if a, ok := aliases[base]; ok {
		base = a
	}
	suffix, ok := properties[prop]
	if prop != "" && !ok {
		return "", nil, fmt.Errorf("%w: unknown property %q in %q", domain.ErrBadRequest, prop, path)
	}

	var def *field.Definition
	if r.t != nil {
		if d, found := r.t.FieldByName(base); found {
			if !access.Readable(d, r.provider) {
				return "", nil, fmt.Errorf("%w: field %q", domain.ErrAccessDenied, base)
			}
			def = &d
		}
	}

	name := base + suffix
	if name == stored.FieldTitle {
		if _, text := r.schema[stored.FieldTitle]; exact || !text {
			name = stored.FieldTitleExact
		}
	}
	if _, ok := r.schema[name]; !ok {
		return "", nil, fmt.Errorf("%w: %q is not filterable", domain.ErrBadRequest, path)
	}
	return name, def, nil
}

func (r resolver) group(g domquery.Group) (domquery.Group, error) {
	out := domquery.Group{ID: g.ID, Conjunction: g.Conjunction}
	for _, c := range g.Conditions {
		mapped, err := r.condition(c)
		if err != nil {
			return domquery.Group{}, err
		}
		out.Conditions = append(out.Conditions, mapped)
	}
	for _, sub := range g.Groups {
		mapped, err := r.group(sub)
		if err != nil {
			return domquery.Group{}, err
		}
		out.Groups = append(out.Groups, mapped)
	}
	return out, nil
}

func (r resolver) condition(c domquery.Condition) (domquery.Condition, error) {
	name, def, err := r.resolve(c.Path, c.Operator != domquery.OpContains)
	if err != nil {
		return domquery.Condition{}, err
	}
	values := make([]string, len(c.Values))
	for i, v := range c.Values {
		nv, err := r.value(name, def, v)
		if err != nil {
			return domquery.Condition{}, fmt.Errorf("%w: filter on %q: %w", domain.ErrBadRequest, c.Path, err)
		}
		values[i] = nv
	}
	out, err := domquery.NewCondition(name, c.Operator, values...)
	if err != nil {
		return domquery.Condition{}, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	out.ID = c.ID
	return out, nil
}

// value converts a request value to its indexed form.
func (r resolver) value(name string, def *field.Definition, v string) (string, error) {
	switch {
	case boolFields[name] || (def != nil && def.FieldType() == field.Boolean && name == def.Name()):
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return "", fmt.Errorf("expected a boolean, got %q", v)
		}
		if b {
			return stored.TagTrue, nil
		}
		return stored.TagFalse, nil
	case timeFields[name] || (def != nil && (def.FieldType() == field.Timestamp || def.FieldType() == field.DateRange)):
		return unixValue(v)
	}
	if r.schema[name] == db.IndexFieldTag {
		return db.TagValue(v), nil
	}
	return v, nil
}

// unixValue accepts unix seconds or an ISO-8601 date.
func unixValue(v string) (string, error) {
	v = strings.TrimSpace(v)
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return strconv.FormatInt(t.Unix(), 10), nil
		}
	}
	return "", fmt.Errorf("expected a timestamp, got %q", v)
}

func (r resolver) sorts(in []domquery.Sort) ([]domquery.Sort, error) {
	out := make([]domquery.Sort, 0, len(in))
	for _, s := range in {
		name, _, err := r.resolve(s.Path, true)
		if err != nil {
			return nil, err
		}
		if r.schema[name] == db.IndexFieldText {
			return nil, fmt.Errorf("%w: cannot sort on %q", domain.ErrBadRequest, s.Path)
		}
		s.Path = name
		out = append(out, s)
	}
	return out, nil
}

func (r resolver) facet(path string) (string, error) {
	name, _, err := r.resolve(path, true)
	if err != nil {
		return "", err
	}
	if r.schema[name] == db.IndexFieldText {
		return "", fmt.Errorf("%w: cannot facet on %q", domain.ErrBadRequest, path)
	}
	return name, nil
}
