package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	"github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
	"github.com/kailas-cloud/resdex/internal/usecase/access"
)

// Row is one resource in response shape.
type Row map[string]any

// Ref is a reshaped entity reference.
type Ref struct {
	UUID  string `json:"uuid"`
	Label string `json:"label"`
}

// LinkValue is a reshaped link.
type LinkValue struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Range is a reshaped date range.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Point is a reshaped geofield.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FileValue is a reshaped file reference.
type FileValue struct {
	MediaUUID string `json:"media_uuid"`
	FileUUID  string `json:"file_uuid"`
	Filename  string `json:"filename"`
	URI       string `json:"uri,omitempty"`
	Mimetype  string `json:"mimetype"`
	Private   bool   `json:"private"`
}

// Reshape maps a stored entity to its response shape for caller. Fields
// the caller may not read are left out.
func (s *Service) Reshape(ctx context.Context, e stored.Entity, caller domprov.Caller) (Row, error) {
	t, ok, err := s.types.ByMachineName(ctx, e.Kind, e.Bundle)
	if err != nil {
		return nil, fmt.Errorf("load type %s: %w", e.Bundle, err)
	}
	var tp *domtype.ResourceType
	if ok {
		tp = &t
	}

	row := Row{
		"uuid":          e.UUID,
		"type":          e.Bundle,
		"author":        e.Author,
		"published":     e.Published,
		"private":       e.Private,
		"provider_uuid": e.Owner,
		"revision_id":   e.RevisionID,
		"created":       isoTime(e.Created),
		"changed":       isoTime(e.Changed),
	}
	if e.Kind == domtype.KindTerm {
		row["label"] = e.Title
		if e.Description != "" {
			row["description"] = e.Description
		}
		if e.Parent != "" {
			row["parent"] = Ref{UUID: e.Parent, Label: e.ParentLabel}
		}
	} else {
		row["title"] = e.Title
		files, err := s.reshapeFiles(ctx, e.Files, caller)
		if err != nil {
			return nil, err
		}
		row["files"] = files
	}

	if tp == nil {
		return row, nil
	}
	for name, f := range e.Fields {
		def, ok := tp.FieldByName(name)
		if !ok || !access.Readable(def, caller.UUID()) {
			continue
		}
		row[name] = reshapeField(def, f.Items)
	}
	return row, nil
}

// OptionRow keeps what reference pickers need.
func OptionRow(e stored.Entity) Row {
	display := e.Title
	if e.ParentLabel != "" {
		display = e.ParentLabel + " > " + e.Title
	}
	return Row{"uuid": e.UUID, "label": e.Title, "display_name": display}
}

func reshapeField(def field.Definition, items []resource.Item) any {
	values := make([]any, 0, len(items))
	for _, it := range items {
		if v, ok := reshapeItem(def.FieldType(), it); ok {
			values = append(values, v)
		}
	}
	if def.Multiple() {
		return values
	}
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

func reshapeItem(ft field.Type, it resource.Item) (any, bool) {
	if ft.IsReference() {
		return Ref{UUID: it.TargetUUID, Label: it.Label}, it.TargetUUID != ""
	}
	switch ft {
	case field.Link:
		return LinkValue{URI: it.URI, Title: it.Title}, it.URI != ""
	case field.Boolean:
		b, err := strconv.ParseBool(it.Value)
		return b, err == nil
	case field.Integer:
		n, err := strconv.ParseInt(it.Value, 10, 64)
		return n, err == nil
	case field.Timestamp:
		return isoValue(it.Value), it.Value != ""
	case field.DateRange:
		return Range{Start: isoValue(it.Value), End: isoValue(it.End)}, it.Value != ""
	case field.Geofield:
		if it.Lat == nil || it.Lon == nil {
			return nil, false
		}
		return Point{Lat: *it.Lat, Lon: *it.Lon}, true
	case field.Address:
		if len(it.Address) == 0 {
			return it.Value, it.Value != ""
		}
		return it.Address, true
	}
	return it.Value, it.Value != ""
}

func (s *Service) reshapeFiles(ctx context.Context, refs []resource.FileRef, caller domprov.Caller) ([]FileValue, error) {
	out := make([]FileValue, 0, len(refs))
	for _, ref := range refs {
		f, err := s.files.Resolve(ctx, caller, ref.MediaUUID)
		if err != nil {
			// hidden for the caller or gone
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolve media %s: %w", ref.MediaUUID, err)
		}
		out = append(out, s.fileValue(ref.MediaUUID, f, caller))
	}
	return out, nil
}

func (s *Service) fileValue(mediaUUID string, f media.File, caller domprov.Caller) FileValue {
	v := FileValue{
		MediaUUID: mediaUUID,
		FileUUID:  f.UUID(),
		Filename:  f.Filename(),
		Mimetype:  f.Mime(),
		Private:   f.IsPrivate(),
	}
	if !f.IsPrivate() || f.OwnedBy(caller.UUID()) {
		v.URI = s.fileURL(f)
	}
	return v
}

func isoTime(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

// isoValue formats a stored unix-seconds value; anything else passes through.
func isoValue(v string) string {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return v
	}
	return isoTime(n)
}
