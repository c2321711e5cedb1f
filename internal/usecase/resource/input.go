package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/resdex/internal/domain"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/usecase/metadata"
	"github.com/kailas-cloud/resdex/internal/usecase/revision"
)

// Input is a decoded create or update body. Nil members were absent.
type Input struct {
	Title       *string
	Author      *string
	Description *string
	Parent      *string
	Published   *bool
	Private     *bool
	// Files lists media uuids in display order.
	Files   *[]string
	Entries []metadata.Entry
}

// Keys of a body that never reach the metadata compiler.
var ignoredKeys = map[string]bool{"uuid": true, "type": true, "id": true}

// DecodeInput splits a JSON object body into the structural members,
// the revision controls and the metadata entries. Loose keys become
// entries in key order, followed by the "metadata" array.
func DecodeInput(kind domtype.Kind, raw json.RawMessage) (Input, revision.Params, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return Input{}, revision.Params{}, fmt.Errorf("%w: body must be a JSON object: %w", domain.ErrValidation, err)
	}
	if body == nil {
		return Input{}, revision.Params{}, fmt.Errorf("%w: body must be a JSON object", domain.ErrValidation)
	}
	return decodeObject(kind, body)
}

func decodeObject(kind domtype.Kind, body map[string]json.RawMessage) (Input, revision.Params, error) {
	var (
		in    Input
		p     revision.Params
		err   error
		meta  []metadata.Entry
		loose = make(map[string]json.RawMessage)
	)
	titleKeys := []string{"title"}
	if kind == domtype.KindTerm {
		titleKeys = []string{"label", "name"}
	}

	for key, v := range body {
		switch {
		case contains(titleKeys, key):
			in.Title, err = stringValue(key, v)
		case key == "author":
			in.Author, err = stringValue(key, v)
		case key == "description":
			in.Description, err = stringValue(key, v)
		case key == "parent" || key == "parent_uuid":
			in.Parent, err = stringValue(key, v)
		case key == "published" || key == "status":
			in.Published, err = boolValue(key, v)
		case key == "private":
			in.Private, err = boolValue(key, v)
		case key == "files":
			in.Files, err = fileList(v)
		case key == "metadata":
			meta, err = metadata.ParseEntries(v)
		case key == "new_revision":
			p.NewRevision, err = truthy(key, v)
		case key == "draft":
			p.Draft, err = truthy(key, v)
		case key == "revision_log":
			var s *string
			if s, err = stringValue(key, v); s != nil {
				p.Log = *s
			}
		case ignoredKeys[key]:
		default:
			loose[key] = v
		}
		if err != nil {
			return Input{}, revision.Params{}, err
		}
	}
	if kind == domtype.KindDocument && in.Parent != nil {
		return Input{}, revision.Params{}, fmt.Errorf("%w: documents have no parent", domain.ErrValidation)
	}
	in.Entries = append(metadata.EntriesFromObject(loose), meta...)
	return in, p, nil
}

func contains(keys []string, k string) bool {
	for _, s := range keys {
		if s == k {
			return true
		}
	}
	return false
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func stringValue(key string, v json.RawMessage) (*string, error) {
	if isNull(v) {
		empty := ""
		return &empty, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, fmt.Errorf("%w: %s must be a string", domain.ErrValidation, key)
	}
	return &s, nil
}

func boolValue(key string, v json.RawMessage) (*bool, error) {
	b, err := truthy(key, v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// truthy accepts booleans, 0/1 and their string forms.
func truthy(key string, v json.RawMessage) (bool, error) {
	var x any
	if err := json.Unmarshal(v, &x); err != nil {
		return false, fmt.Errorf("%w: %s: %w", domain.ErrValidation, key, err)
	}
	switch t := x.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("%w: %s must be a boolean", domain.ErrValidation, key)
		}
		return b, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean", domain.ErrValidation, key)
}

// fileList accepts media uuids as strings or {"media_uuid": ...} objects.
func fileList(v json.RawMessage) (*[]string, error) {
	var items []json.RawMessage
	if !isNull(v) {
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, fmt.Errorf("%w: files must be an array", domain.ErrValidation)
		}
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		var id string
		if err := json.Unmarshal(it, &id); err != nil {
			var ref struct {
				MediaUUID string `json:"media_uuid"`
			}
			if err := json.Unmarshal(it, &ref); err != nil || ref.MediaUUID == "" {
				return nil, fmt.Errorf("%w: files[%d] must be a media uuid", domain.ErrValidation, i)
			}
			id = ref.MediaUUID
		}
		out = append(out, id)
	}
	return &out, nil
}
