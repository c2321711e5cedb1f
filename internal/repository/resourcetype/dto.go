package resourcetype

import (
	"encoding/json"
	"fmt"
	"strconv"

	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
)

// fieldRow is the JSON-serializable representation of a field for HSET.
type fieldRow struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Label    string       `json:"label,omitempty"`
	Multiple bool         `json:"multiple,omitempty"`
	Private  bool         `json:"private,omitempty"`
	Owner    string       `json:"owner,omitempty"`
	Target   field.Target `json:"target,omitempty"`
}

// typeToHash converts a ResourceType to a map for HSET.
func typeToHash(t domtype.ResourceType) (map[string]string, error) {
	rows := make([]fieldRow, len(t.Fields()))
	for i, f := range t.Fields() {
		rows[i] = fieldRow{
			Name:     f.Name(),
			Type:     string(f.FieldType()),
			Label:    f.Label(),
			Multiple: f.Multiple(),
			Private:  f.Private(),
			Owner:    f.Owner(),
			Target:   f.Target(),
		}
	}
	fieldsJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	flagsJSON, err := json.Marshal(t.Flags())
	if err != nil {
		return nil, fmt.Errorf("marshal flags: %w", err)
	}
	return map[string]string{
		"kind":         string(t.Kind()),
		"machine_name": t.MachineName(),
		"label":        t.Label(),
		"description":  t.Description(),
		"owner":        t.Owner(),
		"author":       t.Author(),
		"endpoint":     t.Endpoint(),
		"flags_json":   string(flagsJSON),
		"fields_json":  string(fieldsJSON),
		"created_at":   strconv.FormatInt(t.CreatedAt(), 10),
		"revision":     strconv.Itoa(t.Revision()),
	}, nil
}

// typeFromHash hydrates a ResourceType from an HGETALL result map.
func typeFromHash(m map[string]string) (domtype.ResourceType, error) {
	createdAt, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return domtype.ResourceType{}, fmt.Errorf("invalid created_at: %w", err)
	}
	revision, err := strconv.Atoi(m["revision"])
	if err != nil {
		revision = 1
	}

	var flags domtype.Flags
	if raw := m["flags_json"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &flags); err != nil {
			return domtype.ResourceType{}, fmt.Errorf("unmarshal flags: %w", err)
		}
	}

	var rows []fieldRow
	if raw := m["fields_json"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rows); err != nil {
			return domtype.ResourceType{}, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	fields := make([]field.Definition, len(rows))
	for i, r := range rows {
		fields[i] = field.Reconstruct(r.Name, field.Type(r.Type), field.Options{
			Label:    r.Label,
			Multiple: r.Multiple,
			Private:  r.Private,
			Owner:    r.Owner,
			Target:   r.Target,
		})
	}

	return domtype.Reconstruct(domtype.Kind(m["kind"]), m["owner"], domtype.Params{
		MachineName: m["machine_name"],
		Label:       m["label"],
		Description: m["description"],
		Author:      m["author"],
		Endpoint:    m["endpoint"],
		Flags:       flags,
	}, fields, createdAt, revision), nil
}
