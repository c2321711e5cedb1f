package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kailas-cloud/resdex/internal/domain"
)

// Entry is one key of the metadata payload with its raw value.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// ParseEntries decodes the metadata array: an ordered list of single-key
// objects. Order is kept.
func ParseEntries(raw json.RawMessage) ([]Entry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: metadata must be an array of objects: %w", domain.ErrValidation, err)
	}
	out := make([]Entry, 0, len(items))
	for i, item := range items {
		if len(item) != 1 {
			return nil, fmt.Errorf("%w: metadata entry %d must have exactly one key", domain.ErrValidation, i)
		}
		for k, v := range item {
			out = append(out, Entry{Key: k, Value: v})
		}
	}
	return out, nil
}

// EntriesFromObject turns the loose keys of a create or update body into
// entries, in key order.
func EntriesFromObject(obj map[string]json.RawMessage) []Entry {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Value: obj[k]})
	}
	return out
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
