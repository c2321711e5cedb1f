package resourcetype

import (
	"context"
	"path"
	"testing"

	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
)

// mockStore keeps hashes in memory; errFn injects failures per method.
type mockStore struct {
	hashes map[string]map[string]string
	errFn  func(method string) error
}

func (m *mockStore) fail(method string) error {
	if m.errFn != nil {
		return m.errFn(method)
	}
	return nil
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if err := m.fail("HSet"); err != nil {
		return err
	}
	m.hashes[key] = fields
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if err := m.fail("HGetAll"); err != nil {
		return nil, err
	}
	if h, ok := m.hashes[key]; ok {
		return h, nil
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		h, err := m.HGetAll(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	if err := m.fail("Del"); err != nil {
		return err
	}
	for _, k := range keys {
		delete(m.hashes, k)
	}
	return nil
}

func (m *mockStore) Exists(_ context.Context, key string) (bool, error) {
	if err := m.fail("Exists"); err != nil {
		return false, err
	}
	_, ok := m.hashes[key]
	return ok, nil
}

func (m *mockStore) Scan(_ context.Context, pattern string) ([]string, error) {
	if err := m.fail("Scan"); err != nil {
		return nil, err
	}
	var keys []string
	for k := range m.hashes {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{hashes: map[string]map[string]string{}}
	return New(ms, "resdex:"), ms
}

func testType(t *testing.T, kind domtype.Kind, name string, createdAt int64) domtype.ResourceType {
	t.Helper()
	return domtype.Reconstruct(kind, "p1", domtype.Params{
		MachineName: name,
		Label:       "Label " + name,
		Endpoint:    domtype.DefaultEndpoint(name),
		Flags:       domtype.Flags{Shared: true, UseRevisions: true},
	}, []field.Definition{
		field.Reconstruct("tags", field.EntityReference, field.Options{
			Label: "Tags", Multiple: true, Owner: "p1",
			Target: field.Target{Kind: "term", Bundle: "acme_tags"},
		}),
		field.Reconstruct("secret", field.String, field.Options{Private: true, Owner: "p1"}),
	}, createdAt, 3)
}
