package resdex

import (
	"context"
	"time"

	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/repository/maintenance"
	"github.com/kailas-cloud/resdex/internal/usecase/filever"
	healthuc "github.com/kailas-cloud/resdex/internal/usecase/health"
	resourceuc "github.com/kailas-cloud/resdex/internal/usecase/resource"
	"github.com/kailas-cloud/resdex/internal/usecase/revision"
	"github.com/kailas-cloud/resdex/internal/usecase/schema"
)

// --- providerStore mock ---

type mockProviders struct {
	byUUID map[string]domprov.Provider
	byKey  map[string]domprov.Caller
	err    error
}

func newMockProviders() *mockProviders {
	return &mockProviders{byUUID: map[string]domprov.Provider{}, byKey: map[string]domprov.Caller{}}
}

func (m *mockProviders) add(p domprov.Provider) {
	m.byUUID[p.UUID()] = p
	m.byKey[p.APIKey()] = domprov.Caller{Provider: &p}
	m.byKey[p.ReadOnlyKey()] = domprov.Caller{Provider: &p, ReadOnly: true}
}

func (m *mockProviders) Create(_ context.Context, p domprov.Provider) error {
	if m.err != nil {
		return m.err
	}
	m.add(p)
	return nil
}

func (m *mockProviders) Get(_ context.Context, id string) (domprov.Provider, error) {
	p, ok := m.byUUID[id]
	if !ok {
		return domprov.Provider{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockProviders) ByAPIKey(_ context.Context, key string) (domprov.Caller, error) {
	c, ok := m.byKey[key]
	if !ok {
		return domprov.Caller{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *mockProviders) List(context.Context) ([]domprov.Provider, error) {
	out := make([]domprov.Provider, 0, len(m.byUUID))
	for _, p := range m.byUUID {
		out = append(out, p)
	}
	return out, m.err
}

// --- schemaUseCase mock ---

type mockSchema struct {
	createTypeFn  func(caller domprov.Caller, kind domtype.Kind, p domtype.Params) (domtype.ResourceType, error)
	createFieldFn func(kind domtype.Kind, machineName string, p schema.FieldParams) (field.Definition, error)
}

func (m *mockSchema) CreateType(
	_ context.Context, caller domprov.Caller, kind domtype.Kind, p domtype.Params,
) (domtype.ResourceType, error) {
	return m.createTypeFn(caller, kind, p)
}

func (m *mockSchema) CreateField(
	_ context.Context, _ domprov.Caller, kind domtype.Kind, machineName string, p schema.FieldParams,
) (field.Definition, error) {
	return m.createFieldFn(kind, machineName, p)
}

// --- contentUseCase mock ---

type mockContent struct {
	createFn func(kind domtype.Kind, bundle string, in resourceuc.Input, p revision.Params) (resourceuc.Created, error)
}

func (m *mockContent) Create(
	_ context.Context, _ domprov.Caller, kind domtype.Kind, bundle string,
	in resourceuc.Input, p revision.Params,
) (resourceuc.Created, error) {
	return m.createFn(kind, bundle, in, p)
}

// --- fileUseCase mock ---

type mockFiles struct {
	created []media.File
	written map[string][]byte
}

func (m *mockFiles) CreateFile(
	_ context.Context, caller domprov.Caller, filename, mimeType string, private bool,
) (media.File, error) {
	f, err := media.NewFile(filename, mimeType, private, caller.UUID(), 1)
	if err != nil {
		return media.File{}, err
	}
	m.created = append(m.created, f)
	return f, nil
}

func (m *mockFiles) WriteContent(
	_ context.Context, _ domprov.Caller, fileUUID string, data []byte, _ bool,
) (filever.Written, error) {
	if m.written == nil {
		m.written = map[string][]byte{}
	}
	m.written[fileUUID] = data
	for _, f := range m.created {
		if f.UUID() == fileUUID {
			f.RecordContent(f.URI(), int64(len(data)), "h")
			md, err := media.New(f.Filename(), f.Owner(), f.UUID(), 1)
			return filever.Written{File: f, Media: md}, err
		}
	}
	return filever.Written{}, domain.ErrNotFound
}

// --- healthUseCase mock ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- helpers ---

func testProvider(secret string) domprov.Provider {
	return domprov.Reconstruct(domprov.Params{
		UUID:         "11111111-1111-4111-8111-111111111111",
		Name:         "Acme",
		Prefix:       "acme",
		APIKey:       "rw-key",
		ReadOnlyKey:  "ro-key",
		SharedSecret: secret,
	}, 10)
}

func newTestClient() (*Client, *mockProviders) {
	providers := newMockProviders()
	return &Client{
		providers: providers,
		schema:    &mockSchema{},
		content:   &mockContent{},
		files:     &mockFiles{},
		health:    &mockHealth{},
		reset: func(context.Context) (maintenance.Report, error) {
			return maintenance.Report{}, nil
		},
		now: func() time.Time { return time.Unix(1000, 0) },
	}, providers
}
