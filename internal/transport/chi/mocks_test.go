package chi

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/domain"
	dombatch "github.com/kailas-cloud/resdex/internal/domain/batch"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	batchuc "github.com/kailas-cloud/resdex/internal/usecase/batch"
	"github.com/kailas-cloud/resdex/internal/usecase/filever"
	healthuc "github.com/kailas-cloud/resdex/internal/usecase/health"
	"github.com/kailas-cloud/resdex/internal/usecase/query"
	resourceuc "github.com/kailas-cloud/resdex/internal/usecase/resource"
	"github.com/kailas-cloud/resdex/internal/usecase/revision"
	"github.com/kailas-cloud/resdex/internal/usecase/schema"
)

// --- Mocks ---

type mockCallers struct {
	keys map[string]domprov.Caller
	err  error
}

func (m *mockCallers) ByAPIKey(_ context.Context, key string) (domprov.Caller, error) {
	if m.err != nil {
		return domprov.Caller{}, m.err
	}
	c, ok := m.keys[key]
	if !ok {
		return domprov.Caller{}, domain.ErrNotFound
	}
	return c, nil
}

type mockEndpoints struct {
	types map[string]domtype.ResourceType // "<kind>/<endpoint>"
}

func (m *mockEndpoints) ByEndpoint(_ context.Context, kind domtype.Kind, endpoint string) (domtype.ResourceType, bool, error) {
	t, ok := m.types[string(kind)+"/"+endpoint]
	return t, ok, nil
}

type mockSchema struct {
	types     map[string]domtype.ResourceType
	updated   *domtype.Flags
	createdFn func(p domtype.Params) (domtype.ResourceType, error)
}

func (m *mockSchema) CreateType(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, p domtype.Params,
) (domtype.ResourceType, error) {
	return m.createdFn(p)
}

func (m *mockSchema) GetType(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, name string,
) (domtype.ResourceType, error) {
	t, ok := m.types[name]
	if !ok {
		return domtype.ResourceType{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *mockSchema) ListTypes(_ context.Context, _ domprov.Caller, _ domtype.Kind) ([]domtype.ResourceType, error) {
	out := make([]domtype.ResourceType, 0, len(m.types))
	for _, t := range m.types {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockSchema) UpdateType(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, name string,
	label, description string, flags domtype.Flags,
) (domtype.ResourceType, error) {
	m.updated = &flags
	t, ok := m.types[name]
	if !ok {
		return domtype.ResourceType{}, domain.ErrNotFound
	}
	return t.WithDetails(label, description, flags)
}

func (m *mockSchema) DeleteType(_ context.Context, _ domprov.Caller, _ domtype.Kind, _ string) error {
	return nil
}

func (m *mockSchema) CreateField(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, _ string, p schema.FieldParams,
) (field.Definition, error) {
	return field.New(p.Name, p.Type, field.Options{Label: p.Label, Multiple: p.Multiple, Private: p.Private})
}

func (m *mockSchema) UpdateField(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, _, name string, label string, private bool,
) (field.Definition, error) {
	return field.Reconstruct(name, field.String, field.Options{Label: label, Private: private}), nil
}

func (m *mockSchema) DeleteField(_ context.Context, _ domprov.Caller, _ domtype.Kind, _, _ string) error {
	return nil
}

type mockResources struct {
	createFn func(caller domprov.Caller, bundle string, in resourceuc.Input) (resourceuc.Created, error)
	getFn    func(caller domprov.Caller, bundle, uuid string) (resourceuc.View, error)
	updateFn func(in resourceuc.Input, p revision.Params, ifMatch *int64) (resourceuc.View, error)
	err      error
}

func (m *mockResources) Create(
	_ context.Context, caller domprov.Caller, _ domtype.Kind, bundle string, in resourceuc.Input, _ revision.Params,
) (resourceuc.Created, error) {
	return m.createFn(caller, bundle, in)
}

func (m *mockResources) Get(
	_ context.Context, caller domprov.Caller, _ domtype.Kind, bundle, uuid string,
) (resourceuc.View, error) {
	return m.getFn(caller, bundle, uuid)
}

func (m *mockResources) Update(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, _, _ string,
	in resourceuc.Input, p revision.Params, ifMatch *int64,
) (resourceuc.View, error) {
	return m.updateFn(in, p, ifMatch)
}

func (m *mockResources) Delete(_ context.Context, _ domprov.Caller, _ domtype.Kind, _, _ string) error {
	return m.err
}

func (m *mockResources) Publish(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, _, _, _ string,
) (domres.Revision, error) {
	return domres.Revision{ID: 2, Default: true}, m.err
}

func (m *mockResources) Unpublish(_ context.Context, _ domprov.Caller, _ domtype.Kind, _, _ string) error {
	return domain.ErrUnsupported
}

func (m *mockResources) Revisions(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, _, _ string,
) ([]domres.Revision, error) {
	return []domres.Revision{{ID: 1, Default: true}, {ID: 2}}, m.err
}

func (m *mockResources) Revision(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, _, _, ref string,
) (domres.Revision, error) {
	if ref != "1" {
		return domres.Revision{}, domain.ErrNotFound
	}
	return domres.Revision{ID: 1, Default: true, Snapshot: domres.Snapshot{Title: "first"}}, m.err
}

type mockLister struct {
	last   query.Request
	result query.Result
	err    error
}

func (m *mockLister) List(_ context.Context, req query.Request) (query.Result, error) {
	m.last = req
	return m.result, m.err
}

type mockBulk struct {
	last batchuc.Request
	// errs overrides the default of failing every odd item with ErrValidation.
	errs map[int]error
}

func (m *mockBulk) Create(
	_ context.Context, _ domprov.Caller, _ domtype.Kind, _ string, req batchuc.Request,
) []dombatch.Result {
	m.last = req
	out := make([]dombatch.Result, len(req.Items))
	for i := range req.Items {
		err, failed := m.errs[i]
		if m.errs == nil && i%2 == 1 {
			err, failed = domain.ErrValidation, true
		}
		if failed {
			out[i] = dombatch.NewError(i, err)
		} else {
			out[i] = dombatch.NewOK(i, "uuid-"+string(rune('a'+i)), "Article created")
		}
	}
	return out
}

type mockFiles struct {
	files       map[string]media.File
	medias      map[string]media.Media
	written     []byte
	newRevision bool
	download    filever.Target
	downloadErr error
}

func (m *mockFiles) CreateFile(
	_ context.Context, caller domprov.Caller, filename, mimeType string, private bool,
) (media.File, error) {
	if !caller.CanWrite() {
		return media.File{}, domain.ErrUnauthenticated
	}
	return media.NewFile(filename, mimeType, private, caller.UUID(), 100)
}

func (m *mockFiles) GetFile(_ context.Context, uuid string) (media.File, error) {
	f, ok := m.files[uuid]
	if !ok {
		return media.File{}, domain.ErrNotFound
	}
	return f, nil
}

func (m *mockFiles) GetMedia(_ context.Context, uuid string) (media.Media, error) {
	md, ok := m.medias[uuid]
	if !ok {
		return media.Media{}, domain.ErrNotFound
	}
	return md, nil
}

func (m *mockFiles) MediaForFile(_ context.Context, fileUUID string) (media.Media, error) {
	for _, md := range m.medias {
		for _, rev := range md.Revisions() {
			if rev.FileUUID == fileUUID {
				return md, nil
			}
		}
	}
	return media.Media{}, domain.ErrNotFound
}

func (m *mockFiles) WriteContent(
	_ context.Context, _ domprov.Caller, fileUUID string, data []byte, newRevision bool,
) (filever.Written, error) {
	f, ok := m.files[fileUUID]
	if !ok {
		return filever.Written{}, domain.ErrNotFound
	}
	m.written, m.newRevision = data, newRevision
	return filever.Written{File: f, Revisioned: newRevision}, nil
}

func (m *mockFiles) MoveToPrivate(_ context.Context, _ domprov.Caller, fileUUID string) (media.File, error) {
	return m.GetFile(context.Background(), fileUUID)
}

func (m *mockFiles) MoveToPublic(_ context.Context, _ domprov.Caller, fileUUID string) (media.File, error) {
	return m.GetFile(context.Background(), fileUUID)
}

func (m *mockFiles) SelectVersion(
	_ context.Context, _ domprov.Caller, mediaUUID, _ string,
) (media.Media, error) {
	return m.GetMedia(context.Background(), mediaUUID)
}

func (m *mockFiles) Resolve(_ context.Context, _ domprov.Caller, _ string) (media.File, error) {
	return media.File{}, domain.ErrNotFound
}

func (m *mockFiles) DeleteRevision(_ context.Context, _ domprov.Caller, _ string, _ int64) error {
	return nil
}

func (m *mockFiles) Download(_ context.Context, t filever.Target) (media.File, []byte, error) {
	m.download = t
	if m.downloadErr != nil {
		return media.File{}, nil, m.downloadErr
	}
	f, ok := m.files[t.UUID]
	if !ok {
		return media.File{}, nil, domain.ErrNotFound
	}
	return f, []byte("hello"), nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- Fixture ---

type fixture struct {
	callers   *mockCallers
	endpoints *mockEndpoints
	schema    *mockSchema
	resources *mockResources
	lister    *mockLister
	bulk      *mockBulk
	files     *mockFiles
	health    *mockHealth
}

func provider(uuid, prefix, secret string) *domprov.Provider {
	p := domprov.Reconstruct(domprov.Params{UUID: uuid, Name: prefix + " inc", Prefix: prefix, SharedSecret: secret}, 1)
	return &p
}

func articleType() domtype.ResourceType {
	t, err := domtype.New(domtype.KindDocument, "p1", domtype.Params{
		MachineName: "p1_article",
		Label:       "Article",
		Endpoint:    "articles",
		Flags:       domtype.Flags{Shared: true},
	})
	if err != nil {
		panic(err)
	}
	return t
}

func newFixture() *fixture {
	t := articleType()
	return &fixture{
		callers: &mockCallers{keys: map[string]domprov.Caller{
			"rw-key": {Provider: provider("p1", "p1", "s3cret")},
			"ro-key": {Provider: provider("p1", "p1", "s3cret"), ReadOnly: true},
		}},
		endpoints: &mockEndpoints{types: map[string]domtype.ResourceType{"document/articles": t}},
		schema:    &mockSchema{types: map[string]domtype.ResourceType{"p1_article": t}},
		resources: &mockResources{},
		lister:    &mockLister{},
		bulk:      &mockBulk{},
		files:     &mockFiles{files: map[string]media.File{}, medias: map[string]media.Media{}},
		health:    &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
	}
}

func (fx *fixture) server() *Server {
	return NewServer(Deps{
		Callers:   fx.callers,
		Endpoints: fx.endpoints,
		Schema:    fx.schema,
		Resources: fx.resources,
		Lister:    fx.lister,
		Bulk:      fx.bulk,
		Files:     fx.files,
		Health:    fx.health,
	}, zap.NewNop(), Options{})
}
