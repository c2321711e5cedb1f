// Package app wires repositories and use cases over one store. The API
// server and resdexctl share it.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/kailas-cloud/resdex/internal/cache"
	"github.com/kailas-cloud/resdex/internal/config"
	"github.com/kailas-cloud/resdex/internal/db"
	dbRedis "github.com/kailas-cloud/resdex/internal/db/redis"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	mediarepo "github.com/kailas-cloud/resdex/internal/repository/media"
	providerrepo "github.com/kailas-cloud/resdex/internal/repository/provider"
	resourcerepo "github.com/kailas-cloud/resdex/internal/repository/resource"
	typerepo "github.com/kailas-cloud/resdex/internal/repository/resourcetype"
	revisionrepo "github.com/kailas-cloud/resdex/internal/repository/revision"
	"github.com/kailas-cloud/resdex/internal/storage/blob"
	"github.com/kailas-cloud/resdex/internal/usecase/access"
	batchuc "github.com/kailas-cloud/resdex/internal/usecase/batch"
	"github.com/kailas-cloud/resdex/internal/usecase/filever"
	healthuc "github.com/kailas-cloud/resdex/internal/usecase/health"
	"github.com/kailas-cloud/resdex/internal/usecase/metadata"
	"github.com/kailas-cloud/resdex/internal/usecase/query"
	resourceuc "github.com/kailas-cloud/resdex/internal/usecase/resource"
	"github.com/kailas-cloud/resdex/internal/usecase/revision"
	"github.com/kailas-cloud/resdex/internal/usecase/schema"
)

// App holds the wired services.
type App struct {
	Store     db.Store
	Providers *providerrepo.Repo
	Resources *resourcerepo.Repo
	Structure *cache.Structure
	Schema    *schema.Service
	Files     *filever.Service
	Query     *query.Service
	Content   *resourceuc.Service
	Bulk      *batchuc.Service
	Health    *healthuc.Service
}

// OpenStore connects to the configured backend and waits until it answers.
// valkey-search has no full-text support; database.text_search overrides the driver default.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (*dbRedis.Store, error) {
	disableText := cfg.Driver == "valkey"
	if cfg.TextSearch != nil {
		disableText = !*cfg.TextSearch
	}
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:             cfg.Addrs,
		Password:          cfg.Password,
		DisableTextSearch: disableText,
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	return store, nil
}

// New wires every service over store and fs.
func New(cfg config.Config, store db.Store, fs afero.Fs) *App {
	prefix := cfg.Storage.KeyPrefix
	types := typerepo.New(store, prefix)
	resources := resourcerepo.New(store, prefix)
	revisions := revisionrepo.New(store, prefix)
	mediaRepo := mediarepo.New(store, prefix)
	providers := providerrepo.New(store, prefix)

	structure := cache.New(types.List)
	blobs := blob.New(fs, blob.Config{
		PublicRoot:  cfg.Storage.PublicRoot,
		PrivateRoot: cfg.Storage.PrivateRoot,
	})

	schemaSvc := schema.New(types, resources, structure)
	fileSvc := filever.New(mediaRepo, blobs, providers)
	policy := access.New(structure, structure)
	compiler := metadata.New(structure, policy, resources).WithMaxDepth(cfg.Metadata.MaxDepth)
	querySvc := query.New(resources, structure, fileSvc, query.Config{
		DefaultLimit:    cfg.Query.DefaultPageSize,
		MaxLimit:        cfg.Query.MaxPageSize,
		OptionListLimit: cfg.Query.OptionListLimit,
		RetryInitial:    time.Duration(cfg.Query.RetryInitialMillis) * time.Millisecond,
		RetryMax:        time.Duration(cfg.Query.RetryMaxMillis) * time.Millisecond,
	}).WithFileURL(FileURL(cfg.HTTP.PublicBaseURL))
	content := resourceuc.New(resources, structure, compiler, revision.New(revisions), fileSvc, querySvc)
	compiler.WithCreator(content)

	return &App{
		Store:     store,
		Providers: providers,
		Resources: resources,
		Structure: structure,
		Schema:    schemaSvc,
		Files:     fileSvc,
		Query:     querySvc,
		Content:   content,
		Bulk:      batchuc.New(content).WithMaxBatchSize(cfg.Query.MaxBatchSize),
		Health:    healthuc.New(store, blobs),
	}
}

// FileURL renders file links as API paths under base.
func FileURL(base string) func(media.File) string {
	base = strings.TrimSuffix(base, "/")
	return func(f media.File) string {
		return base + "/files/" + f.UUID()
	}
}
