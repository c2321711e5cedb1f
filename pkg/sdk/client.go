package resdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/kailas-cloud/resdex/internal/app"
	"github.com/kailas-cloud/resdex/internal/config"
	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/repository/maintenance"
	"github.com/kailas-cloud/resdex/internal/usecase/filever"
	resourceuc "github.com/kailas-cloud/resdex/internal/usecase/resource"
	"github.com/kailas-cloud/resdex/internal/usecase/revision"
	"github.com/kailas-cloud/resdex/internal/usecase/schema"
)

const defaultReadinessTimeout = 10

// Internal interfaces, swapped out in tests.
type providerStore interface {
	Create(ctx context.Context, p domprov.Provider) error
	Get(ctx context.Context, uuid string) (domprov.Provider, error)
	ByAPIKey(ctx context.Context, key string) (domprov.Caller, error)
	List(ctx context.Context) ([]domprov.Provider, error)
}

type schemaUseCase interface {
	CreateType(ctx context.Context, caller domprov.Caller, kind domtype.Kind, p domtype.Params) (domtype.ResourceType, error)
	CreateField(
		ctx context.Context, caller domprov.Caller, kind domtype.Kind, machineName string, p schema.FieldParams,
	) (field.Definition, error)
}

type contentUseCase interface {
	Create(
		ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle string,
		in resourceuc.Input, p revision.Params,
	) (resourceuc.Created, error)
}

type fileUseCase interface {
	CreateFile(ctx context.Context, caller domprov.Caller, filename, mimeType string, private bool) (media.File, error)
	WriteContent(
		ctx context.Context, caller domprov.Caller, fileUUID string, data []byte, newRevision bool,
	) (filever.Written, error)
}

// Client is the resdex SDK entry point.
type Client struct {
	store     db.Store
	providers providerStore
	schema    schemaUseCase
	content   contentUseCase
	files     fileUseCase
	health    healthUseCase
	reset     func(ctx context.Context) (maintenance.Report, error)
	obs       *observer
	now       func() time.Time
}

// New creates a resdex Client and connects to the database.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cc := &clientConfig{driver: "redis"}
	for _, o := range opts {
		o.apply(cc)
	}
	if len(cc.addrs) == 0 {
		return nil, errors.New("resdex: database address required (use WithRedis or WithValkey)")
	}

	obs, err := newObserver(cc.logger, cc.metricsReg)
	if err != nil {
		return nil, err
	}

	cfg := cc.config()
	store, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("resdex: %w", err)
	}

	fs := cc.fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return wireClient(store, cfg, fs, obs), nil
}

// config renders the options as a server configuration.
func (cc *clientConfig) config() config.Config {
	cfg := config.Config{
		Database: config.DatabaseConfig{
			Driver:           cc.driver,
			Addrs:            cc.addrs,
			Password:         cc.password,
			TextSearch:       cc.textSearch,
			ReadinessTimeout: defaultReadinessTimeout,
		},
		Storage: config.StorageConfig{
			KeyPrefix:   cc.keyPrefix,
			PublicRoot:  cc.publicRoot,
			PrivateRoot: cc.privateRoot,
		},
		HTTP: config.HTTPConfig{PublicBaseURL: cc.publicBaseURL},
	}
	cfg.ApplyDefaults()
	return cfg
}

func wireClient(store db.Store, cfg config.Config, fs afero.Fs, obs *observer) *Client {
	a := app.New(cfg, store, fs)
	prefix := cfg.Storage.KeyPrefix
	return &Client{
		store:     store,
		providers: a.Providers,
		schema:    a.Schema,
		content:   a.Content,
		files:     a.Files,
		health:    a.Health,
		reset: func(ctx context.Context) (maintenance.Report, error) {
			rep, err := maintenance.Reset(ctx, store, prefix)
			if err != nil {
				return rep, err
			}
			return rep, a.Resources.EnsureKindIndexes(ctx)
		},
		obs: obs,
		now: time.Now,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// ResetReport lists what Reset removed.
type ResetReport struct {
	Indexes []string
	Keys    int
}

// Reset drops every resdex index and key under the configured prefix,
// then recreates the empty kind indexes. Meant for test environments.
func (c *Client) Reset(ctx context.Context) (_ ResetReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("reset", start, err) }()

	rep, err := c.reset(ctx)
	if err != nil {
		return ResetReport{}, fmt.Errorf("reset: %w", err)
	}
	return ResetReport{Indexes: rep.Indexes, Keys: rep.Keys}, nil
}
