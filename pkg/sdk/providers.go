package resdex

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	"github.com/kailas-cloud/resdex/internal/usecase/filever"
)

// ProviderSpec describes a provider to create. Keys and secret are generated.
type ProviderSpec struct {
	Name string
	// Prefix namespaces the provider's machine names; lowercase alphanumeric.
	Prefix     string
	DropFolder string
}

// Provider is a registered API tenant with its credentials.
type Provider struct {
	UUID         string `json:"uuid"`
	Name         string `json:"name"`
	Prefix       string `json:"prefix,omitempty"`
	APIKey       string `json:"api_key"`
	ReadOnlyKey  string `json:"read_only_key"`
	SharedSecret string `json:"shared_secret"`
	DropFolder   string `json:"drop_folder,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// CreateProvider registers a provider with fresh keys and a shared secret.
func (c *Client) CreateProvider(ctx context.Context, spec ProviderSpec) (_ Provider, err error) {
	start := time.Now()
	defer func() { c.obs.observe("create_provider", start, err, "name", spec.Name) }()

	p, err := domprov.New(domprov.Params{
		UUID:         uuid.NewString(),
		Name:         spec.Name,
		Prefix:       spec.Prefix,
		APIKey:       rand.Text(),
		ReadOnlyKey:  rand.Text(),
		SharedSecret: rand.Text(),
		DropFolder:   spec.DropFolder,
	}, c.now().Unix())
	if err != nil {
		return Provider{}, fmt.Errorf("create provider: %w: %w", ErrValidation, err)
	}
	if err = c.providers.Create(ctx, p); err != nil {
		return Provider{}, fmt.Errorf("create provider: %w", err)
	}
	return providerFromDomain(p), nil
}

// Provider returns a provider by uuid.
func (c *Client) Provider(ctx context.Context, id string) (_ Provider, err error) {
	start := time.Now()
	defer func() { c.obs.observe("get_provider", start, err) }()

	p, err := c.providers.Get(ctx, id)
	if err != nil {
		return Provider{}, fmt.Errorf("get provider %s: %w", id, err)
	}
	return providerFromDomain(p), nil
}

// Providers lists every registered provider.
func (c *Client) Providers(ctx context.Context) (_ []Provider, err error) {
	start := time.Now()
	defer func() { c.obs.observe("list_providers", start, err) }()

	list, err := c.providers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	out := make([]Provider, 0, len(list))
	for _, p := range list {
		out = append(out, providerFromDomain(p))
	}
	return out, nil
}

// SignedLink is a direct download path authorized by a provider's secret.
type SignedLink struct {
	Hash string `json:"hash"`
	Path string `json:"path"`
}

// FileKind selects the download route a signed link points at.
type FileKind string

const (
	// FileLink addresses one file version.
	FileLink FileKind = filever.KindFiles
	// MediaLink addresses a media container's resolved file.
	MediaLink FileKind = filever.KindMedia
)

// SignLink computes the download hash of target for a provider and the
// matching path. The provider must have a shared secret.
func (c *Client) SignLink(
	ctx context.Context, providerUUID string, kind FileKind, targetUUID, filename string,
) (_ SignedLink, err error) {
	start := time.Now()
	defer func() { c.obs.observe("sign_link", start, err, "provider", providerUUID) }()

	if kind != FileLink && kind != MediaLink {
		return SignedLink{}, fmt.Errorf("%w: unknown link kind %q", ErrValidation, kind)
	}
	p, err := c.providers.Get(ctx, providerUUID)
	if err != nil {
		return SignedLink{}, fmt.Errorf("get provider %s: %w", providerUUID, err)
	}
	if p.SharedSecret() == "" {
		return SignedLink{}, fmt.Errorf("%w: provider %s has no shared secret", ErrValidation, providerUUID)
	}
	return SignedLink{
		Hash: p.DownloadHashFor(targetUUID),
		Path: filever.SignedPath(string(kind), targetUUID, p, filename),
	}, nil
}

func providerFromDomain(p domprov.Provider) Provider {
	return Provider{
		UUID:         p.UUID(),
		Name:         p.Name(),
		Prefix:       p.Prefix(),
		APIKey:       p.APIKey(),
		ReadOnlyKey:  p.ReadOnlyKey(),
		SharedSecret: p.SharedSecret(),
		DropFolder:   p.DropFolder(),
		CreatedAt:    p.CreatedAt(),
	}
}
