package provider

import (
	"crypto/md5" //nolint:gosec // download hash format is fixed by existing links
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
)

var prefixRegex = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// Provider is an API-key-authenticated tenant.
type Provider struct {
	uuid         string
	name         string
	prefix       string
	apiKey       string
	readOnlyKey  string
	sharedSecret string
	dropFolder   string
	createdAt    int64
}

// Params carries the attributes of a new provider.
type Params struct {
	UUID         string
	Name         string
	Prefix       string
	APIKey       string
	ReadOnlyKey  string
	SharedSecret string
	DropFolder   string
}

// New validates and creates a Provider.
func New(p Params, createdAt int64) (Provider, error) {
	if p.UUID == "" {
		return Provider{}, fmt.Errorf("provider uuid is required")
	}
	if p.Name == "" {
		return Provider{}, fmt.Errorf("provider name is required")
	}
	if p.Prefix != "" && !prefixRegex.MatchString(p.Prefix) {
		return Provider{}, fmt.Errorf("provider prefix %q must be lowercase alphanumeric", p.Prefix)
	}
	if p.APIKey == "" {
		return Provider{}, fmt.Errorf("api key is required")
	}
	if p.APIKey == p.ReadOnlyKey {
		return Provider{}, fmt.Errorf("read-only key must differ from api key")
	}
	return Reconstruct(p, createdAt), nil
}

// Reconstruct creates a Provider without validation (storage hydration).
func Reconstruct(p Params, createdAt int64) Provider {
	return Provider{
		uuid:         p.UUID,
		name:         p.Name,
		prefix:       p.Prefix,
		apiKey:       p.APIKey,
		readOnlyKey:  p.ReadOnlyKey,
		sharedSecret: p.SharedSecret,
		dropFolder:   p.DropFolder,
		createdAt:    createdAt,
	}
}

// UUID returns the provider uuid.
func (p Provider) UUID() string { return p.uuid }

// Name returns the display name.
func (p Provider) Name() string { return p.name }

// Prefix returns the machine-name namespace.
func (p Provider) Prefix() string { return p.prefix }

// APIKey returns the read-write key.
func (p Provider) APIKey() string { return p.apiKey }

// ReadOnlyKey returns the read-only key.
func (p Provider) ReadOnlyKey() string { return p.readOnlyKey }

// SharedSecret returns the secret used to sign direct-download links.
func (p Provider) SharedSecret() string { return p.sharedSecret }

// DropFolder returns the optional import folder path.
func (p Provider) DropFolder() string { return p.dropFolder }

// CreatedAt returns the creation timestamp (unix millis).
func (p Provider) CreatedAt() int64 { return p.createdAt }

// Params returns the attributes of the provider.
func (p Provider) Params() Params {
	return Params{
		UUID:         p.uuid,
		Name:         p.name,
		Prefix:       p.prefix,
		APIKey:       p.apiKey,
		ReadOnlyKey:  p.readOnlyKey,
		SharedSecret: p.sharedSecret,
		DropFolder:   p.dropFolder,
	}
}

// Namespaced prefixes a machine name with the provider prefix once.
func (p Provider) Namespaced(machineName string) string {
	if p.prefix == "" {
		return machineName
	}
	pre := p.prefix + "_"
	if len(machineName) >= len(pre) && machineName[:len(pre)] == pre {
		return machineName
	}
	return pre + machineName
}

// DownloadHash signs target for the provider identified by providerUUID:
// md5(secret + target + provider).
func DownloadHash(secret, targetUUID, providerUUID string) string {
	sum := md5.Sum([]byte(secret + targetUUID + providerUUID)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// DownloadHashFor signs target with this provider's secret.
func (p Provider) DownloadHashFor(targetUUID string) string {
	return DownloadHash(p.sharedSecret, targetUUID, p.uuid)
}

// ValidDownloadHash reports whether hash signs target for this provider.
// A provider without a shared secret never validates.
func (p Provider) ValidDownloadHash(targetUUID, hash string) bool {
	if p.sharedSecret == "" {
		return false
	}
	want := p.DownloadHashFor(targetUUID)
	return subtle.ConstantTimeCompare([]byte(want), []byte(hash)) == 1
}

// Caller is the identity a request acts as: a provider with a capability,
// or anonymous.
type Caller struct {
	Provider *Provider
	ReadOnly bool
}

// Anonymous returns the caller used when no key matched.
func Anonymous() Caller { return Caller{} }

// IsAnonymous reports whether no provider is attached.
func (c Caller) IsAnonymous() bool { return c.Provider == nil }

// UUID returns the provider uuid, or "" for anonymous callers.
func (c Caller) UUID() string {
	if c.Provider == nil {
		return ""
	}
	return c.Provider.UUID()
}

// CanWrite reports whether the caller holds a read-write key.
func (c Caller) CanWrite() bool { return c.Provider != nil && !c.ReadOnly }
