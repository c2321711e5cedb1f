package resdex

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver     string // "valkey" or "redis"
	addrs      []string
	password   string
	textSearch *bool

	keyPrefix     string
	publicRoot    string
	privateRoot   string
	publicBaseURL string
	fs            afero.Fs

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey connects to Valkey. Title full-text search is disabled.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis connects to Redis with the search module.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithAddrs replaces the seed addresses, e.g. for a cluster.
func WithAddrs(addrs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = addrs
	})
}

// WithTextSearch forces title full-text matching on or off regardless of driver.
func WithTextSearch(enabled bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.textSearch = &enabled
	})
}

// WithKeyPrefix sets the key prefix shared with the API server.
// Default: "resdex:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithFileRoots sets the public and private storage roots.
// Defaults: files/public and files/private.
func WithFileRoots(public, private string) Option {
	return optionFunc(func(c *clientConfig) {
		c.publicRoot = public
		c.privateRoot = private
	})
}

// WithFs replaces the filesystem file content is written to.
// Default: the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return optionFunc(func(c *clientConfig) {
		c.fs = fs
	})
}

// WithPublicBaseURL sets the base used to render file links.
func WithPublicBaseURL(base string) Option {
	return optionFunc(func(c *clientConfig) {
		c.publicBaseURL = base
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
