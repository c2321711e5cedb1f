package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kailas-cloud/resdex/internal/config"
	"github.com/kailas-cloud/resdex/internal/version"
	resdex "github.com/kailas-cloud/resdex/pkg/sdk"
)

// Setting keys. Each is a persistent flag and a RESDEX_<KEY> variable.
const (
	keyEnv         = "env"
	keyAddrs       = "addrs"
	keyPassword    = "password"
	keyDriver      = "driver"
	keyPrefix      = "prefix"
	keyPublicRoot  = "public-root"
	keyPrivateRoot = "private-root"
	keyBaseURL     = "base-url"
	keyOutput      = "output"
	keyVerbose     = "verbose"
)

// cli carries the resolved settings into subcommands.
type cli struct {
	v   *viper.Viper
	env string
	cfg config.Config

	load func(env string) (config.Config, error)
	open func(ctx context.Context, cfg config.Config, logger *slog.Logger) (client, error)
}

func newRootCmd() *cobra.Command {
	return newCLI(config.Load, openClient).command()
}

func newCLI(
	load func(env string) (config.Config, error),
	open func(ctx context.Context, cfg config.Config, logger *slog.Logger) (client, error),
) *cli {
	return &cli{v: viper.New(), load: load, open: open}
}

func (c *cli) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "resdexctl",
		Short: "Operations CLI for resdex storage",
		Long: `resdexctl talks to the resdex database directly. It registers providers,
signs download links and prepares or wipes test environments.

Connection settings come from config/<env>.yaml, RESDEX_* environment
variables and flags, later sources winning.`,
		Version:      version.String(),
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.resolve()
		},
	}

	flags := root.PersistentFlags()
	flags.String(keyEnv, "development", "Environment whose config file is read")
	flags.String(keyAddrs, "", "Comma-separated database addresses")
	flags.String(keyPassword, "", "Database password")
	flags.String(keyDriver, "", "Database driver: redis or valkey")
	flags.String(keyPrefix, "", "Key prefix shared with the API server")
	flags.String(keyPublicRoot, "", "Public file root")
	flags.String(keyPrivateRoot, "", "Private file root")
	flags.String(keyBaseURL, "", "Public base URL of the API")
	flags.StringP(keyOutput, "o", "json", "Output format: json, yaml")
	flags.BoolP(keyVerbose, "v", false, "Log SDK operations to stderr")
	if err := bindSettings(c.v, flags); err != nil {
		panic(err)
	}

	root.AddCommand(
		newProviderCmd(c),
		newFileURLHashCmd(c),
		newTestFileCmd(c),
		newFixturesCmd(c),
		newResetCmd(c),
	)
	return root
}

// bindSettings exposes every flag through viper with a RESDEX_ env fallback.
func bindSettings(v *viper.Viper, flags *pflag.FlagSet) error {
	v.SetEnvPrefix("RESDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// resolve reads the environment's config file when present and applies
// overrides on top of it.
func (c *cli) resolve() error {
	c.env = c.v.GetString(keyEnv)

	cfg, err := c.load(c.env)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.Config{}
	default:
		return err
	}

	if s := c.v.GetString(keyAddrs); s != "" {
		cfg.Database.Addrs = splitList(s)
	}
	override(&cfg.Database.Password, c.v.GetString(keyPassword))
	override(&cfg.Database.Driver, c.v.GetString(keyDriver))
	override(&cfg.Storage.KeyPrefix, c.v.GetString(keyPrefix))
	override(&cfg.Storage.PublicRoot, c.v.GetString(keyPublicRoot))
	override(&cfg.Storage.PrivateRoot, c.v.GetString(keyPrivateRoot))
	override(&cfg.HTTP.PublicBaseURL, c.v.GetString(keyBaseURL))

	cfg.ApplyDefaults()
	if len(cfg.Database.Addrs) == 0 {
		cfg.Database.Addrs = []string{"localhost:6379"}
	}
	c.cfg = cfg

	switch f := c.v.GetString(keyOutput); f {
	case "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q (use json or yaml)", f)
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// client is the part of the SDK the commands use.
type client interface {
	CreateProvider(ctx context.Context, spec resdex.ProviderSpec) (resdex.Provider, error)
	Provider(ctx context.Context, id string) (resdex.Provider, error)
	Providers(ctx context.Context) ([]resdex.Provider, error)
	SignLink(
		ctx context.Context, providerUUID string, kind resdex.FileKind, targetUUID, filename string,
	) (resdex.SignedLink, error)
	As(ctx context.Context, apiKey string) (session, error)
	AsProvider(ctx context.Context, providerUUID string) (session, error)
	Reset(ctx context.Context) (resdex.ResetReport, error)
	Close()
}

// session is the part of a resdex.Session the commands use.
type session interface {
	ProviderUUID() string
	CreateType(ctx context.Context, spec resdex.TypeSpec) (resdex.Type, error)
	CreateField(ctx context.Context, kind resdex.Kind, machineName string, spec resdex.FieldSpec) error
	CreateResource(ctx context.Context, kind resdex.Kind, bundle string, body any) (resdex.Created, error)
	CreateFile(ctx context.Context, spec resdex.FileSpec) (resdex.File, error)
}

// sdkClient narrows session-returning methods to the session interface.
type sdkClient struct {
	*resdex.Client
}

func (c sdkClient) As(ctx context.Context, apiKey string) (session, error) {
	s, err := c.Client.As(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c sdkClient) AsProvider(ctx context.Context, providerUUID string) (session, error) {
	s, err := c.Client.AsProvider(ctx, providerUUID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openClient(ctx context.Context, cfg config.Config, logger *slog.Logger) (client, error) {
	opts := []resdex.Option{
		resdex.WithAddrs(cfg.Database.Addrs...),
		resdex.WithKeyPrefix(cfg.Storage.KeyPrefix),
		resdex.WithFileRoots(cfg.Storage.PublicRoot, cfg.Storage.PrivateRoot),
		resdex.WithPublicBaseURL(cfg.HTTP.PublicBaseURL),
		resdex.WithLogger(logger),
	}
	if cfg.Database.Driver == "valkey" {
		opts = append([]resdex.Option{resdex.WithValkey(cfg.Database.Addrs[0], cfg.Database.Password)}, opts...)
	} else {
		opts = append([]resdex.Option{resdex.WithRedis(cfg.Database.Addrs[0], cfg.Database.Password)}, opts...)
	}
	if cfg.Database.TextSearch != nil {
		opts = append(opts, resdex.WithTextSearch(*cfg.Database.TextSearch))
	}
	cl, err := resdex.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sdkClient{cl}, nil
}

// connect opens the SDK client; verbose mode logs operations to stderr.
func (c *cli) connect(ctx context.Context) (client, error) {
	cfg := c.cfg
	cl, err := c.open(ctx, cfg, c.logger())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", strings.Join(cfg.Database.Addrs, ","), err)
	}
	return cl, nil
}

// sessionFor opens a session from an API key or a provider uuid.
func sessionFor(ctx context.Context, cl client, apiKey, providerUUID string) (session, error) {
	switch {
	case apiKey != "":
		return cl.As(ctx, apiKey)
	case providerUUID != "":
		return cl.AsProvider(ctx, providerUUID)
	}
	return nil, errors.New("one of --api-key or --provider is required")
}

func (c *cli) logger() *slog.Logger {
	if !c.v.GetBool(keyVerbose) {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
