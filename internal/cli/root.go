// Package cli implements collectctl, a terminal client that signs in to a
// CollectDesk server and checks what the signed-in user may access.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"collectdesk/internal/authclient"
	"collectdesk/internal/cache"
	"collectdesk/internal/config"
	"collectdesk/internal/log"
	"collectdesk/internal/session"
	"collectdesk/internal/tokenstore"
)

type options struct {
	configPath string
	profile    string
	mode       string
	baseURL    string
	verbose    bool
}

type app struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	client   *authclient.Client
	provider *authclient.Provider
	closers  []func() error
}

// Execute runs collectctl with os.Args.
func Execute(ctx context.Context) error {
	root, a := newRoot()
	defer a.close()
	return root.ExecuteContext(ctx)
}

func newRoot() (*cobra.Command, *app) {
	opts := &options{}
	a := &app{}

	root := &cobra.Command{
		Use:           "collectctl",
		Short:         "Sign in to CollectDesk and inspect your access",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ./config.yaml)")
	flags.StringVar(&opts.profile, "profile", "", "session profile name")
	flags.StringVar(&opts.mode, "mode", "", "authentication mode: remote or simulation")
	flags.StringVar(&opts.baseURL, "base-url", "", "API server base URL")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newRefreshCommand(a),
		newCanCommand(a),
		newGuardCommand(a),
		newNavigationCommand(a),
	)
	return root, a
}

func (a *app) init(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.profile != "" {
		cfg.Client.Profile = opts.profile
	}
	if opts.mode != "" {
		cfg.Client.Mode = opts.mode
	}
	if opts.baseURL != "" {
		cfg.Client.BaseURL = opts.baseURL
	}

	mode := authclient.Mode(cfg.Client.Mode)
	if mode != authclient.ModeRemote && mode != authclient.ModeSimulation {
		return fmt.Errorf("unknown mode %q", cfg.Client.Mode)
	}

	logger := log.NewWithWriter(cmd.ErrOrStderr(), cfg.Environment, "collectctl")
	if !opts.verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}

	tokens, err := a.tokenStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	holder := &authclient.TokenHolder{}
	requester := authclient.NewRequester(cfg.Client.BaseURL, &http.Client{Timeout: requestTimeout(cfg.Client.LoginTimeout)}, holder)
	a.cfg = cfg
	a.log = logger
	a.client = authclient.New(authclient.Config{
		Mode:               mode,
		SimulationFallback: cfg.Client.SimulationFallback,
		SimulationPassword: cfg.Client.SimulationPassword,
		SimulationDelay:    cfg.Client.SimulationDelay,
		LoginTimeout:       cfg.Client.LoginTimeout,
	}, requester, tokens, holder, session.NewStore(), logger)
	a.provider = authclient.NewProvider(a.client)

	return a.client.Restore(cmd.Context())
}

// requestTimeout outlives the login deadline so an expired login surfaces as a
// timeout instead of an unreachable backend.
func requestTimeout(login time.Duration) time.Duration {
	if login <= 0 {
		return 0
	}
	return 2 * login
}

func (a *app) tokenStore(ctx context.Context, cfg *config.AppConfig) (tokenstore.Store, error) {
	switch cfg.Client.TokenStore.Backend {
	case "", "file":
		path := cfg.Client.TokenStore.Path
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("locate config dir: %w", err)
			}
			path = filepath.Join(dir, "collectdesk", cfg.Client.Profile+".json")
		}
		return tokenstore.NewFile(path), nil
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return tokenstore.NewRedis(client, cfg.Client.Profile, cfg.Client.TokenStore.TTL), nil
	case "memory":
		return tokenstore.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown token store backend %q", cfg.Client.TokenStore.Backend)
}

func (a *app) close() error {
	var errs []error
	for _, closer := range a.closers {
		errs = append(errs, closer())
	}
	a.closers = nil
	return errors.Join(errs...)
}
