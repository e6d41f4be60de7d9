package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jrsteele09/go-session-client/cache"
	"github.com/jrsteele09/go-session-client/credentials"
	"github.com/jrsteele09/go-session-client/credentials/filestore"
	"github.com/jrsteele09/go-session-client/credentials/keyringstore"
	"github.com/jrsteele09/go-session-client/credentials/memstore"
	"github.com/jrsteele09/go-session-client/credentials/redisstore"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/logger"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type cliContext struct {
	cfg     config.Config
	baseURL string
	backend string
	verbose bool

	closers []io.Closer
}

func newRootCmd() *cobra.Command {
	cli := &cliContext{cfg: config.New()}

	root := &cobra.Command{
		Use:   "session",
		Short: "Manage a session against the auth backend",
		Long: `session signs in to the auth backend and keeps the credentials in the
configured store (file, keyring, redis or memory).

Example usage:
  session login ada@example.com     # Password login, prompts on stdin
  session status                    # Show who is signed in
  session profile                   # Fetch the profile through the pipeline
  session refresh                   # Rotate the token pair
  session logout`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := cli.cfg.GetLogLevel()
			if cli.verbose {
				level = "debug"
			}
			logger.Init(level, cli.cfg.GetLogFormat())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			cli.close()
		},
	}

	root.PersistentFlags().StringVar(&cli.baseURL, "api", cli.cfg.GetAPIBaseURL(), "backend base URL")
	root.PersistentFlags().StringVar(&cli.backend, "store", string(cli.cfg.GetStoreBackend()), "credential store: file, keyring, redis or memory")
	root.PersistentFlags().BoolVarP(&cli.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newLoginCmd(cli),
		newGoogleCmd(cli),
		newStatusCmd(cli),
		newProfileCmd(cli),
		newRefreshCmd(cli),
		newLogoutCmd(cli),
	)
	return root
}

// service opens the configured store and restores the session from it.
func (c *cliContext) service(ctx context.Context) (*session.Service, error) {
	kv, err := openStore(config.StoreBackend(c.backend), c.cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := kv.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}

	return session.New(ctx, credentials.NewStore(kv), c.baseURL,
		session.WithHTTPTimeout(c.cfg.GetHTTPTimeout()),
		session.WithRoutes(session.RoutesFromConfig(c.cfg)),
		session.WithCacheOptions(cache.Options{
			Size:   c.cfg.GetCacheSize(),
			MaxAge: c.cfg.GetCacheMaxAge(),
		}),
		session.WithNavigator(func(n session.Navigation) {
			log.Info().Str("path", n.Path).Msg("navigate")
		}),
	)
}

func (c *cliContext) close() {
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
	c.closers = nil
}

func openStore(backend config.StoreBackend, cfg config.StoreConfig) (credentials.KV, error) {
	switch backend {
	case config.StoreMemory:
		return memstore.New(), nil
	case config.StoreFile:
		return filestore.New(cfg.GetStoreFile(), filestore.WithEncryptionKey(cfg.GetEncryptionKey())), nil
	case config.StoreKeyring:
		return keyringstore.New(cfg.GetKeyringService(), cfg.GetNamespace()), nil
	case config.StoreRedis:
		return redisstore.NewFromURL(cfg.GetRedisURL(), cfg.GetNamespace())
	default:
		return nil, fmt.Errorf("unknown credential store %q", backend)
	}
}
