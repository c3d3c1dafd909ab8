package main

import (
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/definition"
	"github.com/pitabwire/console/internal/devbackend"
	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/internal/resources"
)

func devBackendCommand(c *cli) *cobra.Command {
	var (
		addr      string
		redisAddr string
		noSeed    bool
	)
	cmd := &cobra.Command{
		Use:   "dev-backend",
		Short: "Serve an in-memory backend for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			bcfg := cfg.DevBackend
			if addr != "" {
				bcfg.Addr = addr
			}
			if redisAddr != "" {
				bcfg.RedisAddr = redisAddr
			}
			if noSeed {
				bcfg.Seed = false
			}

			logger, err := observability.NewLogger(cfg.Observability)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			registry, err := definition.LoadRegistry(cfg.Definitions.Directories)
			if err != nil {
				return fmt.Errorf("definitions: %w", err)
			}
			if _, err := resources.Require(registry); err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			metrics := observability.InitMetrics(reg)
			metrics.SetDefinitionsLoaded(registry.Len())

			opts := []devbackend.Option{
				devbackend.WithLogger(logger),
				devbackend.WithMetrics(metrics, reg),
			}
			if bcfg.RedisAddr != "" {
				rdb := redis.NewClient(&redis.Options{Addr: bcfg.RedisAddr})
				defer rdb.Close()
				if err := rdb.Ping(cmd.Context()).Err(); err != nil {
					return fmt.Errorf("redis %s: %w", bcfg.RedisAddr, err)
				}
				opts = append(opts, devbackend.WithReplayStore(devbackend.NewRedisReplayStore(rdb, bcfg.ReplayTTL)))
				logger.Info("idempotency replays stored in redis", zap.String("addr", bcfg.RedisAddr))
			}

			srv, err := devbackend.New(bcfg, cfg.API.TenantHeader, registry, opts...)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", bcfg.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", bcfg.Addr, err)
			}
			logger.Info("starting dev backend", zap.Int("resources", registry.Len()), zap.Bool("seed", bcfg.Seed))
			fmt.Fprintf(cmd.ErrOrStderr(), "Dev backend listening on http://%s/api\n", ln.Addr())
			return srv.Serve(cmd.Context(), ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to dev_backend.addr)")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "redis address for shared idempotency replays")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "start with empty collections")
	return cmd
}
