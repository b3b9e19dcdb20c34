package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cathouse/taskmanager/internal/action"
	"github.com/cathouse/taskmanager/internal/server"
	"github.com/cathouse/taskmanager/internal/service"
)

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Task Manager API server",
		Long:  "Start the HTTP server that exposes POST /execute and the service key administration API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8000, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Development mode: debug logging, CORS *, in-memory SQLite when no database is configured")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context, dev bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if dev && viper.GetString("database.url") == "" {
		viper.Set("database.driver", "sqlite")
		viper.Set("database.url", ":memory:")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr, dev)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("database ready", "driver", st.Dialect())

	keys := service.NewKeyService(st, logger, cfg.Auth.RotationGracePeriod, nil)

	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		MaxBodySize:     cfg.Server.MaxBodySize,
		RateLimit:       cfg.Server.RateLimit,
		AdminRateLimit:  cfg.Server.AdminRateLimit,
		MetricsEnabled:  cfg.Metrics.Enabled,
	}
	if dev {
		srvCfg.CORSOrigins = []string{"*"}
	}

	srv := server.New(srvCfg, server.Deps{
		Store:    st,
		Keys:     keys,
		Admin:    service.NewAdminAuth(cfg.Auth.AdminAPIKey),
		Registry: action.NewRegistry(nil),
		Version:  versionString(),
	}, logger)

	fmt.Printf("→ Task Manager %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Commands:   POST http://%s:%d/execute\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/health\n", cfg.Server.Host, cfg.Server.Port)
	if cfg.Metrics.Enabled {
		fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	}
	fmt.Println()

	return srv.ListenAndServe()
}
