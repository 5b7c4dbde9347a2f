package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codesquad/internal/config"
	"codesquad/internal/gateway"
	"codesquad/internal/logging"
	"codesquad/internal/orchestrator"
	"codesquad/internal/persona"
	"codesquad/internal/server"
	"codesquad/internal/session"
	"codesquad/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile      string
	programsFile string
	verbose      bool
	logger       *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "codesquad",
	Short: "Multi-persona AI chat backend with specialist delegation",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			// Missing .env is fine; the environment still applies.
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
			}
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "codesquad.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	serveCmd.Flags().StringVar(&programsFile, "programs", "", "journey programs YAML file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := logging.Initialize(".", logging.Options{
		Debug: cfg.Logging.Debug || verbose,
		Level: cfg.Logging.Level,
	}); err != nil {
		return err
	}
	defer logging.CloseAll()

	if cfg.LLM.APIKey == "" {
		logger.Warn("no API key configured; set GEMINI_API_KEY or llm.api_key")
	}

	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	programs := session.DefaultPrograms()
	if programsFile != "" {
		programs, err = session.LoadPrograms(programsFile)
		if err != nil {
			return err
		}
	}

	client := gateway.NewClient(gateway.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.GetLLMTimeout(),
	})

	runner := orchestrator.New(orchestrator.NewDispatcher(client.Complete))
	factory := func(system string, mode persona.Mode, prior []gateway.Turn) orchestrator.Streamer {
		return client.StartConversation(system, mode, prior)
	}

	controller := session.NewController(factory, runner, client.Complete, st, session.Options{
		MaxSessions: cfg.Session.MaxSessions,
		DriverDelay: cfg.GetDriverDelay(),
		Programs:    programs,
	})

	snapshots, err := st.Load()
	if err != nil {
		return err
	}
	controller.Restore(snapshots)
	logger.Info("restored sessions", zap.Int("count", len(snapshots)))

	router := server.NewRouter(server.NewHandler(controller, server.NewAgentRegistry()))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("codesquad listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("model", cfg.LLM.Model))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
