package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sourcegraph/conc"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AliZeynalov/portfolio-chatbot/internal/config"
	"github.com/AliZeynalov/portfolio-chatbot/internal/gateway"
	"github.com/AliZeynalov/portfolio-chatbot/internal/logging"
	"github.com/AliZeynalov/portfolio-chatbot/internal/orchestrator"
	"github.com/AliZeynalov/portfolio-chatbot/internal/provider"
	"github.com/AliZeynalov/portfolio-chatbot/internal/ratelimit"
)

const shutdownTimeout = 15 * time.Second

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "gateway",
	Short:        "Chat completion proxy for the portfolio chatbot",
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (default ./configs/gateway.* or ./gateway.*)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.WithError(err).Error("Failed to load config")
		return err
	}

	if err := logging.Setup(cfg.Log); err != nil {
		log.WithError(err).Error("Failed to set up logging")
		return err
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	llm, err := provider.NewOpenAI(cfg.Provider)
	if err != nil {
		log.WithError(err).Error("Failed to create provider")
		return err
	}

	// Limiting only applies in production, as on the deployed site.
	var limiterOpts []ratelimit.Option
	if !cfg.IsProduction() {
		limiterOpts = append(limiterOpts, ratelimit.Disabled())
	}
	limiter := ratelimit.NewFixedWindow(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests, limiterOpts...)

	orch := orchestrator.New(llm, limiter, orchestrator.SettingsFrom(cfg))
	router := gateway.NewRouter(gateway.NewHandler(orch), cfg.Server.AllowedOrigin)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"addr":     cfg.Server.Addr,
		"mode":     cfg.Server.Mode,
		"models":   orch.Candidates(),
		"limiting": cfg.IsProduction(),
		"event":    "starting",
	}).Info("Gateway starting")

	var (
		wg       conc.WaitGroup
		serveErr error
	)
	wg.Go(func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
			log.WithError(err).Error("Server stopped unexpectedly")
			stop()
		}
	})
	wg.Go(func() {
		prune(ctx, limiter, cfg.RateLimit.PruneInterval)
	})

	<-ctx.Done()
	log.WithField("event", "shutting_down").Info("Shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}

	wg.Wait()
	log.WithField("event", "stopped").Info("Gateway stopped")
	return serveErr
}

// prune drops expired limiter records until ctx is done.
func prune(ctx context.Context, limiter *ratelimit.FixedWindow, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Prune(); n > 0 {
				log.WithFields(log.Fields{
					"removed": n,
					"tracked": limiter.Len(),
					"event":   "limiter_pruned",
				}).Debug("Pruned rate limit records")
			}
		}
	}
}
