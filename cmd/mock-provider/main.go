package main

import (
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AliZeynalov/portfolio-chatbot/internal/mockprovider"
)

var (
	port  string
	delay time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "mock-provider",
	Short: "OpenAI-compatible mock upstream; the model name selects a simulated failure",
	Example: `  # Throttle the primary model, answer on the fallback
  $ CHATBOT_MODEL=throttle CHATBOT_FALLBACK_MODEL=ok OPENAI_API_BASE_URL=http://localhost:8001/v1 gateway`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&port, "port", "p", envOr("MOCK_PROVIDER_PORT", "8001"), "port to listen on")
	rootCmd.Flags().DurationVar(&delay, "delay", 0, "delay applied before every answer")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Configure logging
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	mock := mockprovider.New()
	mock.Delay = delay

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mock.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.WithField("delay", delay).Infof("Mock LLM Provider starting on :%s", port)
	return srv.ListenAndServe()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
