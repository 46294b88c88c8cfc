package main

import (
	"context"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/portfolio-chatbot/internal/cli"
)

func main() {
	// Keep session warnings out of the conversation output.
	log.SetLevel(log.ErrorLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
