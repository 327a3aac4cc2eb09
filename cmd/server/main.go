// Package main provides the chat bot server entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/calamars-bot/calamars-go/internal/app"
	"github.com/calamars-bot/calamars-go/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	application, err := app.Initialize(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
