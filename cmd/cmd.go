// Package cmd provides the veritail CLI commands.
//
// Commands:
//   - serve: HTTP API server (the default)
//   - migrate: run database migrations and exit
//   - version: print version information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/veritail/veritail/internal/log"
)

// Execute is the main entry point for the veritail CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: os.Getenv("LOG_JSON") != ""})
	slog.SetDefault(logger)

	cmd := "serve"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		return runServe(logger)
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Veritail - confidence-gated retrieval backend for website assistants")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  veritail serve       Start the HTTP API server (default command)")
	fmt.Println("  veritail migrate     Run database migrations and exit")
	fmt.Println("  veritail --version   Show version information")
	fmt.Println("  veritail --help      Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY       Gemini API key (provider: gemini)")
	fmt.Println("  OPENAI_API_KEY       OpenAI API key (provider: openai)")
	fmt.Println("  DATABASE_URL         PostgreSQL connection URL")
	fmt.Println("  VERITAIL_PROVIDER    AI provider: gemini | ollama | openai")
	fmt.Println("  VERITAIL_LISTEN_ADDR Listen address (default: 127.0.0.1:5001)")
	fmt.Println("  DEBUG                Enable debug logging")
	fmt.Println("  LOG_JSON             Emit JSON logs")
}
