package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/KerimSelki/crypto-vault/internal/app"
	"github.com/KerimSelki/crypto-vault/internal/config"
	"github.com/KerimSelki/crypto-vault/internal/logger"
)

var configFile = flag.String("config", os.Getenv("CONFIG_FILE"), "config file (json or yaml)")

var commands = []subcommands.Command{
	&fetchCmd{},
	&valueCmd{},
	&addCmd{},
	&resolveCmd{},
	&reportsCmd{},
}

// loadApp builds the service without starting it. Logs go to stderr so
// stdout stays clean for reports.
func loadApp() (*app.App, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	log := logger.GetLogger()
	level := cfg.Log.Level
	if level == "info" {
		level = "warn"
	}
	if err := log.Configure(level, "text", "stderr", 0); err != nil {
		return nil, err
	}
	return app.New(cfg, log)
}

func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}

func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}
