// nextmeetingd is the calendar daemon: it keeps a cache of upcoming
// meetings warm in the background and serves them to clients over a
// Unix socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/chmouel/nextmeetingd/internal/config"
	"github.com/chmouel/nextmeetingd/internal/server"
	"github.com/chmouel/nextmeetingd/internal/version"
)

type CLI struct {
	Config      string           `short:"c" help:"Config file path." type:"path"`
	Socket      string           `short:"s" help:"Unix socket path (overrides config)."`
	MetricsAddr string           `help:"Prometheus listen address (overrides config)."`
	LogLevel    string           `default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat   string           `default:"text" enum:"text,json" help:"Log format."`
	Version     kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	var cli CLI
	k := kong.Parse(&cli,
		kong.Name("nextmeetingd"),
		kong.Description("Calendar aggregation daemon for nextmeeting clients"),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	k.FatalIfErrorf(run(&cli))
}

func run(cli *CLI) error {
	logger, err := buildLogger(cli.LogLevel, cli.LogFormat)
	if err != nil {
		return err
	}

	cfgPath := cli.Config
	if cfgPath == "" {
		cfgPath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cli.Socket != "" {
		cfg.SocketPath = cli.Socket
	}
	if cli.MetricsAddr != "" {
		cfg.MetricsAddr = cli.MetricsAddr
	}

	return server.Run(context.Background(), cfgPath, cfg, logger)
}

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}
