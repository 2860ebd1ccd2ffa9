// Command portal binds every server in the configuration file and answers
// each connection with a fixed HTTP status line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logger "github.com/moontrade/log"
	flag "github.com/spf13/pflag"

	"github.com/moontrade/portal/config"
	"github.com/moontrade/portal/reactor"
)

func main() {
	var (
		path     = flag.StringP("config", "c", config.DefaultPath, "path to the JSON configuration file")
		dispatch = flag.String("dispatch", "", "connection dispatch mode: inline, ants or gopool (overrides the file)")
		workers  = flag.Int("workers", 0, "worker pool capacity (overrides the file)")
	)
	flag.Parse()

	cfg, err := load(*path, *dispatch, *workers)
	if err != nil {
		logger.Error(err, "Failed to load config")
		os.Exit(1)
	}

	r, err := reactor.New(cfg)
	if err != nil {
		logger.Error(err, "Failed to start")
		os.Exit(1)
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = r.Run(ctx); err != nil {
		logger.Error(err, "reactor stopped")
	}
}

func load(path, dispatch string, workers int) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dispatch != "" {
		cfg.Dispatch = dispatch
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
