/*
Lumen opens a window and renders a procedural scene with either the ray tracing
or the wireframe pass. Press 1 for wireframe, 2 for ray tracing.
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
)

func main() {
	configPath := flag.String("config", "", "path of the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("failed to load config: %s", err)
	}
	core.SetLogLevel(cfg.LogLevel)

	app, err := engine.NewApplicationConfig(cfg)
	if err != nil {
		core.LogFatal("invalid config: %s", err)
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	e, err := engine.New(app)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := e.Initialize(ctx); err != nil {
		core.LogError("failed to initialize the engine: %s", err)
		_ = e.Shutdown()
		os.Exit(1)
	}

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown failed: %s", err)
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}
