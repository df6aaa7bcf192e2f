// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/user00265/rdnsd/config"
	"github.com/user00265/rdnsd/server"
)

// multiLevelHandler routes ERROR logs to stderr, everything else to stdout.
type multiLevelHandler struct {
	infoHandler  slog.Handler
	errorHandler slog.Handler
}

func (h *multiLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (h *multiLevelHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return h.errorHandler.Handle(ctx, r)
	}
	return h.infoHandler.Handle(ctx, r)
}

func (h *multiLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &multiLevelHandler{
		infoHandler:  h.infoHandler.WithAttrs(attrs),
		errorHandler: h.errorHandler.WithAttrs(attrs),
	}
}

func (h *multiLevelHandler) WithGroup(name string) slog.Handler {
	return &multiLevelHandler{
		infoHandler:  h.infoHandler.WithGroup(name),
		errorHandler: h.errorHandler.WithGroup(name),
	}
}

const Version = "1.0.0"

func main() {
	handler := &multiLevelHandler{
		infoHandler:  slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		errorHandler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	slog.SetDefault(slog.New(handler))

	var (
		port       int
		caching    bool
		ttl        int
		configFile string
		version    bool
	)
	flag.IntVar(&port, "p", 5353, "port to listen on")
	flag.IntVar(&port, "port", 5353, "port to listen on")
	flag.BoolVar(&caching, "c", false, "persist the record cache to cache.json across restarts")
	flag.BoolVar(&caching, "caching", false, "persist the record cache to cache.json across restarts")
	flag.IntVar(&ttl, "t", 0, "TTL override in seconds (0 = no override)")
	flag.IntVar(&ttl, "ttl", 0, "TTL override in seconds (0 = no override)")
	flag.StringVar(&configFile, "config", "", "config file (YAML)")
	flag.BoolVar(&version, "v", false, "show version")
	flag.Parse()

	if version {
		fmt.Printf("rdnsd %s\n", Version)
		os.Exit(0)
	}

	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		if ttl > 0 {
			cfg.Resolver.DefaultTTL = uint32(ttl)
			cfg.Resolver.TTLOverride = uint32(ttl)
		}
	} else {
		cfg = &config.Config{
			Server: config.ServerConfig{
				Bind:           fmt.Sprintf("0.0.0.0:%d", port),
				TimeoutSeconds: 5,
			},
			Resolver: config.ResolverConfig{TimeoutSeconds: 5, DefaultTTL: 300},
			Cache:    config.CacheConfig{SweepInterval: 3600},
			Logging:  config.LoggingConfig{Level: "info"},
		}
		if caching {
			cfg.Cache.File = "cache.json"
		}
		if ttl > 0 {
			cfg.Resolver.DefaultTTL = uint32(ttl)
			cfg.Resolver.TTLOverride = uint32(ttl)
		}
	}

	srv, err := server.New(cfg, configFile)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGHUP:
				slog.Info("received SIGHUP, reloading zones")
				if err := srv.Reload(); err != nil {
					slog.Error("failed to reload zones", "error", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				srv.Shutdown()
				os.Exit(0)
			}
		}
	}()

	slog.Info("rdnsd starting", "version", Version, "bind", cfg.Server.Bind)
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
