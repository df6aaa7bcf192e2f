// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/user00265/rdnsd/cache"
	"github.com/user00265/rdnsd/resolver"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	var (
		useCache  bool
		ttl       int
		cacheFile string
	)
	flag.BoolVar(&useCache, "c", false, "use a local cache file across invocations")
	flag.IntVar(&ttl, "t", 0, "TTL override in seconds applied to resolved answers (0 = as received)")
	flag.StringVar(&cacheFile, "cache-file", "rdnslookup-cache.json", "path to the local cache file when -c is set")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: rdnslookup [-c] [-t seconds] hostname")
		os.Exit(1)
	}
	hostname := flag.Arg(0)
	if ttl < 0 {
		ttl = 0
	}

	c := cache.New(0)
	if useCache {
		if err := c.Load(cacheFile); err != nil {
			slog.Warn("failed to load cache file", "path", cacheFile, "error", err)
		}
	}

	r := resolver.New(c, nil, 5*time.Second, uint32(ttl))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	name, aliases, addrs := r.Resolve(ctx, hostname)

	if useCache {
		if err := c.Save(cacheFile); err != nil {
			slog.Warn("failed to save cache file", "path", cacheFile, "error", err)
		}
	}

	if len(addrs) == 0 {
		fmt.Printf("%s: resolution failed\n", name)
		os.Exit(1)
	}

	for _, alias := range aliases {
		fmt.Printf("%s is an alias for %s\n", name, alias)
		name = alias
	}
	for _, addr := range addrs {
		fmt.Printf("%s has address %s\n", name, addr)
	}
}
