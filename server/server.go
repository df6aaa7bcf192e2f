// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

// Package server implements the UDP name-server front end: it binds a
// listening socket, dispatches each datagram to a handler that
// consults the authoritative zone catalog and falls back to the
// recursive resolver, and serializes outbound sends on that socket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user00265/rdnsd/acl"
	"github.com/user00265/rdnsd/cache"
	"github.com/user00265/rdnsd/config"
	"github.com/user00265/rdnsd/metrics"
	"github.com/user00265/rdnsd/resolver"
	"github.com/user00265/rdnsd/wire"
	"github.com/user00265/rdnsd/zone"

	"github.com/fsnotify/fsnotify"
)

// Server binds a UDP socket and answers DNS queries, consulting an
// authoritative zone catalog (C3) first and a recursive resolver (C4)
// on RD-flagged fallback.
type Server struct {
	configPath string
	configMgr  *config.ConfigManager

	catalogMu sync.RWMutex
	catalog   *zone.Catalog
	zoneACLs  map[string]*acl.ACL

	cache      *cache.Cache
	cachePath  string
	resolver   *resolver.Resolver
	defaultTTL uint32

	listener *net.UDPConn
	sendMu   sync.Mutex
	addr     string
	done     atomic.Bool

	metrics *metrics.Metrics

	watcher        *fsnotify.Watcher
	autoReload     bool
	reloadDebounce time.Duration
	reloadTimer    *time.Timer
	reloadMu       sync.Mutex
}

// New builds a server from cfg. configPath, if non-empty, is watched
// for hot reload.
func New(cfg *config.Config, configPath string) (*Server, error) {
	srv := &Server{
		configPath:     configPath,
		zoneACLs:       make(map[string]*acl.ACL),
		addr:           cfg.Server.Bind,
		autoReload:     cfg.Server.AutoReload,
		reloadDebounce: time.Duration(cfg.Server.ReloadDebounce) * time.Second,
		cachePath:      cfg.Cache.File,
		defaultTTL:     cfg.Resolver.DefaultTTL,
	}
	if srv.reloadDebounce == 0 {
		srv.reloadDebounce = 2 * time.Second
	}
	if srv.defaultTTL == 0 {
		srv.defaultTTL = 300
	}

	sweepInterval := time.Duration(cfg.Cache.SweepInterval) * time.Second
	srv.cache = cache.New(sweepInterval)
	if srv.cachePath != "" {
		if err := srv.cache.Load(srv.cachePath); err != nil {
			slog.Warn("failed to load cache file", "path", srv.cachePath, "error", err)
		}
	}

	resolverTimeout := time.Duration(cfg.Resolver.TimeoutSeconds) * time.Second
	srv.resolver = resolver.New(srv.cache, cfg.Resolver.Seeds, resolverTimeout, cfg.Resolver.TTLOverride)

	var err error
	srv.metrics, err = metrics.New(cfg.Metrics.OTELEndpoint, cfg.Metrics.PrometheusEndpoint)
	if err != nil {
		slog.Warn("failed to initialize metrics", "error", err)
	}
	srv.resolver.SetMetrics(srv.metrics)

	if err := srv.loadZones(cfg); err != nil {
		return nil, err
	}

	if configPath != "" {
		configMgr, err := config.NewConfigManager(configPath, srv.handleConfigReload)
		if err != nil {
			slog.Warn("failed to initialize config manager", "error", err)
		} else {
			srv.configMgr = configMgr
			if err := configMgr.Start(); err != nil {
				slog.Warn("failed to start config manager", "error", err)
			}
		}
	}

	if srv.autoReload {
		if err := srv.initFileWatcher(cfg); err != nil {
			slog.Warn("failed to initialize file watcher", "error", err)
			slog.Warn("automatic reload disabled, use SIGHUP for manual reload")
			srv.autoReload = false
		} else {
			slog.Info("automatic zone file monitoring enabled", "debounce", srv.reloadDebounce)
		}
	}

	return srv, nil
}

// loadZones parses every configured zone's master files and (re)builds
// the catalog and per-zone ACL set in one atomic swap.
func (s *Server) loadZones(cfg *config.Config) error {
	catalog := zone.NewCatalog()
	zoneACLs := make(map[string]*acl.ACL)
	var failedZones []string

	for _, zc := range cfg.Zones {
		slog.Info("loading zone", "name", zc.Name, "files", zc.Files)

		var records []cache.RR
		loadFailed := false
		for _, file := range zc.Files {
			rrs, err := zone.LoadMasterFile(file, zc.Name)
			if err != nil {
				slog.Error("failed to load zone file", "zone", zc.Name, "file", file, "error", err)
				failedZones = append(failedZones, zc.Name)
				loadFailed = true
				break
			}
			records = append(records, rrs...)
		}
		if loadFailed {
			continue
		}

		var zoneACL *acl.ACL
		var err error
		if len(zc.ACLRule.Allow) > 0 || len(zc.ACLRule.Deny) > 0 {
			zoneACL, err = acl.FromRules(zc.ACLRule.Allow, zc.ACLRule.Deny)
			if err != nil {
				slog.Error("failed to parse inline ACL", "zone", zc.Name, "error", err)
				failedZones = append(failedZones, zc.Name)
				continue
			}
		} else if zc.ACL != "" {
			zoneACL, err = acl.LoadACL(zc.ACL)
			if err != nil {
				slog.Error("failed to load ACL file", "zone", zc.Name, "error", err)
				failedZones = append(failedZones, zc.Name)
				continue
			}
		}

		catalog.AddZone(zc.Name, records)
		if zoneACL != nil {
			zoneACLs[strings.ToLower(zc.Name)] = zoneACL
		}
	}

	s.catalogMu.Lock()
	s.catalog = catalog
	s.zoneACLs = zoneACLs
	s.catalogMu.Unlock()

	if s.catalog == nil && len(cfg.Zones) > 0 && s.configPath != "" {
		return fmt.Errorf("failed to load any zones (loaded 0/%d)", len(cfg.Zones))
	}
	if len(failedZones) > 0 {
		slog.Warn("failed to load some zones", "count", len(failedZones), "zones", failedZones)
	}
	return nil
}

// Reload re-parses zone files from the current config.
func (s *Server) Reload() error {
	return s.loadZones(s.configMgr.Get())
}

func (s *Server) handleConfigReload(newCfg *config.Config, changes config.ZoneChanges) error {
	if changes.ServerChanged {
		slog.Info("server config changed (bind address requires restart)", "bind", newCfg.Server.Bind)
	}
	return s.loadZones(newCfg)
}

// aclFor returns the ACL registered for the zone whose root is the
// longest suffix of qname, or nil if no zone claims it or it has no
// ACL configured.
func (s *Server) aclFor(qname string) *acl.ACL {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	qname = strings.ToLower(qname)
	var best *acl.ACL
	bestLen := -1
	for root, a := range s.zoneACLs {
		if qname != root && !strings.HasSuffix(qname, "."+root) {
			continue
		}
		if len(root) > bestLen {
			best, bestLen = a, len(root)
		}
	}
	return best
}

// ListenAndServe binds the configured address and serves until
// Shutdown is called.
func (s *Server) ListenAndServe() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	s.listener = conn
	defer conn.Close()

	slog.Info("listening", "addr", s.addr)

	buf := make([]byte, 1024)
	for !s.done.Load() {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			slog.Warn("read error", "error", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		go s.handleRequest(conn, data, remoteAddr)
	}

	return nil
}

// handleRequest implements the five-step handler contract: decode or
// drop, reject non-singleton question sections, try the zone catalog,
// fall back to the recursive resolver when RD is set, send exactly
// once under the send mutex.
func (s *Server) handleRequest(conn *net.UDPConn, data []byte, remoteAddr *net.UDPAddr) {
	start := time.Now()

	msg, err := wire.Decode(data)
	if err != nil {
		s.metrics.RecordError("decode_error")
		return
	}
	if msg.Header.QR {
		return
	}
	if len(msg.Questions) != 1 {
		s.metrics.RecordError("bad_question_count")
		return
	}

	q := msg.Questions[0]
	s.metrics.RecordQuery(wire.TypeString(q.Type))

	resp := &wire.Message{
		Header: wire.Header{
			ID:      msg.Header.ID,
			QR:      true,
			RD:      msg.Header.RD,
			QDCount: 1,
		},
		Questions: []wire.Question{q},
	}

	if a := s.aclFor(q.Name); a != nil && !a.Permit(remoteAddr.IP) {
		s.metrics.RecordError("acl_denied")
		return
	}

	if answers, authorities, found := s.lookupCatalog(q.Name, q.Type); found {
		resp.Header.AA = true
		resp.Header.RA = true
		resp.Answers = answers
		resp.Authorities = authorities
		s.metrics.RecordResponse("authoritative", len(answers) > 0)
	} else if msg.Header.RD {
		resp.Header.RA = true
		_, aliases, addrs := s.resolver.Resolve(context.Background(), q.Name)
		resp.Answers = synthesizeAnswers(q.Name, aliases, addrs, s.defaultTTL)
		if len(resp.Answers) == 0 {
			resp.Header.RCode = wire.RCodeNameErr
		}
		s.metrics.RecordResponse("recursive", len(resp.Answers) > 0)
	} else {
		resp.Header.RCode = wire.RCodeNameErr
		s.metrics.RecordResponse("none", false)
	}

	out, err := wire.Encode(resp)
	if err != nil {
		slog.Warn("failed to encode response", "error", err)
		s.metrics.RecordError("encode_error")
		return
	}

	s.sendMu.Lock()
	_, err = conn.WriteToUDP(out, remoteAddr)
	s.sendMu.Unlock()
	if err != nil {
		slog.Warn("write error", "error", err)
		s.metrics.RecordError("write_error")
	}

	s.metrics.RecordLatency(time.Since(start).Seconds() * 1000)
}

func (s *Server) lookupCatalog(qname string, qtype uint16) (answers, authorities []wire.RR, found bool) {
	s.catalogMu.RLock()
	catalog := s.catalog
	s.catalogMu.RUnlock()
	if catalog == nil {
		return nil, nil, false
	}

	a, auth, found := catalog.Lookup(qname, qtype)
	return toWireRRs(a), toWireRRs(auth), found
}

func toWireRRs(rrs []cache.RR) []wire.RR {
	out := make([]wire.RR, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, wire.RR{Name: rr.Name, Type: rr.Type, Class: rr.Class, TTL: rr.TTL, Data: rr.Data})
	}
	return out
}

// synthesizeAnswers wraps a resolver result as CNAME records for each
// alias traversed followed by an A record per resolved address, all
// stamped with ttl, per spec §4.5 step 4.
func synthesizeAnswers(qname string, aliases, addrs []string, ttl uint32) []wire.RR {
	var out []wire.RR
	owner := qname
	for _, alias := range aliases {
		out = append(out, wire.RR{
			Name: owner, Type: wire.TypeCNAME, Class: wire.ClassIN, TTL: ttl,
			Data: wire.NameData{Name: alias},
		})
		owner = alias
	}
	for _, addr := range addrs {
		ip := net.ParseIP(addr).To4()
		if ip == nil {
			continue
		}
		var a [4]byte
		copy(a[:], ip)
		out = append(out, wire.RR{
			Name: owner, Type: wire.TypeA, Class: wire.ClassIN, TTL: ttl,
			Data: wire.AData{Addr: a},
		})
	}
	return out
}

// Shutdown gracefully stops the server, flushing the cache to disk if
// persistence is configured.
func (s *Server) Shutdown() {
	const shutdownTimeout = 5 * time.Second

	slog.Info("initiating graceful shutdown")
	s.done.Store(true)

	if s.listener != nil {
		s.listener.Close()
	}

	if s.cachePath != "" {
		if err := s.cache.Save(s.cachePath); err != nil {
			slog.Warn("failed to save cache file", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil && err != context.DeadlineExceeded {
			slog.Warn("metrics server shutdown error", "error", err)
		}
	}

	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.reloadTimer != nil {
		s.reloadTimer.Stop()
	}
	if s.configMgr != nil {
		s.configMgr.Stop()
	}

	slog.Info("shutdown complete")
}

// initFileWatcher watches every configured zone and ACL file, and
// triggers a debounced reload on change.
func (s *Server) initFileWatcher(cfg *config.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	s.watcher = watcher

	filesToWatch := make(map[string]bool)
	for _, zc := range cfg.Zones {
		for _, f := range zc.Files {
			filesToWatch[f] = true
		}
		if zc.ACL != "" {
			filesToWatch[zc.ACL] = true
		}
	}

	for file := range filesToWatch {
		if err := watcher.Add(file); err != nil {
			slog.Warn("failed to watch file", "file", file, "error", err)
		}
	}

	go s.watchFiles()
	return nil
}

func (s *Server) watchFiles() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				slog.Info("detected zone file change", "file", event.Name)
				s.scheduleReload()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error", "error", err)
		}
	}
}

func (s *Server) scheduleReload() {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.reloadTimer != nil {
		s.reloadTimer.Stop()
	}
	s.reloadTimer = time.AfterFunc(s.reloadDebounce, func() {
		start := time.Now()
		if err := s.Reload(); err != nil {
			slog.Warn("failed to reload zones", "error", err)
		} else {
			slog.Info("zones reloaded", "duration", time.Since(start))
		}
	})
}
