// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigManager watches the config file for changes and reloads it,
// reporting what changed to the caller-supplied callback.
type ConfigManager struct {
	configPath string
	cfg        *Config
	mu         sync.RWMutex
	watcher    *fsnotify.Watcher
	done       chan bool
	onReload   func(*Config, ZoneChanges) error
}

// ZoneChanges describes what zones were added, removed, or updated
// between two successive loads of the config file.
type ZoneChanges struct {
	Added         []string
	Removed       []string
	Updated       []string
	ServerChanged bool
}

// NewConfigManager creates a config manager for configPath, performing
// an initial load.
func NewConfigManager(configPath string, onReload func(*Config, ZoneChanges) error) (*ConfigManager, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	return &ConfigManager{
		configPath: configPath,
		cfg:        cfg,
		done:       make(chan bool),
		onReload:   onReload,
	}, nil
}

// Start begins watching the config file for changes.
func (cm *ConfigManager) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	cm.watcher = watcher

	if err := watcher.Add(cm.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	slog.Info("watching config file", "path", cm.configPath)

	go cm.watchLoop()
	return nil
}

// Stop stops watching the config file.
func (cm *ConfigManager) Stop() {
	if cm.watcher != nil {
		cm.watcher.Close()
	}
	cm.done <- true
}

// Get returns the current config.
func (cm *ConfigManager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.cfg
}

func (cm *ConfigManager) watchLoop() {
	var timer *time.Timer

	for {
		select {
		case event, ok := <-cm.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				slog.Info("config file changed", "path", event.Name)

				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(time.Duration(cm.cfg.Server.ReloadDebounce)*time.Second, cm.reloadConfig)
			}

		case err, ok := <-cm.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)

		case <-cm.done:
			return
		}
	}
}

func (cm *ConfigManager) reloadConfig() {
	newCfg, err := LoadConfig(cm.configPath)
	if err != nil {
		slog.Warn("failed to reload config", "error", err)
		return
	}

	cm.mu.Lock()
	oldCfg := cm.cfg
	cm.cfg = newCfg
	cm.mu.Unlock()

	changes := detectChanges(oldCfg, newCfg)

	if cm.onReload != nil {
		start := time.Now()
		if err := cm.onReload(newCfg, changes); err != nil {
			slog.Warn("failed to apply config changes", "error", err)
			cm.mu.Lock()
			cm.cfg = oldCfg
			cm.mu.Unlock()
			return
		}
		slog.Info("config reloaded", "duration", time.Since(start))
	}
}

// detectChanges compares old and new configs to determine what changed.
func detectChanges(oldCfg, newCfg *Config) ZoneChanges {
	changes := ZoneChanges{}

	if oldCfg.Server.Bind != newCfg.Server.Bind ||
		oldCfg.Server.TimeoutSeconds != newCfg.Server.TimeoutSeconds {
		changes.ServerChanged = true
		slog.Info("server config changed", "bind", newCfg.Server.Bind, "timeout", newCfg.Server.TimeoutSeconds)
	}

	oldZones := make(map[string]ZoneConfig, len(oldCfg.Zones))
	for _, z := range oldCfg.Zones {
		oldZones[z.Name] = z
	}

	newZones := make(map[string]ZoneConfig, len(newCfg.Zones))
	for _, z := range newCfg.Zones {
		newZones[z.Name] = z
	}

	for name := range newZones {
		if _, exists := oldZones[name]; !exists {
			changes.Added = append(changes.Added, name)
		}
	}

	for name := range oldZones {
		if _, exists := newZones[name]; !exists {
			changes.Removed = append(changes.Removed, name)
		}
	}

	for name, newZone := range newZones {
		if oldZone, exists := oldZones[name]; exists && zoneConfigChanged(oldZone, newZone) {
			changes.Updated = append(changes.Updated, name)
		}
	}

	return changes
}

// zoneConfigChanged reports whether a zone's configuration changed
// between two loads.
func zoneConfigChanged(old, new ZoneConfig) bool {
	if len(old.Files) != len(new.Files) {
		return true
	}
	for i, f := range old.Files {
		if i >= len(new.Files) || f != new.Files[i] {
			return true
		}
	}

	if old.ACL != new.ACL {
		return true
	}

	if len(old.ACLRule.Allow) != len(new.ACLRule.Allow) || len(old.ACLRule.Deny) != len(new.ACLRule.Deny) {
		return true
	}
	for i, a := range old.ACLRule.Allow {
		if a != new.ACLRule.Allow[i] {
			return true
		}
	}
	for i, d := range old.ACLRule.Deny {
		if d != new.ACLRule.Deny[i] {
			return true
		}
	}

	return false
}
