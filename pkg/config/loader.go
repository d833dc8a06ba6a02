package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"dario.cat/mergo"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store holds the live, hot-reloadable configuration. Components read a
// stable snapshot via Current(); in-flight turns keep using the snapshot
// they started with even if a reload swaps in new policies mid-turn
// (SPEC_FULL.md § 6.4, scenario S10).
type Store struct {
	ptr atomic.Pointer[MorganaYAMLConfig]
	log *slog.Logger
}

// Initialize loads morgana.yaml (and an adjacent .env, if present) from
// configDir, merges it over the built-in defaults, validates it, starts an
// fsnotify watch for hot reload, and returns a ready-to-use Store.
//
// Mirrors the teacher's config.Initialize entry point: load, merge, validate,
// return.
func Initialize(ctx context.Context, configDir string) (*Store, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	envPath := filepath.Join(configDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Warn("failed to load .env file", "path", envPath, "error", err)
		}
	}

	path := filepath.Join(configDir, "morgana.yaml")
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}

	s := &Store{log: log}
	s.ptr.Store(cfg)

	if err := s.watch(ctx, path); err != nil {
		log.Warn("config hot-reload watch not started", "error", err)
	}

	log.Info("configuration initialized",
		"intents", len(cfg.Intents),
		"mcp_servers", len(cfg.MCPServers),
		"profanity_terms", len(cfg.ProfanityTerms))
	return s, nil
}

// load reads the YAML file at path (if present) and merges it over the
// built-in defaults with dario.cat/mergo, matching the teacher's
// merge-defaults-then-override convention.
func load(path string) (*MorganaYAMLConfig, error) {
	cfg := DefaultMorganaYAMLConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var user MorganaYAMLConfig
	if err := yaml.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, &user, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return nil, fmt.Errorf("merge %s over defaults: %w", path, err)
	}
	return cfg, nil
}

// Current returns the most recently loaded configuration snapshot. Callers
// must not mutate the returned value.
func (s *Store) Current() *MorganaYAMLConfig {
	return s.ptr.Load()
}

// watch starts an fsnotify watcher on path's directory and atomically swaps
// in a freshly parsed+validated config on every write event. Conversations
// started after the swap build their Guard, Classifier and Router from the
// new snapshot; conversations already running keep the components they were
// built with, and the AgentRegistry (built once at startup) is not rebuilt.
func (s *Store) watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.reload(path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (s *Store) reload(path string) {
	cfg, err := load(path)
	if err != nil {
		s.log.Error("config reload failed, keeping previous snapshot", "error", err)
		return
	}
	if err := Validate(cfg); err != nil {
		s.log.Error("config reload failed validation, keeping previous snapshot", "error", err)
		return
	}
	s.ptr.Store(cfg)
	s.log.Info("configuration reloaded",
		"intents", len(cfg.Intents),
		"profanity_terms", len(cfg.ProfanityTerms))
}
