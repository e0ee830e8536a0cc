package main

import (
	"log"
	"os"
	"strings"

	"github.com/abelbrown/signage/internal/config"
	"github.com/abelbrown/signage/internal/store"
)

// loadConfig reads the configuration, falling back to defaults when no file
// is found so that read-only commands still work.
func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		if path != "" {
			log.Fatalf("failed to load config: %v", err)
		}
		return &config.Config{DataDir: config.DefaultDataDir()}
	}
	return cfg
}

// openDB opens the history store or fatals.
func openDB(cfg *config.Config) *store.Store {
	if _, err := os.Stat(cfg.DBPath()); err != nil {
		log.Fatalf("no history at %s (run signage first)", cfg.DBPath())
	}
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	return st
}

// isURL reports whether arg should be fetched rather than read from disk.
func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
