package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"fishshoot.dev/server/config"
)

const (
	defaultListenAddr = ":7160"
	defaultLogLevel   = "info"
	defaultDataDir    = "data"
	defaultLogDirname = "logs"
	defaultAuditDB    = "audit.db"
)

type appConfig struct {
	Listen      string `short:"l" long:"listen" description:"TCP listen address for the binary protocol"`
	WSListen    string `long:"wslisten" description:"HTTP listen address for websocket clients (disabled when empty)"`
	DataDir     string `short:"b" long:"datadir" description:"Directory for the audit database and logs"`
	RulesFile   string `long:"rules" description:"JSON rules file overriding the built-in tables"`
	PostgresDSN string `long:"postgres" description:"Postgres DSN for the receipt mirror (disabled when empty)"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	ShowVersion bool   `short:"V" long:"version" description:"Print version and exit"`
}

// loadAppConfig parses flags and fills defaults. Returns the parsed
// options and the validated rules object.
func loadAppConfig() (*appConfig, config.Config, error) {
	cfg := appConfig{
		Listen:     defaultListenAddr,
		DataDir:    defaultDataDir,
		DebugLevel: defaultLogLevel,
	}
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, config.Config{}, err
	}
	if !validLogLevel(cfg.DebugLevel) {
		return nil, config.Config{}, fmt.Errorf("invalid debug level %q", cfg.DebugLevel)
	}

	rules := config.DefaultConfig()
	if cfg.RulesFile != "" {
		loaded, err := loadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, config.Config{}, err
		}
		rules = loaded
	}
	if err := config.Validate(rules); err != nil {
		return nil, config.Config{}, fmt.Errorf("rules: %w", err)
	}
	return &cfg, rules, nil
}

// loadRulesFile reads a JSON rules override. Omitted operational fields
// fall back to defaults; the payout tables must be complete.
func loadRulesFile(path string) (config.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("read rules file: %w", err)
	}
	var cfg config.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return config.Config{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return config.WithDefaults(cfg), nil
}

func (c *appConfig) logDir() string  { return filepath.Join(c.DataDir, defaultLogDirname) }
func (c *appConfig) auditDB() string { return filepath.Join(c.DataDir, defaultAuditDB) }
