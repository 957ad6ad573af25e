package main

import (
	"fmt"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/dedupe"
	"github.com/franz/dupe-janitor/internal/report"
	"github.com/franz/dupe-janitor/internal/resolve"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/spf13/viper"
)

// app bundles the services shared by commands
type app struct {
	db     *store.Store
	logger *report.EventLogger
	cache  *cluster.ResultCache
	engine *cluster.Engine
}

// openApp opens the library and wires the engine from configuration
func openApp() (*app, error) {
	matchCfg, err := loadMatchConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	threshold, err := loadFingerprintThreshold(viper.GetViper())
	if err != nil {
		return nil, err
	}

	dbPath := viper.GetString("db")
	util.DebugLog("Opening database: %s", dbPath)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cache := cluster.NewResultCache(getDuration(viper.GetViper(), "cache.ttl", cluster.DefaultCacheTTL))
	return &app{
		db:     db,
		logger: openEventLogger(),
		cache:  cache,
		engine: cluster.New(&cluster.Config{
			Library:              db,
			Cache:                cache,
			Match:                matchCfg,
			FingerprintThreshold: threshold,
		}),
	}, nil
}

func openEventLogger() *report.EventLogger {
	dir := viper.GetString("events_dir")
	if dir == "" {
		return report.NullLogger()
	}

	level := report.LevelInfo
	if viper.GetBool("quiet") {
		level = report.LevelWarning
	} else if viper.GetBool("verbose") {
		level = report.LevelDebug
	}
	if name := viper.GetString("events_level"); name != "" {
		parsed, err := report.ParseLevel(name)
		if err != nil {
			util.WarnLog("Ignoring events_level: %v", err)
		} else {
			level = parsed
		}
	}

	logger, err := report.NewEventLogger(dir, level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.DebugLog("Event log: %s", logger.Path())
	return logger
}

func (a *app) resolveConfig() *resolve.Config {
	return &resolve.Config{Library: a.db, Cache: a.cache, Logger: a.logger}
}

func (a *app) planner() *resolve.Planner {
	return resolve.NewPlanner(a.resolveConfig())
}

func (a *app) directories() *resolve.DirectoryResolver {
	return resolve.NewDirectoryResolver(a.engine, a.resolveConfig())
}

func (a *app) dedupe() *dedupe.Service {
	return dedupe.New(&dedupe.Config{Engine: a.engine, Editor: a.db, Logger: a.logger})
}

func (a *app) Close() {
	a.logger.Close()
	a.db.Close()
}
