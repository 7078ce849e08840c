package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/ai"
	"github.com/v0xg/formcheck/internal/classifier"
	"github.com/v0xg/formcheck/internal/config"
	"github.com/v0xg/formcheck/internal/crawler"
	"github.com/v0xg/formcheck/internal/discovery"
	"github.com/v0xg/formcheck/internal/executor"
	"github.com/v0xg/formcheck/internal/notify"
	"github.com/v0xg/formcheck/internal/observability"
	"github.com/v0xg/formcheck/internal/page"
	"github.com/v0xg/formcheck/internal/report"
	"github.com/v0xg/formcheck/internal/static"
	"github.com/v0xg/formcheck/internal/store"
	"github.com/v0xg/formcheck/internal/templates"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	launcher  page.Launcher
	browser   *crawler.Browser
	templates *templates.Store
	store     *store.Store
	table     *classifier.Table
	suggester classifier.Suggester
	executor  *executor.Executor
}

// newApp loads configuration and wires the engine. The record store is only
// opened when withStore is set, since Badger holds an exclusive lock on its
// directory.
func newApp(withStore bool) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}
	if headful {
		cfg.Browser.Headless = false
	}
	log := observability.InitializeLogger(cfg.Logger)

	a := &app{
		cfg:   cfg,
		log:   log,
		table: classifier.NewTable(cfg.Classifier.Values, cfg.Classifier.Fallback),
	}

	if useStatic {
		a.launcher = static.New(static.Options{
			Fetcher: static.NewHTTPFetcher(cfg.Browser.UserAgent),
			Width:   cfg.Browser.Width,
			Height:  cfg.Browser.Height,
		})
	} else {
		a.browser = crawler.New(crawler.Options{
			Width:      cfg.Browser.Width,
			Height:     cfg.Browser.Height,
			Headful:    !cfg.Browser.Headless,
			NoSandbox:  cfg.Browser.NoSandbox,
			Bin:        cfg.Browser.Bin,
			ProfileDir: cfg.Browser.ProfileDir,
			UserAgent:  cfg.Browser.UserAgent,
			SPAWait:    cfg.Browser.SPAWait,
		}, log)
		a.launcher = a.browser
	}

	if a.templates, err = templates.NewStore(cfg.Paths.Templates); err != nil {
		return nil, err
	}

	if cfg.AI.Provider != "" {
		s, err := ai.New(ai.Options{
			Provider: cfg.AI.Provider,
			Model:    cfg.AI.Model,
			APIKey:   cfg.AI.APIKey,
			Timeout:  cfg.AI.Timeout,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("AI provider init failed: %w", err)
		}
		a.suggester = s
	}

	deps := executor.Deps{
		Launcher:   a.launcher,
		Discoverer: discovery.New(discovery.Options{PreviewLimit: cfg.Engine.PreviewLimit}, log),
		Classifier: a.table,
		Templates:  a.templates,
		Reporter: report.New(report.Options{
			Dir:          cfg.Paths.Reports,
			ArtifactsDir: cfg.Paths.Artifacts,
		}, log),
		Notifier: notify.New(notify.Config{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			From:        cfg.SMTP.From,
			To:          cfg.SMTP.To,
			ImplicitTLS: cfg.SMTP.ImplicitTLS,
		}, notify.Options{
			ArtifactsDir: cfg.Paths.Artifacts,
			ReportsDir:   cfg.Paths.Reports,
			BaseURL:      cfg.Server.PublicURL,
		}, nil, log),
	}

	if withStore {
		if a.store, err = store.Open(cfg.Paths.Database, log); err != nil {
			a.Close()
			return nil, err
		}
		deps.Recorder = a.store
	}

	a.executor = executor.New(deps, executor.Options{
		NavigationTimeout:         cfg.Engine.NavigationTimeout,
		FallbackNavigationTimeout: cfg.Engine.FallbackNavigationTimeout,
		FillTimeout:               cfg.Engine.FillTimeout,
		StepTimeout:               cfg.Engine.StepTimeout,
		SettleDelay:               cfg.Engine.SettleDelay,
		LocateAttempts:            cfg.Engine.LocateAttempts,
		LocateBackoff:             cfg.Engine.LocateBackoff,
		FinalizeTimeout:           cfg.Engine.FinalizeTimeout,
		ArtifactsDir:              cfg.Paths.Artifacts,
		ReportsDir:                cfg.Paths.Reports,
		Markers:                   cfg.Detection.Markers,
		Phrases:                   cfg.Detection.Phrases,
	}, log)
	return a, nil
}

// Close releases the browser and the store.
func (a *app) Close() {
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.log.Debug("Browser close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("Store close failed", zap.Error(err))
		}
	}
}
