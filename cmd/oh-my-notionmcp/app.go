package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/everything-chalna/oh-my-notionmcp/internal/activity"
	"github.com/everything-chalna/oh-my-notionmcp/internal/cache"
	"github.com/everything-chalna/oh-my-notionmcp/internal/config"
	"github.com/everything-chalna/oh-my-notionmcp/internal/fastpath"
	"github.com/everything-chalna/oh-my-notionmcp/internal/httpapi"
	"github.com/everything-chalna/oh-my-notionmcp/internal/localbackend"
	"github.com/everything-chalna/oh-my-notionmcp/internal/logs"
	"github.com/everything-chalna/oh-my-notionmcp/internal/metrics"
	"github.com/everything-chalna/oh-my-notionmcp/internal/remotebackend"
	"github.com/everything-chalna/oh-my-notionmcp/internal/router"
	"github.com/everything-chalna/oh-my-notionmcp/internal/secureenv"
	"github.com/everything-chalna/oh-my-notionmcp/internal/server"
)

const activityLogCapacity = 500

// app bundles every long-lived component wired together from a resolved
// Config. Both the serve and doctor commands build one; doctor just never
// calls ServeStdio.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	metrics     *metrics.Registry
	cacheMgr    *cache.Manager
	fastPath    *fastpath.FastPath
	official    *remotebackend.Backend
	fast        *localbackend.Backend
	router      *router.Router
	activityLog *activity.Log
	mcpServer   *server.Server
}

// newApp constructs every component but does not connect backends or
// start serving; call Start to bring the router (and therefore both
// backends) up.
func newApp(cfg *config.Config) (*app, error) {
	logger, err := logs.Setup(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}

	reg := metrics.New(prometheus.DefaultRegisterer)

	var cacheMgr *cache.Manager
	if cfg.Cache.Enabled {
		cacheMgr, err = cache.NewManager(cfg.Cache.TTL, cfg.Cache.MaxEntries, cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("construct response cache: %w", err)
		}
		if err := cacheMgr.Load(); err != nil {
			logger.Warn("failed to load persisted cache, starting empty", zap.Error(err))
		}
	}

	var fp *fastpath.FastPath
	if cfg.LocalAppCache.Enabled {
		fp = fastpath.Open(cfg.LocalAppCache, logger)
	}

	httpClient := httpapi.New("2022-06-28")
	localAuth := localbackend.AuthContext{
		Authorization: "Bearer " + os.Getenv("NOTIONMCP_NOTION_TOKEN"),
		APIVersion:    "2022-06-28",
	}
	fast := localbackend.New(localbackend.DefaultOperations, localbackend.ReadOnlyAllowlist, httpClient, cacheMgr, fp, "https://api.notion.com", logger, reg)

	envMgr := secureenv.NewManager(secureenv.DefaultEnvConfig())
	official := remotebackend.New(remotebackend.Spec{
		Command:          cfg.Remote.Command,
		Args:             cfg.Remote.Args,
		Cwd:              cfg.Remote.Cwd,
		DefaultURL:       cfg.Remote.DefaultURL,
		AllowNpxFallback: cfg.Remote.AllowNpxFallback,
	}, envMgr, cfg.TokenCacheDir, logger, reg)

	rt := router.New(official, fast, official, logger, reg)
	activityLog := activity.NewLog(activityLogCapacity)
	rt.SetActivityLog(activityLog)

	a := &app{
		cfg:         cfg,
		logger:      logger,
		metrics:     reg,
		cacheMgr:    cacheMgr,
		fastPath:    fp,
		official:    official,
		fast:        fast,
		router:      rt,
		activityLog: activityLog,
	}
	a.mcpServer = server.New(rt, localAuth, logger)
	a.mcpServer.RegisterActivityLogTool(activityLog)
	return a, nil
}

// Start connects both backends and, if configured, starts the metrics
// HTTP listener. It never fails outright: a total backend outage is
// reported through rt.Start's own error, which the caller decides how to
// treat (serve exits non-zero; doctor just reports it).
func (a *app) Start(ctx context.Context) error {
	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(a.cfg.MetricsAddr, mux); err != nil {
				a.logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}
	return a.router.Start(ctx)
}

// Close releases the cache (final save), fast-path DB handle, and remote
// subprocess, in that order. Safe to call even if Start failed partway.
func (a *app) Close() {
	if a.cacheMgr != nil {
		if err := a.cacheMgr.Save(); err != nil {
			a.logger.Warn("failed to persist response cache on shutdown", zap.Error(err))
		}
	}
	if a.fastPath != nil {
		if err := a.fastPath.Close(); err != nil {
			a.logger.Warn("failed to close fast-path database", zap.Error(err))
		}
	}
	if err := a.official.Close(); err != nil {
		a.logger.Warn("failed to close remote backend", zap.Error(err))
	}
	_ = a.logger.Sync()
}
