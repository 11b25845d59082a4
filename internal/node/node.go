// Package node wires the insight API daemon together so it can be embedded
// in a binary or a test.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cruxpool/flux-insight-api/config"
	"github.com/cruxpool/flux-insight-api/internal/api"
	"github.com/cruxpool/flux-insight-api/internal/cache"
	"github.com/cruxpool/flux-insight-api/internal/daemon"
	klog "github.com/cruxpool/flux-insight-api/internal/log"
	"github.com/cruxpool/flux-insight-api/internal/rpcclient"
	"github.com/cruxpool/flux-insight-api/internal/status"
	"github.com/cruxpool/flux-insight-api/internal/storage"
	"github.com/cruxpool/flux-insight-api/internal/supply"
)

// Node is a fully-initialized insight API daemon.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Storage
	db storage.DB

	// Upstream
	rpc    *rpcclient.Client
	daemon *daemon.Service

	// Supply
	calc   *supply.Calculator
	supply *cache.Supply

	// HTTP
	ctrl      *status.Controller
	apiServer *api.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates and initializes a Node. It performs all setup steps
// (logger, storage, RPC client, calculator, cache, HTTP server) but does
// NOT start the server or background loops. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "fluxinsight.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("node_rpc", cfg.Node.RPC).
		Str("version", config.Version).
		Msg("Starting Flux Insight API")

	// ── 2. Open storage ─────────────────────────────────────────────
	var db storage.DB
	if cfg.Cache.Persist {
		bdb, err := storage.NewBadger(cfg.CacheDir())
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", cfg.CacheDir(), err)
		}
		db = bdb
		klog.Storage.Info().Str("path", cfg.CacheDir()).Msg("Database opened")
	} else {
		db = storage.NewMemory()
	}

	// ── 3. Node RPC ─────────────────────────────────────────────────
	rpc := rpcclient.NewWithTimeout(cfg.Node.RPC, cfg.Node.User, cfg.Node.Password, cfg.Node.Timeout)
	svc := daemon.New(rpc, cfg.Node.Poll)

	// ── 4. Supply calculator + cache ────────────────────────────────
	calc, err := supply.NewCalculator(supply.MainnetSchedule())
	if err != nil {
		db.Close()
		return nil, err
	}
	supplyCache := cache.New(db, svc, calc, cfg.Cache.TTL)
	if err := supplyCache.Load(); err != nil {
		db.Close()
		return nil, err
	}

	// ── 5. Status controller + HTTP API ─────────────────────────────
	ctrl := status.New(status.Config{
		Node:       svc,
		Supply:     supplyCache,
		Calculator: calc,
		Testnet:    cfg.Network == config.Testnet,
		Version:    config.Version,
	})
	apiServer := api.New(api.Config{
		Addr:        cfg.ListenAddr(),
		Prefix:      cfg.HTTP.Prefix,
		AllowedIPs:  cfg.HTTP.AllowedIPs,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Metrics:     cfg.Metrics.Enabled,
		MaxAge:      cfg.Cache.TTL,
	}, ctrl)

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rpc:       rpc,
		daemon:    svc,
		calc:      calc,
		supply:    supplyCache,
		ctrl:      ctrl,
		apiServer: apiServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start binds the HTTP server and launches the tip poller and the supply
// refresher.
func (n *Node) Start() error {
	if err := n.apiServer.Start(); err != nil {
		return err
	}
	n.logger.Info().Str("addr", n.apiServer.Addr()).Msg("API server listening")

	g, ctx := errgroup.WithContext(n.ctx)
	g.Go(func() error { return n.daemon.Run(ctx) })
	g.Go(func() error { return n.supply.Run(ctx) })
	n.group = g

	n.logger.Info().
		Dur("poll", n.cfg.Node.Poll).
		Dur("cache_ttl", n.supply.TTL()).
		Bool("persist", n.cfg.Cache.Persist).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() error {
	n.cancel()

	var errs []error
	if n.group != nil {
		if err := n.group.Wait(); err != nil {
			errs = append(errs, err)
		}
		if err := n.apiServer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop api: %w", err))
		}
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	n.logger.Info().Msg("Goodbye!")
	return errors.Join(errs...)
}

// APIAddr returns the address the HTTP server is listening on.
func (n *Node) APIAddr() string {
	return n.apiServer.Addr()
}

// Tip returns the last chain tip observed from fluxd.
func (n *Node) Tip() daemon.Tip {
	return n.daemon.Tip()
}
