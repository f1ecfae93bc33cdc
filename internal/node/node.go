// Package node assembles a claim verification node (storage, ledger,
// engine, RPC) that can be embedded in any binary.
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/truthstamp/config"
	"github.com/Klingon-tech/truthstamp/internal/engine"
	"github.com/Klingon-tech/truthstamp/internal/ledger"
	klog "github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/internal/metrics"
	"github.com/Klingon-tech/truthstamp/internal/rpc"
	"github.com/Klingon-tech/truthstamp/internal/storage"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Key prefixes separating the ledger from the engine's registries.
var (
	ledgerPrefix = []byte("l/")
	enginePrefix = []byte("e/")
)

// Node is a fully-initialized claim verification node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db       storage.DB
	book     *ledger.Book
	engine   *engine.Engine
	registry *prometheus.Registry

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	events engine.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, genesis, storage, ledger, engine, RPC) but does NOT start
// serving. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Set address HRP ──────────────────────────────────────────
	if cfg.Network == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	// ── 2. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "truthstamp.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 3. Genesis ──────────────────────────────────────────────────
	genesis, err := loadGenesis(cfg)
	if err != nil {
		return nil, err
	}
	hash, err := genesis.Hash()
	if err != nil {
		return nil, fmt.Errorf("genesis hash: %w", err)
	}
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("genesis", hash.String()).
		Uint32("quorum", genesis.Rules.Quorum).
		Uint64("claim_fee", genesis.Rules.ClaimFee).
		Msg("Starting TruthStamp node")

	// ── 4. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DBDir(), err)
	}
	logger.Info().Str("path", cfg.DBDir()).Msg("Database opened")

	n, err := assemble(cfg, genesis, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return n, nil
}

// assemble builds the ledger, engine and RPC server over an open database.
func assemble(cfg *config.Config, genesis *config.Genesis, db storage.DB, logger zerolog.Logger) (*Node, error) {
	// ── 5. Metrics ──────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	// ── 6. Ledger and engine ────────────────────────────────────────
	book := ledger.NewBook(storage.NewPrefixDB(db, ledgerPrefix))
	eng, err := engine.New(storage.NewPrefixDB(db, enginePrefix), book, genesis.Rules, engine.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	if err := eng.EnsureGenesis(context.Background(), genesis, book.Mint); err != nil {
		return nil, fmt.Errorf("apply genesis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:      cfg,
		genesis:  genesis,
		logger:   logger,
		db:       db,
		book:     book,
		engine:   eng,
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,
	}

	// ── 7. RPC ──────────────────────────────────────────────────────
	if cfg.RPC.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		n.rpcServer = rpc.New(addr, eng, cfg.RPC, registry)
	}
	return n, nil
}

// loadGenesis reads the configured genesis file or falls back to the
// built-in genesis of the network.
func loadGenesis(cfg *config.Config) (*config.Genesis, error) {
	if cfg.Genesis == "" {
		return config.DefaultGenesis(cfg.Network), nil
	}
	g, err := config.LoadGenesis(expandHome(cfg.Genesis), cfg.Network)
	if err != nil {
		return nil, err
	}
	if g.Network != cfg.Network {
		return nil, fmt.Errorf("genesis is for %s, node runs %s", g.Network, cfg.Network)
	}
	return g, nil
}

// Start starts the RPC server and the event log.
func (n *Node) Start() error {
	n.events = n.engine.Subscribe(0)
	g, ctx := errgroup.WithContext(n.ctx)
	n.g = g
	g.Go(func() error {
		n.logEvents(ctx)
		return nil
	})

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start rpc: %w", err)
		}
	}
	return nil
}

// Stop shuts the node down and closes the database.
func (n *Node) Stop() {
	n.cancel()
	n.events.Close()
	if n.g != nil {
		n.g.Wait()
	}

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// Engine returns the node's engine.
func (n *Node) Engine() *engine.Engine {
	return n.engine
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// ── Events ──────────────────────────────────────────────────────────

func (n *Node) logEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.events.Events:
			if !ok {
				return
			}
			e := n.logger.Info().Str("kind", string(ev.Kind)).Time("at", ev.At)
			if ev.ClaimID != 0 {
				e = e.Uint64("claim", ev.ClaimID)
			}
			if ev.ReviewID != 0 {
				e = e.Uint64("review", ev.ReviewID)
			}
			if !ev.Address.IsZero() {
				e = e.Str("address", ev.Address.String())
			}
			if ev.Amount != 0 {
				e = e.Uint64("amount", ev.Amount)
			}
			if ev.Verdict != "" {
				e = e.Str("verdict", string(ev.Verdict))
			}
			if ev.Detail != "" {
				e = e.Str("detail", ev.Detail)
			}
			e.Msg("Event")
		}
	}
}
