package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/log"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
	"github.com/bayareaeagle/VBJC/pkg/indexer"
	"github.com/bayareaeagle/VBJC/pkg/ledger"
	"github.com/bayareaeagle/VBJC/pkg/mirror"
	"github.com/bayareaeagle/VBJC/pkg/relayer"
	"github.com/bayareaeagle/VBJC/pkg/store"
	"github.com/bayareaeagle/VBJC/pkg/wsserver"
)

const warmupReportDelay = 5 * time.Second

// runService wires the bridge together and blocks until shutdown. Boot order
// matters: the store and relayer must be up before any chain adapter produces
// events.
func runService(cfg bridge.Config, logger log.Logger) error {
	logger.Info("🌉 VISTA bridge starting",
		"version", mirror.BridgeVersion,
		"source_network", cfg.SourceNetworkName,
		"dest_network", cfg.DestNetworkName,
		"db", cfg.DatabasePath,
	)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.New(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	rel := relayer.New(st, cfg.RetryAttempts, logger)
	if err := rel.Start(); err != nil {
		return err
	}
	defer rel.Close()

	watcher, err := ledger.Dial(ledger.DialConfig{
		URL:       cfg.SourceRPCURL,
		APIKey:    cfg.SourceAPIKey,
		Bech32HRP: hrpForNetwork(cfg.SourceNetworkName),
		AssetType: "ADA",
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to dial source adapter: %w", err)
	}
	defer watcher.Close()

	submitter, err := ledger.Dial(ledger.DialConfig{
		URL:       cfg.DestRPCURL,
		APIKey:    cfg.DestAPIKey,
		Bech32HRP: hrpForNetwork(cfg.DestNetworkName),
		AssetType: "ADA",
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to dial destination adapter: %w", err)
	}
	defer submitter.Close()

	worker, err := mirror.New(cfg, rel, submitter, logger)
	if err != nil {
		return err
	}

	ix, err := indexer.New(cfg, watcher, rel, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("🛑 Shutting down", "signal", sig.String())
		cancel()
	}()

	// The mirror worker runs in the background and is retried forever; only
	// the indexer is load-bearing for process liveness.
	go func() {
		for ctx.Err() == nil {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("❌ Mirror worker stopped, restarting", "error", err)
				select {
				case <-ctx.Done():
				case <-time.After(cfg.RetryDelay):
				}
			}
		}
	}()

	var srv *wsserver.Server
	if cfg.StatusListenAddr != "" {
		srv = wsserver.New(cfg.StatusListenAddr, rel, logger)
		go func() {
			if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("❌ Status server stopped", "error", err)
			}
		}()
	}

	go statusLoop(ctx, cfg, rel, srv, logger)

	indexerErr := ix.Run(ctx)

	if err := rel.PersistState(); err != nil {
		logger.Error("❌ Failed to persist state on shutdown", "error", err)
	}

	if indexerErr != nil && ctx.Err() == nil {
		return fmt.Errorf("indexer failed: %w", indexerErr)
	}
	logger.Info("👋 Bridge stopped")
	return nil
}

// statusLoop logs a periodic operational summary: one early report after
// warmup, then the regular cadence. Each report also pushes a fresh state
// snapshot to any WebSocket subscribers.
func statusLoop(ctx context.Context, cfg bridge.Config, rel *relayer.Relayer, srv *wsserver.Server, logger log.Logger) {
	report := func() {
		reportStatus(rel, logger)
		if srv != nil {
			srv.Broadcast(wsserver.EventState)
		}
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(warmupReportDelay):
		report()
	}

	ticker := time.NewTicker(cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report()
			if err := rel.PersistState(); err != nil {
				logger.Error("❌ Failed to checkpoint watermark", "error", err)
			}
		}
	}
}

func reportStatus(rel *relayer.Relayer, logger log.Logger) {
	state, err := rel.GetBridgeState()
	if err != nil {
		logger.Error("❌ Failed to load state for status report", "error", err)
		return
	}
	logger.Info("📊 Bridge status",
		"processed_deposits", len(state.ProcessedDeposits),
		"pending_mirrors", len(state.PendingMirrors),
		"watermark_slot", state.Watermark.LastProcessedSlot,
		"last_mirror_tx", rel.LastMirrorTxHash(),
	)
}

// hrpForNetwork maps a network name to its bech32 address prefix.
func hrpForNetwork(network string) string {
	if network == "mainnet" {
		return "addr"
	}
	return "addr_test"
}
