package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evmbridge/backend"
	"evmbridge/config"
	"evmbridge/crypto"
	"evmbridge/engine"
	"evmbridge/keystore"
	"evmbridge/observability/logging"
	"evmbridge/rpc"
	"evmbridge/storage"
)

// snapshotInterval is how often the state archiver scans the hosted
// contract. Scans are full-prefix reads, so the cadence stays coarse.
const snapshotInterval = 15 * time.Minute

// keystorePassEnv supplies the passphrase for the encrypted signer keystore.
const keystorePassEnv = "BRIDGE_KEYSTORE_PASS"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "bridge.toml", "path to bridge configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("BRIDGE_ENV"))
	logger := logging.Setup("bridged", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", cfgPath, "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	keys := buildKeyStore(cfg)
	if err := keys.LoadKeyFiles(cfg.NetworkID, cfg.KeyFiles); err != nil {
		logger.Error("failed to load key files", "err", err)
		os.Exit(1)
	}
	if cfg.KeystorePath != "" {
		passphrase := strings.TrimSpace(os.Getenv(keystorePassEnv))
		if passphrase == "" {
			logger.Error("keystore passphrase required", "env", keystorePassEnv, "path", cfg.KeystorePath)
			os.Exit(1)
		}
		if err := keys.LoadKeystore(cfg.NetworkID, crypto.AccountID(cfg.SignerAccount), cfg.KeystorePath, passphrase); err != nil {
			logger.Error("unable to decrypt keystore", "path", cfg.KeystorePath, "err", err)
			os.Exit(1)
		}
	}

	client := backend.NewRPCClient(cfg.NodeURL)
	bridge := engine.New(client, keys, engine.Config{
		Network:   cfg.NetworkID,
		Contract:  crypto.AccountID(cfg.EngineAccount),
		Signer:    crypto.AccountID(cfg.SignerAccount),
		GasBudget: cfg.GasBudget,
		Logger:    logger,
	})

	snapCtx, snapCancel := context.WithCancel(context.Background())
	defer snapCancel()
	if cfg.SnapshotStorePath != "" {
		snapshots, err := storage.OpenSnapshotStore(cfg.SnapshotStorePath)
		if err != nil {
			logger.Error("failed to open snapshot store", "path", cfg.SnapshotStorePath, "err", err)
			os.Exit(1)
		}
		defer snapshots.Close()
		go snapshotLoop(snapCtx, bridge, snapshots, logger)
	}

	limiter := rpc.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst)
	facade := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpc.NewServer(bridge, logger, limiter),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ops := chi.NewRouter()
	ops.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	ops.Handle("/metrics", promhttp.Handler())
	opsServer := &http.Server{
		Addr:              cfg.OpsAddress,
		Handler:           ops,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("facade listening", "addr", cfg.ListenAddress, "network", cfg.NetworkID, "engine", cfg.EngineAccount)
		errCh <- facade.ListenAndServe()
	}()
	go func() {
		logger.Info("ops listening", "addr", cfg.OpsAddress)
		errCh <- opsServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
		}
	}

	snapCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = facade.Shutdown(ctx)
	_ = opsServer.Shutdown(ctx)
}

// snapshotLoop periodically archives the hosted contract state keyed by the
// block height at which the scan started.
func snapshotLoop(ctx context.Context, bridge *engine.Engine, snapshots *storage.SnapshotStore, logger *slog.Logger) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		height, err := bridge.BlockHeight(ctx)
		if err != nil {
			logger.Warn("snapshot skipped: block height unavailable", "err", err)
			continue
		}
		state, err := bridge.GetStorage(ctx)
		if err != nil {
			logger.Warn("snapshot skipped: state scan failed", "height", height, "err", err)
			continue
		}
		if err := snapshots.Put(height, state); err != nil {
			logger.Error("failed to persist snapshot", "height", height, "err", err)
			continue
		}
		logger.Info("snapshot archived", "height", height, "accounts", len(state))
	}
}

// buildKeyStore composes the merged key sources: a writable in-memory head
// plus the on-disk credentials directory when configured.
func buildKeyStore(cfg *config.Config) *keystore.Merge {
	sources := []keystore.Store{keystore.NewMemoryStore(cfg.NetworkID)}
	if strings.TrimSpace(cfg.KeyDir) != "" {
		sources = append(sources, keystore.NewDirStore(cfg.KeyDir, cfg.NetworkID))
	}
	return keystore.NewMerge(sources...)
}
