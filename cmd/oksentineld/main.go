// Command oksentineld wires the identity registry, engine, inbox watcher,
// and sweep scheduler into one running process and drives a full
// encrypt/load/progressive-decrypt cycle on startup, mirroring
// original_source/demo_chunked.py's flow end to end. It takes no flags:
// a general CLI-parsing framework is out of scope (spec §1), everything
// here is read from environment variables through internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksentinel/engine/internal/config"
	"github.com/oksentinel/engine/internal/engine"
	"github.com/oksentinel/engine/internal/identity"
	"github.com/oksentinel/engine/internal/inbox"
	"github.com/oksentinel/engine/internal/obslog"
	"github.com/oksentinel/engine/internal/prefetch"
	"github.com/oksentinel/engine/internal/registry"
	"github.com/oksentinel/engine/internal/sweep"
	"github.com/oksentinel/engine/internal/telemetry"
)

func main() {
	bootLog := obslog.New("info")

	cfg, err := config.Load(os.Getenv("OKSENTINEL_CONFIG_FILE"))
	if err != nil {
		bootLog.WithError(err).Fatal("failed to load configuration")
	}

	log := obslog.New(cfg.LogLevel).WithField("component", "oksentineld")

	tel := telemetry.New("oksentineld")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("telemetry shutdown failed")
		}
	}()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create output directory")
	}

	eng := engine.New(engine.Config{
		OutputDir:              cfg.OutputDir,
		DefaultChunkSize:       cfg.DefaultChunkSizeBytes,
		DecryptedCacheCapacity: cfg.DecryptedCacheCapacity,
		EncryptedCacheCapacity: cfg.EncryptedCacheCapacity,
		Prefetch: prefetch.Config{
			ShortRangeWindow: cfg.ShortRangeWindow,
			LongRangeWindow:  cfg.LongRangeWindow,
			WorkerThreads:    cfg.WorkerThreads,
			QueueCapacity:    256,
		},
	}, engine.Metrics{}, log, tel.Tracer)

	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)
	defer func() {
		cancel()
		eng.Stop()
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", tel.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()

	reg := registry.New()

	watcher, err := inbox.New(log)
	if err != nil {
		log.WithError(err).Fatal("failed to start inbox watcher")
	}
	if err := watcher.Watch(cfg.OutputDir); err != nil {
		log.WithError(err).Fatal("failed to watch output directory")
	}
	go watcher.Run()
	go drainInbox(watcher, log)
	defer watcher.Close()

	scheduler := sweep.New(eng, log)
	if err := scheduler.Start(cfg.SweepIntervalCron); err != nil {
		log.WithError(err).Fatal("failed to start sweep scheduler")
	}
	defer scheduler.Stop()

	if err := runDemo(ctx, eng, reg, log); err != nil {
		log.WithError(err).Fatal("demo run failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	log.Info("oksentineld running, waiting for shutdown signal")
	<-sigCh
	log.Info("shutdown signal received, draining")
}

func drainInbox(w *inbox.Watcher, log *logrus.Entry) {
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			log.WithField("asset_dir", ev.AssetDir).Info("new asset became visible")
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			log.WithError(err).Warn("inbox watch error")
		}
	}
}

// runDemo reproduces the original SDK demo's encrypt/load/progressive
// decrypt/wrong-PIN/expiry checks as a one-shot startup smoke test.
func runDemo(ctx context.Context, eng *engine.Engine, reg *registry.Registry, log *logrus.Entry) error {
	alice, err := identity.CreateUser("alice", "1234")
	if err != nil {
		return fmt.Errorf("create alice: %w", err)
	}
	if err := reg.AddUser(alice); err != nil {
		return fmt.Errorf("register alice: %w", err)
	}

	bob, err := identity.CreateUser("bob", "5678")
	if err != nil {
		return fmt.Errorf("create bob: %w", err)
	}
	if err := reg.AddUser(bob); err != nil {
		return fmt.Errorf("register bob: %w", err)
	}

	bobPub, err := identity.ParsePublicKeyPEM(bob.PublicKeyPEM)
	if err != nil {
		return fmt.Errorf("parse bob's public key: %w", err)
	}

	payload := []byte("OkSentinel chunked encryption smoke test payload")

	assetPath, err := eng.EncryptBytesToAsset(
		ctx,
		payload,
		alice.SealedKey, "1234", alice.ID.String(),
		bobPub, bob.ID.String(),
		"smoke-test.txt",
		1.0,
		0,
	)
	if err != nil {
		return fmt.Errorf("encrypt asset: %w", err)
	}
	log.WithField("asset_path", assetPath).Info("asset encrypted")

	a, err := eng.LoadAsset(ctx, assetPath, bob.SealedKey, "5678", true)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}

	var decrypted []byte
	for i := uint32(0); i < eng.ChunkCount(a); i++ {
		chunk, err := eng.DecryptChunk(ctx, a, i)
		if err != nil {
			return fmt.Errorf("decrypt chunk %d: %w", i, err)
		}
		decrypted = append(decrypted, chunk...)
	}
	if string(decrypted) != string(payload) {
		return fmt.Errorf("decrypted payload does not match original")
	}
	log.WithField("bytes", len(decrypted)).Info("progressive decryption matched original payload")

	if _, err := eng.LoadAsset(ctx, assetPath, bob.SealedKey, "0000", true); err == nil {
		return fmt.Errorf("expected wrong-PIN load to fail")
	}
	log.Info("wrong PIN correctly rejected")

	expiredPath, err := eng.EncryptBytesToAsset(
		ctx,
		[]byte("already expired"),
		alice.SealedKey, "1234", alice.ID.String(),
		bobPub, bob.ID.String(),
		"expired.txt",
		-1.0,
		0,
	)
	if err != nil {
		return fmt.Errorf("encrypt expired asset: %w", err)
	}
	if _, err := eng.LoadAsset(ctx, expiredPath, bob.SealedKey, "5678", true); err == nil {
		return fmt.Errorf("expected expired asset load to fail")
	}
	log.Info("expiry enforcement working")

	return nil
}
