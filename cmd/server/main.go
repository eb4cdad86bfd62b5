package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/config"
	"github.com/napa14-design/infrahub/internal/datemath"
	"github.com/napa14-design/infrahub/internal/engine"
	"github.com/napa14-design/infrahub/internal/model"
	"github.com/napa14-design/infrahub/internal/notifier"
	"github.com/napa14-design/infrahub/internal/rules"
	"github.com/napa14-design/infrahub/internal/storage"
)

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load("./config")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect to NATS with more options
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			// sub is nil for async errors not tied to a subscription
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS connection error",
				zap.String("subject", subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URLs[0], opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	// Create JetStream context
	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Open the record store
	store, err := storage.Open(logger, cfg.Storage.Path)
	if err != nil {
		logger.Fatal("Failed to open record store", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rule store, seeded with configured defaults on first run
	ruleStore, err := rules.NewStore(logger, store.DB())
	if err != nil {
		logger.Fatal("Failed to create rule store", zap.Error(err))
	}
	if err := ruleStore.Seed(ctx, cfg.RuleDefaults()); err != nil {
		logger.Fatal("Failed to seed rule store", zap.Error(err))
	}

	// Push notifier for critical alerts
	pushNotifier, err := notifier.NewPushNotifier(logger, js)
	if err != nil {
		logger.Fatal("Failed to create notifier", zap.Error(err))
	}

	eng := engine.New(logger, store, ruleStore, pushNotifier, datemath.SystemClock{})

	runSweep := func(scope model.Scope) {
		alerts, err := eng.RunComplianceSweep(ctx, scope)
		if err != nil {
			logger.Warn("Compliance sweep finished with write failures",
				zap.Int("alerts", len(alerts)),
				zap.Error(err))
			return
		}
		logger.Info("Compliance sweep completed",
			zap.Int("alerts", len(alerts)))
	}

	// Periodic sweep on the configured cron schedule
	cl := &cronLogger{logger: logger.Named("cron")}
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl)))
	if _, err := c.AddFunc(cfg.Sweep.Schedule, func() { runSweep(model.AllSites) }); err != nil {
		logger.Fatal("Invalid sweep schedule", zap.Error(err))
	}
	c.Start()

	// On-demand sweeps: publish a site id (or empty for all sites) to
	// sweep.run after a mutation to refresh alerts immediately
	sweepSub, err := nc.Subscribe("sweep.run", func(msg *nats.Msg) {
		runSweep(model.Scope{SiteID: string(msg.Data)})
	})
	if err != nil {
		logger.Fatal("Failed to subscribe to sweep.run", zap.Error(err))
	}
	defer sweepSub.Unsubscribe()

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Initial pass so a fresh start reflects current compliance state
	runSweep(model.AllSites)

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown: let an in-flight sweep finish
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		logger.Warn("Shutdown timeout reached, sweep may not have completed")
	}

	logger.Info("Server shutting down gracefully")
}
