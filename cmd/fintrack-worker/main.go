package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"fintrack/internal/cli"
	applog "fintrack/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting fintrack-worker",
		"backend", cfg.DataBackend,
		"eval_interval", cfg.EvalInterval,
		"eval_concurrency", cfg.EvalConcurrency)

	res := cli.InitBackend(context.Background(), logger, cfg, false)
	b := res.Backend

	var wg sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		wg.Wait()
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", "error", err)
		}
	})

	// Catch up on requests missed while the worker was down
	if err := b.Worker.StartupSweep(ctx); err != nil {
		logger.Error("Startup sweep failed", "error", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Caches.Run(ctx, cfg.CategoryCacheTTL)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Worker.RunPeriodic(ctx, cfg.EvalInterval)
	}()

	if b.AMQP != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.AMQP.ConsumeEvaluationRequests(ctx, b.Worker.HandleRequest)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
				os.Exit(1)
			}
		}()
	} else {
		logger.Info("AMQP disabled, running periodic sweeps only")
	}

	cli.WaitForShutdown(ctx, done)
}
