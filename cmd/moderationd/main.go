package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/tidemarket/moderation/internal/api"
	"github.com/tidemarket/moderation/internal/blobstore"
	"github.com/tidemarket/moderation/internal/classifier"
	"github.com/tidemarket/moderation/internal/cleanup"
	"github.com/tidemarket/moderation/internal/config"
	"github.com/tidemarket/moderation/internal/database"
	"github.com/tidemarket/moderation/internal/metrics"
	"github.com/tidemarket/moderation/internal/moderation"
	"github.com/tidemarket/moderation/internal/policy"
	"github.com/tidemarket/moderation/internal/refs"
	"github.com/tidemarket/moderation/internal/repository"
	"github.com/tidemarket/moderation/internal/scheduler"
	"github.com/tidemarket/moderation/internal/workerpool"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	store := repository.NewPostgresStore(pool)

	blobs, err := blobstore.New(cfg)
	if err != nil {
		log.Fatalf("init blob storage: %v", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		log.Fatalf("ensure bucket: %v", err)
	}

	var mdl classifier.Model
	if cfg.Enabled {
		mdl, err = classifier.LoadONNXModel(cfg.ModelPath)
		if err != nil {
			log.Fatalf("load classifier: %v", err)
		}
		defer mdl.Close()
	} else {
		log.Printf("moderation disabled: records auto-approve without classification")
	}
	pre := classifier.NewPreprocessor(cfg.InputWidth, cfg.InputHeight)
	pol := policy.New(cfg.AllowThreshold, cfg.ReviewThreshold)

	cleaner := cleanup.New(store, blobs, refs.NewPostgresSet(pool), cfg.CleanupBatch)
	svc := moderation.NewService(store, blobs, pre, mdl, pol, cleaner, cfg.Enabled, cfg.ProcessTimeout)

	workers := workerpool.New(cfg.PoolSize, cfg.QueueCapacity, func() {
		metrics.PoolInlineRuns.Inc()
	})
	sched := scheduler.New(store, svc, cleaner, workers, scheduler.Intervals{
		PendingPoll: cfg.PendingPollEvery,
		FailedPoll:  cfg.FailedPollEvery,
		Cleanup:     cfg.CleanupEvery,
		StaleAfter:  cfg.StaleAfter,
		ClaimBatch:  cfg.ClaimBatch,
		MaxRetries:  cfg.MaxRetries,
	})
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}

	server := api.New(cfg.Address, store, svc)
	if err := server.Run(ctx); err != nil {
		log.Printf("api stopped: %v", err)
	}
	sched.Wait()
}
