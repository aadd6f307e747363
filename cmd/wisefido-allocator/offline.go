package main

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-allocator/internal/allocator"
	"wisefido-allocator/internal/config"
	"wisefido-allocator/internal/repository"
	"wisefido-allocator/internal/scorer"
	"wisefido-allocator/internal/service"
	"wisefido-allocator/internal/store"

	"go.uber.org/zap"
)

// loadOffline 加载数据来源到内存仓库，返回不带任何 sink 的分配器（结果不回写）
func loadOffline(ctx context.Context, cfg *config.Config, log *zap.Logger) (*allocator.Allocator, func(), error) {
	var db *sql.DB
	if cfg.SeedSource == "postgres" {
		d, err := repository.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db = d
	}
	cleanup := func() {
		if db != nil {
			_ = db.Close()
		}
	}

	src, err := service.NewBoardSource(cfg, db, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	st := store.NewMemoryStore(cfg.Allocator.MaxNotifications)
	if err := service.Seed(ctx, src, st); err != nil {
		cleanup()
		return nil, nil, err
	}

	sc := scorer.New(scorer.WithKeywords(cfg.Scoring.CriticalKeywords, cfg.Scoring.UrgentKeywords))
	a := allocator.New(st, sc, log,
		allocator.WithTenant(cfg.TenantID),
		allocator.WithThreshold(cfg.Allocator.UtilizationThreshold),
	)
	return a, cleanup, nil
}
