package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"wisefido-allocator/internal/allocator"
	"wisefido-allocator/internal/cache"
	"wisefido-allocator/internal/client"
	"wisefido-allocator/internal/config"
	"wisefido-allocator/internal/events"
	"wisefido-allocator/internal/httpapi"
	"wisefido-allocator/internal/metrics"
	"wisefido-allocator/internal/mqtt"
	"wisefido-allocator/internal/repository"
	"wisefido-allocator/internal/scheduler"
	"wisefido-allocator/internal/scorer"
	"wisefido-allocator/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AllocatorService 急诊资源分配服务
type AllocatorService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	boardCache  *cache.BoardCache
	audit       *repository.AssignmentEventsRepository

	store       *store.MemoryStore
	metrics     *metrics.Metrics
	dispatcher  *events.Dispatcher
	allocator   *allocator.Allocator
	reallocator *scheduler.Reallocator
	router      *httpapi.Router
	server      *Server

	cancel context.CancelFunc
	errCh  chan error
	wg     sync.WaitGroup
}

// NewAllocatorService 创建分配服务：连接外部依赖、加载初始数据、组装事件 sink
// Redis / MQTT 连接失败时降级运行（只记录警告），数据库和后端按数据来源要求连接
func NewAllocatorService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AllocatorService, error) {
	s := &AllocatorService{
		config: cfg,
		logger: logger,
		errCh:  make(chan error, 1),
	}

	// 初始化数据库（仅 postgres 数据来源）
	if cfg.SeedSource == "postgres" {
		db, err := repository.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.audit = repository.NewAssignmentEventsRepository(db, logger)
	}

	// 初始化Redis
	if cfg.Redis.Enabled {
		redisClient := cache.NewRedisClient(&cfg.Redis)
		if err := cache.Ping(ctx, redisClient); err != nil {
			logger.Warn("Redis unavailable, board cache disabled", zap.Error(err))
			_ = redisClient.Close()
		} else {
			s.redisClient = redisClient
			s.boardCache = cache.NewBoardCache(redisClient, cfg.Cache, cfg.TenantID, logger)
		}
	}

	// 初始化MQTT
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT unavailable, push notifications disabled", zap.Error(err))
		} else {
			s.mqttClient = mqttClient
		}
	}

	// 加载初始数据
	src, err := NewBoardSource(cfg, s.db, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.store = store.NewMemoryStore(cfg.Allocator.MaxNotifications)
	if err := Seed(ctx, src, s.store); err != nil {
		s.close()
		return nil, err
	}

	s.metrics = metrics.New()
	s.dispatcher = events.NewDispatcher(cfg.Allocator.EventQueueSize, logger, s.sinks()...)
	s.dispatcher.SetObserver(s.metrics)
	s.metrics.RegisterQueueLength(s.dispatcher.Len)

	sc := scorer.New(scorer.WithKeywords(cfg.Scoring.CriticalKeywords, cfg.Scoring.UrgentKeywords))
	s.allocator = allocator.New(s.store, sc, logger,
		allocator.WithEmitter(s.dispatcher),
		allocator.WithRecorder(s.metrics),
		allocator.WithTenant(cfg.TenantID),
		allocator.WithThreshold(cfg.Allocator.UtilizationThreshold),
	)
	s.reallocator = scheduler.New(s.allocator, cfg.Allocator.Interval, logger)

	s.router = httpapi.NewRouter(logger)
	s.router.RegisterHealthRoutes()
	allocationHandler := httpapi.NewAllocationHandler(s.allocator, s.reallocator, logger)
	if s.boardCache != nil {
		allocationHandler.SetBoardCache(s.boardCache)
	}
	s.router.RegisterAllocationRoutes(allocationHandler)
	if s.audit != nil {
		s.router.RegisterAssignmentRoutes(httpapi.NewAssignmentHandler(s.audit, cfg.TenantID, logger))
	}
	s.router.HandleHandler("/metrics", s.metrics.Handler())
	s.server = NewServer(cfg.HTTPAddr, s.router, logger)

	return s, nil
}

// sinks 按已连接的依赖组装事件 sink
func (s *AllocatorService) sinks() []events.Sink {
	var sinks []events.Sink
	if s.redisClient != nil {
		sinks = append(sinks,
			s.boardCache,
			cache.NewStreamPublisher(s.redisClient, s.config.Cache),
		)
	}
	if s.db != nil {
		sinks = append(sinks,
			s.audit,
			repository.NewBoardRepository(s.db, s.config.TenantID, s.logger),
		)
	}
	if s.mqttClient != nil {
		sinks = append(sinks, mqtt.NewNotifier(s.mqttClient, s.config.MQTT.TopicPrefix, s.config.MQTT.QoS))
	}
	if s.config.Backend.WriteBack && s.config.Backend.BaseURL != "" {
		sinks = append(sinks, client.NewBackendClient(s.config.Backend.BaseURL, s.config.Backend.Timeout, s.config.TenantID, s.logger))
	}
	return sinks
}

// Handler HTTP 路由（测试使用）
func (s *AllocatorService) Handler() http.Handler {
	return s.router
}

// Allocator 分配器
func (s *AllocatorService) Allocator() *allocator.Allocator {
	return s.allocator
}

// Addr HTTP 实际监听地址
func (s *AllocatorService) Addr() string {
	return s.server.Addr()
}

// Errors HTTP 服务异常退出时返回错误
func (s *AllocatorService) Errors() <-chan error {
	return s.errCh
}

// Start 启动事件分发、周期性重新分配和 HTTP 服务；serveHTTP 为 false 时不监听端口
func (s *AllocatorService) Start(ctx context.Context, serveHTTP bool) error {
	s.logger.Info("Starting allocator service components",
		zap.String("seed_source", s.config.SeedSource),
		zap.String("tenant_id", s.config.TenantID),
	)

	ctx, s.cancel = context.WithCancel(ctx)
	s.dispatcher.Start(ctx)

	// 初始看板
	board, err := s.allocator.Board(ctx)
	if err != nil {
		return fmt.Errorf("failed to build initial board: %w", err)
	}
	s.dispatcher.Emit(events.Event{Board: board})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.reallocator.Start(ctx); err != nil {
			s.logger.Error("Reallocator exited", zap.Error(err))
		}
	}()

	if serveHTTP {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server failed", zap.Error(err))
				select {
				case s.errCh <- err:
				default:
				}
			}
		}()
	}

	s.logger.Info("Allocator service started successfully")
	return nil
}

// Stop 停止服务：先停止入口，再排空事件队列，最后关闭连接
func (s *AllocatorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping allocator service")

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.reallocator.Stop()
	s.wg.Wait()
	s.dispatcher.Stop()
	s.close()

	s.logger.Info("Allocator service stopped")
	return nil
}

func (s *AllocatorService) close() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	// 关闭数据库
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}
}
