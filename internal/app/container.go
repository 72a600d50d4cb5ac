// Package app wires configuration, storage and services into a runnable
// assignment engine shared by the API server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/repository"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/service"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/cache"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/config"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/database"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/jobs"
)

const cacheNamespace = "thesis"

// Container holds the constructed services.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics      *service.MetricsService
	Auth         *service.AuthService
	Audit        *service.AuditService
	Views        *service.DefenseQueryService
	Scheduler    *service.AssignmentService
	AutoAssign   *service.AutoAssignService
	Committees   *service.CommitteeService
	Availability *service.AvailabilityService
	Export       *service.ExportService
	AutoAssigner *service.AutoAssignJob
}

// Build connects to Postgres (and Redis when caching is enabled) and
// constructs every service.
func Build(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	c := &Container{Config: cfg, Logger: logger, DB: db, Metrics: service.NewMetricsService()}

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, read-model cache disabled", zap.Error(err))
		} else {
			c.Redis = client
			cacheRepo = repository.NewCacheRepository(client, cacheNamespace)
		}
	}

	chair, err := service.NewChairPolicy(cfg.Defense.ChairPolicy, cfg.Defense.ChairMinRank)
	if err != nil {
		c.Close()
		return nil, err
	}

	topics := repository.NewTopicRepository(db)
	committees := repository.NewCommitteeRepository(db)
	members := repository.NewCommitteeMemberRepository(db)
	assignments := repository.NewDefenseAssignmentRepository(db)
	lecturers := repository.NewLecturerRepository(db)
	tx := repository.NewTxRunner(db)
	codes := repository.NewCodeGenerator(db)

	c.Auth = service.NewAuthService(logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})
	c.Audit = service.NewAuditService(repository.NewAuditRepository(db), jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		MaxRetries: cfg.Audit.MaxRetries,
		Logger:     logger,
	}, logger)

	cacheSvc := service.NewCacheService(cacheRepo, c.Metrics, cfg.Cache.TTL, logger, cacheRepo != nil)
	c.Views = service.NewDefenseQueryService(service.DefenseQueryServiceParams{
		Committees:  committees,
		Members:     members,
		Assignments: assignments,
		Lecturers:   lecturers,
		Topics:      topics,
		Cache:       cacheSvc,
		CacheTTL:    cfg.Cache.TTL,
		Logger:      logger,
	})

	params := service.AssignmentServiceParams{
		Topics:       topics,
		Committees:   committees,
		Members:      members,
		Assignments:  assignments,
		Lecturers:    lecturers,
		Tx:           tx,
		Codes:        codes,
		Audit:        c.Audit,
		Views:        c.Views,
		Metrics:      c.Metrics,
		Logger:       logger,
		SlotDuration: cfg.Defense.SlotDuration,
	}
	c.Scheduler = service.NewAssignmentService(params)
	c.AutoAssign = service.NewAutoAssignService(params, service.AutoAssignConfig{
		TagPriority:   cfg.Defense.TagPriority,
		PerSessionCap: cfg.Defense.AutoAssignSessCap,
	})
	c.Committees = service.NewCommitteeService(service.CommitteeServiceParams{
		Committees:      committees,
		Members:         members,
		Assignments:     assignments,
		Lecturers:       lecturers,
		Tx:              tx,
		Codes:           codes,
		Chair:           chair,
		Scheduler:       c.Scheduler,
		Audit:           c.Audit,
		Views:           c.Views,
		Logger:          logger,
		DefaultCapacity: cfg.Defense.DefaultCapacity,
	})
	c.Availability = service.NewAvailabilityService(topics, committees, members, lecturers, chair, logger)
	c.Export = service.NewExportService(c.Views, cfg.Defense.SlotDuration, logger)

	if cfg.Defense.AutoAssignCron != "" {
		c.AutoAssigner = service.NewAutoAssignJob(c.AutoAssign, cfg.Defense.AutoAssignCron, models.AutoAssignOptions{}, c.Metrics, logger)
	}

	return c, nil
}

// Start launches the background workers.
func (c *Container) Start(ctx context.Context) error {
	c.Audit.Start(ctx)
	if c.AutoAssigner != nil {
		if err := c.AutoAssigner.Start(ctx); err != nil {
			return fmt.Errorf("schedule auto assign: %w", err)
		}
	}
	return nil
}

// Close stops workers and releases connections.
func (c *Container) Close() {
	if c.AutoAssigner != nil {
		c.AutoAssigner.Stop()
	}
	if c.Audit != nil {
		c.Audit.Stop()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("close postgres", zap.Error(err))
		}
	}
}
