package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/jobs"
)

const auditJobType = "audit_log"

type auditStore interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	ListByEntity(ctx context.Context, entityType, entityCode string, limit int) ([]models.AuditLog, error)
}

// AuditEntry describes one mutation to record.
type AuditEntry struct {
	Action     string
	Actor      string
	EntityType string
	EntityCode string
	Payload    interface{}
}

// AuditService writes the audit trail in the background through a job queue.
type AuditService struct {
	repo   auditStore
	queue  *jobs.Queue
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditService constructs an AuditService and its worker queue.
func NewAuditService(repo auditStore, cfg jobs.QueueConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	s := &AuditService{repo: repo, logger: logger, now: time.Now}
	s.queue = jobs.NewQueue("audit", s.handle, cfg)
	return s
}

// Start launches the audit workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains pending entries and stops the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record queues an entry. When the queue is not running the entry is written
// inline so nothing is lost.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		s.logger.Warn("audit payload not serialisable", zap.String("action", entry.Action), zap.Error(err))
		payload = []byte("null")
	}
	log := &models.AuditLog{
		ID:         uuid.NewString(),
		Action:     entry.Action,
		Actor:      entry.Actor,
		EntityType: entry.EntityType,
		EntityCode: entry.EntityCode,
		Payload:    payload,
		CreatedAt:  s.now().UTC(),
	}

	err = s.queue.Enqueue(jobs.Job{ID: log.ID, Type: auditJobType, Payload: log})
	if err == nil {
		return
	}
	if !errors.Is(err, jobs.ErrQueueClosed) {
		s.logger.Warn("audit enqueue failed, writing inline", zap.String("action", entry.Action), zap.Error(err))
	}
	if err := s.repo.Insert(context.WithoutCancel(ctx), log); err != nil {
		s.logger.Error("audit write failed", zap.String("action", entry.Action), zap.String("entity", entry.EntityCode), zap.Error(err))
	}
}

// History returns the most recent audit entries for an entity.
func (s *AuditService) History(ctx context.Context, entityType, entityCode string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > models.MaxPageSize {
		limit = models.DefaultPageSize
	}
	logs, err := s.repo.ListByEntity(ctx, entityType, entityCode, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit history")
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return s.repo.Insert(ctx, log)
}
