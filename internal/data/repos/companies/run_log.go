package companies

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

type RunLogRepo interface {
	Create(dbc dbctx.Context, row *types.ClassificationRunLog) error
	ListRecent(dbc dbctx.Context, limit int) ([]*types.ClassificationRunLog, error)
}

type runLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunLogRepo(db *gorm.DB, baseLog *logger.Logger) RunLogRepo {
	return &runLogRepo{
		db:  db,
		log: baseLog.With("repo", "RunLogRepo"),
	}
}

func (r *runLogRepo) Create(dbc dbctx.Context, row *types.ClassificationRunLog) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(row).Error
}

func (r *runLogRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.ClassificationRunLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var out []*types.ClassificationRunLog
	if err := transaction.WithContext(dbc.Ctx).
		Order("start_time DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type ActorBatchRepo interface {
	Create(dbc dbctx.Context, row *types.ActorRunBatch) error
	ListUnprocessed(dbc dbctx.Context) ([]*types.ActorRunBatch, error)
	MarkProcessed(dbc dbctx.Context, id uuid.UUID) error
}

type actorBatchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActorBatchRepo(db *gorm.DB, baseLog *logger.Logger) ActorBatchRepo {
	return &actorBatchRepo{
		db:  db,
		log: baseLog.With("repo", "ActorBatchRepo"),
	}
}

func (r *actorBatchRepo) Create(dbc dbctx.Context, row *types.ActorRunBatch) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(row).Error
}

func (r *actorBatchRepo) ListUnprocessed(dbc dbctx.Context) ([]*types.ActorRunBatch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ActorRunBatch
	if err := transaction.WithContext(dbc.Ctx).
		Where("processed = ?", false).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *actorBatchRepo) MarkProcessed(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.ActorRunBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": now,
		}).Error
}
