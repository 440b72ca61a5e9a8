package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"EventSync/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrRunInProgress 已有未过期的running任务，当前触发被拒绝
var ErrRunInProgress = errors.New("采集任务已在运行中")

// RunRepository 采集任务运行记录仓储（running行兼作互斥锁）
type RunRepository interface {
	// AcquireRun 获取运行锁并创建新的running记录；已有未过期running记录时返回ErrRunInProgress
	AcquireRun(ctx context.Context) (*model.IngestRun, error)
	// CompleteRun 任务正常结束，写入聚合统计
	CompleteRun(ctx context.Context, runID uint64, total, created, updated, errCount, archived int, sourceResults datatypes.JSON) error
	// FailRun 任务异常结束
	FailRun(ctx context.Context, runID uint64, detail string) error
	// ListRecentRuns 最近的运行记录（运维可见性）
	ListRecentRuns(ctx context.Context, limit int) ([]*model.IngestRun, error)
}

type runRepository struct {
	db         *gorm.DB
	staleAfter time.Duration // 超过该时长的running行视为中断任务
}

func NewRunRepository(db *gorm.DB, staleAfter time.Duration) RunRepository {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &runRepository{db: db, staleAfter: staleAfter}
}

func (r *runRepository) AcquireRun(ctx context.Context) (*model.IngestRun, error) {
	now := time.Now()
	run := &model.IngestRun{
		RunUUID:   uuid.NewString(),
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 检查是否已有未过期的running记录
		var existing model.IngestRun
		err := tx.Where("status = ? AND started_at > ?", model.RunStatusRunning, now.Add(-r.staleAfter)).
			First(&existing).Error
		if err == nil {
			return ErrRunInProgress
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询运行锁失败: %w", err)
		}

		// 2. 过期的running行判定为中断，置为failed，避免永久死锁
		if err := tx.Model(&model.IngestRun{}).
			Where("status = ? AND started_at <= ?", model.RunStatusRunning, now.Add(-r.staleAfter)).
			Updates(map[string]interface{}{
				"status":       model.RunStatusFailed,
				"error_detail": "运行超时，判定为中断任务",
				"finished_at":  now,
			}).Error; err != nil {
			return fmt.Errorf("清理过期运行锁失败: %w", err)
		}

		// 3. 创建新的running记录（即获取锁）。并发触发恰好同时通过上面的检查时，
		// running行的部分唯一索引会拦下后到者
		if err := tx.Create(run).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrRunInProgress
			}
			return fmt.Errorf("创建运行记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// isUniqueViolation 唯一约束冲突判定（postgres 23505 / sqlite UNIQUE constraint）
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

func (r *runRepository) CompleteRun(ctx context.Context, runID uint64, total, created, updated, errCount, archived int, sourceResults datatypes.JSON) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.IngestRun{}).
		Where("id = ? AND status = ?", runID, model.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":         model.RunStatusCompleted,
			"finished_at":    now,
			"total":          total,
			"created":        created,
			"updated":        updated,
			"errors":         errCount,
			"archived":       archived,
			"source_results": sourceResults,
		}).Error
}

func (r *runRepository) FailRun(ctx context.Context, runID uint64, detail string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.IngestRun{}).
		Where("id = ? AND status = ?", runID, model.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":       model.RunStatusFailed,
			"finished_at":  now,
			"error_detail": detail,
		}).Error
}

func (r *runRepository) ListRecentRuns(ctx context.Context, limit int) ([]*model.IngestRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []*model.IngestRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
