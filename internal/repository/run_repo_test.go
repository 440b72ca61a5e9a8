package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"EventSync/internal/model"

	"github.com/google/uuid"
)

func TestAcquireRunExclusive(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db, time.Hour)
	ctx := context.Background()

	run, err := repo.AcquireRun(ctx)
	if err != nil {
		t.Fatalf("首次AcquireRun失败: %v", err)
	}
	if run.Status != model.RunStatusRunning {
		t.Fatalf("status = %q, want running", run.Status)
	}

	// 锁被持有：第二次获取立即被拒
	if _, err := repo.AcquireRun(ctx); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}

	// 完成后可再次获取
	if err := repo.CompleteRun(ctx, run.ID, 1, 1, 0, 0, 0, []byte("{}")); err != nil {
		t.Fatalf("CompleteRun失败: %v", err)
	}
	if _, err := repo.AcquireRun(ctx); err != nil {
		t.Fatalf("完成后AcquireRun失败: %v", err)
	}
}

func TestAcquireRunOverridesStaleLock(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db, time.Hour)
	ctx := context.Background()

	// 模拟崩溃残留：2小时前开始、仍为running的行
	stale := &model.IngestRun{
		RunUUID:   uuid.NewString(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().Add(-2 * time.Hour),
	}
	if err := db.Create(stale).Error; err != nil {
		t.Fatalf("预置过期run失败: %v", err)
	}

	run, err := repo.AcquireRun(ctx)
	if err != nil {
		t.Fatalf("过期锁应被顶替，AcquireRun失败: %v", err)
	}
	if run.ID == stale.ID {
		t.Fatal("应创建新run而不是复用过期行")
	}

	var old model.IngestRun
	if err := db.Where("id = ?", stale.ID).First(&old).Error; err != nil {
		t.Fatalf("查询过期run失败: %v", err)
	}
	if old.Status != model.RunStatusFailed {
		t.Errorf("过期run状态 = %q, want failed", old.Status)
	}
}

func TestRunningRowUniqueIndex(t *testing.T) {
	db := newTestDB(t)

	// 并发触发恰好都通过检查时，数据库层面仍只允许一条running行
	first := &model.IngestRun{RunUUID: uuid.NewString(), Status: model.RunStatusRunning, StartedAt: time.Now()}
	if err := db.Create(first).Error; err != nil {
		t.Fatalf("首条running入库失败: %v", err)
	}
	second := &model.IngestRun{RunUUID: uuid.NewString(), Status: model.RunStatusRunning, StartedAt: time.Now()}
	err := db.Create(second).Error
	if err == nil {
		t.Fatal("第二条running应触发唯一索引冲突")
	}
	if !isUniqueViolation(err) {
		t.Fatalf("应识别为唯一约束冲突: %v", err)
	}

	// 终态行不受该索引约束，可以任意多条
	for i, status := range []string{model.RunStatusCompleted, model.RunStatusFailed, model.RunStatusFailed} {
		run := &model.IngestRun{RunUUID: uuid.NewString(), Status: status, StartedAt: time.Now().Add(time.Duration(i) * time.Minute)}
		if err := db.Create(run).Error; err != nil {
			t.Fatalf("终态行不应受唯一索引约束: %v", err)
		}
	}
}

func TestFailRun(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db, time.Hour)
	ctx := context.Background()

	run, err := repo.AcquireRun(ctx)
	if err != nil {
		t.Fatalf("AcquireRun失败: %v", err)
	}
	if err := repo.FailRun(ctx, run.ID, "清扫归档失败: boom"); err != nil {
		t.Fatalf("FailRun失败: %v", err)
	}

	var got model.IngestRun
	db.Where("id = ?", run.ID).First(&got)
	if got.Status != model.RunStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorDetail == "" || got.FinishedAt == nil {
		t.Errorf("失败run应有error_detail与finished_at")
	}

	// 终态后锁已释放
	if _, err := repo.AcquireRun(ctx); err != nil {
		t.Fatalf("失败后AcquireRun失败: %v", err)
	}
}

func TestListRecentRuns(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run, err := repo.AcquireRun(ctx)
		if err != nil {
			t.Fatalf("AcquireRun失败: %v", err)
		}
		if err := repo.CompleteRun(ctx, run.ID, i, i, 0, 0, 0, []byte("{}")); err != nil {
			t.Fatalf("CompleteRun失败: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := repo.ListRecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecentRuns失败: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if runs[0].StartedAt.Before(runs[1].StartedAt) {
		t.Error("应按started_at倒序")
	}
}
