package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EventSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSlugConflict slug已被其他事件占用，本条被跳过（首条保留策略）
var ErrSlugConflict = errors.New("slug已存在，事件被跳过")

// EventFilter 事件列表筛选条件
type EventFilter struct {
	City     string // 城市
	Category string // 分类
	Status   string // 状态：draft/published/archived
	Source   string // 来源名称
}

// EventRepository 事件仓储：去重入库 + 清扫 + 查询
type EventRepository interface {
	// Upsert 去重入库。去重键优先 (source_name, source_external_id)，否则按slug。
	// 命中已有行时仅更新可变字段（行id不变，用户关联数据不受影响），返回created=false。
	Upsert(ctx context.Context, e *model.Event) (created bool, err error)
	// SweepStale 将本次运行未见到、且尚未自然过期的已发布采集事件置为archived
	SweepStale(ctx context.Context, runStartedAt, now time.Time) (int64, error)
	// ListEvents 按过滤条件分页查询事件
	ListEvents(ctx context.Context, filter EventFilter, page, pageSize int) ([]*model.Event, int64, error)
	// GetBySlug 按slug获取事件
	GetBySlug(ctx context.Context, slug string) (*model.Event, error)
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Upsert(ctx context.Context, e *model.Event) (bool, error) {
	now := time.Now()

	// 1. 按去重键查找已有行
	var existing model.Event
	var err error
	if e.SourceName != "" && e.SourceExternalID != "" {
		err = r.db.WithContext(ctx).
			Where("source_name = ? AND source_external_id = ?", e.SourceName, e.SourceExternalID).
			First(&existing).Error
	} else {
		err = r.db.WithContext(ctx).Where("slug = ?", e.Slug).First(&existing).Error
	}

	if err == nil {
		// 2. 命中：仅更新可变字段。slug与行id保持不变，saves/comments等按event_id关联的数据不受影响
		if err := r.db.WithContext(ctx).Model(&model.Event{}).
			Where("id = ?", existing.ID).
			Updates(r.mutableColumns(e, now)).Error; err != nil {
			return false, fmt.Errorf("更新事件失败: %w, slug: %s", err, existing.Slug)
		}
		e.ID = existing.ID
		e.Slug = existing.Slug
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("查询事件失败: %w", err)
	}

	// 3. 新建：采集事件直接published；slug冲突时首条保留（DO NOTHING），
	// 被丢弃的一条通过错误上抛，由调用方计入来源错误，不再静默吞掉
	if e.Status == "" {
		e.Status = model.EventStatusPublished
	}
	e.LastSeenAt = now
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(e)
	if res.Error != nil {
		return false, fmt.Errorf("保存事件失败: %w, slug: %s", res.Error, e.Slug)
	}
	if res.RowsAffected == 0 {
		return false, fmt.Errorf("%w: %s", ErrSlugConflict, e.Slug)
	}
	return true, nil
}

// mutableColumns 冲突更新时允许覆盖的列。用户产生的关联（收藏/评论等）按event_id挂接，不在此列。
func (r *eventRepository) mutableColumns(e *model.Event, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"title":        e.Title,
		"description":  e.Description,
		"start_at":     e.StartAt,
		"end_at":       e.EndAt,
		"city":         e.City,
		"address_text": e.AddressText,
		"venue_id":     e.VenueID,
		"category":     e.Category,
		"tags":         e.Tags,
		"price_min":    e.PriceMin,
		"price_max":    e.PriceMax,
		"currency":     e.Currency,
		"image_url":    e.ImageURL,
		"ticket_url":   e.TicketURL,
		"source_url":   e.SourceURL,
		"status":       model.EventStatusPublished, // 来源重新出现的归档事件恢复发布
		"last_seen_at": now,
	}
}

func (r *eventRepository) SweepStale(ctx context.Context, runStartedAt, now time.Time) (int64, error) {
	// 仅归档"来源已下架但还没自然过期"的事件；已过期的事件保持原状（过期是查询时谓词，不落库）
	res := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("status = ?", model.EventStatusPublished).
		Where("source_name <> ''").
		Where("last_seen_at < ?", runStartedAt).
		Where("(end_at IS NULL AND start_at > ?) OR (end_at IS NOT NULL AND end_at > ?)", now, now).
		Update("status", model.EventStatusArchived)
	if res.Error != nil {
		return 0, fmt.Errorf("清扫归档失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *eventRepository) ListEvents(ctx context.Context, filter EventFilter, page, pageSize int) ([]*model.Event, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.db.WithContext(ctx).Model(&model.Event{})
	if filter.City != "" {
		db = db.Where("city = ?", filter.City)
	}
	if filter.Category != "" {
		db = db.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Source != "" {
		db = db.Where("source_name = ?", filter.Source)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.Event
	if err := db.Order("start_at ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *eventRepository) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	var e model.Event
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}
