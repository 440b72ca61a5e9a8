package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"EventSync/internal/model"
	"EventSync/internal/normalizer"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrClaimTransition 认领状态流转不合法（仅允许 unclaimed→pending→{verified,rejected}）
var ErrClaimTransition = errors.New("认领状态流转不合法")

// VenueRepository 场馆仓储：按名称+城市归一匹配、坐标回填、认领流转
type VenueRepository interface {
	// FindOrCreate 按归一化的名称+城市匹配；不存在则创建
	FindOrCreate(ctx context.Context, name, city, address string, lat, lng *float64) (*model.Venue, error)
	// UpdateCoords 回填坐标（地理编码成功后）
	UpdateCoords(ctx context.Context, venueID uint64, lat, lng float64) error
	// GetBySlug 按slug获取场馆
	GetBySlug(ctx context.Context, slug string) (*model.Venue, error)
	// SubmitClaim unclaimed → pending
	SubmitClaim(ctx context.Context, venueID, userID uint64) error
	// ReviewClaim pending → verified / rejected
	ReviewClaim(ctx context.Context, venueID uint64, approve bool) error
}

type venueRepository struct {
	db *gorm.DB
}

func NewVenueRepository(db *gorm.DB) VenueRepository {
	return &venueRepository{db: db}
}

func (r *venueRepository) FindOrCreate(ctx context.Context, name, city, address string, lat, lng *float64) (*model.Venue, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("场馆名称不能为空")
	}
	city = strings.TrimSpace(city)

	// 1. 归一化匹配已有场馆（名称+城市，大小写不敏感）
	var venue model.Venue
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = ? AND LOWER(city) = ?", strings.ToLower(name), strings.ToLower(city)).
		First(&venue).Error
	if err == nil {
		return &venue, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询场馆失败: %w", err)
	}

	// 2. 创建新场馆。slug带城市后缀降低撞名概率；撞slug时复用已有行
	slug := normalizer.Slugify(name)
	if city != "" {
		slug = normalizer.Slugify(name + " " + city)
	}
	venue = model.Venue{
		Name:        name,
		Slug:        slug,
		City:        city,
		Address:     strings.TrimSpace(address),
		Lat:         lat,
		Lng:         lng,
		ClaimStatus: model.ClaimStatusUnclaimed,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&venue).Error; err != nil {
		return nil, fmt.Errorf("创建场馆失败: %w, name: %s", err, name)
	}
	if venue.ID == 0 {
		// slug冲突未插入，取回已有行
		if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&venue).Error; err != nil {
			return nil, fmt.Errorf("取回场馆失败: %w, slug: %s", err, slug)
		}
	}
	return &venue, nil
}

func (r *venueRepository) UpdateCoords(ctx context.Context, venueID uint64, lat, lng float64) error {
	return r.db.WithContext(ctx).Model(&model.Venue{}).
		Where("id = ?", venueID).
		Updates(map[string]interface{}{"lat": lat, "lng": lng}).Error
}

func (r *venueRepository) GetBySlug(ctx context.Context, slug string) (*model.Venue, error) {
	var v model.Venue
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *venueRepository) SubmitClaim(ctx context.Context, venueID, userID uint64) error {
	// WHERE带当前状态做守卫，0行更新即流转不合法
	res := r.db.WithContext(ctx).Model(&model.Venue{}).
		Where("id = ? AND claim_status = ?", venueID, model.ClaimStatusUnclaimed).
		Updates(map[string]interface{}{
			"claim_status":       model.ClaimStatusPending,
			"claimed_by_user_id": userID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: venue_id=%d 当前不可认领", ErrClaimTransition, venueID)
	}
	return nil
}

func (r *venueRepository) ReviewClaim(ctx context.Context, venueID uint64, approve bool) error {
	target := model.ClaimStatusVerified
	if !approve {
		target = model.ClaimStatusRejected
	}
	res := r.db.WithContext(ctx).Model(&model.Venue{}).
		Where("id = ? AND claim_status = ?", venueID, model.ClaimStatusPending).
		Update("claim_status", target)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: venue_id=%d 无待审核认领", ErrClaimTransition, venueID)
	}
	return nil
}
