package service

import (
	"context"
	"strings"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// VenueResolver 场馆解析：匹配或创建场馆，坐标缺失时做地理编码回填。
// 地理编码失败不致命，事件照常入库（仅该事件地图展示降级）。
type VenueResolver struct {
	venueRepo repository.VenueRepository
	geocoder  interfaces.Geocoder // 可为nil（未配置时跳过编码）
	logger    *logrus.Logger
}

func NewVenueResolver(venueRepo repository.VenueRepository, geocoder interfaces.Geocoder, logger *logrus.Logger) *VenueResolver {
	return &VenueResolver{
		venueRepo: venueRepo,
		geocoder:  geocoder,
		logger:    logger,
	}
}

// Resolve 返回事件应关联的venue_id；事件无场馆信息时返回nil
func (v *VenueResolver) Resolve(ctx context.Context, ce *model.CanonicalEvent) (*uint64, error) {
	if ce.VenueName == "" {
		return nil, nil
	}

	venue, err := v.venueRepo.FindOrCreate(ctx, ce.VenueName, ce.VenueCity, ce.VenueAddress, ce.VenueLat, ce.VenueLng)
	if err != nil {
		return nil, err
	}

	// 坐标缺失才编码；同名查询由编码客户端缓存，避免重复外呼
	if (venue.Lat == nil || venue.Lng == nil) && v.geocoder != nil {
		query := buildGeocodeQuery(venue)
		result, err := v.geocoder.Geocode(ctx, query)
		if err != nil {
			v.logger.WithError(err).WithField("venue", venue.Name).Warn("地理编码失败，场馆暂无坐标")
		} else if result != nil {
			if err := v.venueRepo.UpdateCoords(ctx, venue.ID, result.Lat, result.Lng); err != nil {
				v.logger.WithError(err).WithField("venue_id", venue.ID).Warn("回填坐标失败")
			} else {
				venue.Lat = &result.Lat
				venue.Lng = &result.Lng
			}
		}
	}

	return &venue.ID, nil
}

func buildGeocodeQuery(venue *model.Venue) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{venue.Name, venue.Address, venue.City} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}
