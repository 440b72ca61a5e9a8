package api

import (
	"net/http"
	"strconv"

	"EventSync/internal/config"
	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventHandler 提供给前端/运维的只读查询接口（与采集写同一张表）
type EventHandler struct {
	eventRepo repository.EventRepository
	venueRepo repository.VenueRepository
	runRepo   repository.RunRepository
	logger    *logrus.Logger
}

func NewEventHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *EventHandler {
	return &EventHandler{
		eventRepo: repository.NewEventRepository(db),
		venueRepo: repository.NewVenueRepository(db),
		runRepo:   repository.NewRunRepository(db, cfg.Ingest.StaleLockAfter()),
		logger:    logger,
	}
}

// ListEvents 事件列表接口
// GET /api/events?city=Amsterdam&category=Music&status=published&page=1&page_size=20
func (h *EventHandler) ListEvents(c *gin.Context) {
	filter := repository.EventFilter{
		City:     c.Query("city"),
		Category: c.Query("category"),
		Status:   c.DefaultQuery("status", model.EventStatusPublished),
		Source:   c.Query("source"),
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, total, err := h.eventRepo.ListEvents(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("ListEvents failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"events":    list,
	})
}

// GetEventDetail 事件详情
// GET /api/events/:slug
func (h *EventHandler) GetEventDetail(c *gin.Context) {
	slug := c.Param("slug")
	if slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug is required"})
		return
	}

	event, err := h.eventRepo.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		h.logger.WithError(err).Error("GetEventDetail failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, event)
}

// GetVenueDetail 场馆详情
// GET /api/venues/:slug
func (h *EventHandler) GetVenueDetail(c *gin.Context) {
	slug := c.Param("slug")
	venue, err := h.venueRepo.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "venue not found"})
			return
		}
		h.logger.WithError(err).Error("GetVenueDetail failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, venue)
}

// ListRuns 最近运行记录（运维可见性）
// GET /api/ingest/runs?limit=20
func (h *EventHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.runRepo.ListRecentRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("ListRuns failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
