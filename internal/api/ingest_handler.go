package api

import (
	"errors"
	"net/http"
	"time"

	"EventSync/internal/adapter"
	"EventSync/internal/config"
	"EventSync/internal/geocoder"
	"EventSync/internal/repository"
	"EventSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IngestHandler 采集触发接口（调度器/运维调用，共享密钥鉴权）
type IngestHandler struct {
	ingestService *service.IngestService
	cfg           *config.Config
	logger        *logrus.Logger
}

func NewIngestHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *IngestHandler {
	adapters := adapter.BuildEnabled(cfg, logger)
	geo := geocoder.NewClient(&cfg.Geocoder, logger)
	return &IngestHandler{
		ingestService: service.NewIngestService(db, logger, cfg, adapters, geo),
		cfg:           cfg,
		logger:        logger,
	}
}

// RunIngestion 触发一次完整采集
// @Summary 触发事件采集
// @Param X-Ingest-Secret header string false "共享密钥（也可用secret查询参数）"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /ingest/run [post]
func (h *IngestHandler) RunIngestion(c *gin.Context) {
	// 鉴权：header或query携带共享密钥
	secret := c.GetHeader("X-Ingest-Secret")
	if secret == "" {
		secret = c.Query("secret")
	}
	if h.cfg.Ingest.Secret == "" || secret != h.cfg.Ingest.Secret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "密钥校验失败"})
		return
	}

	start := time.Now()
	result, err := h.ingestService.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, repository.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   "ingestion already running",
			})
			return
		}
		h.logger.Errorf("采集运行失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":  false,
			"duration": time.Since(start).String(),
			"error":    err.Error(),
		})
		return
	}

	maxDetails := h.cfg.Ingest.MaxErrorDetails
	if maxDetails <= 0 {
		maxDetails = 10
	}
	details := result.ErrorDetails
	if len(details) > maxDetails {
		details = details[:maxDetails]
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"duration": time.Since(start).String(),
		"results": gin.H{
			"total":         result.Total,
			"created":       result.Created,
			"updated":       result.Updated,
			"errors":        result.Errors,
			"archived":      result.Archived,
			"errorDetails":  details,
			"sourceResults": result.SourceResults,
		},
	})
}
