package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"EventSync/internal/config"
	"EventSync/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取SQL DB失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.Venue{}, &model.Event{}, &model.IngestRun{}); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	return db
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newRouter(t *testing.T, db *gorm.DB, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	eventHandler := NewEventHandler(db, testLogger(), cfg)
	ingestHandler := NewIngestHandler(db, testLogger(), cfg)
	r.POST("/ingest/run", ingestHandler.RunIngestion)
	r.GET("/api/events", eventHandler.ListEvents)
	r.GET("/api/events/:slug", eventHandler.GetEventDetail)
	r.GET("/api/venues/:slug", eventHandler.GetVenueDetail)
	r.GET("/api/ingest/runs", eventHandler.ListRuns)
	return r
}

func seedEvent(t *testing.T, db *gorm.DB, slug, city, category, status string) {
	t.Helper()
	e := &model.Event{
		Title:      slug,
		Slug:       slug,
		StartAt:    time.Now().Add(48 * time.Hour),
		City:       city,
		Category:   category,
		Status:     status,
		LastSeenAt: time.Now(),
	}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("预置事件失败: %v", err)
	}
}

func doRequest(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListEventsFiltersAndDefaults(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{}
	seedEvent(t, db, "jazz-night", "Amsterdam", "Music", model.EventStatusPublished)
	seedEvent(t, db, "old-expo", "Amsterdam", "Art", model.EventStatusArchived)
	seedEvent(t, db, "utrecht-gig", "Utrecht", "Music", model.EventStatusPublished)
	r := newRouter(t, db, cfg)

	// 默认只返回published
	w := doRequest(r, http.MethodGet, "/api/events", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Total  int64         `json:"total"`
		Events []model.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if body.Total != 2 {
		t.Errorf("默认total = %d, want 2（排除archived）", body.Total)
	}

	// 城市过滤
	w = doRequest(r, http.MethodGet, "/api/events?city=Utrecht", nil)
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Total != 1 || body.Events[0].Slug != "utrecht-gig" {
		t.Errorf("城市过滤结果错误: total=%d", body.Total)
	}

	// 显式status
	w = doRequest(r, http.MethodGet, "/api/events?status=archived", nil)
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Total != 1 || body.Events[0].Slug != "old-expo" {
		t.Errorf("status过滤结果错误: total=%d", body.Total)
	}
}

func TestGetEventDetail(t *testing.T) {
	db := newTestDB(t)
	seedEvent(t, db, "jazz-night", "Amsterdam", "Music", model.EventStatusPublished)
	r := newRouter(t, db, &config.Config{})

	w := doRequest(r, http.MethodGet, "/api/events/jazz-night", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var e model.Event
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if e.Slug != "jazz-night" {
		t.Errorf("slug = %q", e.Slug)
	}

	w = doRequest(r, http.MethodGet, "/api/events/no-such-event", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("未知slug status = %d, want 404", w.Code)
	}
}

func TestRunIngestionAuth(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{Ingest: config.IngestConfig{Secret: "s3cret", StaleLockMinutes: 60}}
	r := newRouter(t, db, cfg)

	// 无密钥
	if w := doRequest(r, http.MethodPost, "/ingest/run", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("无密钥 status = %d, want 401", w.Code)
	}
	// 错误密钥
	if w := doRequest(r, http.MethodPost, "/ingest/run", map[string]string{"X-Ingest-Secret": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("错误密钥 status = %d, want 401", w.Code)
	}
	// header密钥正确（无启用来源，空跑）
	w := doRequest(r, http.MethodPost, "/ingest/run", map[string]string{"X-Ingest-Secret": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("正确密钥 status = %d, body=%s", w.Code, w.Body.String())
	}
	// query密钥同样可用
	if w := doRequest(r, http.MethodPost, "/ingest/run?secret=s3cret", nil); w.Code != http.StatusOK {
		t.Errorf("query密钥 status = %d, want 200", w.Code)
	}
}

func TestRunIngestionSecretUnsetAlwaysRefused(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{Ingest: config.IngestConfig{StaleLockMinutes: 60}} // 未配置密钥
	r := newRouter(t, db, cfg)

	if w := doRequest(r, http.MethodPost, "/ingest/run", map[string]string{"X-Ingest-Secret": ""}); w.Code != http.StatusUnauthorized {
		t.Errorf("未配置密钥应拒绝一切请求, status = %d", w.Code)
	}
}

func TestRunIngestionConflict(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{Ingest: config.IngestConfig{Secret: "s3cret", StaleLockMinutes: 60}}
	// 预置running行模拟并发触发
	db.Create(&model.IngestRun{RunUUID: "held", Status: model.RunStatusRunning, StartedAt: time.Now()})
	r := newRouter(t, db, cfg)

	w := doRequest(r, http.MethodPost, "/ingest/run", map[string]string{"X-Ingest-Secret": "s3cret"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "ingestion already running" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestListRuns(t *testing.T) {
	db := newTestDB(t)
	db.Create(&model.IngestRun{RunUUID: "r1", Status: model.RunStatusCompleted, StartedAt: time.Now().Add(-time.Hour)})
	db.Create(&model.IngestRun{RunUUID: "r2", Status: model.RunStatusFailed, StartedAt: time.Now()})
	r := newRouter(t, db, &config.Config{})

	w := doRequest(r, http.MethodGet, "/api/ingest/runs?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Runs []model.IngestRun `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(body.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(body.Runs))
	}
	if body.Runs[0].RunUUID != "r2" {
		t.Errorf("应按开始时间倒序: %s", body.Runs[0].RunUUID)
	}
}
