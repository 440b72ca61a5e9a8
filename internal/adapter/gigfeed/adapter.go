package gigfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"EventSync/internal/adapter"
	"EventSync/internal/config"
	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

const sourceName = "gigfeed"

func init() {
	adapter.Register(sourceName, NewGigfeedAdapter)
}

// Adapter gigfeed 开放API来源（JSON分页接口）
type Adapter struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewGigfeedAdapter(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.SourceAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.New(time.Duration(cfg.Timeout)*time.Second, cfg.Proxy, logger),
		logger:     logger,
	}
}

// GetName ========== 实现SourceAdapter接口 ==========
func (g *Adapter) GetName() string {
	return sourceName
}

func (g *Adapter) FetchEvents(ctx context.Context) ([]*model.RawEvent, []string, error) {
	maxPages := g.cfg.Pages
	if maxPages <= 0 {
		maxPages = 5
	}

	var rawEvents []*model.RawEvent
	var skipped []string
	for page := 1; page <= maxPages; page++ {
		pageData, err := g.fetchPage(ctx, page)
		if err != nil {
			// 首页失败视为来源整体失败；后续页失败保留已取到的部分并计入错误
			if page == 1 {
				return nil, nil, err
			}
			g.logger.WithError(err).Warnf("gigfeed 第%d页抓取失败，保留前%d条", page, len(rawEvents))
			skipped = append(skipped, fmt.Sprintf("第%d页抓取失败: %v", page, err))
			break
		}

		for i := range pageData.Events {
			raw, err := g.convert(&pageData.Events[i])
			if err != nil {
				g.logger.WithError(err).Warnf("gigfeed 事件解析失败，跳过（id=%s）", pageData.Events[i].ID)
				skipped = append(skipped, fmt.Sprintf("事件解析失败（id=%s）: %v", pageData.Events[i].ID, err))
				continue
			}
			rawEvents = append(rawEvents, raw)
		}

		if !pageData.HasMore {
			break
		}
		// 翻页间隔，避免压垮来源接口
		select {
		case <-ctx.Done():
			return rawEvents, skipped, ctx.Err()
		case <-time.After(g.cfg.PageDelay()):
		}
	}

	g.logger.Infof("成功获取gigfeed事件共%d条，跳过%d条", len(rawEvents), len(skipped))
	return rawEvents, skipped, nil
}

func (g *Adapter) fetchPage(ctx context.Context, page int) (*model.GigfeedPage, error) {
	pageURL := fmt.Sprintf("%s/v2/events?city=%s&page=%d", g.cfg.BaseURL, url.QueryEscape(g.cfg.City), page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构建gigfeed请求失败: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取gigfeed事件失败: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.Errorf("关闭gigfeed响应体失败: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gigfeed返回非200状态: %d", resp.StatusCode)
	}

	var pageData model.GigfeedPage
	if err := json.NewDecoder(resp.Body).Decode(&pageData); err != nil {
		return nil, fmt.Errorf("解析gigfeed事件失败: %w", err)
	}
	return &pageData, nil
}

// convert 平台原生结构 → 统一RawEvent
func (g *Adapter) convert(e *model.GigfeedEvent) (*model.RawEvent, error) {
	if e.ID == "" || e.Name == "" {
		return nil, fmt.Errorf("缺少必填字段 id/name")
	}
	startAt, err := parseTimeStr(e.StartsAt)
	if err != nil {
		return nil, fmt.Errorf("解析开始时间失败（值：%s）: %w", e.StartsAt, err)
	}

	var endAt *time.Time
	if e.EndsAt != "" {
		if t, err := parseTimeStr(e.EndsAt); err == nil {
			endAt = &t
		} else {
			g.logger.Warnf("gigfeed 结束时间解析失败（值：%s），按空处理", e.EndsAt)
		}
	}

	city := e.Venue.City
	if city == "" {
		city = g.cfg.City
	}

	return &model.RawEvent{
		Title:            e.Name,
		StartAt:          startAt,
		EndAt:            endAt,
		VenueName:        e.Venue.Name,
		Address:          e.Venue.Address,
		City:             city,
		VenueLat:         e.Venue.Lat,
		VenueLng:         e.Venue.Lng,
		Category:         e.Category,
		Tags:             e.Tags,
		PriceMin:         e.PriceMin,
		PriceMax:         e.PriceMax,
		Currency:         e.Currency,
		ImageURL:         e.ImageURL,
		TicketURL:        e.TicketURL,
		Description:      e.Description,
		SourceName:       sourceName,
		SourceExternalID: e.ID,
		SourceURL:        e.URL,
	}, nil
}

// parseTimeStr 解析时间字符串（gigfeed常见格式）
func parseTimeStr(timeStr string) (time.Time, error) {
	timeFormats := []string{
		time.RFC3339,          // "2006-01-02T15:04:05Z07:00"
		"2006-01-02 15:04:05", // 常规格式
		"2006-01-02",          // 仅日期
	}
	var lastErr error
	for _, format := range timeFormats {
		t, err := time.Parse(format, timeStr)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
