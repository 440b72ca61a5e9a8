package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"EventSync/internal/config"
	"EventSync/internal/interfaces"
	"EventSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

const defaultCacheSize = 2048

// Client Nominatim风格地理编码客户端，带内存缓存（同名查询不重复请求）
type Client struct {
	cfg        *config.GeocoderConfig
	httpClient *http.Client
	logger     *logrus.Logger

	mu    sync.Mutex
	cache map[string]*interfaces.GeocodeResult // nil值表示已查过且无匹配
}

func NewClient(cfg *config.GeocoderConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: httpclient.New(time.Duration(cfg.Timeout)*time.Second, "", logger),
		logger:     logger,
		cache:      make(map[string]*interfaces.GeocodeResult),
	}
}

// nominatimItem /search 接口单条返回（lat/lon为字符串）
type nominatimItem struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode 自由文本查询，取首个匹配。无匹配返回(nil, nil)并缓存负结果。
func (c *Client) Geocode(ctx context.Context, query string) (*interfaces.GeocodeResult, error) {
	key := cacheKey(query)
	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	result, err := c.lookup(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	maxEntries := c.cfg.CacheSize
	if maxEntries <= 0 {
		maxEntries = defaultCacheSize
	}
	if len(c.cache) >= maxEntries {
		// 缓存满了整体清空，简单有效（单次运行内查询量有限）
		c.cache = make(map[string]*interfaces.GeocodeResult)
	}
	c.cache[key] = result
	c.mu.Unlock()
	return result, nil
}

func (c *Client) lookup(ctx context.Context, query string) (*interfaces.GeocodeResult, error) {
	searchURL := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", c.cfg.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构建地理编码请求失败: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("地理编码请求失败: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Errorf("关闭地理编码响应体失败: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("地理编码返回非200状态: %d", resp.StatusCode)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("解析地理编码响应失败: %w", err)
	}
	if len(items) == 0 {
		return nil, nil // 无匹配，非错误
	}

	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("解析纬度失败（值：%s）: %w", items[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("解析经度失败（值：%s）: %w", items[0].Lon, err)
	}

	return &interfaces.GeocodeResult{
		Lat:         lat,
		Lng:         lng,
		DisplayName: items[0].DisplayName,
	}, nil
}

func cacheKey(query string) string {
	return url.QueryEscape(query)
}
