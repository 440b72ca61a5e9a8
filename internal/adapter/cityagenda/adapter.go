package cityagenda

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"EventSync/internal/adapter"
	"EventSync/internal/config"
	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/utils/httpclient"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const sourceName = "cityagenda"

func init() {
	adapter.Register(sourceName, NewCityagendaAdapter)
}

// Adapter cityagenda 站点来源（HTML列表页+详情页，goquery解析）
type Adapter struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewCityagendaAdapter(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.SourceAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.New(time.Duration(cfg.Timeout)*time.Second, cfg.Proxy, logger),
		logger:     logger,
	}
}

// GetName ========== 实现SourceAdapter接口 ==========
func (a *Adapter) GetName() string {
	return sourceName
}

// listItem 列表页单条卡片提取结果
type listItem struct {
	externalID string
	detailURL  string
}

func (a *Adapter) FetchEvents(ctx context.Context) ([]*model.RawEvent, []string, error) {
	maxPages := a.cfg.Pages
	if maxPages <= 0 {
		maxPages = 3
	}

	// 1. 逐页抓取列表，收集详情页链接
	var items []listItem
	var skipped []string
	for page := 1; page <= maxPages; page++ {
		pageItems, err := a.fetchListPage(ctx, page)
		if err != nil {
			if page == 1 {
				return nil, nil, err
			}
			a.logger.WithError(err).Warnf("cityagenda 第%d页列表抓取失败，停止翻页", page)
			skipped = append(skipped, fmt.Sprintf("第%d页列表抓取失败: %v", page, err))
			break
		}
		if len(pageItems) == 0 {
			break
		}
		items = append(items, pageItems...)
		if err := a.sleep(ctx); err != nil {
			return nil, skipped, err
		}
	}

	// 2. 逐条抓详情页并解析；单条失败记入skipped后跳过
	var rawEvents []*model.RawEvent
	for i, item := range items {
		raw, err := a.fetchDetail(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return rawEvents, skipped, ctx.Err()
			}
			a.logger.WithError(err).Warnf("cityagenda 详情解析失败，跳过（url=%s）", item.detailURL)
			skipped = append(skipped, fmt.Sprintf("详情解析失败（url=%s）: %v", item.detailURL, err))
			continue
		}
		rawEvents = append(rawEvents, raw)
		// 条目间隔，避免压垮来源站点
		if i < len(items)-1 {
			if err := a.sleep(ctx); err != nil {
				return rawEvents, skipped, err
			}
		}
	}

	a.logger.Infof("成功获取cityagenda事件共%d条（列表%d条，跳过%d条）", len(rawEvents), len(items), len(skipped))
	return rawEvents, skipped, nil
}

func (a *Adapter) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.cfg.PageDelay()):
		return nil
	}
}

func (a *Adapter) fetchListPage(ctx context.Context, page int) ([]listItem, error) {
	listURL := fmt.Sprintf("%s/events?page=%d", a.cfg.BaseURL, page)
	doc, err := a.fetchDoc(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("获取cityagenda列表页失败: %w", err)
	}

	var items []listItem
	doc.Find("article.event-card").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a.event-link")
		href, ok := link.Attr("href")
		if !ok || href == "" {
			a.logger.Warn("cityagenda 卡片缺少链接，跳过")
			return
		}
		externalID, _ := s.Attr("data-id")
		if externalID == "" {
			// 无data-id时退回链接末段
			parts := strings.Split(strings.TrimRight(href, "/"), "/")
			externalID = parts[len(parts)-1]
		}
		items = append(items, listItem{
			externalID: externalID,
			detailURL:  a.absoluteURL(href),
		})
	})
	return items, nil
}

func (a *Adapter) fetchDetail(ctx context.Context, item listItem) (*model.RawEvent, error) {
	doc, err := a.fetchDoc(ctx, item.detailURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("h1.event-title").First().Text())
	if title == "" {
		return nil, fmt.Errorf("缺少标题")
	}

	startStr, _ := doc.Find("time.event-start").First().Attr("datetime")
	startAt, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return nil, fmt.Errorf("解析开始时间失败（值：%s）: %w", startStr, err)
	}
	var endAt *time.Time
	if endStr, ok := doc.Find("time.event-end").First().Attr("datetime"); ok && endStr != "" {
		if t, err := time.Parse(time.RFC3339, endStr); err == nil {
			endAt = &t
		} else {
			a.logger.Warnf("cityagenda 结束时间解析失败（值：%s），按空处理", endStr)
		}
	}

	city := strings.TrimSpace(doc.Find(".event-venue .venue-city").First().Text())
	if city == "" {
		city = a.cfg.City
	}

	priceMin, priceMax, currency := parsePriceText(doc.Find(".event-price").First().Text())

	ticketURL, _ := doc.Find("a.ticket-link").First().Attr("href")
	imageURL, _ := doc.Find("img.event-poster").First().Attr("src")

	return &model.RawEvent{
		Title:            title,
		StartAt:          startAt,
		EndAt:            endAt,
		VenueName:        strings.TrimSpace(doc.Find(".event-venue .venue-name").First().Text()),
		Address:          strings.TrimSpace(doc.Find(".event-venue .venue-address").First().Text()),
		City:             city,
		Category:         strings.TrimSpace(doc.Find(".event-category").First().Text()),
		PriceMin:         priceMin,
		PriceMax:         priceMax,
		Currency:         currency,
		ImageURL:         a.absoluteURL(imageURL),
		TicketURL:        a.absoluteURL(ticketURL),
		Description:      strings.TrimSpace(doc.Find(".event-description").First().Text()),
		SourceName:       sourceName,
		SourceExternalID: item.externalID,
		SourceURL:        item.detailURL,
	}, nil
}

func (a *Adapter) fetchDoc(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Errorf("关闭cityagenda响应体失败: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("返回非200状态: %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}
	return doc, nil
}

func (a *Adapter) absoluteURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(a.cfg.BaseURL, "/") + "/" + strings.TrimLeft(href, "/")
}

// 价格文本形如 "€12 – €25"、"From €10"、"Free"
var priceRe = regexp.MustCompile(`(\d+(?:[.,]\d{1,2})?)`)

var currencySymbols = map[string]string{
	"€": "EUR",
	"$": "USD",
	"£": "GBP",
}

// parsePriceText 从价格文本提取最低/最高票价与货币；"Free"返回0票价
func parsePriceText(text string) (priceMin, priceMax *float64, currency string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, ""
	}
	if strings.EqualFold(text, "free") {
		zero := 0.0
		return &zero, &zero, ""
	}

	for symbol, code := range currencySymbols {
		if strings.Contains(text, symbol) {
			currency = code
			break
		}
	}

	matches := priceRe.FindAllString(text, -1)
	var nums []float64
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
		if err != nil {
			continue
		}
		nums = append(nums, v)
	}
	switch len(nums) {
	case 0:
		return nil, nil, currency
	case 1:
		return &nums[0], nil, currency
	default:
		lo, hi := nums[0], nums[1]
		if hi < lo {
			lo, hi = hi, lo
		}
		return &lo, &hi, currency
	}
}
