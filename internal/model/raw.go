package model

import "time"

// RawEvent 各来源适配器统一产出的原始事件结构（抹平来源差异，入库前先归一化）
type RawEvent struct {
	Title            string     // 事件标题
	StartAt          time.Time  // 开始时间
	EndAt            *time.Time // 结束时间（可空）
	VenueName        string     // 场馆名称（可空）
	Address          string     // 地址文本（可空）
	City             string     // 城市（可空）
	VenueLat         *float64   // 来源直接给出的场馆纬度
	VenueLng         *float64   // 来源直接给出的场馆经度
	Category         string     // 来源给出的分类（可空，空则按关键词推导）
	Tags             []string   // 标签
	PriceMin         *float64   // 最低票价
	PriceMax         *float64   // 最高票价
	Currency         string     // 货币
	ImageURL         string     // 海报图片
	TicketURL        string     // 购票链接
	Description      string     // 描述
	SourceName       string     // 来源名称
	SourceExternalID string     // 来源侧原生ID
	SourceURL        string     // 来源页面链接
}

// CanonicalEvent 归一化产物：Event 已填好 slug/分类/标签等，
// 场馆信息单独携带，由 VenueResolver 关联 venue_id 后再入库
type CanonicalEvent struct {
	Event        *Event
	VenueName    string
	VenueCity    string
	VenueAddress string
	VenueLat     *float64
	VenueLng     *float64
}

// GigfeedEvent gigfeed 开放接口返回的事件结构
type GigfeedEvent struct {
	ID          string `json:"id"`          // 平台事件ID
	Name        string `json:"name"`        // 事件标题
	Description string `json:"description"` // 描述
	StartsAt    string `json:"starts_at"`   // 开始时间（字符串）
	EndsAt      string `json:"ends_at"`     // 结束时间（字符串，可空）
	Venue       struct {
		Name    string   `json:"name"`
		Address string   `json:"address"`
		City    string   `json:"city"`
		Lat     *float64 `json:"lat"`
		Lng     *float64 `json:"lng"`
	} `json:"venue"` // 场馆信息
	Category  string   `json:"category"`   // 分类
	Tags      []string `json:"tags"`       // 标签
	PriceMin  *float64 `json:"price_min"`  // 最低票价
	PriceMax  *float64 `json:"price_max"`  // 最高票价
	Currency  string   `json:"currency"`   // 货币
	ImageURL  string   `json:"image_url"`  // 海报
	TicketURL string   `json:"ticket_url"` // 购票链接
	URL       string   `json:"url"`        // 事件页面链接
}

// GigfeedPage gigfeed 分页响应
type GigfeedPage struct {
	Events  []GigfeedEvent `json:"events"`
	HasMore bool           `json:"has_more"`
}
