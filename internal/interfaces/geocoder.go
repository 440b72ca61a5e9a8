package interfaces

import "context"

// GeocodeResult 地理编码首个匹配结果
type GeocodeResult struct {
	Lat         float64
	Lng         float64
	DisplayName string
}

// Geocoder 自由文本地理编码。无匹配时返回 (nil, nil)，
// 调用方应将编码失败视为非致命（事件照常入库，仅缺坐标）。
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*GeocodeResult, error)
}
