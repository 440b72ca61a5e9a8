package geocoder

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"EventSync/internal/config"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newClient(baseURL string, cacheSize int) *Client {
	return NewClient(&config.GeocoderConfig{
		BaseURL:   baseURL,
		Timeout:   5,
		UserAgent: "eventsync-test/1.0",
		CacheSize: cacheSize,
	}, testLogger())
}

func TestGeocodeFirstMatch(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if q := r.URL.Query().Get("q"); q != "Blue Note, Amsterdam" {
			t.Errorf("查询参数 = %q", q)
		}
		fmt.Fprint(w, `[
			{"lat":"52.3731","lon":"4.8922","display_name":"Blue Note, Amsterdam, NL"},
			{"lat":"40.7308","lon":"-74.0007","display_name":"Blue Note, New York"}
		]`)
	}))
	defer server.Close()

	result, err := newClient(server.URL, 0).Geocode(context.Background(), "Blue Note, Amsterdam")
	if err != nil {
		t.Fatalf("Geocode失败: %v", err)
	}
	if result == nil || result.Lat != 52.3731 || result.Lng != 4.8922 {
		t.Fatalf("应取首个匹配: %+v", result)
	}
	if gotUA != "eventsync-test/1.0" {
		t.Errorf("UA未设置: %q", gotUA)
	}
}

func TestGeocodeCachesRepeatedQuery(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `[{"lat":"52.37","lon":"4.89","display_name":"Paradiso"}]`)
	}))
	defer server.Close()

	c := newClient(server.URL, 0)
	for i := 0; i < 3; i++ {
		result, err := c.Geocode(context.Background(), "Paradiso, Amsterdam")
		if err != nil {
			t.Fatalf("第%d次Geocode失败: %v", i+1, err)
		}
		if result == nil || result.Lat != 52.37 {
			t.Fatalf("第%d次结果错误: %+v", i+1, result)
		}
	}
	if requests != 1 {
		t.Errorf("外呼次数 = %d, want 1（重复查询走缓存）", requests)
	}
}

func TestGeocodeNoMatchCached(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	c := newClient(server.URL, 0)
	for i := 0; i < 2; i++ {
		result, err := c.Geocode(context.Background(), "不存在的场馆")
		if err != nil {
			t.Fatalf("无匹配不应报错: %v", err)
		}
		if result != nil {
			t.Fatalf("无匹配应返回nil: %+v", result)
		}
	}
	if requests != 1 {
		t.Errorf("外呼次数 = %d, want 1（负结果也缓存）", requests)
	}
}

func TestGeocodeErrorNotCached(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[{"lat":"52.37","lon":"4.89","display_name":"Melkweg"}]`)
	}))
	defer server.Close()

	c := newClient(server.URL, 0)
	if _, err := c.Geocode(context.Background(), "Melkweg"); err == nil {
		t.Fatal("非200应返回错误")
	}
	result, err := c.Geocode(context.Background(), "Melkweg")
	if err != nil || result == nil {
		t.Fatalf("错误不应入缓存，重试应成功: %v %+v", err, result)
	}
	if requests != 2 {
		t.Errorf("外呼次数 = %d, want 2", requests)
	}
}

func TestGeocodeCacheEviction(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `[{"lat":"1.0","lon":"2.0","display_name":"x"}]`)
	}))
	defer server.Close()

	c := newClient(server.URL, 2)
	queries := []string{"a", "b", "c", "a"} // 缓存上限2：写入c前清空，a需重查
	for _, q := range queries {
		if _, err := c.Geocode(context.Background(), q); err != nil {
			t.Fatalf("Geocode(%q)失败: %v", q, err)
		}
	}
	if requests != 4 {
		t.Errorf("外呼次数 = %d, want 4", requests)
	}
}
