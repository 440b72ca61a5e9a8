package normalizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"EventSync/internal/model"

	"github.com/sirupsen/logrus"
)

// ValidationError 归一化校验失败（事件会被跳过并计入来源错误）
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("字段[%s]校验失败: %s", e.Field, e.Reason)
}

// 历史解析bug：来源页面年份被误读成过去年份（如2001）。
// 早于该年的开始时间一律视为不可信，按同月同日的下一次未来出现重算。
const minPlausibleYear = 2020

// 与 events 表列宽保持一致
const (
	maxTitleLen = 256
	maxSlugLen  = 256
)

// Normalizer 原始事件归一化：slug派生、时间校正、分类/标签推导
type Normalizer struct {
	logger *logrus.Logger
	now    func() time.Time // 可注入，测试用
}

func New(logger *logrus.Logger) *Normalizer {
	return &Normalizer{logger: logger, now: time.Now}
}

// NewWithClock 指定时钟的构造（测试用）
func NewWithClock(logger *logrus.Logger, now func() time.Time) *Normalizer {
	return &Normalizer{logger: logger, now: now}
}

// Normalize 原始事件 → 规范事件。标题/开始时间缺失返回ValidationError。
func (n *Normalizer) Normalize(raw *model.RawEvent) (*model.CanonicalEvent, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "不能为空"}
	}
	title = truncate(title, maxTitleLen)

	if raw.StartAt.IsZero() {
		return nil, &ValidationError{Field: "start_at", Reason: "不能为空"}
	}

	slug := Slugify(title)
	if slug == "" {
		return nil, &ValidationError{Field: "slug", Reason: "标题无法派生slug"}
	}

	startAt := n.sanitizeStart(raw.StartAt)
	var endAt *time.Time
	if raw.EndAt != nil {
		if raw.EndAt.Before(startAt) {
			n.logger.Warnf("事件[%s]结束时间早于开始时间，按空处理", slug)
		} else {
			endAt = raw.EndAt
		}
	}

	category, derivedTags := DeriveCategory(title, raw.Description)
	if raw.Category != "" {
		category = truncate(strings.TrimSpace(raw.Category), 64)
	}
	tags := raw.Tags
	if len(tags) == 0 {
		tags = derivedTags
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		tagsJSON = []byte("[]") // 兜底空标签
	}

	event := &model.Event{
		Title:               title,
		Slug:                truncate(slug, maxSlugLen),
		Description:         raw.Description,
		StartAt:             startAt,
		EndAt:               endAt,
		City:                strings.TrimSpace(raw.City),
		AddressText:         truncate(strings.TrimSpace(raw.Address), 256),
		Category:            category,
		Tags:                tagsJSON,
		PriceMin:            raw.PriceMin,
		PriceMax:            raw.PriceMax,
		Currency:            raw.Currency,
		ImageURL:            raw.ImageURL,
		TicketURL:           raw.TicketURL,
		SourceName:          raw.SourceName,
		SourceExternalID:    raw.SourceExternalID,
		SourceURL:           raw.SourceURL,
		Status:              model.EventStatusPublished,
		IsPrimaryOccurrence: true,
	}

	return &model.CanonicalEvent{
		Event:        event,
		VenueName:    strings.TrimSpace(raw.VenueName),
		VenueCity:    strings.TrimSpace(raw.City),
		VenueAddress: strings.TrimSpace(raw.Address),
		VenueLat:     raw.VenueLat,
		VenueLng:     raw.VenueLng,
	}, nil
}

// sanitizeStart 年份不可信时，取同月同日（含原时分）的下一次未来出现
func (n *Normalizer) sanitizeStart(t time.Time) time.Time {
	if t.Year() >= minPlausibleYear {
		return t
	}
	now := n.now()
	candidate := time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	n.logger.Warnf("开始时间年份%d不可信，重算为%s", t.Year(), candidate.Format(time.RFC3339))
	return candidate
}

var nonAlphaNum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify 标题 → slug：小写，非字母数字连续段折叠为单个连字符，去首尾连字符
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonAlphaNum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// categoryRule 有序关键词规则（首个命中即胜出）
type categoryRule struct {
	Category string
	Keywords []string
}

// CategoryOther 无规则命中时的默认分类
const CategoryOther = "Other"

var categoryRules = []categoryRule{
	{"Music", []string{"concert", "gig", "festival", "jazz", "orchestra", "dj ", "live music", "band"}},
	{"Dance", []string{"ballet", "dance", "tango", "salsa"}},
	{"Theatre", []string{"theatre", "theater", "opera", "stand-up", "comedy", "play"}},
	{"Art", []string{"exhibition", "gallery", "vernissage", "art "}},
	{"Film", []string{"cinema", "film", "screening", "movie"}},
	{"Sports", []string{"match", "marathon", "tournament", "race"}},
	{"Family", []string{"kids", "family", "workshop"}},
}

// DeriveCategory 按固定顺序的关键词表匹配标题+描述，返回分类与命中关键词作为标签
func DeriveCategory(title, description string) (string, []string) {
	text := strings.ToLower(title + " " + description)
	for _, rule := range categoryRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Category, []string{strings.TrimSpace(kw)}
			}
		}
	}
	return CategoryOther, nil
}

// truncate 按字节上限截断，但不在多字节字符中间切开
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	s = s[:maxLen]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}
