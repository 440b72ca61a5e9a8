package model

import (
	"time"

	"gorm.io/datatypes"
)

// 事件状态：draft → published（采集或后台审核）→ archived（清扫）
const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusArchived  = "archived"
)

// 场馆认领状态：仅允许 unclaimed → pending → {verified, rejected}
const (
	ClaimStatusUnclaimed = "unclaimed"
	ClaimStatusPending   = "pending"
	ClaimStatusVerified  = "verified"
	ClaimStatusRejected  = "rejected"
)

// 采集任务状态
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

type Event struct {
	ID                  uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Title               string         `gorm:"column:title;type:varchar(256);not null;comment:事件标题"`
	Slug                string         `gorm:"column:slug;type:varchar(256);uniqueIndex;not null;comment:标题派生的唯一slug"`
	Description         string         `gorm:"column:description;type:text;comment:事件描述"`
	StartAt             time.Time      `gorm:"column:start_at;type:timestamp;not null;index;comment:开始时间"`
	EndAt               *time.Time     `gorm:"column:end_at;type:timestamp;comment:结束时间"`
	City                string         `gorm:"column:city;type:varchar(128);index;comment:所在城市"`
	AddressText         string         `gorm:"column:address_text;type:varchar(256);comment:地址文本"`
	VenueID             *uint64        `gorm:"column:venue_id;type:bigint;index;comment:关联场馆ID"`
	Category            string         `gorm:"column:category;type:varchar(64);index;comment:分类"`
	Tags                datatypes.JSON `gorm:"column:tags;type:jsonb;comment:标签集合"`
	PriceMin            *float64       `gorm:"column:price_min;type:numeric(10,2);comment:最低票价"`
	PriceMax            *float64       `gorm:"column:price_max;type:numeric(10,2);comment:最高票价"`
	Currency            string         `gorm:"column:currency;type:varchar(8);comment:货币"`
	ImageURL            string         `gorm:"column:image_url;type:varchar(512);comment:海报图片"`
	TicketURL           string         `gorm:"column:ticket_url;type:varchar(512);comment:购票链接"`
	SourceName          string         `gorm:"column:source_name;type:varchar(64);index;comment:来源名称，空表示用户提交"`
	SourceExternalID    string         `gorm:"column:source_external_id;type:varchar(128);index;comment:来源侧原生ID"`
	SourceURL           string         `gorm:"column:source_url;type:varchar(512);comment:来源页面链接"`
	Status              string         `gorm:"column:status;type:varchar(16);not null;index;comment:状态：draft/published/archived"`
	IsPrimaryOccurrence bool           `gorm:"column:is_primary_occurrence;default:true;comment:重复系列中的主场次"`
	LastSeenAt          time.Time      `gorm:"column:last_seen_at;type:timestamp;index;comment:最近一次被采集看到的时间"`
	CreatedAt           time.Time      `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

type Venue struct {
	ID              uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Name            string    `gorm:"column:name;type:varchar(256);not null;comment:场馆名称"`
	Slug            string    `gorm:"column:slug;type:varchar(256);uniqueIndex;not null;comment:名称派生的唯一slug"`
	City            string    `gorm:"column:city;type:varchar(128);index;comment:所在城市"`
	Address         string    `gorm:"column:address;type:varchar(256);comment:详细地址"`
	Lat             *float64  `gorm:"column:lat;type:numeric(10,7);comment:纬度"`
	Lng             *float64  `gorm:"column:lng;type:numeric(10,7);comment:经度"`
	ClaimStatus     string    `gorm:"column:claim_status;type:varchar(16);not null;default:unclaimed;comment:认领状态"`
	ClaimedByUserID *uint64   `gorm:"column:claimed_by_user_id;type:bigint;comment:认领用户ID"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

// IngestRun 一次采集任务的运行记录。status=running 的行兼作互斥锁：
// 部分唯一索引保证任意时刻至多一条running行（并发触发时数据库兜底），
// 超过过期窗口仍为 running 的行视为中断任务，允许被新任务顶替。
type IngestRun struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	RunUUID       string         `gorm:"column:run_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一ID"`
	Status        string         `gorm:"column:status;type:varchar(16);not null;index;uniqueIndex:ux_ingest_runs_one_running,where:status = 'running';comment:状态：running/completed/failed"`
	StartedAt     time.Time      `gorm:"column:started_at;type:timestamp;not null;index;comment:开始时间"`
	FinishedAt    *time.Time     `gorm:"column:finished_at;type:timestamp;comment:结束时间"`
	Total         int            `gorm:"column:total;type:int;default:0;comment:处理事件总数"`
	Created       int            `gorm:"column:created;type:int;default:0;comment:新建数"`
	Updated       int            `gorm:"column:updated;type:int;default:0;comment:更新数"`
	Errors        int            `gorm:"column:errors;type:int;default:0;comment:错误数"`
	Archived      int            `gorm:"column:archived;type:int;default:0;comment:清扫归档数"`
	SourceResults datatypes.JSON `gorm:"column:source_results;type:jsonb;comment:各来源统计"`
	ErrorDetail   string         `gorm:"column:error_detail;type:text;comment:失败原因"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

func (Event) TableName() string     { return "events" }
func (Venue) TableName() string     { return "venues" }
func (IngestRun) TableName() string { return "ingest_runs" }
