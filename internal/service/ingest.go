package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"EventSync/internal/config"
	"EventSync/internal/interfaces"
	"EventSync/internal/normalizer"
	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SourceResult 单个来源的采集统计
type SourceResult struct {
	Total   int `json:"total"`   // 抓到的事件数
	Created int `json:"created"` // 新建数
	Updated int `json:"updated"` // 更新数
	Errors  int `json:"errors"`  // 错误数（整源失败或单条跳过）
}

// RunResult 一次完整采集的聚合结果
type RunResult struct {
	RunUUID       string                   `json:"run_uuid"`
	Total         int                      `json:"total"`
	Created       int                      `json:"created"`
	Updated       int                      `json:"updated"`
	Errors        int                      `json:"errors"`
	Archived      int64                    `json:"archived"`
	ErrorDetails  []string                 `json:"error_details"`
	SourceResults map[string]*SourceResult `json:"source_results"`
}

// IngestService 采集总控：加锁→逐来源抓取归一入库→清扫→落run记录。
// 单来源失败不中断整次运行；未捕获异常将run置为failed。
type IngestService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	cfg       *config.Config
	adapters  []interfaces.SourceAdapter
	runRepo   repository.RunRepository
	eventRepo repository.EventRepository
	norm      *normalizer.Normalizer
	resolver  *VenueResolver
}

func NewIngestService(db *gorm.DB, logger *logrus.Logger, cfg *config.Config, adapters []interfaces.SourceAdapter, geocoder interfaces.Geocoder) *IngestService {
	venueRepo := repository.NewVenueRepository(db)
	return &IngestService{
		db:        db,
		logger:    logger,
		cfg:       cfg,
		adapters:  adapters,
		runRepo:   repository.NewRunRepository(db, cfg.Ingest.StaleLockAfter()),
		eventRepo: repository.NewEventRepository(db),
		norm:      normalizer.New(logger),
		resolver:  NewVenueResolver(venueRepo, geocoder, logger),
	}
}

// Run 执行一次完整采集。已有运行中任务时返回repository.ErrRunInProgress。
func (s *IngestService) Run(ctx context.Context) (result *RunResult, err error) {
	// 1. 获取运行锁（数据库running行充当互斥量，带过期顶替）
	run, err := s.runRepo.AcquireRun(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("run_uuid", run.RunUUID).Infof("采集任务开始，共%d个来源", len(s.adapters))

	result = &RunResult{
		RunUUID:       run.RunUUID,
		SourceResults: make(map[string]*SourceResult),
	}

	// 未捕获异常：run置为failed后把panic转为错误返回
	defer func() {
		if p := recover(); p != nil {
			detail := fmt.Sprintf("未捕获异常: %v", p)
			s.logger.WithField("run_uuid", run.RunUUID).Error(detail)
			if failErr := s.runRepo.FailRun(ctx, run.ID, detail); failErr != nil {
				s.logger.WithError(failErr).Error("标记run失败状态出错")
			}
			err = fmt.Errorf("采集任务异常终止: %v", p)
		}
	}()

	// 2. 逐来源抓取（单来源失败隔离，不影响其余来源）
	for _, a := range s.adapters {
		sr := s.ingestSource(ctx, a, result)
		result.SourceResults[a.GetName()] = sr
		result.Total += sr.Total
		result.Created += sr.Created
		result.Updated += sr.Updated
		result.Errors += sr.Errors
	}

	// 3. 清扫：本次运行没见到且尚未自然过期的已发布采集事件 → archived
	archived, err := s.eventRepo.SweepStale(ctx, run.StartedAt, time.Now())
	if err != nil {
		detail := fmt.Sprintf("清扫归档失败: %v", err)
		if failErr := s.runRepo.FailRun(ctx, run.ID, detail); failErr != nil {
			s.logger.WithError(failErr).Error("标记run失败状态出错")
		}
		return result, fmt.Errorf("%s", detail)
	}
	result.Archived = archived

	// 4. 落聚合统计，run置为completed
	sourceJSON, jsonErr := json.Marshal(result.SourceResults)
	if jsonErr != nil {
		sourceJSON = []byte("{}")
	}
	if err := s.runRepo.CompleteRun(ctx, run.ID, result.Total, result.Created, result.Updated, result.Errors, int(archived), sourceJSON); err != nil {
		return result, fmt.Errorf("标记run完成状态失败: %w", err)
	}

	s.logger.WithField("run_uuid", run.RunUUID).Infof(
		"采集任务完成：total=%d created=%d updated=%d errors=%d archived=%d",
		result.Total, result.Created, result.Updated, result.Errors, result.Archived)
	return result, nil
}

// ingestSource 单来源：抓取→归一化→场馆解析→去重入库。单条失败只记数跳过。
func (s *IngestService) ingestSource(ctx context.Context, a interfaces.SourceAdapter, result *RunResult) *SourceResult {
	name := a.GetName()
	sr := &SourceResult{}

	raws, skipped, err := a.FetchEvents(ctx)
	if err != nil {
		// 整源失败：记录后继续下一个来源
		sr.Errors++
		result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("%s: 抓取失败: %v", name, err))
		s.logger.WithError(err).Warnf("来源%s抓取失败，跳过该来源", name)
		return sr
	}
	// 适配器内部跳过的条目计入来源错误统计
	for _, detail := range skipped {
		sr.Errors++
		result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("%s: %s", name, detail))
	}
	if len(raws) == 0 {
		s.logger.Warnf("来源%s未抓取到事件", name)
		return sr
	}

	for _, raw := range raws {
		ce, err := s.norm.Normalize(raw)
		if err != nil {
			sr.Errors++
			result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("%s: 归一化失败: %v", name, err))
			continue
		}

		venueID, err := s.resolver.Resolve(ctx, ce)
		if err != nil {
			// 场馆解析失败降级：事件照常入库，仅缺场馆关联
			s.logger.WithError(err).Warnf("来源%s事件[%s]场馆解析失败", name, ce.Event.Slug)
		} else {
			ce.Event.VenueID = venueID
		}

		created, err := s.eventRepo.Upsert(ctx, ce.Event)
		if err != nil {
			sr.Errors++
			result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("%s: 入库失败: %v", name, err))
			continue
		}
		sr.Total++
		if created {
			sr.Created++
		} else {
			sr.Updated++
		}
	}

	s.logger.Infof("来源%s同步完成：total=%d created=%d updated=%d errors=%d",
		name, sr.Total, sr.Created, sr.Updated, sr.Errors)
	return sr
}
