package interfaces

import (
	"context"

	"EventSync/internal/config"
	"EventSync/internal/model"

	"github.com/sirupsen/logrus"
)

// SourceAdapter 所有事件来源必须实现的核心接口。
// FetchEvents 返回抓取到的统一RawEvent，以及被跳过条目的描述列表
// （单条解析失败不中断抓取，但必须计入来源错误统计）。
type SourceAdapter interface {
	GetName() string
	FetchEvents(ctx context.Context) (events []*model.RawEvent, skipped []string, err error)
}

// Factory 来源适配器工厂函数签名
// 入参：来源配置、日志实例
// 出参：实现SourceAdapter接口的适配器实例
type Factory func(cfg *config.SourceConfig, logger *logrus.Logger) SourceAdapter
