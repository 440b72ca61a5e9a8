package adapter

import (
	"fmt"

	"EventSync/internal/config"
	"EventSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// ========== 全局工厂函数注册表（依赖interfaces包） ==========
var factoryRegistry = make(map[string]interfaces.Factory)

// Register 供适配器init函数调用，注册工厂函数
func Register(source string, factory interfaces.Factory) {
	if factory == nil {
		panic(fmt.Sprintf("来源%s的工厂函数不能为nil", source))
	}
	if _, exists := factoryRegistry[source]; exists {
		logrus.Warnf("来源%s的适配器已注册，将覆盖原有实现", source)
	}
	factoryRegistry[source] = factory
}

// GetFactory 获取指定来源的工厂函数
func GetFactory(source string) (interfaces.Factory, bool) {
	factory, ok := factoryRegistry[source]
	return factory, ok
}

// ListFactories 列出所有已注册的工厂函数来源
func ListFactories() []string {
	var sources []string
	for s := range factoryRegistry {
		sources = append(sources, s)
	}
	return sources
}

// BuildEnabled 按配置中启用的来源列表创建适配器实例。
// 未注册或配置缺失的来源记警告跳过，不影响其余来源。
func BuildEnabled(cfg *config.Config, logger *logrus.Logger) []interfaces.SourceAdapter {
	var adapters []interfaces.SourceAdapter
	for _, name := range cfg.Ingest.EnabledSources {
		factory, ok := GetFactory(name)
		if !ok {
			logger.WithField("source", name).Error("未找到对应的工厂函数（init未注册？）")
			continue
		}
		sourceCfg, ok := cfg.Sources[name]
		if !ok {
			logger.WithField("source", name).Error("未获取到来源配置")
			continue
		}
		ins := factory(&sourceCfg, logger)
		if ins == nil {
			logger.WithField("source", name).Error("工厂函数返回nil适配器实例")
			continue
		}
		if ins.GetName() != name {
			logger.WithFields(logrus.Fields{
				"config_source":  name,
				"adapter_source": ins.GetName(),
			}).Error("适配器来源名称与配置不匹配")
			continue
		}
		adapters = append(adapters, ins)
		logger.WithField("source", name).Info("适配器实例初始化成功")
	}
	return adapters
}
