package bot

import (
	"fmt"
	"log"

	"github.com/LJTian/doudoubot/internal/collector"
	"github.com/LJTian/doudoubot/internal/config"
	"github.com/LJTian/doudoubot/internal/notify"
	"github.com/LJTian/doudoubot/internal/storage"
)

// VendorRegistry 是 vendors 表的写入接口
type VendorRegistry interface {
	EnsureVendor(name, baseURL string, meta map[string]any) (*storage.Vendor, error)
}

// BuildSources 按配置构建数据源，任何一个非法都返回错误
func BuildSources(specs []config.SourceSpec) ([]*collector.Source, error) {
	sources := make([]*collector.Source, 0, len(specs))
	for _, sp := range specs {
		src, err := collector.NewSource(sp.Vendor, sp.URL, sp.Extractor, sp.Pattern, sp.Input)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// RegisterVendors 启动时把每个数据源登记到 vendors 表
func RegisterVendors(reg VendorRegistry, sources []*collector.Source) error {
	for _, src := range sources {
		if _, err := reg.EnsureVendor(src.Vendor, src.URL, VendorMeta(src)); err != nil {
			return fmt.Errorf("ensure vendor %s: %w", src.Vendor, err)
		}
	}
	return nil
}

// BuildNotifier 组装投递渠道：Discord 必选，配置了 AMQP 时同时发布事件。
// 返回的 close 函数用于退出时释放连接。
func BuildNotifier(cfg *config.Config) (notify.Notifier, func(), error) {
	discord, err := notify.NewDiscordNotifier(cfg.DiscordAPIBase, cfg.DiscordToken)
	if err != nil {
		return nil, nil, err
	}
	notifiers := notify.Multi{discord}
	closeFn := func() {}

	if cfg.AMQPURL != "" {
		an, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, fmt.Errorf("init amqp notifier: %w", err)
		}
		notifiers = append(notifiers, an)
		closeFn = func() {
			if err := an.Close(); err != nil {
				log.Printf("amqp: close: %v", err)
			}
		}
		log.Printf("amqp notifier enabled, exchange=%s", cfg.AMQPExchange)
	}

	return notifiers, closeFn, nil
}

// VendorMeta 写入 vendors 表的元数据
func VendorMeta(src *collector.Source) map[string]any {
	return map[string]any{
		"extractor": src.Extractor,
		"pattern":   src.Pattern,
		"input":     src.Input,
	}
}
