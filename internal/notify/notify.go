package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Notifier 把一段文本投递到聊天频道
type Notifier interface {
	Deliver(ctx context.Context, channelID, text string) error
}

// Message 是待投递的一条消息
type Message struct {
	ChannelID string
	Text      string
}

// Formatter 生成核心流程会发出的几类消息
type Formatter struct {
	ChannelID string
	Mention   string // 例如 "@here"，为空则不加
}

func (f Formatter) NewListing(vendor, key string) Message {
	return f.message(fmt.Sprintf("New product from %s: %s", vendor, key))
}

func (f Formatter) NoProducts(vendor, url string) Message {
	return f.message(fmt.Sprintf("No products found from %s: %s", vendor, url))
}

func (f Formatter) ExtractorFailing(vendor string, err error) Message {
	return f.message(fmt.Sprintf("Extractor for %s keeps failing: %v", vendor, err))
}

func (f Formatter) message(text string) Message {
	if m := strings.TrimSpace(f.Mention); m != "" {
		text = m + " " + text
	}
	return Message{ChannelID: f.ChannelID, Text: text}
}

// LogNotifier 只打日志，没有配置任何投递渠道时使用
type LogNotifier struct{}

func (LogNotifier) Deliver(ctx context.Context, channelID, text string) error {
	log.Printf("notify [%s]: %s", channelID, text)
	return nil
}

// Multi 依次投递到所有 Notifier，错误合并返回
type Multi []Notifier

func (m Multi) Deliver(ctx context.Context, channelID, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Deliver(ctx, channelID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const deliverTimeout = 10 * time.Second

// Dispatcher 是唯一的投递消费者：按到达顺序逐条投递，失败只记日志不重试
type Dispatcher struct {
	n Notifier
}

func NewDispatcher(n Notifier) *Dispatcher {
	return &Dispatcher{n: n}
}

// Run 阻塞直到 in 被关闭或 ctx 结束
func (d *Dispatcher) Run(ctx context.Context, in <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			d.deliver(ctx, m)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	if err := d.n.Deliver(ctx, m.ChannelID, m.Text); err != nil {
		log.Printf("notify: deliver to %s failed: %v", m.ChannelID, err)
	}
}
