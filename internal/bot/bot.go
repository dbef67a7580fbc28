package bot

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/LJTian/doudoubot/internal/collector"
	"github.com/LJTian/doudoubot/internal/notify"
	"github.com/LJTian/doudoubot/internal/processor"
	"github.com/LJTian/doudoubot/internal/scheduler"
)

// Scheduler 是 Bot 驱动的定时器
type Scheduler interface {
	Start(ctx context.Context)
	Stop()
}

var _ Scheduler = (*scheduler.Scheduler)(nil)

// Bot 持有常驻任务：调度器、去重门、消息投递。
// 网关的 ready 回调可能触发多次，Start 只有第一次生效。
type Bot struct {
	running atomic.Bool

	sched      Scheduler
	gate       *processor.Gate
	dispatcher *notify.Dispatcher

	results  <-chan collector.Result
	messages chan notify.Message
}

func New(sched Scheduler, gate *processor.Gate, dispatcher *notify.Dispatcher, results <-chan collector.Result, messages chan notify.Message) *Bot {
	return &Bot{
		sched:      sched,
		gate:       gate,
		dispatcher: dispatcher,
		results:    results,
		messages:   messages,
	}
}

// Start 启动所有后台任务，返回 false 表示已经在运行
func (b *Bot) Start(ctx context.Context) bool {
	if !b.running.CompareAndSwap(false, true) {
		log.Println("bot: loop already running, skip")
		return false
	}

	go b.dispatcher.Run(ctx, b.messages)
	go b.gate.Run(ctx, b.results, b.messages)
	b.sched.Start(ctx)

	log.Println("bot: polling loop started")
	return true
}

func (b *Bot) Running() bool {
	return b.running.Load()
}

// Stop 停止定时调度；已发出的轮询允许自行结束
func (b *Bot) Stop() {
	b.sched.Stop()
}
