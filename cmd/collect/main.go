package main

import (
	"context"
	"flag"
	"log"
	"sync"

	"github.com/LJTian/doudoubot/internal/bot"
	"github.com/LJTian/doudoubot/internal/collector"
	"github.com/LJTian/doudoubot/internal/config"
	"github.com/LJTian/doudoubot/internal/notify"
	"github.com/LJTian/doudoubot/internal/processor"
	"github.com/LJTian/doudoubot/internal/scheduler"
	"github.com/LJTian/doudoubot/internal/storage"
)

// 一个仅执行一轮轮询的命令行入口：适合手动触发采集或调试提取脚本
func main() {
	dryRun := flag.Bool("dry-run", false, "log notifications instead of sending them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	specs, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		log.Fatalf("load sources failed: %v", err)
	}
	sources, err := bot.BuildSources(specs)
	if err != nil {
		log.Fatalf("init sources failed: %v", err)
	}

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	defer store.Close()

	if err := bot.RegisterVendors(store, sources); err != nil {
		log.Fatalf("register vendors failed: %v", err)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if !*dryRun {
		n, closeNotifier, err := bot.BuildNotifier(cfg)
		if err != nil {
			log.Fatalf("init notifier failed: %v", err)
		}
		defer closeNotifier()
		notifier = n
	}

	results := make(chan collector.Result, cfg.ResultBuffer)
	messages := make(chan notify.Message, cfg.ResultBuffer)

	poller := collector.NewPoller(
		collector.NewPageFetcher(cfg.UserAgent, cfg.FetchTimeout),
		collector.NewExtractor(cfg.ExtractTimeout),
	)
	s, err := scheduler.New(cfg.CronSpec, sources, poller, results)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}

	format := notify.Formatter{ChannelID: cfg.ChannelID, Mention: cfg.Mention}
	gate := processor.NewGate(store, format, cfg.ExecFailureThreshold)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		gate.Run(ctx, results, messages)
		close(messages)
	}()
	go func() {
		defer wg.Done()
		notify.NewDispatcher(notifier).Run(ctx, messages)
	}()

	// 只执行一轮采集任务后退出
	s.RunOnce(ctx)
	close(results)
	wg.Wait()
	log.Println("collect done")
}
