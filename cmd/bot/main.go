package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/doudoubot/internal/api"
	"github.com/LJTian/doudoubot/internal/bot"
	"github.com/LJTian/doudoubot/internal/collector"
	"github.com/LJTian/doudoubot/internal/command"
	"github.com/LJTian/doudoubot/internal/config"
	"github.com/LJTian/doudoubot/internal/notify"
	"github.com/LJTian/doudoubot/internal/processor"
	"github.com/LJTian/doudoubot/internal/scheduler"
	"github.com/LJTian/doudoubot/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
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

	// 确保每个商家在 vendors 表中存在
	if err := bot.RegisterVendors(store, sources); err != nil {
		log.Fatalf("register vendors failed: %v", err)
	}
	vendors := make([]string, 0, len(sources))
	infos := make([]api.SourceInfo, 0, len(sources))
	for _, src := range sources {
		vendors = append(vendors, src.Vendor)
		infos = append(infos, api.SourceInfo{Vendor: src.Vendor, URL: src.URL, Input: src.Input})
	}

	notifier, closeNotifier, err := bot.BuildNotifier(cfg)
	if err != nil {
		log.Fatalf("init notifier failed: %v", err)
	}
	defer closeNotifier()

	results := make(chan collector.Result, cfg.ResultBuffer)
	messages := make(chan notify.Message, cfg.ResultBuffer)

	poller := collector.NewPoller(
		collector.NewPageFetcher(cfg.UserAgent, cfg.FetchTimeout),
		collector.NewExtractor(cfg.ExtractTimeout),
	)
	sched, err := scheduler.New(cfg.CronSpec, sources, poller, results)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	// 延迟执行首轮采集，等 API 先起来
	sched.StartupDelay = 5 * time.Second

	format := notify.Formatter{ChannelID: cfg.ChannelID, Mention: cfg.Mention}
	gate := processor.NewGate(store, format, cfg.ExecFailureThreshold)
	b := bot.New(sched, gate, notify.NewDispatcher(notifier), results, messages)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b.Start(ctx)

	// API
	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass, "/health"))
	}
	apiServer := api.NewServer(store, command.NewHandler(store, vendors), infos, b.Running)
	apiServer.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		log.Printf("starting api server at %s ...", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("api server exit: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	b.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("api server shutdown: %v", err)
	}
}
