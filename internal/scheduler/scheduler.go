package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/LJTian/doudoubot/internal/collector"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Poller 轮询单个数据源
type Poller interface {
	Poll(ctx context.Context, src *collector.Source) ([]collector.Listing, error)
}

// Scheduler 每个 tick 为每个数据源启动一个独立的 goroutine，
// 结果统一写入同一个有界通道，由下游单一消费者处理。
// 不等待上一轮结束，慢的数据源可能出现重叠轮询。
type Scheduler struct {
	cron    *cron.Cron
	sources []*collector.Source
	poller  Poller
	out     chan<- collector.Result

	// StartupDelay 启动后首轮采集的延迟，0 表示立即执行
	StartupDelay time.Duration

	mu  sync.Mutex
	ctx context.Context
}

func New(spec string, sources []*collector.Source, p Poller, out chan<- collector.Result) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:    c,
		sources: sources,
		poller:  p,
		out:     out,
		ctx:     context.Background(),
	}

	_, err := c.AddFunc(spec, s.tick)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Start 开始定时调度；ctx 结束后不再发起新的轮询，进行中的轮询放弃发送结果
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	time.AfterFunc(s.StartupDelay, s.tick)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop 停止 cron，不等待进行中的轮询
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunOnce 对所有数据源执行一轮轮询，并等待全部完成，方便手动触发采集
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.run(ctx).Wait()
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) *sync.WaitGroup {
	runID := uuid.NewString()[:8]
	log.Printf("scheduler: tick %s, polling %d sources", runID, len(s.sources))

	var wg sync.WaitGroup
	for _, src := range s.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.pollSource(ctx, runID, src)
		}()
	}
	return &wg
}

func (s *Scheduler) pollSource(ctx context.Context, runID string, src *collector.Source) {
	listings, err := s.poller.Poll(ctx, src)
	if err != nil {
		s.send(ctx, collector.Result{Source: src, Err: err})
		return
	}
	if len(listings) > 0 {
		log.Printf("scheduler: tick %s, %s yielded %d candidates", runID, src.Vendor, len(listings))
	}
	for _, l := range listings {
		if !s.send(ctx, collector.Result{Source: src, Listing: l}) {
			return
		}
	}
}

// send 通道满时阻塞等待（背压），而不是丢弃
func (s *Scheduler) send(ctx context.Context, r collector.Result) bool {
	select {
	case s.out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
