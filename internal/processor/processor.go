package processor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/LJTian/doudoubot/internal/collector"
	"github.com/LJTian/doudoubot/internal/notify"
	"github.com/LJTian/doudoubot/internal/storage"
	"golang.org/x/time/rate"
)

// SeenStore 是去重门需要的存储能力
type SeenStore interface {
	HasListing(ctx context.Context, key string) (bool, error)
	InsertIfAbsent(ctx context.Context, key, vendor string, at time.Time) (storage.InsertResult, error)
}

// NewListing 第一次见到某个商品时产生的事件
type NewListing struct {
	Vendor string
	Key    string
}

const (
	defaultFailureThreshold = 5
	escalateEvery           = time.Hour
)

// Gate 是合并通道的唯一消费者。
// 所有候选商品按到达顺序逐条处理，同一轮里重复的 key 不会出现“都查不到、都插入”的竞争；
// 存储层的唯一约束是第二道防线。
type Gate struct {
	store     SeenStore
	format    notify.Formatter
	threshold int
	now       func() time.Time

	// 以下状态只在 Run 所在的 goroutine 中访问
	spawnFailures map[string]int
	limiters      map[string]*rate.Limiter
}

func NewGate(store SeenStore, format notify.Formatter, failureThreshold int) *Gate {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	return &Gate{
		store:         store,
		format:        format,
		threshold:     failureThreshold,
		now:           time.Now,
		spawnFailures: make(map[string]int),
		limiters:      make(map[string]*rate.Limiter),
	}
}

// Process 处理一个候选商品，只有首次出现且写入成功时返回事件
func (g *Gate) Process(ctx context.Context, l collector.Listing) (*NewListing, bool) {
	seen, err := g.store.HasListing(ctx, l.Key)
	if err != nil {
		// 无法确定是否存在时宁可漏报，下一轮会再发现
		log.Printf("gate: lookup %s failed, dropping: %v", l.Key, err)
		return nil, false
	}
	if seen {
		return nil, false
	}

	res, err := g.store.InsertIfAbsent(ctx, l.Key, l.Vendor, g.now())
	if err != nil {
		log.Printf("gate: insert %s failed, dropping: %v", l.Key, err)
		return nil, false
	}
	if res != storage.Inserted {
		return nil, false
	}

	log.Printf("gate: new product found from %s: %s", l.Vendor, l.Key)
	return &NewListing{Vendor: l.Vendor, Key: l.Key}, true
}

// Run 消费合并通道直到其关闭或 ctx 结束，需要发到聊天频道的消息写入 out
func (g *Gate) Run(ctx context.Context, in <-chan collector.Result, out chan<- notify.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			for _, m := range g.Handle(ctx, r) {
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Handle 把一条合并结果转换成要发送的消息（可能为空）
func (g *Gate) Handle(ctx context.Context, r collector.Result) []notify.Message {
	vendor := r.Listing.Vendor
	if r.Source != nil {
		vendor = r.Source.Vendor
	}

	if r.Err == nil {
		g.resetFailures(vendor)
		ev, ok := g.Process(ctx, r.Listing)
		if !ok {
			return nil
		}
		return []notify.Message{g.format.NewListing(ev.Vendor, ev.Key)}
	}

	var npe *collector.NoProductsError
	switch {
	case errors.As(r.Err, &npe):
		g.resetFailures(vendor)
		log.Printf("gate: %v", r.Err)
		return []notify.Message{g.format.NoProducts(npe.Vendor, npe.URL)}
	case errors.Is(r.Err, collector.ErrSpawnFailed):
		g.spawnFailures[vendor]++
		n := g.spawnFailures[vendor]
		log.Printf("gate: poll %s failed (%d in a row): %v", vendor, n, r.Err)
		if n >= g.threshold && g.limiter(vendor).Allow() {
			return []notify.Message{g.format.ExtractorFailing(vendor, r.Err)}
		}
		return nil
	default:
		log.Printf("gate: poll %s failed: %v", vendor, r.Err)
		return nil
	}
}

func (g *Gate) resetFailures(vendor string) {
	delete(g.spawnFailures, vendor)
}

// limiter 每个商家一小时最多告警一次
func (g *Gate) limiter(vendor string) *rate.Limiter {
	l, ok := g.limiters[vendor]
	if !ok {
		l = rate.NewLimiter(rate.Every(escalateEvery), 1)
		g.limiters[vendor] = l
	}
	return l
}
