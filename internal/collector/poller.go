package collector

import (
	"context"
	"log"
)

// Fetcher 拉取一个数据源的页面原文
type Fetcher interface {
	Fetch(ctx context.Context, src *Source) (string, error)
}

// Invoker 把文本交给外部程序处理并返回其输出
type Invoker interface {
	Invoke(ctx context.Context, program, input string) (string, error)
}

// Poller 串起 抓取 → 提取 → 过滤
type Poller struct {
	fetcher Fetcher
	invoker Invoker
}

func NewPoller(f Fetcher, inv Invoker) *Poller {
	return &Poller{fetcher: f, invoker: inv}
}

// Poll 轮询一个数据源。
// 抓取失败视为页面暂时不可用，静默返回空结果；
// 提取成功但过滤后为空时返回 *NoProductsError，由上游发出告警。
func (p *Poller) Poll(ctx context.Context, src *Source) ([]Listing, error) {
	page, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, nil
	}

	input := page
	if src.Input != InputHTML {
		if rendered, err := RenderDOM(page); err != nil {
			log.Printf("poll %s: render dom failed, passing raw html: %v", src.Vendor, err)
		} else {
			input = rendered
		}
	}

	output, err := p.invoker.Invoke(ctx, src.Extractor, input)
	if err != nil {
		return nil, err
	}

	keys := FilterListings(output, src.Matcher())
	if len(keys) == 0 {
		return nil, &NoProductsError{Vendor: src.Vendor, URL: src.URL}
	}

	listings := make([]Listing, 0, len(keys))
	for _, k := range keys {
		listings = append(listings, Listing{Vendor: src.Vendor, Key: k})
	}
	return listings, nil
}
