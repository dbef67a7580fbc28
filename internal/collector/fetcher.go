package collector

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	DefaultUserAgent    = "DoudouBot/1.0 (+https://github.com/LJTian/doudoubot)"
	defaultFetchTimeout = 20 * time.Second
	DefaultMaxBodySize  = 32 << 20
)

// PageFetcher 用 colly 拉取单个页面，只接受 200。
// 超过 MaxBodySize 的页面按抓取失败处理，不返回截断的内容。
type PageFetcher struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

func NewPageFetcher(userAgent string, timeout time.Duration) *PageFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &PageFetcher{UserAgent: userAgent, Timeout: timeout, MaxBodySize: DefaultMaxBodySize}
}

// Fetch 返回页面原文；失败时返回 *FetchError，这里不做重试，下一轮调度即重试
func (f *PageFetcher) Fetch(ctx context.Context, src *Source) (string, error) {
	timeout := f.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil || timeout <= 0 {
		if err == nil {
			err = context.DeadlineExceeded
		}
		return "", &FetchError{URL: src.URL, Err: err}
	}

	limit := f.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}

	// 每次抓取新建 collector，避免 colly 的已访问记录阻止下一轮重新访问。
	// colly 到达上限时静默截断，所以多读 1 字节用来判断是否超限
	c := colly.NewCollector(
		colly.UserAgent(f.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(limit+1),
	)
	c.SetRequestTimeout(timeout)

	var (
		status int
		body   []byte
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(src.URL); err != nil {
		if status != 0 {
			log.Printf("fetch %s: got status code %d", src.URL, status)
			return "", &FetchError{URL: src.URL, StatusCode: status, Err: err}
		}
		log.Printf("fetch %s: request failed: %v", src.URL, err)
		return "", &FetchError{URL: src.URL, Err: err}
	}

	// colly 把 201/202 也当作成功，这里只认 200
	if status != http.StatusOK {
		log.Printf("fetch %s: got status code %d", src.URL, status)
		return "", &FetchError{URL: src.URL, StatusCode: status, Err: ErrBadStatus}
	}

	if len(body) > limit {
		log.Printf("fetch %s: body larger than %d bytes", src.URL, limit)
		return "", &FetchError{URL: src.URL, Err: ErrBodyTooLarge}
	}

	return string(body), nil
}
