package collector

import (
	"errors"
	"fmt"
)

var (
	ErrBadStatus       = errors.New("bad status")
	ErrNetwork         = errors.New("network error")
	ErrSpawnFailed     = errors.New("extractor spawn failed")
	ErrExecIO          = errors.New("extractor io failure")
	ErrDecode          = errors.New("extractor output is not valid text")
	ErrNoProductsFound = errors.New("no products found")
	ErrBodyTooLarge    = errors.New("response body exceeds size limit")
)

// FetchError 表示抓取失败；StatusCode 不为 0 时是非 200 响应，否则是网络层错误
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrBadStatus:
		return e.StatusCode != 0
	case ErrNetwork:
		return e.StatusCode == 0
	}
	return false
}

type ExecKind int

const (
	ExecSpawn ExecKind = iota + 1
	ExecIO
	ExecDecode
)

func (k ExecKind) String() string {
	switch k {
	case ExecSpawn:
		return "spawn"
	case ExecIO:
		return "io"
	case ExecDecode:
		return "decode"
	}
	return "unknown"
}

// ExecError 表示调用提取脚本失败
type ExecError struct {
	Program string
	Kind    ExecKind
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Program, e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

func (e *ExecError) Is(target error) bool {
	switch target {
	case ErrSpawnFailed:
		return e.Kind == ExecSpawn
	case ErrExecIO:
		return e.Kind == ExecIO
	case ErrDecode:
		return e.Kind == ExecDecode
	}
	return false
}

// NoProductsError 页面正常返回但过滤后一个商品都没有，通常意味着页面结构或正则失效
type NoProductsError struct {
	Vendor string
	URL    string
}

func (e *NoProductsError) Error() string {
	return fmt.Sprintf("no products found from %s: %s", e.Vendor, e.URL)
}

func (e *NoProductsError) Is(target error) bool {
	return target == ErrNoProductsFound
}
