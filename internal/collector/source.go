package collector

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// 传给提取脚本的页面格式
const (
	InputJSON = "json" // 解析后的 DOM 树（JSON），默认
	InputHTML = "html" // 原始 HTML
)

// Source 描述一个被监控的商品页，启动时构建一次，之后只读共享
type Source struct {
	Vendor    string
	URL       string
	Extractor string
	Pattern   string
	Input     string

	re *regexp.Regexp
}

// NewSource 校验并构建 Source：正则必须能编译、提取脚本必须存在，
// 任何一项失败都属于配置错误，应在启动时直接退出。
func NewSource(vendor, url, extractor, pattern, input string) (*Source, error) {
	vendor = strings.TrimSpace(vendor)
	if vendor == "" {
		return nil, fmt.Errorf("source: vendor is required")
	}
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("source %s: url is required", vendor)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("source %s: invalid pattern %q: %w", vendor, pattern, err)
	}

	switch input {
	case "":
		input = InputJSON
	case InputJSON, InputHTML:
	default:
		return nil, fmt.Errorf("source %s: unknown input mode %q", vendor, input)
	}

	if _, err := exec.LookPath(extractor); err != nil {
		return nil, fmt.Errorf("source %s: extractor %q: %w", vendor, extractor, err)
	}

	return &Source{
		Vendor:    vendor,
		URL:       url,
		Extractor: extractor,
		Pattern:   pattern,
		Input:     input,
		re:        re,
	}, nil
}

// Matcher 返回编译好的匹配正则
func (s *Source) Matcher() *regexp.Regexp {
	return s.re
}

// Listing 是一次轮询得到的候选商品
type Listing struct {
	Vendor string
	Key    string
}

// Result 是合并通道中的一条记录：要么是一个候选商品，要么是一次轮询的错误
type Result struct {
	Source  *Source
	Listing Listing
	Err     error
}
