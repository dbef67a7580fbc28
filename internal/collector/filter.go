package collector

import (
	"regexp"
	"strings"
)

// FilterListings 按空白切分提取脚本的输出，保留包含 pattern 匹配的 token。
// 保持原顺序，不去重（同一轮内的重复由去重门负责）。
func FilterListings(output string, pattern *regexp.Regexp) []string {
	var keys []string
	for _, tok := range strings.Fields(output) {
		if pattern.MatchString(tok) {
			keys = append(keys, tok)
		}
	}
	return keys
}
