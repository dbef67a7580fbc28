package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const discordMaxContentRunes = 2000

// DiscordNotifier 通过 discordgo 的 REST 接口向频道发消息。
// 只用到 bot token，不调用 Open，因此不会建立 gateway 连接。
type DiscordNotifier struct {
	session *discordgo.Session
}

// NewDiscordNotifier apiBase 为空时直连 Discord；否则把 REST 请求改写到该地址（自建代理或测试桩）
func NewDiscordNotifier(apiBase, token string) (*DiscordNotifier, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Client = &http.Client{Timeout: 10 * time.Second}
	s.MaxRestRetries = 1

	if apiBase != "" {
		base, err := url.Parse(strings.TrimRight(apiBase, "/"))
		if err != nil || base.Host == "" {
			return nil, fmt.Errorf("discord: invalid api base %q", apiBase)
		}
		apiURL, _ := url.Parse(discordgo.EndpointAPI)
		s.Client.Transport = &rewriteTransport{
			base:   base,
			prefix: strings.TrimRight(apiURL.Path, "/"),
			next:   http.DefaultTransport,
		}
	}
	return &DiscordNotifier{session: s}, nil
}

func (d *DiscordNotifier) Deliver(ctx context.Context, channelID, text string) error {
	// Discord 单条消息上限 2000 字符
	if rs := []rune(text); len(rs) > discordMaxContentRunes {
		text = string(rs[:discordMaxContentRunes-1]) + "…"
	}
	if _, err := d.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// rewriteTransport 把 https://discord.com/api/vN/... 改写为 {base}/...
type rewriteTransport struct {
	base   *url.URL
	prefix string
	next   http.RoundTripper
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.base.Scheme
	r.URL.Host = t.base.Host
	r.URL.Path = t.base.Path + strings.TrimPrefix(req.URL.Path, t.prefix)
	r.URL.RawPath = ""
	r.Host = t.base.Host
	return t.next.RoundTrip(r)
}
