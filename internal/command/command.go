package command

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Remover 删除一条已记录的商品，返回受影响行数
type Remover interface {
	DeleteListing(ctx context.Context, key string) (int64, error)
}

const notUnderstood = "Hmm, I didn't quite understand that"

// Handler 处理聊天里的运维命令
type Handler struct {
	store   Remover
	vendors []string
}

func NewHandler(store Remover, vendors []string) *Handler {
	return &Handler{store: store, vendors: vendors}
}

// Handle 返回回复内容；ok 为 false 表示不是本 Handler 认识的命令
func (h *Handler) Handle(ctx context.Context, content string) (reply string, ok bool) {
	content = strings.TrimSpace(content)
	switch {
	case strings.HasPrefix(content, "!remove"):
		return h.remove(ctx, content), true
	case content == "!vendors":
		return "Currently supporting " + strings.Join(h.vendors, ", "), true
	}
	return "", false
}

// remove 取最后一个空格之后的内容作为 key
func (h *Handler) remove(ctx context.Context, content string) string {
	i := strings.LastIndex(content, " ")
	if i < 0 {
		return notUnderstood
	}
	key := content[i+1:]
	if key == "" {
		return notUnderstood
	}

	n, err := h.store.DeleteListing(ctx, key)
	if err != nil {
		log.Printf("command: remove %s failed: %v", key, err)
		return fmt.Sprintf("Problem removing %s from the database", key)
	}
	if n == 0 {
		return fmt.Sprintf("%s was not in the database", key)
	}
	return fmt.Sprintf("Okay! Removing %s", key)
}
