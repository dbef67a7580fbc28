package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/LJTian/doudoubot/internal/storage"
	"github.com/gin-gonic/gin"
)

// ListingStore 是 API 需要的存储能力
type ListingStore interface {
	ListListings(ctx context.Context, vendor string, limit int) ([]storage.SeenListing, error)
	DeleteListing(ctx context.Context, key string) (int64, error)
	ListVendors(ctx context.Context) ([]storage.Vendor, error)
}

// CommandHandler 处理与聊天中相同的文本命令
type CommandHandler interface {
	Handle(ctx context.Context, content string) (string, bool)
}

// SourceInfo 对外展示的数据源信息
type SourceInfo struct {
	Vendor string `json:"vendor"`
	URL    string `json:"url"`
	Input  string `json:"input"`
}

type Server struct {
	store    ListingStore
	commands CommandHandler
	sources  []SourceInfo
	polling  func() bool
}

// NewServer polling 用于在 /health 中报告轮询循环是否已启动，可以为 nil
func NewServer(store ListingStore, commands CommandHandler, sources []SourceInfo, polling func() bool) *Server {
	return &Server{store: store, commands: commands, sources: sources, polling: polling}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/sources", s.listSources)
		v1.GET("/vendors", s.listVendors)
		v1.GET("/listings", s.listListings)
		v1.DELETE("/listings", s.deleteListing)
		v1.POST("/commands", s.runCommand)
	}
}

func (s *Server) health(c *gin.Context) {
	polling := s.polling != nil && s.polling()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "polling": polling})
}

func (s *Server) listSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    s.sources,
	})
}

// listVendors 返回 vendors 表中启用的商家及其元数据
func (s *Server) listVendors(c *gin.Context) {
	list, err := s.store.ListVendors(c.Request.Context())
	if err != nil {
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    list,
	})
}

func (s *Server) listListings(c *gin.Context) {
	vendor := c.Query("vendor")

	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 50
	}

	items, err := s.store.ListListings(c.Request.Context(), vendor, limit)
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) deleteListing(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_argument",
			"message": "key is required",
		})
		return
	}

	n, err := s.store.DeleteListing(c.Request.Context(), key)
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    gin.H{"rowsAffected": n},
	})
}

type commandRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) runCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_argument",
			"message": "content is required",
		})
		return
	}

	reply, ok := s.commands.Handle(c.Request.Context(), req.Content)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "unknown_command",
			"message": "unknown command",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    gin.H{"reply": reply},
	})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}

// BasicAuth 用固定的用户名密码保护路由；exempt 中的路径（如健康检查）不做认证
func BasicAuth(user, pass string, exempt ...string) gin.HandlerFunc {
	wantUser, wantPass := []byte(user), []byte(pass)
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.FullPath()]; ok {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), wantUser)&subtle.ConstantTimeCompare([]byte(p), wantPass) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="doudoubot"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "invalid credentials",
			})
			return
		}
		c.Next()
	}
}
