package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"txlens/internal/config"
	lenserrors "txlens/internal/errors"
	"txlens/internal/logging"
	"txlens/internal/render"
	"txlens/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Server API服务器
type Server struct {
	session    *session.Session
	config     *config.Config
	logger     *logrus.Logger
	logManager *LogManager
	server     *http.Server
	mu         sync.Mutex
	port       int
	startedAt  time.Time
}

// LookupRequest 查询请求
type LookupRequest struct {
	Hash string `json:"hash"`
}

// NewServer 创建API服务器
func NewServer(cfg *config.Config, sess *session.Session, logger *logrus.Logger, port int) *Server {
	logManager := NewLogManager(1000) // 最多保存1000条日志
	logger.AddHook(NewLogHook(logManager))

	return &Server{
		session:    sess,
		config:     cfg,
		logger:     logger,
		logManager: logManager,
		port:       port,
		startedAt:  time.Now(),
	}
}

// Handler 构建路由
func (s *Server) Handler() http.Handler {
	router := gin.New()

	// CORS
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
	router.Use(gin.Recovery())

	s.setupRoutes(router)
	return router
}

// Start 启动API服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	s.logger.Infof("API服务器启动在端口 %d", s.port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止API服务器并等待后台价格查询结束
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	s.session.Wait()
	return err
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		api.POST("/lookup", s.lookup)
		api.GET("/history", s.getHistory)
		api.GET("/prices", s.getPrices)
		api.GET("/stats", s.getStats)
		api.GET("/config", s.getConfig)

		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "txlens-api",
	})
}

// lookup 查询交易，wait=true时等待价格汇总完成再返回
func (s *Server) lookup(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.session.Lookup(c.Request.Context(), req.Hash)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	prices := s.session.Snapshot().Prices
	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		s.session.Wait()
		if view := s.session.Snapshot(); view.Generation == result.Generation {
			prices = view.Prices
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"generation": result.Generation,
		"via_router": result.ViaRouter,
		"view":       render.BuildView(result.Entry, result.Logs, prices),
	})
}

// statusFor 错误类型对应的HTTP状态码
func statusFor(err error) int {
	switch {
	case lenserrors.IsValidation(err):
		return http.StatusBadRequest
	case lenserrors.IsNotFound(err):
		return http.StatusNotFound
	case lenserrors.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) getHistory(c *gin.Context) {
	view := s.session.Snapshot()
	views := render.BuildHistory(view.History, view.Logs, view.Prices, s.session.Decoder().Decode)

	c.JSON(http.StatusOK, gin.H{
		"history":    views,
		"total":      len(views),
		"generation": view.Generation,
	})
}

func (s *Server) getPrices(c *gin.Context) {
	view := s.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"tx_hash":    view.CurrentHash,
		"generation": view.Generation,
		"prices":     view.Prices,
	})
}

func (s *Server) getStats(c *gin.Context) {
	view := s.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"lookups":    len(view.History),
		"generation": view.Generation,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"errors":     s.session.Stats().Snapshot(),
	})
}

// getConfig 返回生效的配置，隐藏API Key
func (s *Server) getConfig(c *gin.Context) {
	if s.config == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "配置未初始化"})
		return
	}

	node := *s.config.Node
	if node.APIKey != "" {
		node.APIKey = "***"
	}
	c.JSON(http.StatusOK, gin.H{
		"node": gin.H{
			"name":     node.Name,
			"endpoint": logging.RedactURL(s.config.Node.Endpoint()),
			"api_key":  node.APIKey,
			"timeout":  node.Timeout,
		},
		"pricing":  s.config.Pricing,
		"registry": s.config.Registry,
		"output":   s.config.Output,
	})
}

func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")

	page := 1 // 默认第1页
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}

	pageSize := 20 // 默认每页20条
	if ps, err := strconv.Atoi(c.Query("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()

	c.JSON(http.StatusOK, gin.H{
		"message": "日志已清空",
	})
}
