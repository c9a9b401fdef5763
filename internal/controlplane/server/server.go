package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/config"
	"github.com/stockbot/gostock/internal/engine"
	"github.com/stockbot/gostock/internal/history"
)

var log = logrus.WithField("module", "controlplane")

// Server 管理面 API
// 引擎方法的薄封装；默认只绑定回环地址，不做鉴权。
type Server struct {
	engine  *engine.Engine
	archive *history.Archive // 可为 nil
}

// New 创建管理面
func New(eng *engine.Engine, archive *history.Archive) *Server {
	return &Server{engine: eng, archive: archive}
}

// Router 组装路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/trading/enable", s.handleEnable(true))
	api.POST("/trading/disable", s.handleEnable(false))
	api.GET("/trading/config", s.handleConfigGet)
	api.PUT("/trading/config", s.handleConfigUpdate)
	api.GET("/trades/recent", s.handleTradesRecent)
	api.GET("/trades/stats", s.handleTradesStats)
	api.GET("/stops", s.handleStops)
	api.GET("/pending", s.handlePending)
	api.POST("/cycle/run", s.handleRunCycle)

	return r
}

// Run 启动 HTTP 服务（阻塞）
func (s *Server) Run(listen string) error {
	log.Infof("🌐 管理面监听: %s", listen)
	return http.ListenAndServe(listen, s.Router())
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handleEnable(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := s.engine.SetEnabled(enabled)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"enabled": cfg.Enabled})
	}
}

func (s *Server) handleConfigGet(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Config())
}

// handleConfigUpdate 整体覆盖式更新：请求体就是完整的 TradingConfig
func (s *Server) handleConfigUpdate(c *gin.Context) {
	var next config.TradingConfig
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	updated, err := s.engine.UpdateConfig(func(cfg *config.TradingConfig) { *cfg = next })
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleTradesRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, s.engine.RecentTrades(limit))
}

func (s *Server) handleTradesStats(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "历史档案未启用"})
		return
	}
	stats, err := s.archive.StatsBySymbol()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleStops(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.StopsSnapshot())
}

func (s *Server) handlePending(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.PendingBuys())
}

// handleRunCycle 手动触发一轮评估；引擎占用时返回 409
func (s *Server) handleRunCycle(c *gin.Context) {
	res, err := s.engine.RunCycle(c.Request.Context())
	if err != nil {
		if errors.Is(err, engine.ErrEngineBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}
