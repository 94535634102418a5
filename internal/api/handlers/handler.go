package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/cartrace/internal/repository"
	"github.com/langchou/cartrace/internal/service"
	"github.com/langchou/cartrace/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger      *zap.Logger
	vehicleRepo *repository.VehicleRepository
	snapRepo    *repository.SnapshotRepository
	sessionRepo *repository.SessionRepository
	engine      *service.Engine
	wsHub       *ws.Hub
	upgrader    websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	vehicleRepo *repository.VehicleRepository,
	snapRepo *repository.SnapshotRepository,
	sessionRepo *repository.SessionRepository,
	engine *service.Engine,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:      logger,
		vehicleRepo: vehicleRepo,
		snapRepo:    snapRepo,
		sessionRepo: sessionRepo,
		engine:      engine,
		wsHub:       wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// 运维用 API，不提供历史记录查询
	api := r.Group("/api")
	{
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:id", h.GetVehicle)
		api.GET("/vehicles/:id/state", h.GetVehicleState)
		api.GET("/vehicles/:id/stats", h.GetVehicleStats)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
