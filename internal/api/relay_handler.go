package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/relayctl/internal/protocol/relay"
	"github.com/taoyao-code/relayctl/internal/relayclient"
	"github.com/taoyao-code/relayctl/internal/service"
	"github.com/taoyao-code/relayctl/internal/storage/pg"
	redisstorage "github.com/taoyao-code/relayctl/internal/storage/redis"
)

// RelayOperator 网关对继电器板的操作，*service.RelayService 实现
type RelayOperator interface {
	DeviceAddr() string
	Ping(ctx context.Context) (string, error)
	Status(ctx context.Context) (*service.RelayStatus, error)
	CachedStatus(ctx context.Context) (*service.RelayStatus, error)
	SetRelay(ctx context.Context, id byte, on bool) (string, error)
	ToggleRelay(ctx context.Context, id byte) (string, error)
	SetAll(ctx context.Context, mask byte) (string, error)
}

// CommandHistory 指令日志查询，*pg.Repository 实现
type CommandHistory interface {
	ListRecent(ctx context.Context, deviceAddr string, limit int) ([]pg.CommandLog, error)
}

// RelayHandler 继电器 HTTP 处理器
type RelayHandler struct {
	ops     RelayOperator
	history CommandHistory
	logger  *zap.Logger
}

// NewRelayHandler history 可为 nil（未启用数据库）
func NewRelayHandler(ops RelayOperator, history CommandHistory, logger *zap.Logger) *RelayHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayHandler{ops: ops, history: history, logger: logger}
}

type setRelayRequest struct {
	On *bool `json:"on" binding:"required"`
}

type setAllRequest struct {
	Mask string `json:"mask" binding:"required"`
}

// GetStatus GET /api/relays
func (h *RelayHandler) GetStatus(c *gin.Context) {
	st, err := h.ops.Status(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetCachedStatus GET /api/relays/cached
func (h *RelayHandler) GetCachedStatus(c *gin.Context) {
	st, err := h.ops.CachedStatus(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, st)
	case errors.Is(err, service.ErrCacheDisabled):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "cache_disabled", "message": err.Error()})
	case errors.Is(err, redisstorage.ErrStatusNotCached):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_cached", "message": err.Error()})
	default:
		h.logger.Error("read cached status failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache_error", "message": err.Error()})
	}
}

// Ping POST /api/ping
func (h *RelayHandler) Ping(c *gin.Context) {
	id, err := h.ops.Ping(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"command_id": id, "result": "pong"})
}

// SetRelay PUT /api/relays/:id {"on":true}
func (h *RelayHandler) SetRelay(c *gin.Context) {
	id, ok := h.relayID(c)
	if !ok {
		return
	}
	var req setRelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	cmdID, err := h.ops.SetRelay(c.Request.Context(), id, *req.On)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"command_id": cmdID, "result": "ok", "relay": id, "on": *req.On})
}

// ToggleRelay POST /api/relays/:id/toggle
func (h *RelayHandler) ToggleRelay(c *gin.Context) {
	id, ok := h.relayID(c)
	if !ok {
		return
	}
	cmdID, err := h.ops.ToggleRelay(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"command_id": cmdID, "result": "ok", "relay": id})
}

// SetAll PUT /api/relays {"mask":"0x0F"}
func (h *RelayHandler) SetAll(c *gin.Context) {
	var req setAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	mask, err := relay.ParseMask(req.Mask)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_mask", "message": err.Error()})
		return
	}
	cmdID, err := h.ops.SetAll(c.Request.Context(), mask)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"command_id": cmdID, "result": "ok", "mask": mask})
}

// ListCommands GET /api/commands?limit=50
func (h *RelayHandler) ListCommands(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history_disabled"})
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	list, err := h.history.ListRecent(c.Request.Context(), h.ops.DeviceAddr(), limit)
	if err != nil {
		h.logger.Error("list command log failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	if list == nil {
		list = []pg.CommandLog{}
	}
	c.JSON(http.StatusOK, gin.H{"device_addr": h.ops.DeviceAddr(), "commands": list})
}

func (h *RelayHandler) relayID(c *gin.Context) (byte, bool) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_relay_id", "message": "relay id must be 0..255"})
		return 0, false
	}
	return byte(n), true
}

// writeError 设备拒绝 422，协议错误 502，熔断 503，超时 504，其他传输错误 502
func (h *RelayHandler) writeError(c *gin.Context, err error) {
	result := service.Classify(err)
	body := gin.H{"error": result, "message": err.Error()}
	status := http.StatusBadGateway

	switch result {
	case service.ResultDeviceError:
		status = http.StatusUnprocessableEntity
		if de, ok := relayclient.IsDeviceError(err); ok {
			body["device_code"] = de.Code
		}
	case service.ResultRejected:
		status = http.StatusServiceUnavailable
	case service.ResultTransportError:
		if relayclient.IsTimeout(err) {
			status = http.StatusGatewayTimeout
		}
	}
	c.JSON(status, body)
}
