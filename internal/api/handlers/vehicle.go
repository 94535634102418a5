package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListVehicles 获取车辆列表
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles, err := h.vehicleRepo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vehicles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// GetVehicle 获取车辆详情
func (h *Handler) GetVehicle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}

	vehicle, err := h.vehicleRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

// GetVehicleState 获取车辆实时状态
func (h *Handler) GetVehicleState(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}

	state, ok := h.engine.State(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle state not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": state})
}

// GetVehicleStats 获取车辆记录统计
func (h *Handler) GetVehicleStats(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}

	vehicle, err := h.vehicleRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}

	snapshotCount, _ := h.snapRepo.CountByVehicleID(c.Request.Context(), id)
	trips, chargings, refuelings, err := h.sessionRepo.CountsByVehicleID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to count sessions", zap.Error(err), zap.Int64("vehicle_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"vehicle":         vehicle,
			"snapshot_count":  snapshotCount,
			"trip_count":      trips,
			"charging_count":  chargings,
			"refueling_count": refuelings,
		},
	})
}
