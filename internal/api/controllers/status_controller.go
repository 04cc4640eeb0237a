package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fleetwatch/backend/internal/db"
	"github.com/fleetwatch/backend/internal/db/repository"
	"github.com/fleetwatch/backend/internal/services"
	"github.com/fleetwatch/backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// ReadingsRequest defines the query parameters for reading history
type ReadingsRequest struct {
	Start int64 `form:"start" binding:"gte=0"`
	End   int64 `form:"end" binding:"gte=0"`
	Limit int   `form:"limit" binding:"gte=0,lte=10000"`
}

// StatusController exposes the read-only monitoring surface: recent alarm
// log entries, per-device health and stored readings.
type StatusController struct {
	devices     repository.DeviceRepository
	datastreams repository.DatastreamRepository
	readings    repository.ReadingRepository
	alarmLog    *services.AlarmLogService
	logger      *utils.Logger
}

// NewStatusController creates a new status controller
func NewStatusController(database *db.Database, alarmLog *services.AlarmLogService, logger *utils.Logger) *StatusController {
	return &StatusController{
		devices:     repository.NewDeviceRepository(database.DB),
		datastreams: repository.NewDatastreamRepository(database.DB),
		readings:    repository.NewReadingRepository(database.DB),
		alarmLog:    alarmLog,
		logger:      logger.Named("status_controller"),
	}
}

// RegisterRoutes registers the status routes
func (c *StatusController) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/alarm-log", c.GetAlarmLog)
	router.GET("/devices/:dev_ui", c.GetDevice)
	router.GET("/datastreams/:id/readings", c.GetReadings)
}

// translateError maps repository errors to API errors
func translateError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrNotFound
	}
	return utils.ErrInternalServer
}

// GetAlarmLog returns a page of alarm log entries, newest first
func (c *StatusController) GetAlarmLog(ctx *gin.Context) {
	pagination := utils.GetPaginationFromContext(ctx)

	entries, total, err := c.alarmLog.ListRecent(pagination)
	if err != nil {
		utils.HandleError(ctx, translateError(err), c.logger)
		return
	}

	ctx.JSON(http.StatusOK, utils.NewPaginatedResponse(entries, pagination, int(total)))
}

// GetDevice returns a device's health state with its enabled datastreams
func (c *StatusController) GetDevice(ctx *gin.Context) {
	devUI := ctx.Param("dev_ui")

	device, err := c.devices.GetByDevUI(devUI)
	if err != nil {
		utils.HandleError(ctx, translateError(err), c.logger)
		return
	}

	streams, err := c.datastreams.ListEnabled(device.ID)
	if err != nil {
		utils.HandleError(ctx, translateError(err), c.logger)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"device":      device,
		"datastreams": streams,
	})
}

// GetReadings returns stored valid readings for a datastream within a time range
func (c *StatusController) GetReadings(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid datastream ID"})
		return
	}

	var req ReadingsRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}
	if req.End <= 0 {
		req.End = utils.NowMS()
	}
	if req.Limit <= 0 {
		req.Limit = 1000
	}

	if _, err := c.datastreams.GetByID(uint(id)); err != nil {
		utils.HandleError(ctx, translateError(err), c.logger)
		return
	}

	rows, err := c.readings.ListReadings(uint(id), req.Start, req.End, req.Limit)
	if err != nil {
		utils.HandleError(ctx, translateError(err), c.logger)
		return
	}

	ctx.JSON(http.StatusOK, rows)
}
