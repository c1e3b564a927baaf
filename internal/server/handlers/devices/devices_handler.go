package devices

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/accesslog"
	"github.com/openmined/vaultsync/internal/server/devices"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
)

var errChangesDisabled = errors.New("device change log is disabled")

const (
	defaultChangesLimit = 100
	maxChangesLimit     = 1000
)

type Describer interface {
	Describe(ctx context.Context) ([]devices.Device, error)
}

// ChangeReader reads back a device's change log
type ChangeReader interface {
	DeviceLogs(deviceID string, limit int) ([]accesslog.AccessLogEntry, error)
}

type DevicesHandler struct {
	registry Describer
	changes  ChangeReader
}

// New builds the handler. changes may be nil when the change log is off.
func New(registry Describer, changes ChangeReader) *DevicesHandler {
	return &DevicesHandler{registry: registry, changes: changes}
}

type ListResponse struct {
	Devices []devices.Device `json:"devices"`
}

type ChangesRequest struct {
	DeviceID string `uri:"id" binding:"required"`
	Limit    int    `form:"limit" binding:"omitempty,min=1"`
}

type ChangesResponse struct {
	Device  string                     `json:"device"`
	Changes []accesslog.AccessLogEntry `json:"changes"`
}

func (h *DevicesHandler) List(ctx *gin.Context) {
	list, err := h.registry.Describe(ctx)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeDeviceListFailed, err)
		return
	}
	if list == nil {
		list = []devices.Device{}
	}
	ctx.PureJSON(http.StatusOK, &ListResponse{Devices: list})
}

// Changes returns the most recent accepted changes made by one device.
func (h *DevicesHandler) Changes(ctx *gin.Context) {
	if h.changes == nil {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeNotFound, errChangesDisabled)
		return
	}

	var req ChangesRequest
	if err := ctx.ShouldBindUri(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultChangesLimit
	}
	limit = min(limit, maxChangesLimit)

	entries, err := h.changes.DeviceLogs(req.DeviceID, limit)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeDeviceChangesFailed, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &ChangesResponse{Device: req.DeviceID, Changes: entries})
}
