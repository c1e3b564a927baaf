package history

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
	"github.com/openmined/vaultsync/internal/server/reconcile"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/openmined/vaultsync/internal/vault"
)

// HistoryHandler exposes read-only vault history over HTTP
type HistoryHandler struct {
	history *reconcile.History
}

func New(history *reconcile.History) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func (h *HistoryHandler) Files(ctx *gin.Context) {
	var req FilesRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	files, err := h.history.Files(ctx, req.Mode, req.Pattern)
	if err != nil {
		abortWithHistoryError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &FilesResponse{Files: files})
}

func (h *HistoryHandler) Versions(ctx *gin.Context) {
	var req VersionsRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	deleted, versions, err := h.history.Versions(ctx, req.Path)
	if err != nil {
		abortWithHistoryError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &VersionsResponse{
		Path:     req.Path,
		Deleted:  deleted,
		Versions: versions,
	})
}

// Content streams the current content of a path, or one historical version
// when timestamp is set.
func (h *HistoryHandler) Content(ctx *gin.Context) {
	var req ContentRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}
	if req.Timestamp < 0 {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeHistoryInvalidQuery,
			fmt.Errorf("invalid timestamp %d", req.Timestamp))
		return
	}

	content, err := h.history.Read(ctx, req.Path, req.Timestamp)
	if err != nil {
		abortWithHistoryError(ctx, err)
		return
	}

	ctx.Header("Content-Length", strconv.Itoa(len(content)))
	ctx.Data(http.StatusOK, utils.DetectContentType(req.Path, vault.IsBinaryPath(req.Path)), content)
}

func abortWithHistoryError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeHistoryNotFound, err)
	case errors.Is(err, vault.ErrInvalidPath):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeHistoryInvalidPath, err)
	case errors.Is(err, reconcile.ErrInvalidPattern):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeHistoryInvalidQuery, err)
	default:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeHistoryQueryFailed, err)
	}
}
