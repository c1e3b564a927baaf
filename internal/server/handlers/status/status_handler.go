package status

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
	"github.com/openmined/vaultsync/internal/version"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"
)

type ConnCounter interface {
	Count() int
}

// StatusHandler reports process and data directory health to admins
type StatusHandler struct {
	dataDir string
	conns   ConnCounter
	started time.Time
}

func New(dataDir string, conns ConnCounter) *StatusHandler {
	return &StatusHandler{dataDir: dataDir, conns: conns, started: time.Now()}
}

type DiskStatus struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

type ProcessStatus struct {
	PID        int    `json:"pid"`
	RSS        uint64 `json:"rss"`
	Goroutines int    `json:"goroutines"`
}

type StatusResponse struct {
	Version     version.Info  `json:"version"`
	Uptime      int64         `json:"uptimeSeconds"`
	Connections int           `json:"connections"`
	Disk        DiskStatus    `json:"disk"`
	Process     ProcessStatus `json:"process"`
}

func (h *StatusHandler) Status(ctx *gin.Context) {
	usage, err := disk.UsageWithContext(ctx, h.dataDir)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	resp := &StatusResponse{
		Version:     version.Get(),
		Uptime:      int64(time.Since(h.started).Seconds()),
		Connections: h.conns.Count(),
		Disk: DiskStatus{
			Path:        h.dataDir,
			Total:       usage.Total,
			Free:        usage.Free,
			UsedPercent: usage.UsedPercent,
		},
		Process: ProcessStatus{
			PID:        os.Getpid(),
			Goroutines: runtime.NumGoroutine(),
		},
	}

	// rss is best effort, some sandboxes hide /proc
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
			resp.Process.RSS = mem.RSS
		}
	}

	ctx.PureJSON(http.StatusOK, resp)
}
