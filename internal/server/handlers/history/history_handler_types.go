package history

import "github.com/openmined/vaultsync/internal/vaultmsg"

type FilesRequest struct {
	Mode    string `form:"mode"`
	Pattern string `form:"pattern"`
}

type FilesResponse struct {
	Files []vaultmsg.FileEntry `json:"files"`
}

type VersionsRequest struct {
	Path string `form:"path" binding:"required"`
}

type VersionsResponse struct {
	Path     string  `json:"path"`
	Deleted  bool    `json:"deleted"`
	Versions []int64 `json:"versions"`
}

type ContentRequest struct {
	Path      string `form:"path" binding:"required"`
	Timestamp int64  `form:"timestamp"`
}
