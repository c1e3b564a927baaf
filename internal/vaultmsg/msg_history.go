package vaultmsg

type HistoryQuery string

const (
	HistoryListVersions HistoryQuery = "list_versions"
	HistoryListFiles    HistoryQuery = "list_files"
	HistoryRead         HistoryQuery = "read"
)

// HistoryModeDeleted selects tombstones in a list_files query
const HistoryModeDeleted = "deleted"

// FileHistory is a read-only query against the vault
type FileHistory struct {
	Type      HistoryQuery `json:"type"`
	Path      string       `json:"path,omitempty"`
	Mode      string       `json:"mode,omitempty"`
	Pattern   string       `json:"pattern,omitempty"`
	Timestamp int64        `json:"timestamp,omitempty"`
	Binary    bool         `json:"binary,omitempty"`
}

func NewFileHistory(query FileHistory) *Message {
	return &Message{Id: generateID(), Type: MsgFileHistory, Data: &query}
}

type FileEntry struct {
	Path  string `json:"path"`
	MTime int64  `json:"mtime"`
}

// HistoryReply answers a FileHistory query. OriginalId correlates it
// with the request.
type HistoryReply struct {
	OriginalId string      `json:"oid"`
	Deleted    bool        `json:"deleted,omitempty"`
	Versions   []int64     `json:"versions,omitempty"`
	Files      []FileEntry `json:"files,omitempty"`
	Content    []byte      `json:"content,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func NewHistoryReply(originalID string, reply HistoryReply) *Message {
	reply.OriginalId = originalID
	return &Message{Id: generateID(), Type: MsgHistoryReply, Data: &reply}
}
