package vaultmsg

import "github.com/openmined/vaultsync/internal/vault"

// InventoryEntry is one path of a device's full inventory
type InventoryEntry struct {
	Path     string             `json:"path"`
	Metadata vault.FileMetadata `json:"metadata"`
}

// Sync starts a full reconciliation against the device's inventory
type Sync struct {
	Inventory []InventoryEntry `json:"inventory"`
}

func NewSync(inventory []InventoryEntry) *Message {
	return &Message{Id: generateID(), Type: MsgSync, Data: &Sync{Inventory: inventory}}
}

// SyncComplete tells a device its full reconciliation has settled
type SyncComplete struct{}

func NewSyncComplete() *Message {
	return &Message{Id: generateID(), Type: MsgSyncComplete, Data: &SyncComplete{}}
}

// FileEvent announces a single-path change on a device
type FileEvent struct {
	Metadata vault.FileMetadata `json:"metadata"`
}

func NewFileEvent(meta vault.FileMetadata) *Message {
	return &Message{Id: generateID(), Type: MsgFileEvent, Data: &FileEvent{Metadata: meta}}
}

type FileDataType string

const (
	// FileDataSend asks the receiver to send its content for Path
	FileDataSend FileDataType = "send"
	// FileDataApply carries metadata and content to apply
	FileDataApply FileDataType = "apply"
)

type FileData struct {
	Type     FileDataType        `json:"type"`
	Path     string              `json:"path"`
	Metadata *vault.FileMetadata `json:"metadata,omitempty"`
	Content  []byte              `json:"content,omitempty"`
	Binary   bool                `json:"binary,omitempty"`
}

func NewFileSend(path string) *Message {
	return &Message{Id: generateID(), Type: MsgFileData, Data: &FileData{Type: FileDataSend, Path: path}}
}

func NewFileApply(meta vault.FileMetadata, content []byte, binary bool) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgFileData,
		Data: &FileData{
			Type:     FileDataApply,
			Path:     meta.Path,
			Metadata: &meta,
			Content:  content,
			Binary:   binary,
		},
	}
}
