package vaultmsg

import "fmt"

type MessageType uint16

const (
	MsgSystem MessageType = iota
	MsgError
	MsgDeviceID
	MsgAutoSync
	MsgSync
	MsgSyncComplete
	MsgFileEvent
	MsgFileData
	MsgFileHistory
	MsgHistoryReply
)

func (t MessageType) String() string {
	switch t {
	case MsgSystem:
		return "SYSTEM"
	case MsgError:
		return "ERROR"
	case MsgDeviceID:
		return "DEVICE_ID"
	case MsgAutoSync:
		return "AUTO_SYNC"
	case MsgSync:
		return "SYNC"
	case MsgSyncComplete:
		return "SYNC_COMPLETE"
	case MsgFileEvent:
		return "FILE_EVENT"
	case MsgFileData:
		return "FILE_DATA"
	case MsgFileHistory:
		return "FILE_HISTORY"
	case MsgHistoryReply:
		return "HISTORY_REPLY"
	default:
		return fmt.Sprintf("???(%d)", t)
	}
}

// IsRPC reports whether the message is a session-level call that is
// accepted before the device has identified itself.
func (t MessageType) IsRPC() bool {
	return t == MsgDeviceID || t == MsgAutoSync || t == MsgSystem
}
