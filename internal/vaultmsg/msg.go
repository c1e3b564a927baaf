package vaultmsg

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/openmined/vaultsync/internal/utils"
)

const IdSize = 3

type Message struct {
	Id   string      `json:"id"`
	Type MessageType `json:"typ"`
	Data any         `json:"dat"`
}

// UnmarshalJSON decodes Data into the payload type matching Type.
// Decoded payloads are values, not pointers.
func (m *Message) UnmarshalJSON(data []byte) error {
	type tempMessage struct {
		Id   string          `json:"id"`
		Type MessageType     `json:"typ"`
		Data json.RawMessage `json:"dat"`
	}

	var temp tempMessage
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	m.Id = temp.Id
	m.Type = temp.Type

	payload, err := DecodePayload(m.Type, temp.Data, json.Unmarshal)
	if err != nil {
		return err
	}
	m.Data = payload
	return nil
}

// DecodePayload decodes raw into the payload type registered for t, using
// whichever codec produced raw.
func DecodePayload(t MessageType, raw []byte, unmarshal func([]byte, any) error) (any, error) {
	switch t {
	case MsgSystem:
		return decodeAs[System](raw, unmarshal)
	case MsgError:
		return decodeAs[Error](raw, unmarshal)
	case MsgDeviceID:
		return decodeAs[DeviceID](raw, unmarshal)
	case MsgAutoSync:
		return decodeAs[AutoSync](raw, unmarshal)
	case MsgSync:
		return decodeAs[Sync](raw, unmarshal)
	case MsgSyncComplete:
		return decodeAs[SyncComplete](raw, unmarshal)
	case MsgFileEvent:
		return decodeAs[FileEvent](raw, unmarshal)
	case MsgFileData:
		return decodeAs[FileData](raw, unmarshal)
	case MsgFileHistory:
		return decodeAs[FileHistory](raw, unmarshal)
	case MsgHistoryReply:
		return decodeAs[HistoryReply](raw, unmarshal)
	default:
		return nil, fmt.Errorf("unknown message type: %d", t)
	}
}

func decodeAs[T any](raw []byte, unmarshal func([]byte, any) error) (any, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Payload extracts Data as T whether it holds a T or a *T.
func Payload[T any](m *Message) (T, bool) {
	var zero T
	if m == nil {
		return zero, false
	}
	switch v := m.Data.(type) {
	case T:
		return v, true
	case *T:
		if v == nil {
			return zero, false
		}
		return *v, true
	default:
		return zero, false
	}
}

func generateID() string {
	return utils.TokenHex(IdSize)
}
