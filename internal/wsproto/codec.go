package wsproto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coder/websocket"
	"github.com/openmined/vaultsync/internal/vaultmsg"
	"github.com/vmihailenco/msgpack/v5"
)

// Encoding indicates which wire encoding is used for WebSocket messages.
type Encoding uint8

const (
	EncodingJSON Encoding = iota
	EncodingMsgPack
)

func (e Encoding) String() string {
	switch e {
	case EncodingMsgPack:
		return "msgpack"
	default:
		return "json"
	}
}

// HeaderEncoding carries a client's encoding preference list at upgrade time
const HeaderEncoding = "X-Vault-Encoding"

const (
	magic0  = byte('V')
	magic1  = byte('S')
	version = byte(1)
)

var ErrMissingEnvelope = errors.New("binary message missing VS envelope")

// PreferredEncoding parses a comma-separated preference list (e.g. "msgpack,json").
// Returns EncodingJSON if list is empty/unknown.
func PreferredEncoding(list string) Encoding {
	for _, p := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "msgpack":
			return EncodingMsgPack
		case "json":
			return EncodingJSON
		}
	}
	return EncodingJSON
}

// Marshal encodes a message for WebSocket transport.
// JSON goes out as a text frame. MsgPack goes out as a binary frame wrapped in
// an envelope: [magic][version][encoding][payload].
func Marshal(msg *vaultmsg.Message, enc Encoding) (websocket.MessageType, []byte, error) {
	if enc == EncodingJSON {
		data, err := jsonMarshal(msg)
		return websocket.MessageText, data, err
	}

	payload, err := marshalMsgpack(msg)
	if err != nil {
		return websocket.MessageBinary, nil, err
	}

	buf := make([]byte, 4+len(payload))
	buf[0], buf[1], buf[2], buf[3] = magic0, magic1, version, byte(enc)
	copy(buf[4:], payload)
	return websocket.MessageBinary, buf, nil
}

// Unmarshal decodes a WebSocket frame. Text frames are plain JSON.
func Unmarshal(typ websocket.MessageType, data []byte) (*vaultmsg.Message, Encoding, error) {
	switch typ {
	case websocket.MessageText:
		var msg vaultmsg.Message
		if err := jsonUnmarshal(data, &msg); err != nil {
			return nil, EncodingJSON, err
		}
		return &msg, EncodingJSON, nil

	case websocket.MessageBinary:
		if len(data) < 4 || data[0] != magic0 || data[1] != magic1 {
			return nil, EncodingMsgPack, ErrMissingEnvelope
		}
		if data[2] != version {
			return nil, EncodingMsgPack, fmt.Errorf("unsupported ws envelope version: %d", data[2])
		}
		enc := Encoding(data[3])
		payload := data[4:]
		switch enc {
		case EncodingMsgPack:
			msg, err := unmarshalMsgpack(payload)
			return msg, enc, err
		case EncodingJSON:
			var msg vaultmsg.Message
			if err := jsonUnmarshal(payload, &msg); err != nil {
				return nil, enc, err
			}
			return &msg, enc, nil
		default:
			return nil, enc, fmt.Errorf("unknown ws encoding: %d", enc)
		}

	default:
		return nil, EncodingJSON, fmt.Errorf("unsupported websocket message type: %v", typ)
	}
}

// wireMessage keeps the payload as nested msgpack bytes so the envelope can
// be decoded before the payload type is known.
type wireMessage struct {
	Id   string               `msgpack:"id"`
	Type vaultmsg.MessageType `msgpack:"typ"`
	Data []byte               `msgpack:"dat"`
}

func marshalMsgpack(msg *vaultmsg.Message) ([]byte, error) {
	if msg.Data == nil {
		return nil, fmt.Errorf("empty %s payload", msg.Type)
	}
	dat, err := msgpack.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Type, err)
	}

	w := wireMessage{Id: msg.Id, Type: msg.Type, Data: dat}
	return msgpack.Marshal(&w)
}

func unmarshalMsgpack(payload []byte) (*vaultmsg.Message, error) {
	var w wireMessage
	if err := msgpack.Unmarshal(payload, &w); err != nil {
		return nil, err
	}

	data, err := vaultmsg.DecodePayload(w.Type, w.Data, msgpack.Unmarshal)
	if err != nil {
		return nil, err
	}
	return &vaultmsg.Message{Id: w.Id, Type: w.Type, Data: data}, nil
}
