package vaultmsg

type System struct {
	SystemVersion string `json:"ver"`
	Message       string `json:"msg"`
}

func NewSystemMessage(version string, msg string) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgSystem,
		Data: &System{
			SystemVersion: version,
			Message:       msg,
		},
	}
}

type Error struct {
	Code    int    `json:"cod"`
	Path    string `json:"pth,omitempty"`
	Message string `json:"msg"`
}

func NewError(code int, path string, msg string) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgError,
		Data: &Error{
			Code:    code,
			Path:    path,
			Message: msg,
		},
	}
}

// DeviceID binds the session to a stable device identity
type DeviceID struct {
	ID string `json:"id"`
}

func NewDeviceID(id string) *Message {
	return &Message{Id: generateID(), Type: MsgDeviceID, Data: &DeviceID{ID: id}}
}

// AutoSync toggles whether the session receives broadcasts
type AutoSync struct {
	Enabled bool `json:"enabled"`
}

func NewAutoSync(enabled bool) *Message {
	return &Message{Id: generateID(), Type: MsgAutoSync, Data: &AutoSync{Enabled: enabled}}
}
