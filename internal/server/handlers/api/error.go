package api

import (
	"errors"
	"net/http"
)

// VaultAPIError is the JSON body of every non-2xx response
type VaultAPIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *VaultAPIError) Error() string {
	return e.Code + ": " + e.Message
}

func NewError(code string, err error) *VaultAPIError {
	msg := http.StatusText(http.StatusInternalServerError)
	if err != nil {
		msg = err.Error()
	}
	return &VaultAPIError{Code: code, Message: msg}
}

// AsAPIError reports whether err carries a VaultAPIError and returns it
func AsAPIError(err error) (*VaultAPIError, bool) {
	var apiErr *VaultAPIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
