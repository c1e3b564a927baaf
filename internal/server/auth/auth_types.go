package auth

import "errors"

var (
	ErrInvalidPeerToken   = errors.New("invalid peer token")
	ErrMissingPeerID      = errors.New("peer id is required")
	ErrInvalidAccessToken = errors.New("invalid access token")
)
