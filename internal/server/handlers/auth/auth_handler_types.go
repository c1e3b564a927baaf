package auth

// TokenRequest exchanges a peer token for an access token.
type TokenRequest struct {
	PeerID string `json:"peerId" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

// TokenResponse carries a signed access token.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn,omitempty"`
}
