package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

// AuthService checks peer tokens at connect time and issues short-lived
// access tokens for the HTTP API.
type AuthService struct {
	config   *Config
	serverID string
	secret   string
}

func NewAuthService(config *Config) *AuthService {
	secret := config.AccessTokenSecret
	if secret == "" {
		sum := sha256.Sum256([]byte("vaultsync-access:" + config.Password))
		secret = hex.EncodeToString(sum[:])
	}
	return &AuthService{
		config:   config,
		serverID: hostServerID(),
		secret:   secret,
	}
}

// ServerID identifies this server instance to peers
func (s *AuthService) ServerID() string {
	return s.serverID
}

// ServerToken lets peers verify they reached a server that knows the password
func (s *AuthService) ServerToken() string {
	return PeerToken(s.serverID, s.config.Password)
}

// VerifyPeer accepts a peer iff token matches the one derived from its id
func (s *AuthService) VerifyPeer(id, token string) error {
	if id == "" {
		return ErrMissingPeerID
	}
	expected := PeerToken(id, s.config.Password)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
		return ErrInvalidPeerToken
	}
	return nil
}

// IssueAccessToken exchanges a valid peer token for a JWT
func (s *AuthService) IssueAccessToken(ctx context.Context, id, token string) (string, error) {
	if err := s.VerifyPeer(id, token); err != nil {
		return "", err
	}
	claims := newAccessClaims(id, s.config.TokenIssuer, s.config.AccessTokenExpiry, time.Now())
	accessToken, err := claims.sign(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}
	return accessToken, nil
}

func (s *AuthService) AccessTokenExpirySeconds() int64 {
	return int64(s.config.AccessTokenExpiry.Seconds())
}

func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, ErrInvalidAccessToken
	}

	claims, err := parseAccessToken(accessToken, s.secret, s.config.TokenIssuer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}
	return claims, nil
}

// hostServerID is stable across restarts on the same host so peers can pin
// it. Hosts without a readable machine id get a fresh uuid per process.
func hostServerID() string {
	id, err := machineid.ProtectedID("vaultsync")
	if err != nil || id == "" {
		slog.Debug("machine id unavailable, using random server id", "error", err)
		return uuid.NewString()
	}
	return id
}
