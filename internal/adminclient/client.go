package adminclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/openmined/vaultsync/internal/server/auth"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
	authH "github.com/openmined/vaultsync/internal/server/handlers/auth"
	"github.com/openmined/vaultsync/internal/server/handlers/devices"
	"github.com/openmined/vaultsync/internal/server/handlers/status"
	"github.com/openmined/vaultsync/internal/version"
)

const (
	pathToken   = "/auth/token"
	pathStatus  = "/api/v1/status"
	pathDevices = "/api/v1/devices"
)

var (
	ErrNoServerURL = errors.New("adminclient: server url missing")
	ErrNotLoggedIn = errors.New("adminclient: login first")
)

// Client talks to a running server's HTTP API as a named peer
type Client struct {
	http     *req.Client
	loggedIn bool
}

func New(serverURL string) (*Client, error) {
	if serverURL == "" {
		return nil, ErrNoServerURL
	}
	c := req.C().
		SetBaseURL(serverURL).
		SetUserAgent(version.AppName+"/"+version.Version).
		SetTimeout(15*time.Second).
		SetCommonRetryCount(2).
		SetCommonRetryBackoffInterval(500*time.Millisecond, 2*time.Second).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)
	return &Client{http: c}, nil
}

// Login exchanges the peer token derived from password for an access token
// used by every later call.
func (c *Client) Login(ctx context.Context, peerID, password string) error {
	var resp authH.TokenResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(&authH.TokenRequest{PeerID: peerID, Auth: auth.PeerToken(peerID, password)}).
		SetSuccessResult(&resp).
		Post(pathToken)
	if err := apiError(res, err, "login"); err != nil {
		return err
	}
	c.http.SetCommonBearerAuthToken(resp.AccessToken)
	c.loggedIn = true
	return nil
}

func (c *Client) Status(ctx context.Context) (*status.StatusResponse, error) {
	var resp status.StatusResponse
	if err := c.get(ctx, pathStatus, &resp, "status"); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Devices(ctx context.Context) (*devices.ListResponse, error) {
	var resp devices.ListResponse
	if err := c.get(ctx, pathDevices, &resp, "devices"); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, out any, op string) error {
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(out).
		Get(path)
	return apiError(res, err, op)
}

// apiError surfaces the server's {code, error} body when there is one
func apiError(res *req.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !res.IsErrorState() {
		return nil
	}
	var apiErr api.VaultAPIError
	if jsonErr := json.Unmarshal(res.Bytes(), &apiErr); jsonErr == nil && apiErr.Code != "" {
		return fmt.Errorf("%s: %w", op, &apiErr)
	}
	return fmt.Errorf("%s: %s", op, res.Status)
}
