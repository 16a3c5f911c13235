// Package commcell is a small REST client for the backup platform's web
// server. It covers what the module core needs: logging in with a password or
// an auth token, a connection handle that survives serialization to the
// session file, raw requests, logout and job control.
package commcell

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultScheme is used when the hostname carries no scheme.
	DefaultScheme = "https"

	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = 5 * time.Minute

	// DefaultPollInterval is the delay between job status checks while
	// waiting on a job.
	DefaultPollInterval = 10 * time.Second

	webServicePath = "/webconsole/api/"
)

// ErrAuthentication is returned when the server rejects a login or a token.
var ErrAuthentication = errors.New("authentication failed")

// Config configures a Client and every Connection it creates.
type Config struct {
	Scheme             string
	Timeout            time.Duration
	InsecureSkipVerify bool
	PollInterval       time.Duration
	Logger             *slog.Logger

	// RootCAFile, when set, is a PEM bundle trusted for the web server.
	RootCAFile string

	// Transport overrides the HTTP transport, for tests.
	Transport http.RoundTripper
}

func (c Config) withDefaults() Config {
	if c.Scheme == "" {
		c.Scheme = DefaultScheme
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Client creates authenticated Connections.
type Client struct {
	cfg Config
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// WebServiceURL returns the API root for hostname. A hostname that already
// carries a scheme keeps it.
func (c *Client) WebServiceURL(hostname string) string {
	hostname = strings.TrimRight(strings.TrimSpace(hostname), "/")
	if !strings.Contains(hostname, "://") {
		hostname = c.cfg.Scheme + "://" + hostname
	}
	return hostname + webServicePath
}

// NewHandle returns an empty Connection bound to this client's settings,
// ready for UnmarshalBinary.
func (c *Client) NewHandle() *Connection {
	return &Connection{cfg: c.cfg}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string     `json:"token"`
	UserName string     `json:"userName"`
	ErrList  []apiError `json:"errList"`
}

type apiError struct {
	ErrorCode     int    `json:"errorCode"`
	ErrLogMessage string `json:"errLogMessage"`
}

// LoginWithPassword logs in with a username and plain-text password. The
// password is sent base64 encoded, as the web server expects.
func (c *Client) LoginWithPassword(ctx context.Context, hostname, username, password string) (*Connection, error) {
	conn := c.NewHandle()
	conn.state = connectionState{
		Version:    stateVersion,
		Hostname:   hostname,
		WebService: c.WebServiceURL(hostname),
		Username:   username,
	}

	resp, err := conn.rest().R().
		SetContext(ctx).
		SetBody(loginRequest{
			Username: username,
			Password: base64.StdEncoding.EncodeToString([]byte(password)),
		}).
		Post("Login")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to reach %s: %w", ErrAuthentication, conn.state.WebService, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: login returned %s", ErrAuthentication, resp.Status())
	}

	var out loginResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: malformed login response: %w", ErrAuthentication, err)
	}
	if out.Token == "" {
		msg := "no token in login response"
		if len(out.ErrList) > 0 && out.ErrList[0].ErrLogMessage != "" {
			msg = out.ErrList[0].ErrLogMessage
		}
		return nil, fmt.Errorf("%w: %s", ErrAuthentication, msg)
	}

	conn.state.Token = out.Token
	conn.state.CreatedAt = time.Now().UTC()
	if out.UserName != "" {
		conn.state.Username = out.UserName
	}
	conn.setToken(out.Token)

	c.cfg.Logger.Debug("logged in", "web_service", conn.state.WebService, "username", conn.state.Username)
	return conn, nil
}

type whoAmIResponse struct {
	User struct {
		UserName string `json:"userName"`
	} `json:"user"`
}

// LoginWithToken validates an existing QSDK or SAML token against the server
// and returns a Connection that uses it.
func (c *Client) LoginWithToken(ctx context.Context, hostname, token string) (*Connection, error) {
	conn := c.NewHandle()
	conn.state = connectionState{
		Version:    stateVersion,
		Hostname:   hostname,
		WebService: c.WebServiceURL(hostname),
		Token:      token,
		CreatedAt:  time.Now().UTC(),
	}
	conn.setToken(token)

	resp, err := conn.rest().R().SetContext(ctx).Get("WhoAmI")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to reach %s: %w", ErrAuthentication, conn.state.WebService, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: token rejected: %s", ErrAuthentication, resp.Status())
	}

	var out whoAmIResponse
	if err := json.Unmarshal(resp.Body(), &out); err == nil {
		conn.state.Username = out.User.UserName
	}

	c.cfg.Logger.Debug("logged in with token", "web_service", conn.state.WebService, "username", conn.state.Username)
	return conn, nil
}

func newRestClient(cfg Config, baseURL string) *resty.Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.Transport != nil {
		rc.SetTransport(cfg.Transport)
	}
	if cfg.InsecureSkipVerify {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if cfg.RootCAFile != "" {
		rc.SetRootCertificate(cfg.RootCAFile)
	}
	return rc
}
