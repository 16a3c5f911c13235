package commcell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const stateVersion = 1

// ErrRequestFailed is returned when the server answers a request with a
// non-success status.
var ErrRequestFailed = errors.New("response was not success")

// connectionState is everything persisted to the session file.
type connectionState struct {
	Version    int       `json:"version"`
	Hostname   string    `json:"hostname"`
	WebService string    `json:"web_service"`
	Username   string    `json:"username,omitempty"`
	Token      string    `json:"token"`
	CreatedAt  time.Time `json:"created_at"`
}

// Connection is an authenticated handle to one web server. It is not safe
// for concurrent use.
type Connection struct {
	cfg   Config
	state connectionState
	http  *resty.Client
}

// Hostname returns the web server hostname the connection was created for.
func (c *Connection) Hostname() string { return c.state.Hostname }

// WebService returns the API root URL, ending in a slash.
func (c *Connection) WebService() string { return c.state.WebService }

// Username returns the logged-in user name, if known.
func (c *Connection) Username() string { return c.state.Username }

// AuthToken returns the session token.
func (c *Connection) AuthToken() string { return c.state.Token }

// CreatedAt returns when the login that produced the token happened.
func (c *Connection) CreatedAt() time.Time { return c.state.CreatedAt }

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Connection) MarshalBinary() ([]byte, error) {
	if c.state.Token == "" || c.state.WebService == "" {
		return nil, errors.New("commcell: connection is not authenticated")
	}
	return json.Marshal(c.state)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Connection) UnmarshalBinary(data []byte) error {
	var st connectionState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("commcell: decode connection: %w", err)
	}
	if st.Version != stateVersion {
		return fmt.Errorf("commcell: unsupported connection version %d", st.Version)
	}
	if st.Token == "" || st.WebService == "" {
		return errors.New("commcell: connection has no token or web service")
	}
	c.state = st
	c.http = nil
	return nil
}

func (c *Connection) rest() *resty.Client {
	if c.http == nil {
		c.cfg = c.cfg.withDefaults()
		c.http = newRestClient(c.cfg, c.state.WebService)
		if c.state.Token != "" {
			c.http.SetHeader("Authtoken", c.state.Token)
		}
	}
	return c.http
}

func (c *Connection) setToken(token string) {
	c.state.Token = token
	c.rest().SetHeader("Authtoken", token)
}

// Request performs a raw HTTP request. Every "{0}" in url is replaced by the
// web service root without its trailing slash. Relative urls are resolved
// against the web service root. The decoded JSON body is returned; a body
// that is not JSON is returned as a string.
func (c *Connection) Request(ctx context.Context, method, url string, payload any) (any, error) {
	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, fmt.Errorf("unsupported method %q", method)
	}
	url = strings.ReplaceAll(url, "{0}", strings.TrimSuffix(c.state.WebService, "/"))

	req := c.rest().R().SetContext(ctx)
	if payload != nil {
		req.SetBody(payload)
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, method, url, resp.Status())
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return string(body), nil
	}
	return out, nil
}

// Logout ends the session on the server. The connection must not be used
// afterwards.
func (c *Connection) Logout(ctx context.Context) error {
	resp, err := c.rest().R().SetContext(ctx).Post("Logout")
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: logout: %s", ErrRequestFailed, resp.Status())
	}
	c.cfg.Logger.Debug("logged out", "web_service", c.state.WebService)
	return nil
}
