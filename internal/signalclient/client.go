// Package signalclient is the call client's side of the relay socket.
package signalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/webrtc-calling/internal/bus"
	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

var ErrClosed = errors.New("signal client closed")

// Credentials is what the login endpoint returns.
type Credentials struct {
	Token  string          `json:"token"`
	UserID models.Identity `json:"user_id"`
}

// Login exchanges a username and password for a relay token.
func Login(ctx context.Context, httpClient *http.Client, baseURL, username, password string) (Credentials, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return Credentials{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}

	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return Credentials{}, fmt.Errorf("decode login response: %w", err)
	}
	return creds, nil
}

// UserExists asks the relay whether id is a registered user.
func UserExists(ctx context.Context, httpClient *http.Client, baseURL, token string, id models.Identity) (bool, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/users/"+url.PathEscape(string(id)), nil)
	if err != nil {
		return false, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("look up user: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("look up user: unexpected status %d", resp.StatusCode)
	}
}

// Client holds one relay stream. Inbound deliveries are published on the
// topic handed to Dial, in arrival order.
type Client struct {
	conn    *websocket.Conn
	inbound *bus.Topic[models.Delivery]
	log     *slog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the relay stream at baseURL authenticated with token.
func Dial(ctx context.Context, baseURL, token string, inbound *bus.Topic[models.Delivery], log *slog.Logger) (*Client, error) {
	const op = "signalclient.dial"

	wsURL, err := socketURL(baseURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%s: dial %s: status %d: %w", op, wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%s: dial %s: %w", op, wsURL, err)
	}

	c := &Client{
		conn:    conn,
		inbound: inbound,
		log:     log.With(slog.String("op", op)),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func socketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/call"
	return u.String(), nil
}

func (c *Client) readLoop() {
	defer c.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("relay stream closed", sl.Err(err))
			}
			return
		}

		var d models.Delivery
		if err := json.Unmarshal(message, &d); err != nil {
			c.log.Debug("dropping malformed delivery", sl.Err(err))
			continue
		}
		c.inbound.Publish(d)
	}
}

// Send publishes p to the relay for to.
func (c *Client) Send(ctx context.Context, to models.Identity, p models.Payload) error {
	payload, err := models.EncodePayload(p)
	if err != nil {
		return err
	}
	data, err := json.Marshal(models.Outbound{ToIdentity: to, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal outbound: %w", err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s to %s: %w", p.Type(), to, err)
	}
	return nil
}

// Done is closed when the stream ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
