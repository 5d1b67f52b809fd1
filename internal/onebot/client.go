// Package onebot is a OneBot v11 forward-websocket client. It delivers
// inbound chat messages to a handler and exposes the actions the governance
// engine needs: replies, message deletion, mutes and member role lookups.
package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/bdandy/go-socks4"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"github.com/keshon/warden/internal/domain"
	"github.com/keshon/warden/pkg/retrylimit"
)

var (
	// ErrNotConnected is returned by actions while no session is open.
	ErrNotConnected = errors.New("onebot: not connected")
)

// Handler receives every inbound chat message on the read loop. It must
// return without blocking: action responses are read by the same loop.
type Handler func(ctx context.Context, msg domain.Message)

// ActionError is a failed action response.
type ActionError struct {
	Action  string
	RetCode int
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("onebot: %s failed: retcode %d: %s", e.Action, e.RetCode, e.Message)
}

// HandshakeError is a refused websocket upgrade.
type HandshakeError struct {
	Status int
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("onebot: handshake refused with status %d", e.Status)
}

func (e *HandshakeError) StatusCode() int { return e.Status }

type Config struct {
	URL         string
	Token       string
	Proxy       string        // http, https, socks5 or socks4 URL; empty uses the environment
	RateLimit   float64       // outbound actions per second
	CallTimeout time.Duration // applied when the caller's context has no deadline
	Retry       retrylimit.RetryConfig
}

type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

func (s *session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	limiter *retrylimit.AdaptiveLimiter
	handle  Handler
	logger  zerolog.Logger

	sess    atomic.Pointer[session]
	pending *xsync.MapOf[string, chan response]
	seq     atomic.Uint64
	selfID  atomic.Int64
}

func New(cfg Config, handle Handler) (*Client, error) {
	if _, err := url.Parse(cfg.URL); err != nil || cfg.URL == "" {
		return nil, fmt.Errorf("onebot: invalid url %q", cfg.URL)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry = retrylimit.DefaultRetryConfig()
		cfg.Retry.MaxAttempts = 0
		cfg.Retry.MaxDelay = time.Minute
	}
	if handle == nil {
		handle = func(context.Context, domain.Message) {}
	}

	dialer, err := newDialer(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	limit := rate.Limit(cfg.RateLimit)
	return &Client{
		cfg:     cfg,
		dialer:  dialer,
		limiter: retrylimit.NewAdaptiveLimiter(limit, 1, limit*2, 1, 0.5),
		handle:  handle,
		logger:  log.With().Str("component", "onebot").Logger(),
		pending: xsync.NewMapOf[string, chan response](),
	}, nil
}

func newDialer(proxyStr string) (*websocket.Dialer, error) {
	d := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	if proxyStr == "" {
		return d, nil
	}

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, fmt.Errorf("onebot: invalid proxy %q: %w", proxyStr, err)
	}
	switch proxyURL.Scheme {
	case "http", "https":
		d.Proxy = http.ProxyURL(proxyURL)
	case "socks5", "socks5h", "socks4", "socks4a":
		pd, err := proxy.FromURL(proxyURL, &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 10 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("onebot: proxy dialer: %w", err)
		}
		d.Proxy = nil
		if cd, ok := pd.(proxy.ContextDialer); ok {
			d.NetDialContext = cd.DialContext
		} else {
			d.NetDialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return pd.Dial(network, addr)
			}
		}
	default:
		return nil, fmt.Errorf("onebot: unsupported proxy scheme %q", proxyURL.Scheme)
	}
	return d, nil
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool { return c.sess.Load() != nil }

// SelfID returns the bot account id announced by the implementation, or 0.
func (c *Client) SelfID() int64 { return c.selfID.Load() }

// Run keeps a session open until ctx is done. Dial failures back off
// exponentially; a refused authorization stops the loop.
func (c *Client) Run(ctx context.Context) error {
	for {
		var conn *websocket.Conn
		err := retrylimit.WithRetryConfig(ctx, func() error {
			var err error
			conn, err = c.dial(ctx)
			return err
		}, nil, c.cfg.Retry)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		c.logger.Info().Str("url", c.cfg.URL).Msg("connected")
		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn().Err(err).Msg("connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.Retry.InitialDelay):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err == nil {
		return conn, nil
	}
	if resp != nil {
		resp.Body.Close()
		herr := &HandshakeError{Status: resp.StatusCode}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, &retrylimit.FatalError{Err: herr}
		}
		return nil, herr
	}
	return nil, fmt.Errorf("onebot: dial: %w", err)
}

// serve reads frames until the connection fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	s := &session{conn: conn, done: make(chan struct{})}
	c.sess.Store(s)

	stop := context.AfterFunc(ctx, func() {
		s.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		conn.Close()
	})
	defer func() {
		stop()
		c.sess.CompareAndSwap(s, nil)
		close(s.done)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.route(ctx, data)
	}
}

func (c *Client) route(ctx context.Context, data []byte) {
	f, err := sniff(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	if f.hasEcho && f.postType == "" {
		if ch, ok := c.pending.LoadAndDelete(f.echo); ok {
			var resp response
			if err := json.Unmarshal(data, &resp); err != nil {
				resp = response{Status: "failed", RetCode: -1, Message: err.Error()}
			}
			ch <- resp
		}
		return
	}

	if f.selfID != 0 {
		c.selfID.Store(f.selfID)
	}

	switch f.postType {
	case "message":
		msg, ok, err := decodeMessage(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping message event")
			return
		}
		if ok {
			c.handle(ctx, msg)
		}
	case "meta_event":
		c.logger.Trace().Str("type", f.metaType).Msg("meta event")
	}
}

// Call sends an action and waits for its response data.
func (c *Client) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	s := c.sess.Load()
	if s == nil {
		return nil, ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	echo := strconv.FormatUint(c.seq.Add(1), 10)
	data, err := json.Marshal(request{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("onebot: encode %s: %w", action, err)
	}

	ch := make(chan response, 1)
	c.pending.Store(echo, ch)
	defer c.pending.Delete(echo)

	if err := s.write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	select {
	case resp := <-ch:
		c.limiter.Success()
		if resp.RetCode != 0 && resp.Status != "async" {
			msg := resp.Wording
			if msg == "" {
				msg = resp.Message
			}
			return nil, &ActionError{Action: action, RetCode: resp.RetCode, Message: msg}
		}
		return resp.Data, nil
	case <-s.done:
		return nil, ErrNotConnected
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.limiter.RateLimited()
		}
		return nil, fmt.Errorf("onebot: %s: %w", action, ctx.Err())
	}
}
