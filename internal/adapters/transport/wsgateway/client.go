package wsgateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	frameMessage  = "message"
	frameSendText = "send_text"

	DefaultWriteTimeout = 10 * time.Second
	DefaultWorkers      = 16
	maxBackoff          = 30 * time.Second
)

var ErrNotConnected = errors.New("gateway is not connected")

// Frame is the JSON envelope exchanged with the chat gateway.
type Frame struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id,omitempty"`
	Content  string `json:"content"`
}

type Options struct {
	URL          string
	Header       http.Header
	Workers      int
	WriteTimeout time.Duration
	RetryDelay   time.Duration
}

// Client keeps a websocket connection to a chat gateway open, reconnecting
// with backoff when it drops.
type Client struct {
	opts   Options
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

var (
	_ ports.Sender = (*Client)(nil)
	_ ports.Inbox  = (*Client)(nil)
)

func New(opts Options, log zerolog.Logger) (*Client, error) {
	if !strings.HasPrefix(opts.URL, "ws://") && !strings.HasPrefix(opts.URL, "wss://") {
		return nil, fmt.Errorf("gateway url must use ws or wss: %q", opts.URL)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	return &Client{opts: opts, dialer: websocket.DefaultDialer, log: log}, nil
}

func (c *Client) SendText(ctx context.Context, room domain.RoomID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(Frame{Type: frameSendText, RoomID: string(room), Content: text}); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// Listen reads frames until ctx is cancelled, redialling after failures.
func (c *Client) Listen(ctx context.Context, handle ports.MessageHandler) error {
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Workers)
	defer func() { _ = g.Wait() }()

	delay := c.opts.RetryDelay
	for {
		err := c.session(ctx, g, handle)
		if ctx.Err() != nil {
			return nil
		}

		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("gateway connection lost")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay = min(delay*2, maxBackoff)
	}
}

func (c *Client) session(ctx context.Context, g *errgroup.Group, handle ports.MessageHandler) error {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	c.setConn(conn)
	defer c.setConn(nil)
	c.log.Info().Str("url", c.opts.URL).Msg("gateway connected")

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if frame.Type != frameMessage || frame.RoomID == "" || frame.SenderID == "" {
			c.log.Debug().Str("type", frame.Type).Msg("ignoring gateway frame")
			continue
		}

		in := ports.InboundMessage{
			RoomID:   domain.RoomID(frame.RoomID),
			SenderID: domain.PlayerID(frame.SenderID),
			Content:  frame.Content,
		}
		g.Go(func() error {
			handle(ctx, in)
			return nil
		})
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn == nil && c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
}

func (c *Client) Close() error {
	c.setConn(nil)
	return nil
}
