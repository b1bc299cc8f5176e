package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
)

const (
	maxResponseBytes      = 1 << 20
	DefaultRequestTimeout = 8 * time.Second
	successCode           = 200
)

var (
	ErrUnexpectedStatus  = errors.New("unexpected oracle http status")
	ErrMalformedResponse = errors.New("malformed oracle response")
)

// Client talks to the idiom relay service over query-string GET requests.
type Client struct {
	BaseURL        string
	Secret         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.Oracle = Client{}

type envelope struct {
	Code   code            `json:"code"`
	Msg    string          `json:"msg"`
	Result json.RawMessage `json:"result"`
}

type startResult struct {
	GameID     string `json:"game_id"`
	FirstIdiom string `json:"first_idiom"`
}

type submitResult struct {
	NextIdiom string `json:"next_idiom"`
}

// code accepts both 200 and "200".
type code int

func (c *code) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("decode response code %q: %w", raw, err)
	}
	*c = code(n)

	return nil
}

func (c Client) Start(ctx context.Context, mode domain.MatchMode) (ports.StartedGame, error) {
	values := url.Values{}
	values.Set("start", "true")
	values.Set("mode", string(mode))

	body, err := c.get(ctx, values)
	if err != nil {
		return ports.StartedGame{}, fmt.Errorf("start game: %w", err)
	}
	if body.Code != successCode {
		return ports.StartedGame{}, fmt.Errorf("start game: %w: code %d: %s", domain.ErrOracleRejected, body.Code, body.Msg)
	}

	var result startResult
	if err := decodeResult(body.Result, &result); err != nil {
		return ports.StartedGame{}, fmt.Errorf("start game: %w", err)
	}
	if result.GameID == "" || result.FirstIdiom == "" {
		return ports.StartedGame{}, fmt.Errorf("start game: %w: missing game_id or first_idiom", ErrMalformedResponse)
	}

	return ports.StartedGame{GameID: result.GameID, FirstIdiom: result.FirstIdiom}, nil
}

// Submit returns a rejected verdict, not an error, when the service answers
// but refuses the idiom.
func (c Client) Submit(ctx context.Context, gameID, idiom string) (ports.Verdict, error) {
	if gameID == "" {
		return ports.Verdict{}, errors.New("game id is required")
	}

	values := url.Values{}
	values.Set("game_id", gameID)
	values.Set("idiom", idiom)

	body, err := c.get(ctx, values)
	if err != nil {
		return ports.Verdict{}, fmt.Errorf("submit idiom: %w", err)
	}

	if body.Code == successCode && len(body.Result) > 0 {
		var result submitResult
		if err := decodeResult(body.Result, &result); err == nil && result.NextIdiom != "" {
			return ports.Verdict{Accepted: true, NextIdiom: result.NextIdiom}, nil
		}
	}

	return ports.Verdict{Message: body.Msg}, nil
}

func (c Client) get(ctx context.Context, values url.Values) (envelope, error) {
	endpoint, err := c.endpoint(values)
	if err != nil {
		return envelope{}, err
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return envelope{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return envelope{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return body, nil
}

func (c Client) endpoint(values url.Values) (string, error) {
	if c.BaseURL == "" {
		return "", errors.New("oracle url is required")
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse oracle url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("oracle url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("oracle url host is required")
	}

	query := parsed.Query()
	query.Set("AppSecret", c.Secret)
	for key, vals := range values {
		for _, v := range vals {
			query.Add(key, v)
		}
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return context.WithTimeout(ctx, timeout)
}

func decodeResult(raw json.RawMessage, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: missing result", ErrMalformedResponse)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}
