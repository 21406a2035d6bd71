package apns

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"intercom-platform/internal/push"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/http2"
)

const (
	productionHost  = "api.push.apple.com"
	developmentHost = "api.development.push.apple.com"

	// Apple rejects provider tokens older than an hour; we refresh well before.
	providerTokenLifetime = 50 * time.Minute
	providerTokenMargin   = 10 * time.Minute

	requestTimeout = 10 * time.Second

	maxErrorBodyBytes = 4096
)

// PushType selects the apns-push-type header value.
type PushType string

const (
	PushTypeVoIP       PushType = "voip"
	PushTypeAlert      PushType = "alert"
	PushTypeBackground PushType = "background"
)

// SendOptions tune a single push. Zero values mean voip push at priority 10
// with immediate expiration.
type SendOptions struct {
	PushType      PushType
	Priority      string // "10" or "5"
	Expiration    int64  // unix seconds; 0 means deliver now or drop
	TopicOverride string
	CollapseID    string
}

// Config holds APNs credentials. PrivateKey accepts any of the shapes
// NormalizePrivateKey understands.
type Config struct {
	KeyID       string
	TeamID      string
	Topic       string
	PrivateKey  string
	Environment string // "production" (default) or "development"
}

// session is the multiplexed connection surface the client needs. The real
// implementation is *http2.ClientConn; tests inject stubs.
type session interface {
	RoundTrip(*http.Request) (*http.Response, error)
	CanTakeNewRequest() bool
	Close() error
}

type dialFunc func(ctx context.Context, host string) (session, error)

// sessionState is the explicit lifecycle of the shared connection:
// none -> connecting -> connected -> (closed on any error) -> none.
// Only a connected session that can still take requests is reused.
type sessionState int

const (
	stateNone sessionState = iota
	stateConnecting
	stateConnected
)

// Client delivers pushes over a persistent multiplexed session. Concurrent
// sends share one session; any stream or session error tears it down and the
// next send reconnects.
type Client struct {
	host string

	keyID  string
	teamID string
	topic  string
	key    *ecdsa.PrivateKey

	dial dialFunc
	now  func() time.Time

	mu    sync.Mutex
	state sessionState
	sess  session

	tokenMu       sync.Mutex
	cachedToken   string
	tokenIssuedAt time.Time
}

// New builds a Client, parsing and validating the signing key up front.
func New(cfg Config) (*Client, error) {
	if cfg.KeyID == "" || cfg.TeamID == "" || cfg.Topic == "" || cfg.PrivateKey == "" {
		return nil, errors.New("apns: key id, team id, topic and private key are required")
	}
	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("apns: invalid signing key: %w", err)
	}

	host := productionHost
	if cfg.Environment == "development" {
		host = developmentHost
	}

	return &Client{
		host:   host,
		keyID:  cfg.KeyID,
		teamID: cfg.TeamID,
		topic:  cfg.Topic,
		key:    key,
		dial:   dialHTTP2,
		now:    time.Now,
	}, nil
}

func dialHTTP2(ctx context.Context, host string) (session, error) {
	d := tls.Dialer{Config: &tls.Config{
		ServerName: host,
		NextProtos: []string{http2.NextProtoTLS},
	}}
	conn, err := d.DialContext(ctx, "tcp", host+":443")
	if err != nil {
		return nil, err
	}
	t := &http2.Transport{}
	cc, err := t.NewClientConn(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return cc, nil
}

// Send delivers one push to one device and reports the per-push outcome.
// It never returns an error: every failure mode resolves into a Result so a
// batch caller can keep going.
func (c *Client) Send(ctx context.Context, deviceToken string, payload map[string]any, opts SendOptions) push.Result {
	token := NormalizeDeviceToken(deviceToken)
	if token == "" {
		return push.Failure(push.FailureInvalidToken, 0, "invalid apns device token")
	}

	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return push.Failure(push.FailureUnknown, 0, "payload not serializable: "+err.Error())
	}

	bearer, err := c.providerToken()
	if err != nil {
		return push.Failure(push.FailureConfigMissing, 0, "provider token signing failed: "+err.Error())
	}

	sess, err := c.ensureSession(ctx)
	if err != nil {
		return push.Failure(push.FailureConnection, 0, "apns session unavailable: "+err.Error())
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, "https://"+c.host+"/3/device/"+token, bytes.NewReader(body))
	if err != nil {
		return push.Failure(push.FailureUnknown, 0, err.Error())
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("authorization", "bearer "+bearer)
	req.Header.Set("apns-topic", c.topicFor(opts))
	req.Header.Set("apns-push-type", string(pushTypeOrDefault(opts.PushType)))
	req.Header.Set("apns-priority", priorityOrDefault(opts.Priority))
	req.Header.Set("apns-expiration", strconv.FormatInt(max64(opts.Expiration, 0), 10))
	if opts.CollapseID != "" {
		req.Header.Set("apns-collapse-id", opts.CollapseID)
	}

	resp, err := sess.RoundTrip(req)
	if err != nil {
		// The stream is dead either way; flag the session for recreation so
		// the next send does not reuse a broken handle.
		c.resetSession()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return push.Failure(push.FailureTimeout, 0, "apns request timed out")
		}
		return push.Failure(push.FailureConnection, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if readErr != nil {
		c.resetSession()
		if errors.Is(readErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return push.Failure(push.FailureTimeout, 0, "apns request timed out")
		}
		return push.Failure(push.FailureConnection, resp.StatusCode, readErr.Error())
	}

	result := push.Result{
		StatusCode: resp.StatusCode,
		DeliveryID: resp.Header.Get("apns-id"),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
		return result
	}

	result.Kind = push.FailureRemoteRejection
	result.Reason = extractRejectionReason(raw)
	if result.Reason == "" {
		result.Reason = fmt.Sprintf("apns rejected push with status %d", resp.StatusCode)
	}
	return result
}

// SessionConnected reports whether a reusable session is currently held.
func (c *Client) SessionConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected && c.sess != nil && c.sess.CanTakeNewRequest()
}

func (c *Client) ensureSession(ctx context.Context) (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateConnected && c.sess != nil && c.sess.CanTakeNewRequest() {
		return c.sess, nil
	}
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
	}

	c.state = stateConnecting
	sess, err := c.dial(ctx, c.host)
	if err != nil {
		c.state = stateNone
		return nil, err
	}
	c.sess = sess
	c.state = stateConnected
	return sess, nil
}

func (c *Client) resetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
	}
	c.state = stateNone
}

// providerToken returns the cached ES256 bearer token, re-signing once the
// refresh margin before its nominal lifetime is reached.
func (c *Client) providerToken() (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	now := c.now()
	if c.cachedToken != "" && now.Before(c.tokenIssuedAt.Add(providerTokenLifetime-providerTokenMargin)) {
		return c.cachedToken, nil
	}

	t := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": c.teamID,
		"iat": now.Unix(),
	})
	t.Header["kid"] = c.keyID

	signed, err := t.SignedString(c.key)
	if err != nil {
		return "", err
	}
	c.cachedToken = signed
	c.tokenIssuedAt = now
	return signed, nil
}

func (c *Client) topicFor(opts SendOptions) string {
	if opts.TopicOverride != "" {
		return opts.TopicOverride
	}
	return c.topic
}

func pushTypeOrDefault(t PushType) PushType {
	if t == "" {
		return PushTypeVoIP
	}
	return t
}

func priorityOrDefault(p string) string {
	if p == "" {
		return "10"
	}
	return p
}

func extractRejectionReason(body []byte) string {
	var parsed struct {
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Reason != "" {
		return parsed.Reason
	}
	return parsed.Error
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
