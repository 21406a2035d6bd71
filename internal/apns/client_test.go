package apns

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"intercom-platform/internal/push"
)

type stubSession struct {
	mu        sync.Mutex
	roundTrip func(*http.Request) (*http.Response, error)
	usable    bool
	closed    bool
}

func (s *stubSession) RoundTrip(req *http.Request) (*http.Response, error) {
	return s.roundTrip(req)
}

func (s *stubSession) CanTakeNewRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usable
}

func (s *stubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type stubDialer struct {
	mu       sync.Mutex
	dials    int
	sessions []*stubSession
}

func (d *stubDialer) dial(next func() *stubSession) dialFunc {
	return func(ctx context.Context, host string) (session, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.dials++
		s := next()
		d.sessions = append(d.sessions, s)
		return s, nil
	}
}

func testClient(t *testing.T, d dialFunc) *Client {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &Client{
		host:   developmentHost,
		keyID:  "KEY123",
		teamID: "TEAM456",
		topic:  "com.example.intercom.voip",
		key:    key,
		dial:   d,
		now:    time.Now,
	}
}

func okResponse(status int, body string, headers map[string]string) *http.Response {
	resp := &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func TestSend_EmptyTokenFailsWithoutDialing(t *testing.T) {
	d := &stubDialer{}
	c := testClient(t, d.dial(func() *stubSession { return &stubSession{usable: true} }))

	res := c.Send(context.Background(), " <> ", map[string]any{"a": 1}, SendOptions{})
	if res.Success || res.StatusCode != 0 {
		t.Fatalf("expected fast failure, got %+v", res)
	}
	if res.Kind != push.FailureInvalidToken {
		t.Fatalf("expected invalid_token, got %q", res.Kind)
	}
	if d.dials != 0 {
		t.Fatalf("expected no dial, got %d", d.dials)
	}
}

func TestSend_SuccessCarriesDeliveryID(t *testing.T) {
	token := strings.Repeat("ab", 32)
	sess := &stubSession{usable: true}
	sess.roundTrip = func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/3/device/"+token {
			t.Fatalf("unexpected path %q", req.URL.Path)
		}
		if got := req.Header.Get("apns-push-type"); got != "voip" {
			t.Fatalf("expected voip push type, got %q", got)
		}
		if got := req.Header.Get("apns-priority"); got != "10" {
			t.Fatalf("expected priority 10, got %q", got)
		}
		if !strings.HasPrefix(req.Header.Get("authorization"), "bearer ") {
			t.Fatalf("missing bearer token")
		}
		return okResponse(200, "", map[string]string{"apns-id": "push-123"}), nil
	}
	d := &stubDialer{}
	c := testClient(t, d.dial(func() *stubSession { return sess }))

	res := c.Send(context.Background(), token, map[string]any{"callId": "c1"}, SendOptions{})
	if !res.Success || res.StatusCode != 200 {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.DeliveryID != "push-123" {
		t.Fatalf("expected delivery id, got %q", res.DeliveryID)
	}
}

func TestSend_RejectionReasonFromBody(t *testing.T) {
	token := strings.Repeat("cd", 32)
	sess := &stubSession{usable: true}
	sess.roundTrip = func(*http.Request) (*http.Response, error) {
		return okResponse(400, `{"reason":"BadDeviceToken"}`, nil), nil
	}
	d := &stubDialer{}
	c := testClient(t, d.dial(func() *stubSession { return sess }))

	res := c.Send(context.Background(), token, nil, SendOptions{})
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.StatusCode != 400 || res.Reason != "BadDeviceToken" {
		t.Fatalf("expected 400/BadDeviceToken, got %+v", res)
	}
	if res.Kind != push.FailureRemoteRejection {
		t.Fatalf("expected remote_rejection, got %q", res.Kind)
	}

	// A clean rejection must not tear down the shared session.
	res = c.Send(context.Background(), token, nil, SendOptions{})
	if d.dials != 1 {
		t.Fatalf("expected session reuse, dials=%d", d.dials)
	}
	_ = res
}

func TestSend_TimeoutFailsAndReestablishesSession(t *testing.T) {
	token := strings.Repeat("ef", 32)
	first := &stubSession{usable: true}
	first.roundTrip = func(req *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	}
	second := &stubSession{usable: true}
	second.roundTrip = func(*http.Request) (*http.Response, error) {
		return okResponse(200, "", nil), nil
	}

	d := &stubDialer{}
	queue := []*stubSession{first, second}
	c := testClient(t, d.dial(func() *stubSession {
		s := queue[0]
		if len(queue) > 1 {
			queue = queue[1:]
		}
		return s
	}))

	res := c.Send(context.Background(), token, nil, SendOptions{})
	if res.Success || res.StatusCode != 0 {
		t.Fatalf("expected timeout failure, got %+v", res)
	}
	if res.Kind != push.FailureTimeout || !strings.Contains(res.Reason, "timed out") {
		t.Fatalf("expected timed out reason, got %+v", res)
	}
	if !first.closed {
		t.Fatalf("expected dead session to be closed")
	}

	res = c.Send(context.Background(), token, nil, SendOptions{})
	if !res.Success {
		t.Fatalf("expected success on fresh session, got %+v", res)
	}
	if d.dials != 2 {
		t.Fatalf("expected re-dial after timeout, dials=%d", d.dials)
	}
}

func TestSend_ConnectionErrorResetsSession(t *testing.T) {
	token := strings.Repeat("01", 32)
	sess := &stubSession{usable: true}
	sess.roundTrip = func(*http.Request) (*http.Response, error) {
		return nil, errors.New("stream reset by peer")
	}
	d := &stubDialer{}
	c := testClient(t, d.dial(func() *stubSession { return sess }))

	res := c.Send(context.Background(), token, nil, SendOptions{})
	if res.Success || res.Kind != push.FailureConnection {
		t.Fatalf("expected connection failure, got %+v", res)
	}
	if c.SessionConnected() {
		t.Fatalf("expected session flagged for recreation")
	}
}

func TestSend_UnusableSessionForcesFreshConnect(t *testing.T) {
	token := strings.Repeat("23", 32)
	worn := &stubSession{usable: false}
	fresh := &stubSession{usable: true}
	fresh.roundTrip = func(*http.Request) (*http.Response, error) {
		return okResponse(200, "", nil), nil
	}

	d := &stubDialer{}
	c := testClient(t, d.dial(func() *stubSession { return fresh }))
	// Seed the client with a session that can no longer take requests
	// (the goaway case).
	c.sess = worn
	c.state = stateConnected

	res := c.Send(context.Background(), token, nil, SendOptions{})
	if !res.Success {
		t.Fatalf("expected success over fresh session, got %+v", res)
	}
	if !worn.closed {
		t.Fatalf("expected worn session closed")
	}
	if d.dials != 1 {
		t.Fatalf("expected exactly one dial, got %d", d.dials)
	}
}

func TestProviderToken_CachedInsideWindow(t *testing.T) {
	d := &stubDialer{}
	c := testClient(t, d.dial(func() *stubSession { return &stubSession{usable: true} }))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	c.now = func() time.Time { return current }

	first, err := c.providerToken()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	current = base.Add(39 * time.Minute)
	second, err := c.providerToken()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached token inside the refresh window")
	}

	current = base.Add(41 * time.Minute)
	third, err := c.providerToken()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if third == first {
		t.Fatalf("expected a fresh token past the refresh window")
	}
}

func TestNew_RequiresFullCredentials(t *testing.T) {
	if _, err := New(Config{KeyID: "k", TeamID: "t", Topic: "topic"}); err == nil {
		t.Fatalf("expected error for missing key")
	}
}
