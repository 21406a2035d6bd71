package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"intercom-platform/internal/callhistory"
	"intercom-platform/internal/calls"
	"intercom-platform/internal/expopush"
	"intercom-platform/internal/invite"

	"github.com/gin-gonic/gin"
)

func newTestRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/calls/invite", h.SendInvite)
	r.GET("/v1/residents/:resident_id/calls", h.GetCallHistory)
	return r
}

func okGateway(t *testing.T) (*expopush.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"status":"ok","id":"ticket-1"}}`))
	}))
	t.Cleanup(srv.Close)
	return expopush.New(expopush.Options{GatewayURL: srv.URL}), srv
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendInvite_ReturnsReport(t *testing.T) {
	gw, _ := okGateway(t)
	h := Handlers{Invites: invite.New(gw, nil, nil, quietLogger())}
	r := newTestRouter(h)

	body := `{
		"call_id": "call-1",
		"from": "doorman-1",
		"from_name": "Carlos",
		"apartment_id": "apt-1",
		"building_id": "b-1",
		"targets": [
			{"resident_id": "r-1", "platform": "android", "token": "ExponentPushToken[aaa]"},
			{"resident_id": "r-2", "platform": "ios", "token": "ExponentPushToken[bbb]"}
		]
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/calls/invite", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var report invite.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Delivered != 2 || report.Failed != 0 {
		t.Fatalf("expected 2 delivered, got %+v", report)
	}
}

func TestSendInvite_RejectsMissingFields(t *testing.T) {
	gw, _ := okGateway(t)
	h := Handlers{Invites: invite.New(gw, nil, nil, quietLogger())}
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/calls/invite", strings.NewReader(`{"call_id":"call-1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

type rejectAllGuard struct{}

func (rejectAllGuard) Acquire(ctx context.Context, apartmentID string) (bool, error) {
	return false, nil
}

func (rejectAllGuard) Release(ctx context.Context, apartmentID string) {}

func TestSendInvite_BusyApartmentConflicts(t *testing.T) {
	gw, _ := okGateway(t)
	h := Handlers{Invites: invite.New(gw, rejectAllGuard{}, nil, quietLogger())}
	r := newTestRouter(h)

	body := `{
		"call_id": "call-1",
		"apartment_id": "apt-1",
		"targets": [{"resident_id": "r-1", "platform": "android", "token": "ExponentPushToken[aaa]"}]
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/calls/invite", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != 409 {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetCallHistory_ServesSnapshot(t *testing.T) {
	repo := callhistory.NewMemoryRepo()
	repo.Links["r-1"] = callhistory.ApartmentLink{ApartmentID: "apt-1", Number: "42"}
	repo.Calls = []calls.Call{{
		ID:          "c-1",
		Status:      "ended",
		StartedAt:   time.Now().Add(-time.Hour),
		ApartmentID: "apt-1",
	}}
	h := Handlers{History: callhistory.NewService(repo)}
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/residents/r-1/calls?status=all&range=7days", nil)
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var snap callhistory.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].CallID != "c-1" {
		t.Fatalf("expected one item, got %+v", snap)
	}
}

func TestGetCallHistory_RejectsBadFilters(t *testing.T) {
	h := Handlers{History: callhistory.NewService(callhistory.NewMemoryRepo())}
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/residents/r-1/calls?range=fortnight", nil)
	r.ServeHTTP(w, req)
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetCallHistory_NotLinkedIsAnOKState(t *testing.T) {
	h := Handlers{History: callhistory.NewService(callhistory.NewMemoryRepo())}
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/residents/unlinked/calls", nil)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap callhistory.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !snap.NotLinked || snap.Message == "" {
		t.Fatalf("expected not-linked state, got %+v", snap)
	}
}
