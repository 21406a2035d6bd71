package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"intercom-platform/internal/audit"
	"intercom-platform/internal/expopush"
	"intercom-platform/internal/push"
)

// ErrApartmentBusy means another invite fan-out for the same apartment is
// already ringing. Callers surface this to the doorman, they do not retry.
var ErrApartmentBusy = errors.New("invite: apartment already ringing")

// ErrNoTargets means the request carried nothing to deliver to.
var ErrNoTargets = errors.New("invite: no targets")

// Transport names the delivery path chosen for one target.
type Transport string

const (
	TransportVoip    Transport = "voip"
	TransportGateway Transport = "gateway"
	TransportAlert   Transport = "alert"
	TransportNone    Transport = "none"
)

// Gateway is the push side the orchestrator drives. *expopush.Client
// satisfies it.
type Gateway interface {
	SendCallInvite(ctx context.Context, params expopush.CallInviteParams) push.Result
	SendVoipPush(ctx context.Context, params expopush.VoipPushParams) push.Result
	SendAlert(ctx context.Context, params expopush.AlertParams) push.Result
	VoipConfigured() bool
}

// Target is one device registration for a resident of the called apartment.
type Target struct {
	ResidentID string
	Name       string
	Platform   push.Platform

	// Token is the gateway push token.
	Token string
	// VoipToken is the native VoIP device token; present only when the device
	// registered one.
	VoipToken string
}

// Request is one incoming-call announcement to fan out.
type Request struct {
	Invite      push.CallInvite
	ApartmentID string
	BuildingID  string

	// Urgent selects the wake path. Non-urgent requests (e.g. a missed-call
	// follow-up) go out as plain alerts.
	Urgent bool

	Targets []Target
}

// TargetResult pairs one target with its delivery outcome and the path taken.
type TargetResult struct {
	Target    Target      `json:"-"`
	Resident  string      `json:"resident_id"`
	Transport Transport   `json:"transport"`
	Result    push.Result `json:"result"`
}

// Report is the aggregate outcome of one fan-out.
type Report struct {
	CallID    string         `json:"call_id"`
	Delivered int            `json:"delivered"`
	Failed    int            `json:"failed"`
	Elapsed   time.Duration  `json:"elapsed"`
	Results   []TargetResult `json:"results"`
}

// Orchestrator owns the per-recipient transport decision for call invites.
// It never retries; ringing-window semantics belong to the call flow.
type Orchestrator struct {
	gateway Gateway
	guard   Guard
	audit   *audit.Service
	log     *slog.Logger
}

func New(gateway Gateway, guard Guard, auditSvc *audit.Service, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{gateway: gateway, guard: guard, audit: auditSvc, log: log}
}

// Send fans the invite out to every target concurrently and returns the
// per-target results in target order. One bad target never affects the others.
func (o *Orchestrator) Send(ctx context.Context, req Request) (Report, error) {
	if req.Invite.CallID == "" {
		return Report{}, errors.New("invite: call id is required")
	}
	if len(req.Targets) == 0 {
		return Report{}, ErrNoTargets
	}

	if o.guard != nil && req.ApartmentID != "" {
		ok, err := o.guard.Acquire(ctx, req.ApartmentID)
		if err != nil {
			// The guard is advisory; a broken Redis must not block calls.
			o.log.Warn("invite guard unavailable, proceeding",
				"call_id", req.Invite.CallID, "error", err)
		} else if !ok {
			o.recordRejection(ctx, req, "apartment busy")
			return Report{}, ErrApartmentBusy
		} else {
			defer o.guard.Release(ctx, req.ApartmentID)
		}
	}

	start := time.Now()
	results := make([]TargetResult, len(req.Targets))
	var wg sync.WaitGroup
	for i, t := range req.Targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			results[i] = o.sendOne(ctx, req, t)
		}(i, t)
	}
	wg.Wait()

	report := Report{
		CallID:  req.Invite.CallID,
		Elapsed: time.Since(start),
		Results: results,
	}
	for _, r := range results {
		if r.Result.Success {
			report.Delivered++
		} else {
			report.Failed++
		}
	}

	o.log.Info("call invite fan-out completed",
		"call_id", req.Invite.CallID,
		"apartment_id", req.ApartmentID,
		"recipients", len(req.Targets),
		"delivered", report.Delivered,
		"failed", report.Failed,
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)
	o.recordFanout(ctx, req, report)
	return report, nil
}

// sendOne picks the transport for a single target and delivers.
//
// Decision order:
//  1. iOS with a registered VoIP token and a configured native client gets
//     the VoIP wake path.
//  2. Urgent invites go through the gateway call-invite path.
//  3. Everything else is a plain alert.
func (o *Orchestrator) sendOne(ctx context.Context, req Request, t Target) TargetResult {
	out := TargetResult{Target: t, Resident: t.ResidentID, Transport: TransportNone}
	if !t.Platform.Valid() {
		out.Result = push.Failure(push.FailureInvalidToken, 0,
			fmt.Sprintf("unsupported platform %q", t.Platform))
		return out
	}

	inv := req.Invite
	if inv.FromName == "" {
		inv.FromName = t.Name
	}

	switch {
	case t.Platform == push.PlatformIOS && t.VoipToken != "" && o.gateway.VoipConfigured():
		out.Transport = TransportVoip
		out.Result = o.gateway.SendVoipPush(ctx, expopush.VoipPushParams{
			Token:  t.VoipToken,
			Invite: inv,
		})
	case req.Urgent:
		out.Transport = TransportGateway
		out.Result = o.gateway.SendCallInvite(ctx, expopush.CallInviteParams{
			Token:    t.Token,
			Platform: t.Platform,
			Invite:   inv,
		})
	default:
		out.Transport = TransportAlert
		out.Result = o.gateway.SendAlert(ctx, expopush.AlertParams{
			Token: t.Token,
			Title: "Chamada do Interfone",
			Body:  fmt.Sprintf("Você recebeu uma chamada de %s", inv.FromName),
			Data:  map[string]any{"callId": inv.CallID, "type": "missed_call"},
		})
	}
	return out
}

func (o *Orchestrator) recordFanout(ctx context.Context, req Request, report Report) {
	if o.audit == nil || req.BuildingID == "" {
		return
	}
	err := o.audit.LogInviteFanout(ctx, req.BuildingID, req.Invite.From, "doorman",
		req.Invite.CallID, req.ApartmentID,
		len(req.Targets), report.Delivered, report.Failed, "")
	if err != nil {
		o.log.Warn("audit append failed", "call_id", req.Invite.CallID, "error", err)
	}
}

func (o *Orchestrator) recordRejection(ctx context.Context, req Request, reason string) {
	if o.audit == nil || req.BuildingID == "" {
		return
	}
	err := o.audit.LogInviteRejected(ctx, req.BuildingID, req.Invite.From, "doorman",
		req.Invite.CallID, req.ApartmentID, reason)
	if err != nil {
		o.log.Warn("audit append failed", "call_id", req.Invite.CallID, "error", err)
	}
}
