package expopush

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"intercom-platform/internal/apns"
	"intercom-platform/internal/push"
)

// DefaultGatewayURL is the hosted push gateway endpoint.
const DefaultGatewayURL = "https://exp.host/--/api/v2/push/send"

const (
	requestTimeout = 10 * time.Second

	defaultFromName = "Porteiro"

	// Android channel/sound for the visible incoming-call banner. iOS never
	// receives these: alert fields on the gateway payload suppress the
	// background wake mechanism there.
	callSound     = "doorbell_push.mp3"
	callChannelID = "intercom-call"
)

var bareTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{22,}$`)

// ValidateToken checks a gateway push token. A token containing a colon is a
// raw platform token mistakenly supplied instead of the gateway-issued one and
// is rejected regardless of anything else.
func ValidateToken(token string) error {
	if token == "" {
		return errors.New("push token is empty")
	}
	if strings.Contains(token, ":") {
		return errors.New("token looks like a raw platform token, expected a gateway push token")
	}
	if strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[") {
		return nil
	}
	if bareTokenPattern.MatchString(token) {
		return nil
	}
	return errors.New("unrecognized push token format")
}

// VoipSender is the protocol client surface the gateway client delegates
// native VoIP pushes to. Satisfied by *apns.Client.
type VoipSender interface {
	Send(ctx context.Context, deviceToken string, payload map[string]any, opts apns.SendOptions) push.Result
}

// Client sends structured pushes through the JSON gateway, delegating to the
// protocol client for native VoIP tokens when one is configured.
type Client struct {
	gatewayURL string
	httpClient *http.Client
	voip       VoipSender
	enabled    bool
}

// Options configures a Client. Zero values fall back to the hosted gateway,
// a default HTTP client and enabled sends.
type Options struct {
	GatewayURL string
	HTTPClient *http.Client
	Voip       VoipSender
	Disabled   bool
}

func New(opts Options) *Client {
	gw := opts.GatewayURL
	if gw == "" {
		gw = DefaultGatewayURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		gatewayURL: gw,
		httpClient: hc,
		voip:       opts.Voip,
		enabled:    !opts.Disabled,
	}
}

// Enabled reports the global send switch.
func (c *Client) Enabled() bool { return c.enabled }

// VoipConfigured reports whether native VoIP delegation is available.
func (c *Client) VoipConfigured() bool { return c.voip != nil }

// CallInviteParams identifies one delivery of an incoming-call invite.
type CallInviteParams struct {
	Token    string
	Platform push.Platform
	Invite   push.CallInvite
}

// SendCallInvite delivers the incoming-call wake push for one device.
//
// Platform asymmetry is load-bearing: Android gets a visible banner
// (title/body/sound/channel); iOS must get none of those fields, carrying
// only the content-available flags, or the app is never woken in background.
func (c *Client) SendCallInvite(ctx context.Context, params CallInviteParams) push.Result {
	if !c.enabled {
		return push.Failure(push.FailureConfigMissing, 0, "push notifications are disabled")
	}
	if err := ValidateToken(params.Token); err != nil {
		return push.Failure(push.FailureInvalidToken, 0, err.Error())
	}

	msg := message{
		To:       params.Token,
		Priority: "high",
		Data:     inviteData(params.Invite, false),
	}
	switch params.Platform {
	case push.PlatformAndroid:
		msg.Title = "Chamada do Interfone"
		msg.Body = inviteBody(params.Invite)
		msg.Sound = callSound
		msg.ChannelID = callChannelID
	default:
		msg.ContentAvailable = true
		msg.LegacyContentAvailable = true
	}

	return c.post(ctx, msg)
}

// VoipPushParams identifies one VoIP wake delivery.
type VoipPushParams struct {
	Token  string
	Invite push.CallInvite
}

// SendVoipPush wakes a device for a call via the protocol client when
// configured, or via a content-available-only gateway push otherwise.
func (c *Client) SendVoipPush(ctx context.Context, params VoipPushParams) push.Result {
	if !c.enabled {
		return push.Failure(push.FailureConfigMissing, 0, "push notifications are disabled")
	}

	if c.voip != nil {
		token := apns.NormalizeDeviceToken(params.Token)
		if !apns.ValidDeviceToken(token) {
			return push.Failure(push.FailureInvalidToken, 0, "voip token must be hex with at least 64 characters")
		}
		return c.voip.Send(ctx, token, inviteData(params.Invite, true), apns.SendOptions{
			PushType: apns.PushTypeVoIP,
			Priority: "10",
		})
	}

	if err := ValidateToken(params.Token); err != nil {
		return push.Failure(push.FailureInvalidToken, 0, err.Error())
	}
	msg := message{
		To:                     params.Token,
		Priority:               "high",
		ContentAvailable:       true,
		LegacyContentAvailable: true,
		Data:                   inviteData(params.Invite, true),
	}
	return c.post(ctx, msg)
}

// AlertParams is a plain, non-urgent visible notification.
type AlertParams struct {
	Token string
	Title string
	Body  string
	Data  map[string]any
}

// SendAlert delivers a regular banner notification. Both platforms get the
// alert fields here: there is no background wake to protect.
func (c *Client) SendAlert(ctx context.Context, params AlertParams) push.Result {
	if !c.enabled {
		return push.Failure(push.FailureConfigMissing, 0, "push notifications are disabled")
	}
	if err := ValidateToken(params.Token); err != nil {
		return push.Failure(push.FailureInvalidToken, 0, err.Error())
	}
	return c.post(ctx, message{
		To:       params.Token,
		Priority: "high",
		Title:    params.Title,
		Body:     params.Body,
		Sound:    "default",
		Data:     params.Data,
	})
}

// SendCallInvitesToMultiple fans one invite out to many recipients
// concurrently. The result slice matches the recipient order; one bad
// recipient never affects the others.
func (c *Client) SendCallInvitesToMultiple(ctx context.Context, base push.CallInvite, platform push.Platform, recipients []push.Recipient) []push.Result {
	results := make([]push.Result, len(recipients))
	var wg sync.WaitGroup
	for i, r := range recipients {
		wg.Add(1)
		go func(i int, r push.Recipient) {
			defer wg.Done()
			inv := base
			if inv.FromName == "" {
				inv.FromName = r.Name
			}
			results[i] = c.SendCallInvite(ctx, CallInviteParams{Token: r.Token, Platform: platform, Invite: inv})
		}(i, r)
	}
	wg.Wait()
	return results
}

// SendVoipPushesToMultiple is the VoIP counterpart of SendCallInvitesToMultiple.
func (c *Client) SendVoipPushesToMultiple(ctx context.Context, base push.CallInvite, recipients []push.Recipient) []push.Result {
	results := make([]push.Result, len(recipients))
	var wg sync.WaitGroup
	for i, r := range recipients {
		wg.Add(1)
		go func(i int, r push.Recipient) {
			defer wg.Done()
			inv := base
			if inv.FromName == "" {
				inv.FromName = r.Name
			}
			results[i] = c.SendVoipPush(ctx, VoipPushParams{Token: r.Token, Invite: inv})
		}(i, r)
	}
	wg.Wait()
	return results
}

func (c *Client) post(ctx context.Context, msg message) push.Result {
	body, err := json.Marshal(msg)
	if err != nil {
		return push.Failure(push.FailureUnknown, 0, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return push.Failure(push.FailureUnknown, 0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return push.Failure(push.FailureTimeout, 0, "push gateway request timed out")
		}
		return push.Failure(push.FailureConnection, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return push.Failure(push.FailureConnection, resp.StatusCode, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return push.Failure(push.FailureRemoteRejection, resp.StatusCode,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	ticket, err := decodeFirstTicket(raw)
	if err != nil {
		return push.Failure(push.FailureUnknown, resp.StatusCode, "unparseable gateway response: "+err.Error())
	}
	if ticket.Status == ticketStatusError {
		reason := ticket.Message
		if reason == "" {
			reason = "push gateway reported an error"
		}
		return push.Failure(push.FailureRemoteRejection, resp.StatusCode, reason)
	}

	return push.Result{Success: true, StatusCode: resp.StatusCode, DeliveryID: ticket.ID}
}

// message is the gateway wire format. Alert fields are omitted when empty so
// the iOS background-wake payload stays clean.
type message struct {
	To                     string         `json:"to"`
	Priority               string         `json:"priority,omitempty"`
	Title                  string         `json:"title,omitempty"`
	Body                   string         `json:"body,omitempty"`
	Sound                  string         `json:"sound,omitempty"`
	ChannelID              string         `json:"channelId,omitempty"`
	ContentAvailable       bool           `json:"contentAvailable,omitempty"`
	LegacyContentAvailable bool           `json:"_contentAvailable,omitempty"`
	Data                   map[string]any `json:"data,omitempty"`
}

func inviteData(inv push.CallInvite, isVoip bool) map[string]any {
	fromName := inv.FromName
	if fromName == "" {
		fromName = defaultFromName
	}
	ts := inv.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	data := map[string]any{
		"type":            "intercom_call",
		"callId":          inv.CallID,
		"from":            inv.From,
		"fromName":        fromName,
		"apartmentNumber": inv.ApartmentNumber,
		"buildingName":    inv.BuildingName,
		"channelName":     inv.ChannelName,
		"action":          "incoming_call",
		"timestamp":       ts.UTC().Format(time.RFC3339),
	}
	if isVoip {
		data["isVoip"] = true
	}
	for k, v := range inv.Metadata {
		data[k] = v
	}
	return data
}

func inviteBody(inv push.CallInvite) string {
	suffix := ""
	if inv.ApartmentNumber != "" {
		suffix = " para o apartamento " + inv.ApartmentNumber
	}
	if inv.FromName != "" {
		return inv.FromName + " está chamando" + suffix
	}
	return "Chamada de interfone" + suffix
}
