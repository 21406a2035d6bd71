package expopush

import (
	"bytes"
	"encoding/json"
	"errors"
)

const (
	ticketStatusOK    = "ok"
	ticketStatusError = "error"
)

// Ticket is the gateway's per-push acknowledgment. It confirms the gateway
// accepted the message, not that the device received it.
type Ticket struct {
	Status  string          `json:"status"`
	ID      string          `json:"id,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// decodeFirstTicket normalizes the gateway's polymorphic response shapes
// (ticket, {data: ticket} or {data: [ticket, ...]}) into the first ticket.
// Downstream code never branches on response shape again.
func decodeFirstTicket(raw []byte) (Ticket, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return Ticket{}, errors.New("empty response body")
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if payload[0] == '{' {
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return Ticket{}, err
		}
	}
	if len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null")) {
		payload = bytes.TrimSpace(envelope.Data)
	}

	if len(payload) > 0 && payload[0] == '[' {
		var list []Ticket
		if err := json.Unmarshal(payload, &list); err != nil {
			return Ticket{}, err
		}
		if len(list) == 0 {
			return Ticket{}, errors.New("empty ticket list")
		}
		return list[0], nil
	}

	var t Ticket
	if err := json.Unmarshal(payload, &t); err != nil {
		return Ticket{}, err
	}
	return t, nil
}
