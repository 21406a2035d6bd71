package httpapi

import (
	"errors"
	"net/http"
	"time"

	"intercom-platform/internal/callhistory"
	"intercom-platform/internal/calls"
	"intercom-platform/internal/invite"
	"intercom-platform/internal/push"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Invites *invite.Orchestrator
	History *callhistory.Service
}

// --- Call invites ---

type inviteTargetRequest struct {
	ResidentID string `json:"resident_id"`
	Name       string `json:"name"`
	Platform   string `json:"platform"`
	Token      string `json:"token"`
	VoipToken  string `json:"voip_token,omitempty"`
}

type inviteRequest struct {
	CallID          string `json:"call_id"`
	From            string `json:"from"`
	FromName        string `json:"from_name"`
	ApartmentID     string `json:"apartment_id"`
	ApartmentNumber string `json:"apartment_number"`
	BuildingID      string `json:"building_id"`
	BuildingName    string `json:"building_name"`
	ChannelName     string `json:"channel_name"`
	Urgent          *bool  `json:"urgent,omitempty"`

	Targets []inviteTargetRequest `json:"targets"`
}

// SendInvite fans one call invite out to the apartment's devices.
func (h Handlers) SendInvite(c *gin.Context) {
	if h.Invites == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "invites not configured"})
		return
	}
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.CallID == "" || len(req.Targets) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id and targets required"})
		return
	}

	targets := make([]invite.Target, 0, len(req.Targets))
	for _, t := range req.Targets {
		targets = append(targets, invite.Target{
			ResidentID: t.ResidentID,
			Name:       t.Name,
			Platform:   push.Platform(t.Platform),
			Token:      t.Token,
			VoipToken:  t.VoipToken,
		})
	}

	urgent := true
	if req.Urgent != nil {
		urgent = *req.Urgent
	}

	report, err := h.Invites.Send(c.Request.Context(), invite.Request{
		Invite: push.CallInvite{
			CallID:          req.CallID,
			From:            req.From,
			FromName:        req.FromName,
			ApartmentNumber: req.ApartmentNumber,
			BuildingName:    req.BuildingName,
			ChannelName:     req.ChannelName,
			Timestamp:       time.Now(),
		},
		ApartmentID: req.ApartmentID,
		BuildingID:  req.BuildingID,
		Urgent:      urgent,
		Targets:     targets,
	})
	switch {
	case errors.Is(err, invite.ErrApartmentBusy):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "apartment already ringing"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// --- Call history ---

// GetCallHistory serves one history page for a resident.
//
// Query params: status (all|calling|...|missed), range (today|7days|30days|all),
// page=next appends the next page instead of refreshing.
func (h Handlers) GetCallHistory(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history not configured"})
		return
	}
	residentID := c.Param("resident_id")
	if residentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "resident_id required"})
		return
	}

	feed := h.History.Feed(residentID, calls.ParticipantTypeResident)

	status := callhistory.StatusFilter(c.DefaultQuery("status", string(callhistory.StatusFilterAll)))
	dateRange := callhistory.DateRange(c.DefaultQuery("range", string(callhistory.DateRange7Days)))
	if err := feed.SetFilters(status, dateRange); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		snap callhistory.Snapshot
		err  error
	)
	if c.Query("page") == "next" {
		snap, err = feed.LoadMore(c.Request.Context())
	} else {
		snap, err = feed.Refresh(c.Request.Context())
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "history temporarily unavailable"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
