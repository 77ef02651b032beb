package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/golive/internal/adapters/token"
	"github.com/dkeye/golive/internal/app/orch"
	"github.com/dkeye/golive/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	ctrl        Controller
	issuer      *token.Issuer
	defaultRoom string
	identity    string
}

type connectRequest struct {
	Room      string `json:"room"`
	IngestURL string `json:"ingest_url"`
	Token     string `json:"token"`
}

type stateResponse struct {
	State         domain.ConnectionState      `json:"state"`
	Session       *domain.Session             `json:"session,omitempty"`
	ViewerCount   int                         `json:"viewer_count"`
	Participants  []*domain.RemoteParticipant `json:"participants"`
	Subscriptions []domain.TrackPublication   `json:"subscriptions"`
	Media         orch.MediaState             `json:"media"`
	AudioLevel    int                         `json:"audio_level"`
}

type mediaRequest struct {
	Video       *bool `json:"video"`
	Audio       *bool `json:"audio"`
	ScreenShare *bool `json:"screen_share"`
}

var errBadRequest = errors.New("invalid request body")

func (h *handlers) connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBadRequest.Error()})
		return
	}
	room := domain.Room{Name: domain.RoomName(req.Room), IngestURL: req.IngestURL}
	if room.Name == "" {
		room.Name = domain.RoomName(h.defaultRoom)
	}

	// a client dropping the request must not abort a connect in progress
	sess, err := h.ctrl.Connect(context.WithoutCancel(c.Request.Context()), room, req.Token)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("room", string(room.Name)).Msg("connect rejected")
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *handlers) disconnect(c *gin.Context) {
	if err := h.ctrl.Disconnect(c.Request.Context()); err != nil {
		// the session is terminal either way; report the teardown failure
		log.Warn().Err(err).Str("module", "adapters.http").Msg("disconnect finished with errors")
		c.JSON(http.StatusOK, gin.H{"state": h.ctrl.State(), "error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) state(c *gin.Context) {
	resp := stateResponse{
		State:         h.ctrl.State(),
		ViewerCount:   h.ctrl.ViewerCount(),
		Participants:  h.ctrl.Participants(),
		Subscriptions: h.ctrl.Subscriptions(),
		Media:         h.ctrl.Media(),
		AudioLevel:    h.ctrl.AudioLevel(),
	}
	if s, ok := h.ctrl.Session(); ok {
		resp.Session = &s
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) media(c *gin.Context) {
	var req mediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBadRequest.Error()})
		return
	}
	if req.Video != nil {
		if err := h.ctrl.SetVideoEnabled(*req.Video); err != nil {
			abortWith(c, err)
			return
		}
	}
	if req.Audio != nil {
		if err := h.ctrl.SetAudioEnabled(*req.Audio); err != nil {
			abortWith(c, err)
			return
		}
	}
	if req.ScreenShare != nil {
		if err := h.ctrl.SetScreenShareEnabled(c.Request.Context(), *req.ScreenShare); err != nil {
			abortWith(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, h.ctrl.Media())
}

func (h *handlers) issueToken(c *gin.Context) {
	var req token.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBadRequest.Error()})
		return
	}
	if req.Room == "" {
		req.Room = h.defaultRoom
	}
	if req.Identity == "" && req.Role == token.RolePublisher {
		req.Identity = h.identity
	}
	jwt, err := h.issuer.Issue(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": jwt, "room": req.Room, "identity": req.Identity})
}
