package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/golive/internal/adapters/signal"
	"github.com/dkeye/golive/internal/adapters/token"
	"github.com/dkeye/golive/internal/app/orch"
	"github.com/dkeye/golive/internal/config"
	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Controller is the session surface the API drives.
type Controller interface {
	Connect(ctx context.Context, room domain.Room, token string) (domain.Session, error)
	Disconnect(ctx context.Context) error
	State() domain.ConnectionState
	Session() (domain.Session, bool)
	ViewerCount() int
	Participants() []*domain.RemoteParticipant
	Subscriptions() []domain.TrackPublication
	Media() orch.MediaState
	AudioLevel() int
	SetVideoEnabled(enabled bool) error
	SetAudioEnabled(enabled bool) error
	SetScreenShareEnabled(ctx context.Context, enabled bool) error
}

type Deps struct {
	Controller Controller
	Hub        *signal.Hub
	// Issuer is optional; without it POST /api/token is not served.
	Issuer   *token.Issuer
	Gatherer prometheus.Gatherer
}

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("GoLiveSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{ctrl: deps.Controller, issuer: deps.Issuer, defaultRoom: cfg.Room, identity: cfg.Identity}

	api := r.Group("/api")
	api.POST("/session", h.connect)
	api.DELETE("/session", h.disconnect)
	api.GET("/session", h.state)
	api.PUT("/session/media", h.media)
	if deps.Issuer != nil {
		api.POST("/token", h.issueToken)
	}
	if deps.Hub != nil {
		api.GET("/ws/events", func(c *gin.Context) {
			log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws events endpoint hit")
			deps.Hub.HandleSignal(ctx, c)
		})
	}

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// statusOf maps an error kind onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrSessionActive), errors.Is(err, core.ErrDisconnected):
		return http.StatusConflict
	case errors.Is(err, core.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrMediaAccess):
		return http.StatusFailedDependency
	case errors.Is(err, core.ErrProvider), errors.Is(err, core.ErrReconnectExhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}
