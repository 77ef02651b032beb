package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/golive/internal/adapters/token"
	"github.com/dkeye/golive/internal/app/orch"
	"github.com/dkeye/golive/internal/config"
	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/dkeye/golive/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	connectErr    error
	disconnectErr error
	mediaErr      error

	room    domain.Room
	token   string
	session *domain.Session
	media   orch.MediaState
}

func (f *fakeController) Connect(_ context.Context, room domain.Room, tok string) (domain.Session, error) {
	f.room, f.token = room, tok
	if f.connectErr != nil {
		return domain.Session{}, f.connectErr
	}
	s := domain.Session{ID: "s1", Room: room, State: domain.StateConnected}
	f.session = &s
	return s, nil
}

func (f *fakeController) Disconnect(context.Context) error { return f.disconnectErr }

func (f *fakeController) State() domain.ConnectionState {
	if f.session == nil {
		return domain.StateIdle
	}
	return f.session.State
}

func (f *fakeController) Session() (domain.Session, bool) {
	if f.session == nil {
		return domain.Session{}, false
	}
	return *f.session, true
}

func (f *fakeController) ViewerCount() int { return 2 }
func (f *fakeController) Participants() []*domain.RemoteParticipant {
	return []*domain.RemoteParticipant{domain.NewRemoteParticipant(domain.ParticipantInfo{Identity: "viewer-42"}, domain.ClassViewer)}
}
func (f *fakeController) Subscriptions() []domain.TrackPublication { return nil }
func (f *fakeController) Media() orch.MediaState                   { return f.media }
func (f *fakeController) AudioLevel() int                          { return 17 }

func (f *fakeController) SetVideoEnabled(enabled bool) error {
	f.media.Video = enabled
	return f.mediaErr
}

func (f *fakeController) SetAudioEnabled(enabled bool) error {
	f.media.Audio = enabled
	return f.mediaErr
}

func (f *fakeController) SetScreenShareEnabled(_ context.Context, enabled bool) error {
	if f.mediaErr != nil {
		return f.mediaErr
	}
	f.media.ScreenShare = enabled
	return nil
}

func newRouter(t *testing.T, ctrl *fakeController) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SetViewers(2)

	iss, err := token.NewIssuer("key", "a-secret-long-enough-for-hs256-signing", time.Minute)
	require.NoError(t, err)

	cfg := &config.Config{Mode: "test", Secret: "cookie-secret", Room: "studio", Identity: "host"}
	return SetupRouter(context.Background(), cfg, Deps{Controller: ctrl, Issuer: iss, Gatherer: reg})
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConnectUsesDefaultRoom(t *testing.T) {
	ctrl := &fakeController{}
	r := newRouter(t, ctrl)

	w := do(r, http.MethodPost, "/api/session", `{"token":"jwt"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.RoomName("studio"), ctrl.room.Name)
	assert.Equal(t, "jwt", ctrl.token)
	assert.NotEmpty(t, w.Header().Get("Set-Cookie"))

	var s domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, domain.SessionID("s1"), s.ID)
}

func TestConnectErrorStatus(t *testing.T) {
	cases := map[error]int{
		core.NewError(core.ErrAuth, "connect", core.ErrEmptyToken): http.StatusUnauthorized,
		core.ErrSessionActive:                              http.StatusConflict,
		core.NewError(core.ErrProvider, "connect", nil):    http.StatusBadGateway,
		core.NewError(core.ErrMediaAccess, "publish", nil): http.StatusFailedDependency,
	}
	for err, status := range cases {
		r := newRouter(t, &fakeController{connectErr: err})
		w := do(r, http.MethodPost, "/api/session", `{"room":"x"}`)
		assert.Equal(t, status, w.Code, err.Error())
	}

	r := newRouter(t, &fakeController{})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/session", `{`).Code)
}

func TestDisconnect(t *testing.T) {
	r := newRouter(t, &fakeController{})
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/api/session", "").Code)

	r = newRouter(t, &fakeController{disconnectErr: core.ErrProvider})
	w := do(r, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestStateReport(t *testing.T) {
	ctrl := &fakeController{}
	r := newRouter(t, ctrl)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/session", `{"token":"jwt"}`).Code)

	w := do(r, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.StateConnected, resp.State)
	assert.Equal(t, 2, resp.ViewerCount)
	assert.Equal(t, 17, resp.AudioLevel)
	require.Len(t, resp.Participants, 1)
	assert.Equal(t, "viewer-42", resp.Participants[0].Identity)
	require.NotNil(t, resp.Session)
}

func TestMediaToggles(t *testing.T) {
	ctrl := &fakeController{media: orch.MediaState{Video: true, Audio: true}}
	r := newRouter(t, ctrl)

	w := do(r, http.MethodPut, "/api/session/media", `{"video":false,"screen_share":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	var ms orch.MediaState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ms))
	assert.False(t, ms.Video)
	assert.True(t, ms.Audio)
	assert.True(t, ms.ScreenShare)

	r = newRouter(t, &fakeController{mediaErr: core.NewError(core.ErrUnsupported, "media", nil)})
	assert.Equal(t, http.StatusNotImplemented, do(r, http.MethodPut, "/api/session/media", `{"screen_share":true}`).Code)
}

func TestIssueToken(t *testing.T) {
	r := newRouter(t, &fakeController{})

	w := do(r, http.MethodPost, "/api/token", `{"role":"publisher"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Token    string `json:"token"`
		Room     string `json:"room"`
		Identity string `json:"identity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, "studio", out.Room)
	assert.Equal(t, "host", out.Identity)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/token", `{"role":"viewer"}`).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(t, &fakeController{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "golive_viewers 2")
}
