package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Source is the session the hub reports on.
type Source interface {
	Subscribe(fn func(core.Notice)) core.Unsubscribe
	OnAudioLevel(fn func(domain.AudioLevelSample)) core.Unsubscribe
	Session() (domain.Session, bool)
	ViewerCount() int
}

type Config struct {
	ReadLimit  int64
	PingPeriod time.Duration
	// MessageLimit inbound messages are allowed per client each MessageWindow.
	MessageLimit  int
	MessageWindow time.Duration
}

// Hub pushes controller notices and audio levels to every connected UI client.
type Hub struct {
	src     Source
	cfg     Config
	limiter *RateLimiter

	mu      sync.RWMutex
	clients map[string]core.SignalConnection
	unsubs  []core.Unsubscribe
	level   int
}

func NewHub(src Source, cfg Config) *Hub {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 32768
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 20
	}
	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = time.Second
	}
	return &Hub{
		src:     src,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.MessageLimit, cfg.MessageWindow),
		clients: make(map[string]core.SignalConnection),
		level:   -1,
	}
}

// Start subscribes to the source. Call Stop to detach and drop all clients.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubs = append(h.unsubs,
		h.src.Subscribe(h.onNotice),
		h.src.OnAudioLevel(h.onLevel),
	)
}

func (h *Hub) Stop() {
	h.mu.Lock()
	unsubs := h.unsubs
	h.unsubs = nil
	clients := h.clients
	h.clients = make(map[string]core.SignalConnection)
	h.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	for _, c := range clients {
		c.Close()
	}
}

func (h *Hub) onNotice(n core.Notice) {
	msg := noticeMessage{Type: "notice", Notice: n}
	if n.Err != nil {
		msg.Error = n.Err.Error()
	}
	h.Broadcast(msg)
}

// onLevel forwards only changes.
func (h *Hub) onLevel(s domain.AudioLevelSample) {
	h.mu.Lock()
	if s.Level == h.level {
		h.mu.Unlock()
		return
	}
	h.level = s.Level
	h.mu.Unlock()
	h.Broadcast(levelMessage{Type: "level", Level: s.Level})
}

func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	conns := make([]core.SignalConnection, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		sendJSON(c, v)
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(id string, c core.SignalConnection) {
	h.mu.Lock()
	old := h.clients[id]
	h.clients[id] = c
	h.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (h *Hub) unregister(id string, c core.SignalConnection) {
	h.mu.Lock()
	if h.clients[id] == c {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	h.limiter.Forget(id)
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves one UI client until either side closes.
func (h *Hub) HandleSignal(ctx context.Context, c *gin.Context) {
	id := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("client", id).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(h.cfg.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	h.register(id, conn)

	ctx, cancel := context.WithCancel(ctx)
	go h.writePump(ctx, conn)
	go func() {
		defer cancel()
		defer h.unregister(id, conn)
		h.readPump(ctx, id, conn)
	}()

	h.handleState(conn)
}
