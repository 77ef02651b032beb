package signal

import (
	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
)

type noticeMessage struct {
	Type   string      `json:"type"`
	Notice core.Notice `json:"notice"`
	Error  string      `json:"error,omitempty"`
}

type levelMessage struct {
	Type  string `json:"type"`
	Level int    `json:"level"`
}

type stateMessage struct {
	Type        string          `json:"type"`
	Session     *domain.Session `json:"session"`
	ViewerCount int             `json:"viewer_count"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (h *Hub) handlePing(c core.SignalConnection) {
	sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}

func (h *Hub) handleState(c core.SignalConnection) {
	msg := stateMessage{Type: "state", ViewerCount: h.src.ViewerCount()}
	if s, ok := h.src.Session(); ok {
		msg.Session = &s
	}
	sendJSON(c, msg)
}
