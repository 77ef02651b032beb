package orch

import (
	"github.com/dkeye/golive/internal/domain"
	"github.com/looplab/fsm"
)

const (
	evConnect      = "connect"
	evReady        = "ready"
	evReconnecting = "reconnecting"
	evReconnected  = "reconnected"
	evDisconnect   = "disconnect"
	evFail         = "fail"
)

// newStateMachine returns the connection state machine of one Session.
// disconnected and failed have no outgoing events.
func newStateMachine() *fsm.FSM {
	var (
		idle         = string(domain.StateIdle)
		connecting   = string(domain.StateConnecting)
		connected    = string(domain.StateConnected)
		reconnecting = string(domain.StateReconnecting)
		disconnected = string(domain.StateDisconnected)
		failed       = string(domain.StateFailed)
	)
	return fsm.NewFSM(
		idle,
		fsm.Events{
			{Name: evConnect, Src: []string{idle}, Dst: connecting},
			{Name: evReady, Src: []string{connecting}, Dst: connected},
			{Name: evReconnecting, Src: []string{connected}, Dst: reconnecting},
			{Name: evReconnected, Src: []string{reconnecting}, Dst: connected},
			{Name: evDisconnect, Src: []string{idle, connecting, connected, reconnecting}, Dst: disconnected},
			{Name: evFail, Src: []string{connecting, reconnecting}, Dst: failed},
		}, nil,
	)
}
