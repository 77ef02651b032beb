package livekit

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/golive/internal/app/participants"
	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyJoinErrors(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{errors.New("unauthorized: invalid token"), core.ErrAuth},
		{errors.New("could not connect: 401"), core.ErrAuth},
		{errors.New("websocket: bad handshake"), core.ErrProvider},
		{errors.New("dial tcp: connection refused"), core.ErrProvider},
	}
	for _, tc := range cases {
		err := classify(tc.err)
		require.Error(t, err)
		assert.ErrorIs(t, err, tc.kind, tc.err.Error())
		assert.ErrorIs(t, err, tc.err)
	}
	assert.NoError(t, classify(nil))
}

func TestQualityMapping(t *testing.T) {
	assert.Equal(t, domain.QualityExcellent, toQuality(livekit.ConnectionQuality_EXCELLENT))
	assert.Equal(t, domain.QualityGood, toQuality(livekit.ConnectionQuality_GOOD))
	assert.Equal(t, domain.QualityPoor, toQuality(livekit.ConnectionQuality_POOR))
	assert.Equal(t, domain.QualityLost, toQuality(livekit.ConnectionQuality_LOST))
	assert.True(t, toQuality(livekit.ConnectionQuality_POOR).Degraded())
}

func TestEgressKindIsInfrastructure(t *testing.T) {
	info := domain.ParticipantInfo{Identity: "recorder", Kind: kindName(livekit.ParticipantInfo_EGRESS)}
	assert.Equal(t, "egress", info.Kind)
	assert.Equal(t, domain.ClassInfrastructure, participants.DefaultRule().Classify(info))

	info.Kind = kindName(livekit.ParticipantInfo_STANDARD)
	assert.Equal(t, domain.ClassViewer, participants.DefaultRule().Classify(info))
}

func TestSourceRoundTrip(t *testing.T) {
	for _, s := range []domain.TrackSource{domain.SourceCamera, domain.SourceMicrophone, domain.SourceScreen} {
		assert.Equal(t, s, fromSource(toSource(s)))
	}
	assert.Equal(t, domain.SourceUnknown, fromSource(livekit.TrackSource_UNKNOWN))
}

func TestUnboundSession(t *testing.T) {
	s := newSession()
	assert.Empty(t, s.LocalIdentity())
	assert.Nil(t, s.RemoteParticipants())

	var got []core.Event
	unsub := s.OnEvent(func(ev core.Event) { got = append(got, ev) })
	cb := s.callback()
	cb.OnReconnecting()
	cb.OnReconnected()
	unsub()
	cb.OnReconnecting()
	require.Len(t, got, 2)
	assert.IsType(t, core.Reconnecting{}, got[0])
	assert.IsType(t, core.Reconnected{}, got[1])

	_, err := s.Publish(context.Background(), nil, core.PublishOptions{})
	assert.ErrorIs(t, err, core.ErrDisconnected)
	assert.NoError(t, s.Close(context.Background()))
	assert.NoError(t, s.Close(context.Background()))
}

func TestConnectHonoursContext(t *testing.T) {
	p := NewProvider(Config{URL: "ws://127.0.0.1:1"})
	assert.Equal(t, Name, p.Name())
	assert.True(t, p.Capabilities().ViewerCount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Connect(ctx, core.ConnectParams{Token: "t"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
}
