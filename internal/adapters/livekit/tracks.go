package livekit

import (
	"strings"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type remotePub struct {
	pub *lksdk.RemoteTrackPublication
}

var _ core.RemotePublication = (*remotePub)(nil)

func (p *remotePub) SID() string                  { return p.pub.SID() }
func (p *remotePub) Kind() domain.TrackKind       { return toKind(p.pub.Kind()) }
func (p *remotePub) Source() domain.TrackSource   { return fromSource(p.pub.Source()) }
func (p *remotePub) IsMuted() bool                { return p.pub.IsMuted() }
func (p *remotePub) IsSubscribed() bool           { return p.pub.IsSubscribed() }
func (p *remotePub) SetSubscribed(sub bool) error { return p.pub.SetSubscribed(sub) }

func (p *remotePub) Media() core.MediaTrack {
	if t := p.pub.TrackRemote(); t != nil {
		return newMediaTrack(t)
	}
	return nil
}

type mediaTrack struct {
	track *webrtc.TrackRemote
}

func newMediaTrack(t *webrtc.TrackRemote) core.MediaTrack {
	if t == nil {
		return nil
	}
	return &mediaTrack{track: t}
}

func (m *mediaTrack) ID() string    { return m.track.ID() }
func (m *mediaTrack) Codec() string { return m.track.Codec().MimeType }

func (m *mediaTrack) Kind() domain.TrackKind {
	if m.track.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.TrackKindAudio
	}
	return domain.TrackKindVideo
}

func (m *mediaTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := m.track.ReadRTP()
	return pkt, err
}

type localPub struct {
	pub    *lksdk.LocalTrackPublication
	kind   domain.TrackKind
	source domain.TrackSource
}

var _ core.LocalPublication = (*localPub)(nil)

func (p *localPub) SID() string                { return p.pub.SID() }
func (p *localPub) Kind() domain.TrackKind     { return p.kind }
func (p *localPub) Source() domain.TrackSource { return p.source }
func (p *localPub) Muted() bool                { return p.pub.IsMuted() }

func (p *localPub) SetMuted(muted bool) error {
	p.pub.SetMuted(muted)
	return nil
}

func participantInfo(rp *lksdk.RemoteParticipant) domain.ParticipantInfo {
	if rp == nil {
		return domain.ParticipantInfo{}
	}
	return domain.ParticipantInfo{
		Identity: rp.Identity(),
		Name:     rp.Name(),
		Metadata: rp.Metadata(),
		Kind:     kindName(livekit.ParticipantInfo_Kind(rp.Kind())),
	}
}

// kindName renders a participant kind the way the classification rule
// expects it ("standard", "egress", "agent", ...).
func kindName(k livekit.ParticipantInfo_Kind) string {
	return strings.ToLower(k.String())
}

func toQuality(q livekit.ConnectionQuality) domain.Quality {
	switch q {
	case livekit.ConnectionQuality_EXCELLENT:
		return domain.QualityExcellent
	case livekit.ConnectionQuality_GOOD:
		return domain.QualityGood
	case livekit.ConnectionQuality_POOR:
		return domain.QualityPoor
	case livekit.ConnectionQuality_LOST:
		return domain.QualityLost
	default:
		return domain.QualityUnknown
	}
}

func toKind(k lksdk.TrackKind) domain.TrackKind {
	if k == lksdk.TrackKindAudio {
		return domain.TrackKindAudio
	}
	return domain.TrackKindVideo
}

func toSource(s domain.TrackSource) livekit.TrackSource {
	switch s {
	case domain.SourceCamera:
		return livekit.TrackSource_CAMERA
	case domain.SourceMicrophone:
		return livekit.TrackSource_MICROPHONE
	case domain.SourceScreen:
		return livekit.TrackSource_SCREEN_SHARE
	default:
		return livekit.TrackSource_UNKNOWN
	}
}

func fromSource(s livekit.TrackSource) domain.TrackSource {
	switch s {
	case livekit.TrackSource_CAMERA:
		return domain.SourceCamera
	case livekit.TrackSource_MICROPHONE:
		return domain.SourceMicrophone
	case livekit.TrackSource_SCREEN_SHARE, livekit.TrackSource_SCREEN_SHARE_AUDIO:
		return domain.SourceScreen
	default:
		return domain.SourceUnknown
	}
}
