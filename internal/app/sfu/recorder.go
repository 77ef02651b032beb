package sfu

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Recorder writes every attached publication to a file under Dir: VP8 video
// to IVF and Opus audio to Ogg. Other codecs are not recorded.
type Recorder struct {
	Dir string
}

func (r Recorder) Outputs(participant, publication string, media core.MediaTrack) ([]*OutTrack, error) {
	if r.Dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, err
	}
	base := filepath.Join(r.Dir, sanitize(participant)+"_"+sanitize(publication))
	codec := strings.ToLower(media.Codec())

	switch media.Kind() {
	case domain.TrackKindAudio:
		if codec != strings.ToLower(webrtc.MimeTypeOpus) {
			return nil, nil
		}
		w, err := oggwriter.New(base+".ogg", 48000, 2)
		if err != nil {
			return nil, fmt.Errorf("ogg writer: %w", err)
		}
		return []*OutTrack{NewOutTrack("ogg", w)}, nil
	case domain.TrackKindVideo:
		if codec != strings.ToLower(webrtc.MimeTypeVP8) {
			return nil, nil
		}
		w, err := ivfwriter.New(base + ".ivf")
		if err != nil {
			return nil, fmt.Errorf("ivf writer: %w", err)
		}
		return []*OutTrack{NewOutTrack("ivf", w)}, nil
	}
	return nil, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
