package domain

import "time"

// Constraints describe what the publisher asks of capture devices.
// Values are ideals: the device layer picks the nearest supported mode.
type Constraints struct {
	Width            int     `mapstructure:"width"`
	Height           int     `mapstructure:"height"`
	FrameRate        float64 `mapstructure:"frame_rate"`
	SampleRate       int     `mapstructure:"sample_rate"`
	EchoCancellation bool    `mapstructure:"echo_cancellation"`
	DisableVideo     bool    `mapstructure:"disable_video"`
	DisableAudio     bool    `mapstructure:"disable_audio"`
}

func DefaultConstraints() Constraints {
	return Constraints{
		Width:            1280,
		Height:           720,
		FrameRate:        30,
		SampleRate:       48000,
		EchoCancellation: true,
	}
}

// AudioLevelSample is a 0-100 activity value for one sampling tick.
type AudioLevelSample struct {
	Level int
	At    time.Time
}

type Quality string

const (
	QualityUnknown   Quality = "unknown"
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityLost      Quality = "lost"
)

// Degraded reports whether q should raise a quality advisory.
func (q Quality) Degraded() bool {
	return q == QualityPoor || q == QualityLost
}
