package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/golive/internal/adapters/livekit"
	"github.com/dkeye/golive/internal/adapters/whip"
	"github.com/dkeye/golive/internal/app/audiolevel"
	"github.com/dkeye/golive/internal/app/participants"
	"github.com/dkeye/golive/internal/app/quality"
	"github.com/dkeye/golive/internal/app/tracks"
	"github.com/dkeye/golive/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Provider string `mapstructure:"provider"`
	Room     string `mapstructure:"room"`
	Identity string `mapstructure:"identity"`
	// Publish acquires camera and microphone on connect.
	Publish       bool   `mapstructure:"publish"`
	AutoSubscribe bool   `mapstructure:"auto_subscribe"`
	RecordDir     string `mapstructure:"record_dir"`

	LiveKit      livekit.Config     `mapstructure:"livekit"`
	WHIP         whip.Config        `mapstructure:"whip"`
	Subscription tracks.Config      `mapstructure:"subscription"`
	Participants participants.Rule  `mapstructure:"participants"`
	Quality      quality.Config     `mapstructure:"quality"`
	Audio        audiolevel.Config  `mapstructure:"audio"`
	Media        domain.Constraints `mapstructure:"media"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("GOLIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("provider", cfg.Provider).
		Msg("config ready")
	return &cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("provider", livekit.Name)
	v.SetDefault("room", "")
	v.SetDefault("identity", "")
	v.SetDefault("publish", true)
	v.SetDefault("auto_subscribe", true)
	v.SetDefault("record_dir", "")

	v.SetDefault("livekit.url", "")
	v.SetDefault("livekit.api_key", "")
	v.SetDefault("livekit.api_secret", "")
	v.SetDefault("livekit.token_ttl", "1h")

	v.SetDefault("whip.url", "")
	v.SetDefault("whip.bearer_token", "")
	v.SetDefault("whip.ice_servers", []string{"stun:stun.l.google.com:19302"})

	sub := tracks.DefaultConfig()
	v.SetDefault("subscription.poll_interval", sub.PollInterval)
	v.SetDefault("subscription.max_attempts", sub.MaxAttempts)

	rule := participants.DefaultRule()
	v.SetDefault("participants.infra_identity_prefixes", rule.IdentityPrefixes)
	v.SetDefault("participants.infra_metadata_marker", rule.MetadataMarker)
	v.SetDefault("participants.infra_kinds", rule.Kinds)

	v.SetDefault("quality.poll_interval", quality.DefaultConfig().PollInterval)

	audio := audiolevel.DefaultConfig()
	v.SetDefault("audio.sample_interval", audio.Interval)
	v.SetDefault("audio.fft_size", audio.FFTSize)
	v.SetDefault("audio.reference_ceiling", audio.Ceiling)

	media := domain.DefaultConstraints()
	v.SetDefault("media.width", media.Width)
	v.SetDefault("media.height", media.Height)
	v.SetDefault("media.frame_rate", media.FrameRate)
	v.SetDefault("media.sample_rate", media.SampleRate)
	v.SetDefault("media.echo_cancellation", media.EchoCancellation)
	v.SetDefault("media.disable_video", false)
	v.SetDefault("media.disable_audio", false)
}

var (
	ErrProvider = errors.New("unknown provider")
	ErrPort     = errors.New("port out of range")
)

// Validate rejects combinations the process cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrPort, c.Port))
	}
	switch c.Provider {
	case livekit.Name:
		if c.LiveKit.URL == "" {
			errs = append(errs, errors.New("livekit.url is required"))
		}
		if (c.LiveKit.APIKey == "") != (c.LiveKit.APISecret == "") {
			errs = append(errs, errors.New("livekit.api_key and livekit.api_secret go together"))
		}
	case whip.Name:
		if c.WHIP.URL == "" {
			errs = append(errs, errors.New("whip.url is required"))
		}
		if !c.Publish {
			errs = append(errs, errors.New("whip provider requires publish"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrProvider, c.Provider))
	}
	if c.Subscription.MaxAttempts < 1 {
		errs = append(errs, errors.New("subscription.max_attempts must be positive"))
	}
	if c.Subscription.PollInterval <= 0 {
		errs = append(errs, errors.New("subscription.poll_interval must be positive"))
	}
	if n := c.Audio.FFTSize; n <= 0 || n&(n-1) != 0 {
		errs = append(errs, fmt.Errorf("audio.fft_size must be a power of two, got %d", n))
	}
	return errors.Join(errs...)
}
