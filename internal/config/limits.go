package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/focus-room/pkg/config"
	"github.com/weiawesome/focus-room/pkg/log"
)

// Limits holds the tier entitlements that can change while running.
type Limits struct {
	tiers atomic.Pointer[TiersConfig]
}

func NewLimits(t TiersConfig) *Limits {
	l := &Limits{}
	l.Store(t)
	return l
}

func (l *Limits) Store(t TiersConfig) {
	l.tiers.Store(&t)
}

func (l *Limits) Tiers() TiersConfig {
	return *l.tiers.Load()
}

func (l *Limits) For(tier string) TierLimit {
	return l.Tiers().For(tier)
}

// Watch reloads the log level and the tier limits whenever the config
// file changes. It reports false when no config file was loaded.
func Watch(v *viper.Viper, limits *Limits) bool {
	return pkgconfig.Watch(v, func(v *viper.Viper, e fsnotify.Event) {
		logger := log.L()
		cfg, err := Decode(v)
		if err != nil {
			logger.Error().Err(err).Str("file", e.Name).Msg("config reload failed")
			return
		}
		log.SetLevel(cfg.Log.Level)
		limits.Store(cfg.Tiers)
		logger.Info().
			Str("file", e.Name).
			Str("log_level", cfg.Log.Level).
			Int("free_max_participants", cfg.Tiers.Free.MaxParticipants).
			Int("premium_max_participants", cfg.Tiers.Premium.MaxParticipants).
			Msg("config reloaded")
	})
}
