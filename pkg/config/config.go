// Package config handles loading and hot-reloading tuning for the
// interpolation engine.
package config

import (
	"context"
	"errors"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/opd-ai/snapshotinterp/pkg/interpolation"
)

// Config holds every tunable of Settings plus the demo harness's own knobs.
// Field names mirror interpolation.Settings so ToSettings is a straight
// copy.
type Config struct {
	Period                        float64 `mapstructure:"Period"`
	BufDuration                   float64 `mapstructure:"BufDuration"`
	DynamicPlaybackTime           bool    `mapstructure:"DynamicPlaybackTime"`
	DynamicPlaybackJitterDuration float64 `mapstructure:"DynamicPlaybackJitterDuration"`
	PlaybackOffsetPeriods         float64 `mapstructure:"PlaybackOffsetPeriods"`
	PlaybackClampPeriods          float64 `mapstructure:"PlaybackClampPeriods"`
	PlaybackSlowPeriods           float64 `mapstructure:"PlaybackSlowPeriods"`
	PlaybackSlowSpeed             float64 `mapstructure:"PlaybackSlowSpeed"`
	PlaybackFastPeriods           float64 `mapstructure:"PlaybackFastPeriods"`
	PlaybackFastSpeed             float64 `mapstructure:"PlaybackFastSpeed"`

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint in the demo harness. Empty disables it.
	MetricsAddr string `mapstructure:"MetricsAddr"`
	// NetCondition names the simulated network condition the demo harness
	// applies to its loopback link (see pkg/netsim).
	NetCondition string `mapstructure:"NetCondition"`
	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string `mapstructure:"LogLevel"`
}

// ToSettings converts Config into the interpolation package's immutable
// Settings value.
func (c Config) ToSettings() interpolation.Settings {
	return interpolation.Settings{
		Period:                        c.Period,
		BufDuration:                   c.BufDuration,
		DynamicPlaybackTime:           c.DynamicPlaybackTime,
		DynamicPlaybackJitterDuration: c.DynamicPlaybackJitterDuration,
		PlaybackOffsetPeriods:         c.PlaybackOffsetPeriods,
		PlaybackClampPeriods:          c.PlaybackClampPeriods,
		PlaybackSlowPeriods:           c.PlaybackSlowPeriods,
		PlaybackSlowSpeed:             c.PlaybackSlowSpeed,
		PlaybackFastPeriods:           c.PlaybackFastPeriods,
		PlaybackFastSpeed:             c.PlaybackFastSpeed,
	}
}

// C is the global configuration instance.
var C Config

// mu protects concurrent access to C during hot-reload.
var mu sync.RWMutex

// watcherMu protects the watcher state.
var (
	watcherMu       sync.Mutex
	watcherActive   bool
	watcherCtx      context.Context
	watcherCancel   context.CancelFunc
	currentCallback ReloadCallback
)

// ReloadCallback is called when the configuration is hot-reloaded.
type ReloadCallback func(old, new Config)

func setDefaults() {
	d := interpolation.DefaultSettings()

	viper.SetDefault("Period", d.Period)
	viper.SetDefault("BufDuration", d.BufDuration)
	viper.SetDefault("DynamicPlaybackTime", d.DynamicPlaybackTime)
	viper.SetDefault("DynamicPlaybackJitterDuration", d.DynamicPlaybackJitterDuration)
	viper.SetDefault("PlaybackOffsetPeriods", d.PlaybackOffsetPeriods)
	viper.SetDefault("PlaybackClampPeriods", d.PlaybackClampPeriods)
	viper.SetDefault("PlaybackSlowPeriods", d.PlaybackSlowPeriods)
	viper.SetDefault("PlaybackSlowSpeed", d.PlaybackSlowSpeed)
	viper.SetDefault("PlaybackFastPeriods", d.PlaybackFastPeriods)
	viper.SetDefault("PlaybackFastSpeed", d.PlaybackFastSpeed)
	viper.SetDefault("MetricsAddr", ":9090")
	viper.SetDefault("NetCondition", "good")
	viper.SetDefault("LogLevel", "info")
}

// Load reads configuration from file and environment, populating C.
func Load() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.snapshotinterp")

	setDefaults()
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	return viper.Unmarshal(&C)
}

// Save writes the current configuration to file.
func Save() error {
	mu.RLock()
	defer mu.RUnlock()

	viper.Set("Period", C.Period)
	viper.Set("BufDuration", C.BufDuration)
	viper.Set("DynamicPlaybackTime", C.DynamicPlaybackTime)
	viper.Set("DynamicPlaybackJitterDuration", C.DynamicPlaybackJitterDuration)
	viper.Set("PlaybackOffsetPeriods", C.PlaybackOffsetPeriods)
	viper.Set("PlaybackClampPeriods", C.PlaybackClampPeriods)
	viper.Set("PlaybackSlowPeriods", C.PlaybackSlowPeriods)
	viper.Set("PlaybackSlowSpeed", C.PlaybackSlowSpeed)
	viper.Set("PlaybackFastPeriods", C.PlaybackFastPeriods)
	viper.Set("PlaybackFastSpeed", C.PlaybackFastSpeed)
	viper.Set("MetricsAddr", C.MetricsAddr)
	viper.Set("NetCondition", C.NetCondition)
	viper.Set("LogLevel", C.LogLevel)

	return viper.WriteConfig()
}

// Watch starts watching the config file for changes and calls the callback
// on reload. Returns a stop function to cancel watching. Only one watcher
// can be active at a time; calling Watch when a watcher is active replaces
// the callback but keeps the same underlying file watcher (to avoid viper
// race conditions).
func Watch(callback ReloadCallback) (stop func(), err error) {
	watcherMu.Lock()
	defer watcherMu.Unlock()

	if !watcherActive {
		ctx, cancel := context.WithCancel(context.Background())
		watcherCtx = ctx
		watcherCancel = cancel
		currentCallback = callback
		watcherActive = true

		viper.WatchConfig()
		viper.OnConfigChange(func(e fsnotify.Event) {
			watcherMu.Lock()
			cb := currentCallback
			ctx := watcherCtx
			watcherMu.Unlock()

			if ctx == nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}

			mu.Lock()
			old := C
			var newCfg Config
			if err := viper.Unmarshal(&newCfg); err == nil {
				C = newCfg
				mu.Unlock()
				if cb != nil {
					cb(old, newCfg)
				}
			} else {
				mu.Unlock()
			}
		})
	} else {
		currentCallback = callback
	}

	return func() {
		watcherMu.Lock()
		defer watcherMu.Unlock()
		if watcherCancel != nil {
			watcherCancel()
			watcherCancel = nil
			watcherCtx = nil
		}
		watcherActive = false
		currentCallback = nil
	}, nil
}

// Get returns a copy of the current config safely.
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return C
}

// Set updates the config safely.
func Set(cfg Config) {
	mu.Lock()
	C = cfg
	mu.Unlock()
}
