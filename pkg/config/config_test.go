package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/opd-ai/snapshotinterp/pkg/testutil"
)

func TestLoad_DefaultValues(t *testing.T) {
	viper.Reset()

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cfg := Get()
	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Period", cfg.Period, 0.200},
		{"BufDuration", cfg.BufDuration, 2.0},
		{"DynamicPlaybackTime", cfg.DynamicPlaybackTime, true},
		{"DynamicPlaybackJitterDuration", cfg.DynamicPlaybackJitterDuration, 2.0},
		{"PlaybackOffsetPeriods", cfg.PlaybackOffsetPeriods, 1.0},
		{"PlaybackClampPeriods", cfg.PlaybackClampPeriods, 1.0},
		{"PlaybackSlowPeriods", cfg.PlaybackSlowPeriods, -0.5},
		{"PlaybackSlowSpeed", cfg.PlaybackSlowSpeed, 0.96},
		{"PlaybackFastPeriods", cfg.PlaybackFastPeriods, 0.5},
		{"PlaybackFastSpeed", cfg.PlaybackFastSpeed, 1.02},
		{"MetricsAddr", cfg.MetricsAddr, ":9090"},
		{"NetCondition", cfg.NetCondition, "good"},
		{"LogLevel", cfg.LogLevel, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertTrue(t, tt.got == tt.want, fmt.Sprintf("Config.%s = %v, want %v", tt.name, tt.got, tt.want))
		})
	}
}

func TestConfig_ToSettings(t *testing.T) {
	viper.Reset()
	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	settings := Get().ToSettings()
	testutil.AssertFloatEqual(t, settings.Period, 0.200, 1e-9, "Settings.Period")
	testutil.AssertFloatEqual(t, settings.SendRate(), 5.0, 1e-9, "Settings.SendRate()")
}

func TestLoad_TOMLParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configData := `
Period = 0.100
BufDuration = 1.0
DynamicPlaybackTime = false
PlaybackOffsetPeriods = 2.0
NetCondition = "poor"
`
	if err := os.WriteFile(configPath, []byte(configData), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("viper.ReadInConfig() failed: %v", err)
	}
	if err := viper.Unmarshal(&C); err != nil {
		t.Fatalf("viper.Unmarshal() failed: %v", err)
	}

	cfg := Get()
	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Period", cfg.Period, 0.100},
		{"BufDuration", cfg.BufDuration, 1.0},
		{"DynamicPlaybackTime", cfg.DynamicPlaybackTime, false},
		{"PlaybackOffsetPeriods", cfg.PlaybackOffsetPeriods, 2.0},
		{"NetCondition", cfg.NetCondition, "poor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertTrue(t, tt.got == tt.want, fmt.Sprintf("Config.%s = %v, want %v", tt.name, tt.got, tt.want))
		})
	}

	// Values left unset in the file still fall back to their defaults.
	testutil.AssertFloatEqual(t, cfg.PlaybackClampPeriods, 1.0, 1e-9, "PlaybackClampPeriods, want the default")
}

func TestLoad_MissingFileFallback(t *testing.T) {
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/nonexistent/path")

	if err := Load(); err != nil {
		t.Errorf("Load() with missing file should not error, got: %v", err)
	}

	cfg := Get()
	testutil.AssertFloatEqual(t, cfg.Period, 0.200, 1e-9, "default Period")
}

func TestSave_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cfg := Config{
		Period:                        0.050,
		BufDuration:                   1.5,
		DynamicPlaybackTime:           false,
		DynamicPlaybackJitterDuration: 1.0,
		PlaybackOffsetPeriods:         1.5,
		PlaybackClampPeriods:          1.5,
		PlaybackSlowPeriods:           -0.25,
		PlaybackSlowSpeed:             0.9,
		PlaybackFastPeriods:           0.25,
		PlaybackFastSpeed:             1.1,
		MetricsAddr:                   ":9999",
		NetCondition:                  "fair",
		LogLevel:                      "debug",
	}
	Set(cfg)

	if err := Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := viper.WriteConfigAs(configPath); err != nil {
		t.Fatalf("viper.WriteConfigAs() failed: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() after save failed: %v", err)
	}

	newCfg := Get()
	testutil.AssertFloatEqual(t, newCfg.Period, 0.050, 1e-9, "Period")
	testutil.AssertStringEqual(t, newCfg.NetCondition, "fair", "NetCondition")
	testutil.AssertFloatEqual(t, newCfg.PlaybackFastSpeed, 1.1, 1e-9, "PlaybackFastSpeed")
}

func TestWatch_HotReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	initialData := `
Period = 0.200
BufDuration = 2.0
NetCondition = "good"
`
	if err := os.WriteFile(configPath, []byte(initialData), 0o644); err != nil {
		t.Fatalf("failed to write initial config: %v", err)
	}

	viper.Reset()
	mu.Lock()
	C = Config{}
	mu.Unlock()

	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("viper.ReadInConfig() failed: %v", err)
	}

	mu.Lock()
	if err := viper.Unmarshal(&C); err != nil {
		mu.Unlock()
		t.Fatalf("viper.Unmarshal() failed: %v", err)
	}
	mu.Unlock()

	initialCfg := Get()
	if initialCfg.Period != 0.200 {
		t.Fatalf("initial Period = %v, want 0.200", initialCfg.Period)
	}

	var callbackCalled bool
	var newCfg Config
	var cbMu sync.Mutex

	callback := func(old, new Config) {
		cbMu.Lock()
		callbackCalled = true
		newCfg = new
		cbMu.Unlock()
		t.Logf("hot-reload callback invoked: old.NetCondition=%s, new.NetCondition=%s", old.NetCondition, new.NetCondition)
	}

	stop, err := Watch(callback)
	if err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}
	defer stop()

	time.Sleep(100 * time.Millisecond)

	modifiedData := `
Period = 0.100
BufDuration = 1.0
NetCondition = "poor"
`
	if err := os.WriteFile(configPath, []byte(modifiedData), 0o644); err != nil {
		t.Fatalf("failed to write modified config: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	cbMu.Lock()
	called := callbackCalled
	cbMu.Unlock()

	if !called {
		t.Error("callback was not called after config change")
		return
	}

	cbMu.Lock()
	testutil.AssertFloatEqual(t, newCfg.Period, 0.100, 1e-9, "callback new.Period")
	testutil.AssertStringEqual(t, newCfg.NetCondition, "poor", "callback new.NetCondition")
	cbMu.Unlock()

	cfg := Get()
	testutil.AssertFloatEqual(t, cfg.Period, 0.100, 1e-9, "global Period")
	testutil.AssertStringEqual(t, cfg.NetCondition, "poor", "global NetCondition")
}

func TestWatch_NilCallback(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(configPath, []byte(`Period = 0.200`), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	stop, err := Watch(nil)
	if err != nil {
		t.Fatalf("Watch(nil) failed: %v", err)
	}
	defer stop()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configPath, []byte(`Period = 0.050`), 0o644); err != nil {
		t.Fatalf("failed to write modified config: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	cfg := Get()
	testutil.AssertFloatEqual(t, cfg.Period, 0.050, 1e-9, "Period")
}

func TestGetSet_Concurrency(t *testing.T) {
	viper.Reset()
	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	var wg sync.WaitGroup
	iterations := 100

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				_ = Get()
			}
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				cfg := Get()
				cfg.PlaybackOffsetPeriods = 1.0 + float64(id)*0.01
				Set(cfg)
			}
		}(i)
	}

	wg.Wait()

	cfg := Get()
	if cfg.PlaybackOffsetPeriods < 1.0 || cfg.PlaybackOffsetPeriods >= 1.1 {
		t.Logf("final PlaybackOffsetPeriods = %v (expected in range [1.0, 1.1))", cfg.PlaybackOffsetPeriods)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	invalidData := `
Period = "not a number"
[[[invalid structure
`
	if err := os.WriteFile(configPath, []byte(invalidData), 0o644); err != nil {
		t.Fatalf("failed to write invalid config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	err := Load()
	testutil.AssertNotNil(t, err, "Load() should return an error for invalid TOML")
}

func BenchmarkGet(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Get()
	}
}

func BenchmarkSet(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	cfg := Get()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Set(cfg)
	}
}

func BenchmarkGetSet_Concurrent(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			cfg := Get()
			cfg.PlaybackOffsetPeriods = 1.5
			Set(cfg)
		}
	})
}
