package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/faderhub/faderhub/internal/registry"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"FADERHUB_PORT", "FADERHUB_ALLOWED_ORIGINS", "FADERHUB_BRIDGE_HOST",
		"FADERHUB_BRIDGE_PORT", "FADERHUB_CHANNELS", "FADERHUB_MAX_MESSAGE_SIZE",
		"FADERHUB_RATE_BURST", "FADERHUB_RATE_REFILL_SECONDS", "FADERHUB_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}

	cfg := Load()
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.BridgeHost)
	assert.Equal(t, 57121, cfg.BridgePort)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Second, cfg.RateRefill)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FADERHUB_PORT", "4000")
	t.Setenv("FADERHUB_ALLOWED_ORIGINS", "http://a.local, http://b.local")
	t.Setenv("FADERHUB_BRIDGE_HOST", "10.0.0.9")
	t.Setenv("FADERHUB_BRIDGE_PORT", "9000")
	t.Setenv("FADERHUB_RATE_REFILL_SECONDS", "2")

	cfg := Load()
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.AllowedOrigins)
	assert.Equal(t, "10.0.0.9", cfg.BridgeHost)
	assert.Equal(t, 9000, cfg.BridgePort)
	assert.Equal(t, 2*time.Second, cfg.RateRefill)
}

func TestLoadSanitizesBadValues(t *testing.T) {
	t.Setenv("FADERHUB_PORT", "not-a-number")
	t.Setenv("FADERHUB_BRIDGE_PORT", "99999")

	cfg := Load()
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 57121, cfg.BridgePort)
}

func TestLoadChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.toml")
	content := `
[[channel]]
id = 1
label = "Kick"
color = "#ff4757"
mode = "osc"
oscAddress = "/drums/kick"
oscTargetPort = 9000

[[channel]]
id = 2
midiCC = 21
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	presets, err := LoadChannels(path)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(presets))

	p1 := presets[1]
	assert.Equal(t, "Kick", *p1.Label)
	assert.Equal(t, registry.ModeOSC, *p1.Mode)
	assert.Equal(t, "/drums/kick", *p1.OSCAddress)
	assert.Equal(t, 9000, *p1.OSCTargetPort)
	if p1.MIDICC != nil {
		t.Fatal("unset preset field should stay nil")
	}

	p2 := presets[2]
	assert.Equal(t, 21, *p2.MIDICC)
	if p2.Label != nil {
		t.Fatal("unset preset field should stay nil")
	}
}

func TestLoadChannelsDuplicateID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.toml")
	content := "[[channel]]\nid = 1\n\n[[channel]]\nid = 1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if _, err := LoadChannels(path); err == nil {
		t.Fatal("want error for duplicate channel id")
	}
}

func TestLoadChannelsMissingFile(t *testing.T) {
	if _, err := LoadChannels(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("want error for missing file")
	}
}
