package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 502, cfg.Controller.Port)
	assert.Equal(t, uint8(1), cfg.Controller.UnitID)
	assert.Equal(t, 500*time.Millisecond, cfg.Controller.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Controller.IOTimeout)
	assert.True(t, cfg.Web.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing host",
			modify: func(c *Config) {
				c.Controller.Host = ""
			},
			wantErr: true,
		},
		{
			name: "invalid controller port - too low",
			modify: func(c *Config) {
				c.Controller.Port = 0
			},
			wantErr: true,
		},
		{
			name: "invalid controller port - too high",
			modify: func(c *Config) {
				c.Controller.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "zero poll interval",
			modify: func(c *Config) {
				c.Controller.PollInterval = 0
			},
			wantErr: true,
		},
		{
			name: "negative io timeout",
			modify: func(c *Config) {
				c.Controller.IOTimeout = -time.Second
			},
			wantErr: true,
		},
		{
			name: "invalid web port when enabled",
			modify: func(c *Config) {
				c.Web.Port = 0
			},
			wantErr: true,
		},
		{
			name: "web port ignored when disabled",
			modify: func(c *Config) {
				c.Web.Enabled = false
				c.Web.Port = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	// 建立暫存目錄
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.json")

	// 儲存配置
	cfg := DefaultConfig()
	cfg.Controller.Host = "10.0.0.50"
	cfg.Controller.PollInterval = 250 * time.Millisecond

	err := cfg.SaveConfig(configPath)
	require.NoError(t, err)

	// 確認檔案存在
	_, err = os.Stat(configPath)
	require.NoError(t, err)

	// 載入配置
	loadedCfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, cfg.Controller.Host, loadedCfg.Controller.Host)
	assert.Equal(t, cfg.Controller.PollInterval, loadedCfg.Controller.PollInterval)
}
