package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 全域配置
type Config struct {
	Controller ControllerConfig `json:"controller" mapstructure:"controller"`
	Web        WebConfig        `json:"web" mapstructure:"web"`
	Sim        SimConfig        `json:"sim" mapstructure:"sim"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// ControllerConfig 控制器連線配置
type ControllerConfig struct {
	Host         string        `json:"host" mapstructure:"host"`
	Port         int           `json:"port" mapstructure:"port"`
	UnitID       uint8         `json:"unit_id" mapstructure:"unit_id"`
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	IOTimeout    time.Duration `json:"io_timeout" mapstructure:"io_timeout"`
}

// WebConfig Web API 配置
type WebConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// SimConfig 內建模擬器配置
type SimConfig struct {
	Host           string        `json:"host" mapstructure:"host"`
	Port           int           `json:"port" mapstructure:"port"`
	UpdateInterval time.Duration `json:"update_interval" mapstructure:"update_interval"`
}

// LoggingConfig 日誌配置
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	OutputPath string `json:"output_path" mapstructure:"output_path"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Host:         "192.168.1.100",
			Port:         502,
			UnitID:       1,
			PollInterval: 500 * time.Millisecond,
			IOTimeout:    500 * time.Millisecond,
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    5000,
		},
		Sim: SimConfig{
			Host:           "127.0.0.1",
			Port:           5502,
			UpdateInterval: 100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}

// LoadConfig 載入配置檔
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("json")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/lncweb/")
		viper.AddConfigPath("$HOME/.lncweb/")
	}

	// 環境變數覆蓋
	viper.SetEnvPrefix("LNCWEB")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		// 配置檔不存在，使用預設值
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置驗證失敗: %w", err)
	}

	return cfg, nil
}

// Validate 驗證配置
func (c *Config) Validate() error {
	if c.Controller.Host == "" {
		return fmt.Errorf("必須指定控制器主機位址")
	}

	if c.Controller.Port < 1 || c.Controller.Port > 65535 {
		return fmt.Errorf("無效的控制器埠號: %d", c.Controller.Port)
	}

	if c.Controller.PollInterval <= 0 {
		return fmt.Errorf("輪詢間隔必須大於 0")
	}

	if c.Controller.IOTimeout <= 0 {
		return fmt.Errorf("I/O 超時必須大於 0")
	}

	if c.Web.Enabled && (c.Web.Port < 1 || c.Web.Port > 65535) {
		return fmt.Errorf("無效的 Web 埠號: %d", c.Web.Port)
	}

	if c.Sim.Port < 1 || c.Sim.Port > 65535 {
		return fmt.Errorf("無效的模擬器埠號: %d", c.Sim.Port)
	}

	return nil
}

// SaveConfig 儲存配置到檔案
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失敗: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("寫入配置檔失敗: %w", err)
	}

	return nil
}
