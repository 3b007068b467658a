package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"netsync/sim"
)

// Config 房间场景配置（configs/arena.yaml）
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Players []PlayerConfig `yaml:"players"`
	Render  RenderConfig   `yaml:"render"`
	Intents IntentConfig   `yaml:"intents"`

	// TraceDir 非空时把每个服务端 Tick 的状态写入 zstd JSONL
	TraceDir string `yaml:"trace_dir"`
}

type ServerConfig struct {
	TickRateHz   int       `yaml:"tick_rate_hz"`
	Spawns       []float64 `yaml:"spawns"`
	EntitySpeed  float64   `yaml:"entity_speed"`
	MaxPressTime float64   `yaml:"max_press_time"`
}

type PlayerConfig struct {
	Name       string `yaml:"name"`
	TickRateHz int    `yaml:"tick_rate_hz"`
	LagMs      int64  `yaml:"lag_ms"`

	sim.Settings `yaml:",inline"`
}

type RenderConfig struct {
	CanvasWidth float64 `yaml:"canvas_width"` // screen_x 映射的画布宽度（像素）
	TextWidth   int     `yaml:"text_width"`   // 文本渲染的列数
}

// IntentConfig 每个 ws 连接的按键消息限流
type IntentConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

func DefaultConfig() Config {
	player := func(name string) PlayerConfig {
		return PlayerConfig{
			Name:       name,
			TickRateHz: sim.DefaultClientTickRate,
			LagMs:      250,
			Settings:   sim.Settings{Interpolation: true},
		}
	}
	return Config{
		Server: ServerConfig{
			TickRateHz:   sim.DefaultServerTickRate,
			Spawns:       append([]float64(nil), sim.DefaultSpawns...),
			EntitySpeed:  sim.DefaultEntitySpeed,
			MaxPressTime: sim.DefaultMaxPressTime,
		},
		Players: []PlayerConfig{player("player1"), player("player2")},
		Render:  RenderConfig{CanvasWidth: 920, TextWidth: 61},
		Intents: IntentConfig{RatePerSec: 60, Burst: 20},
	}
}

// LoadConfig 读取 YAML 并覆盖默认值
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("arena config: %w", err)
	}
	// players 列表整体替换默认值，未写频率的玩家使用客户端默认频率
	for i := range cfg.Players {
		if cfg.Players[i].TickRateHz == 0 {
			cfg.Players[i].TickRateHz = sim.DefaultClientTickRate
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("arena config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.TickRateHz <= 0 {
		return fmt.Errorf("server.tick_rate_hz must be positive, got %d", c.Server.TickRateHz)
	}
	if c.Intents.RatePerSec <= 0 || c.Intents.Burst <= 0 {
		return fmt.Errorf("intents: rate_per_sec and burst must be positive")
	}
	if len(c.Players) == 0 {
		return fmt.Errorf("at least one player is required")
	}
	seen := make(map[string]bool, len(c.Players))
	for i, p := range c.Players {
		if p.Name == "" {
			return fmt.Errorf("players[%d]: empty name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("players[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.TickRateHz <= 0 {
			return fmt.Errorf("player %s: tick_rate_hz must be positive", p.Name)
		}
		if p.LagMs < 0 {
			return fmt.Errorf("player %s: lag_ms must not be negative", p.Name)
		}
	}
	return nil
}

func (p PlayerConfig) Lag() time.Duration {
	return lagFromMs(p.LagMs)
}
