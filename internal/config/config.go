package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"snapsync/pkg/core"
)

// CommandRate 客户端文本命令限流
type CommandRate struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Listen              string      `yaml:"listen"`
	Proto               string      `yaml:"proto"`
	SnapFrameTimeMs     int         `yaml:"snap_frame_time_ms"`
	MaxClients          int         `yaml:"max_clients"`
	CommandRate         CommandRate `yaml:"command_rate"`
	HeartbeatTimeoutSec int         `yaml:"heartbeat_timeout_sec"`
	JWTSecretEnv        string      `yaml:"jwt_secret_env"`
	LogLevel            string      `yaml:"log_level"`
	ShowNet             int         `yaml:"show_net"`
}

// SnapFrameTime 快照间隔
func (c *ServerConfig) SnapFrameTime() time.Duration {
	return time.Duration(c.SnapFrameTimeMs) * time.Millisecond
}

// HeartbeatTimeout 心跳超时
func (c *ServerConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSec) * time.Second
}

// Validate 检查配置，一次返回所有问题
func (c *ServerConfig) Validate() error {
	var result *multierror.Error
	if c.Listen == "" {
		result = multierror.Append(result, fmt.Errorf("listen 不能为空"))
	}
	if err := validateProto(c.Proto); err != nil {
		result = multierror.Append(result, err)
	}
	if c.SnapFrameTimeMs <= 0 || c.SnapFrameTimeMs > 1000 {
		result = multierror.Append(result, fmt.Errorf("snap_frame_time_ms 超出范围 (1-1000): %d", c.SnapFrameTimeMs))
	}
	if c.MaxClients <= 0 || c.MaxClients > core.MaxClients {
		result = multierror.Append(result, fmt.Errorf("max_clients 超出范围 (1-%d): %d", core.MaxClients, c.MaxClients))
	}
	if c.CommandRate.PerSecond <= 0 || c.CommandRate.Burst <= 0 {
		result = multierror.Append(result, fmt.Errorf("command_rate 必须为正数"))
	}
	if c.HeartbeatTimeoutSec <= 0 {
		result = multierror.Append(result, fmt.Errorf("heartbeat_timeout_sec 必须为正数"))
	}
	if err := validateShowNet(c.ShowNet); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// ClientConfig 客户端配置
type ClientConfig struct {
	Server              string  `yaml:"server"`
	Proto               string  `yaml:"proto"`
	Name                string  `yaml:"name"`
	ExtrapolationTimeMs int     `yaml:"extrapolation_time_ms"`
	ProjectileAntilag   float32 `yaml:"projectile_antilag"`
	ShowNet             int     `yaml:"show_net"`
	RenderRate          int     `yaml:"render_rate"`
	DemoRecord          string  `yaml:"demo_record"`
	LogLevel            string  `yaml:"log_level"`
}

// Normalize 修正可以自动恢复的取值，返回被重置的字段
// 反延迟偏移超出 [0,1] 时强制恢复默认值
func (c *ClientConfig) Normalize() []string {
	var reset []string
	if c.ProjectileAntilag < 0 || c.ProjectileAntilag > 1 {
		c.ProjectileAntilag = core.DefaultProjectileAntilagRate
		reset = append(reset, "projectile_antilag")
	}
	if c.ExtrapolationTimeMs < 0 {
		c.ExtrapolationTimeMs = 0
		reset = append(reset, "extrapolation_time_ms")
	}
	return reset
}

// Validate 检查配置，一次返回所有问题
func (c *ClientConfig) Validate() error {
	var result *multierror.Error
	if c.Server == "" {
		result = multierror.Append(result, fmt.Errorf("server 不能为空"))
	}
	if err := validateProto(c.Proto); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Name == "" {
		result = multierror.Append(result, fmt.Errorf("name 不能为空"))
	}
	if c.ExtrapolationTimeMs > 500 {
		result = multierror.Append(result, fmt.Errorf("extrapolation_time_ms 过大: %d", c.ExtrapolationTimeMs))
	}
	if c.RenderRate <= 0 || c.RenderRate > 1000 {
		result = multierror.Append(result, fmt.Errorf("render_rate 超出范围 (1-1000): %d", c.RenderRate))
	}
	if err := validateShowNet(c.ShowNet); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func validateProto(proto string) error {
	switch proto {
	case "tcp", "kcp":
		return nil
	default:
		return fmt.Errorf("不支持的协议 %q (tcp|kcp)", proto)
	}
}

func validateShowNet(level int) error {
	if level < 0 || level > 3 {
		return fmt.Errorf("show_net 超出范围 (0-3): %d", level)
	}
	return nil
}
