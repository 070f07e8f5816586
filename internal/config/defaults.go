package config

import (
	_ "embed"
)

//go:embed defaults/server.yaml
var defaultServerYAML []byte

//go:embed defaults/client.yaml
var defaultClientYAML []byte

// DefaultServerConfig 返回内置默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:              ":27960",
		Proto:               "tcp",
		SnapFrameTimeMs:     50,
		MaxClients:          16,
		CommandRate:         CommandRate{PerSecond: 10, Burst: 20},
		HeartbeatTimeoutSec: 30,
		JWTSecretEnv:        "SNAPSYNC_JWT_SECRET",
		LogLevel:            "info",
	}
}

// DefaultClientConfig 返回内置默认客户端配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Server:            "127.0.0.1:27960",
		Proto:             "tcp",
		Name:              "player",
		ProjectileAntilag: 1.0,
		RenderRate:        60,
		LogLevel:          "info",
	}
}
