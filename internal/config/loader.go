package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadServer 加载服务器配置
// 查找顺序: customPath -> ~/.snapsync/server.yaml -> ./configs/server.yaml -> 内置默认
func LoadServer(customPath string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := load("server.yaml", customPath, defaultServerYAML, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadClient 加载客户端配置
// 查找顺序: customPath -> ~/.snapsync/client.yaml -> ./configs/client.yaml -> 内置默认
func LoadClient(customPath string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := load("client.yaml", customPath, defaultClientYAML, &cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	return cfg, cfg.Validate()
}

// load 按查找顺序把第一个可用的文件解析到 cfg 上（覆盖默认值）
func load(filename, customPath string, embedded []byte, cfg any) error {
	if customPath != "" {
		data, err := os.ReadFile(customPath)
		if err != nil {
			return fmt.Errorf("读取配置 %s 失败: %w", customPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析配置 %s 失败: %w", customPath, err)
		}
		return nil
	}

	for _, path := range []string{userConfigPath(filename), filepath.Join("configs", filename)} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析配置 %s 失败: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(embedded, cfg); err != nil {
		return fmt.Errorf("解析内置配置 %s 失败: %w", filename, err)
	}
	return nil
}

// userConfigPath 用户配置路径，无法获取 home 目录时返回空
func userConfigPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".snapsync", filename)
}
