// snapsync-client 无界面客户端
//
// 用法:
//
//	snapsync-client connect [--server addr] [--name n] [--record file]
//	snapsync-client demo <file> [--timescale 1.0]
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"snapsync/internal/config"
)

var (
	// 全局参数
	flagConfig     string
	flagLogLevel   string
	flagShowNet    int
	flagRenderRate int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "snapsync-client",
	Short: "快照同步无界面客户端",
	Long: `连接服务器或回放 demo，把插值后的实体输出到日志。

可用命令:
  connect  连接服务器，由机器人驱动输入
  demo     回放录制的 demo`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "配置文件路径")
	pf.StringVar(&flagLogLevel, "log-level", "", "日志级别 (debug|info|warn|error)")
	pf.IntVar(&flagShowNet, "shownet", 0, "网络调试输出级别 (0-3)")
	pf.IntVar(&flagRenderRate, "render-rate", 0, "渲染频率 (Hz)")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(demoCmd)
}

// loadConfig 加载配置并应用全局参数
func loadConfig(cmd *cobra.Command) (config.ClientConfig, error) {
	cfg, err := config.LoadClient(flagConfig)
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("shownet") {
		cfg.ShowNet = flagShowNet
	}
	if f.Changed("render-rate") {
		cfg.RenderRate = flagRenderRate
	}
	return cfg, nil
}

func newLogger(cfg config.ClientConfig) (*log.Logger, error) {
	logger, err := config.NewLogger("client", cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return config.ShowNetLogger(logger, cfg.ShowNet), nil
}
