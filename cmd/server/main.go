// snapsync-server 快照同步权威服务器
//
// 用法:
//
//	snapsync-server [--config server.yaml] [--listen :27960] [--proto tcp|kcp]
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"snapsync/internal/config"
	"snapsync/internal/server"
)

var (
	flagConfig     string
	flagListen     string
	flagProto      string
	flagSnapTime   int
	flagMaxClients int
	flagLogLevel   string
	flagShowNet    int
)

var rootCmd = &cobra.Command{
	Use:   "snapsync-server",
	Short: "快照同步权威服务器",
	Long: `启动权威服务器，按固定间隔向每个客户端发送增量快照。

配置查找顺序: --config -> ~/.snapsync/server.yaml -> ./configs/server.yaml -> 内置默认
命令行参数覆盖配置文件。`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagConfig, "config", "", "配置文件路径")
	f.StringVar(&flagListen, "listen", "", "监听地址")
	f.StringVar(&flagProto, "proto", "", "传输协议 (tcp|kcp)")
	f.IntVar(&flagSnapTime, "snap", 0, "快照间隔（毫秒）")
	f.IntVar(&flagMaxClients, "max-clients", 0, "最大客户端数")
	f.StringVar(&flagLogLevel, "log-level", "", "日志级别 (debug|info|warn|error)")
	f.IntVar(&flagShowNet, "shownet", 0, "网络调试输出级别 (0-3)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadServer(flagConfig)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Listen = flagListen
	}
	if f.Changed("proto") {
		cfg.Proto = flagProto
	}
	if f.Changed("snap") {
		cfg.SnapFrameTimeMs = flagSnapTime
	}
	if f.Changed("max-clients") {
		cfg.MaxClients = flagMaxClients
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("shownet") {
		cfg.ShowNet = flagShowNet
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	logger, err := config.NewLogger("server", cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = config.ShowNetLogger(logger, cfg.ShowNet)

	gameServer := server.NewGameServer(cfg, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- gameServer.Start() }()

	select {
	case <-gameServer.Ready():
	case err := <-errCh:
		return err
	}
	logger.Info("服务器正在运行，按 Ctrl+C 停止",
		"addr", gameServer.Addr(),
		"proto", cfg.Proto,
		"maxclients", cfg.MaxClients,
		"snaptime", cfg.SnapFrameTime())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	gameServer.Shutdown()
	return <-errCh
}
