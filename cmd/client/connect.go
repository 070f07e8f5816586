package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snapsync/internal/cgame"
	"snapsync/internal/client"
	"snapsync/internal/demo"
	"snapsync/pkg/ai"
)

var (
	flagServer    string
	flagProto     string
	flagName      string
	flagRecord    string
	flagBot       string
	flagSeed      int64
	flagMultiview bool
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "连接服务器",
	Long: `连接服务器并进入游戏。输入由机器人生成，渲染输出到日志。

--bot 可选 normal、hard 或 idle（不发送任何操作）。`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

func init() {
	f := connectCmd.Flags()
	f.StringVarP(&flagServer, "server", "s", "", "服务器地址")
	f.StringVar(&flagProto, "proto", "", "传输协议 (tcp|kcp)")
	f.StringVarP(&flagName, "name", "n", "", "玩家名称")
	f.StringVar(&flagRecord, "record", "", "录制 demo 到指定文件")
	f.StringVar(&flagBot, "bot", "normal", "输入来源 (normal|hard|idle)")
	f.Int64Var(&flagSeed, "seed", 0, "机器人随机种子，0 表示按时间")
	f.BoolVar(&flagMultiview, "multiview", false, "请求所有玩家视角")
}

func runConnect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("server") {
		cfg.Server = flagServer
	}
	if f.Changed("proto") {
		cfg.Proto = flagProto
	}
	if f.Changed("name") {
		cfg.Name = flagName
	}
	if f.Changed("record") {
		cfg.DemoRecord = flagRecord
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	for _, field := range cfg.Normalize() {
		logger.Warn("配置值无效，已恢复默认", "field", field)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	input, err := newInput(flagBot, flagSeed)
	if err != nil {
		return err
	}

	renderer := client.NewLogRenderer(logger)
	opts := client.ConnOptions{
		Name:      cfg.Name,
		ShowNet:   cfg.ShowNet,
		Multiview: flagMultiview,
		Cgame: cgame.Options{
			ExtrapolationTime: int64(cfg.ExtrapolationTimeMs),
			ProjectileAntilag: cfg.ProjectileAntilag,
			Sound:             renderer.Sound,
		},
	}

	if cfg.DemoRecord != "" {
		recorder, err := demo.Create(cfg.DemoRecord)
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error("关闭 demo 失败", "err", err)
				return
			}
			logger.Info("demo 已保存", "file", cfg.DemoRecord, "packets", recorder.Packets())
		}()
		opts.Recorder = recorder
	}

	conn := client.NewConnectionState(opts, logger)
	runner := client.NewRunner(conn,
		client.NetworkDialer(cfg.Server, cfg.Proto, logger),
		input, renderer, cfg.RenderRate, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("正在连接服务器", "server", cfg.Server, "proto", cfg.Proto, "name", cfg.Name)
	if err := runner.Run(ctx); err != nil {
		return err
	}
	parsed, invalid := conn.FrameStats()
	logger.Info("已断开", "frames", parsed, "invalid", invalid, "rendered", renderer.Frames())
	return nil
}

// newInput 按名称选择输入来源
func newInput(kind string, seed int64) (client.InputSource, error) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	switch kind {
	case "normal":
		return client.NewAIInput(&ai.AIConfigNormal, seed), nil
	case "hard":
		return client.NewAIInput(&ai.AIConfigHard, seed), nil
	case "idle":
		return client.IdleInput{}, nil
	default:
		return nil, fmt.Errorf("未知的输入来源 %q (normal|hard|idle)", kind)
	}
}
