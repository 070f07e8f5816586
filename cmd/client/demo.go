package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"snapsync/internal/cgame"
	"snapsync/internal/client"
	"snapsync/internal/demo"
)

var flagTimescale float64

var demoCmd = &cobra.Command{
	Use:   "demo <file>",
	Short: "回放 demo",
	Long:  "按录制时的节奏回放 demo。--timescale 0 表示不等待，尽快播完。",
	Args:  cobra.ExactArgs(1),
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().Float64Var(&flagTimescale, "timescale", 1.0, "回放速度倍率")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	cfg.Normalize()

	reader, err := demo.Open(args[0])
	if err != nil {
		return err
	}
	defer reader.Close()

	renderer := client.NewLogRenderer(logger)
	conn := client.NewConnectionState(client.ConnOptions{
		ShowNet:     cfg.ShowNet,
		DemoPlaying: true,
		Cgame: cgame.Options{
			ExtrapolationTime: int64(cfg.ExtrapolationTimeMs),
			ProjectileAntilag: cfg.ProjectileAntilag,
			Sound:             renderer.Sound,
		},
	}, logger)
	player := client.NewDemoPlayer(reader, conn, renderer, cfg.RenderRate, flagTimescale, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("开始回放", "file", args[0], "timescale", flagTimescale)
	if err := player.Run(ctx); err != nil {
		return err
	}
	logger.Info("回放结束", "frames", player.Frames(), "rendered", renderer.Frames())
	return nil
}
