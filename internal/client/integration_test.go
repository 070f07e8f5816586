package client

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"snapsync/internal/cgame"
	"snapsync/internal/config"
	"snapsync/internal/demo"
	"snapsync/internal/server"
)

type recordingRenderer struct {
	mu       sync.Mutex
	count    int
	last     RenderFrame
	messages []cgame.Message
}

func (r *recordingRenderer) Render(f RenderFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	r.last = f
	r.messages = append(r.messages, f.Messages...)
}

func (r *recordingRenderer) Sound(int, string) {}

func (r *recordingRenderer) frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *recordingRenderer) sawMessage(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

func startServer(t *testing.T) *server.GameServer {
	t.Helper()
	cfg := config.DefaultServerConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.SnapFrameTimeMs = 20
	cfg.CommandRate = config.CommandRate{PerSecond: 1000, Burst: 1000}

	srv := server.NewGameServer(cfg, log.New(io.Discard))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("服务器启动失败: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("服务器启动超时")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("等待超时")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveSessionAndDemoReplay(t *testing.T) {
	srv := startServer(t)
	logger := log.New(io.Discard)

	var demoBuf bytes.Buffer
	recorder, err := demo.NewRecorder(&demoBuf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	renderer := &recordingRenderer{}
	conn := NewConnectionState(ConnOptions{
		Name:     "bot",
		Recorder: recorder,
		Cgame:    cgame.Options{ProjectileAntilag: 1, Sound: renderer.Sound},
	}, logger)
	runner := NewRunner(conn, NetworkDialer(srv.Addr(), "tcp", logger), NewAIInput(nil, 1), renderer, 100, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool {
		return renderer.sawMessage("bot entered the game") && renderer.frames() > 10
	})
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run 未退出")
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("recorder.Close: %v", err)
	}

	if conn.State() != StateActive || conn.LastFrame() == nil {
		t.Fatalf("state = %s", conn.State())
	}
	if pov := renderer.last.PlayerState.POVNum; pov != conn.PlayerNum()+1 {
		t.Fatalf("视角实体 = %d, 客户端 %d", pov, conn.PlayerNum())
	}
	if parsed, _ := conn.FrameStats(); parsed == 0 {
		t.Fatal("没有解析到帧")
	}

	// 回放录制的 demo
	rd, err := demo.NewReader(bytes.NewReader(demoBuf.Bytes()))
	if err != nil {
		t.Fatalf("demo.NewReader: %v", err)
	}
	defer rd.Close()

	replay := &recordingRenderer{}
	playConn := NewConnectionState(ConnOptions{Name: "viewer", DemoPlaying: true}, logger)
	player := NewDemoPlayer(rd, playConn, replay, 100, 0, logger)
	if err := player.Run(context.Background()); err != nil {
		t.Fatalf("DemoPlayer.Run: %v", err)
	}
	if player.Frames() == 0 || !replay.sawMessage("bot entered the game") {
		t.Fatalf("回放帧 %d", player.Frames())
	}
	if playConn.PlayerNum() != conn.PlayerNum() {
		t.Fatalf("回放客户端编号 %d", playConn.PlayerNum())
	}
}

func TestConnectToMissingServer(t *testing.T) {
	logger := log.New(io.Discard)
	conn := NewConnectionState(ConnOptions{Name: "bot"}, logger)
	runner := NewRunner(conn, NetworkDialer("127.0.0.1:1", "tcp", logger), nil, &recordingRenderer{}, 60, logger)
	if err := runner.Run(context.Background()); err == nil {
		t.Fatal("连接不存在的服务器应失败")
	}
}
