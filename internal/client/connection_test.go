package client

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
	"snapsync/pkg/snapshot"
)

func newTestConn(opts ConnOptions) *ConnectionState {
	if opts.Name == "" {
		opts.Name = "tester"
	}
	return NewConnectionState(opts, log.New(io.Discard))
}

func writeServerData(m *protocol.Msg, spawnCount, playerNum int, token string) {
	m.WriteUint8(uint8(protocol.SvcServerData))
	m.WriteUvarint(protocol.ProtocolVersion)
	m.WriteUvarint(uint64(spawnCount))
	m.WriteUvarint(50)
	m.WriteUvarint(uint64(playerNum))
	m.WriteUvarint(4)
	m.WriteString(token)
}

func writeServerCmd(m *protocol.Msg, seq int64, text string) {
	m.WriteUint8(uint8(protocol.SvcServerCmd))
	m.WriteUvarint(uint64(seq))
	m.WriteString(text)
}

func writeClcAck(m *protocol.Msg, seq int64) {
	m.WriteUint8(uint8(protocol.SvcClcAck))
	m.WriteUvarint(uint64(seq))
}

type clientPacket struct {
	ack       int64
	commands  []string
	hasMove   bool
	lastFrame int64
	ucmdHead  int64
	ucmds     []core.UserCmd
}

// readClientPacket 按服务器的方式解开客户端包
func readClientPacket(t *testing.T, data []byte) clientPacket {
	t.Helper()
	var p clientPacket
	m := protocol.NewMsg(data)
	for m.Remaining() > 0 {
		switch op := protocol.ClcOp(m.ReadUint8()); op {
		case protocol.ClcSvcAck:
			p.ack = int64(m.ReadUvarint())
		case protocol.ClcClientCommand:
			_ = m.ReadUvarint()
			p.commands = append(p.commands, m.ReadString())
		case protocol.ClcMove:
			p.hasMove = true
			p.lastFrame = m.ReadVarint()
			p.ucmdHead = int64(m.ReadUvarint())
			count := int(m.ReadUint8())
			var from, cmd core.UserCmd
			for i := 0; i < count; i++ {
				if err := protocol.ReadDeltaUsercmd(m, &from, &cmd); err != nil {
					t.Fatalf("ReadDeltaUsercmd: %v", err)
				}
				p.ucmds = append(p.ucmds, cmd)
				from = cmd
			}
		default:
			t.Fatalf("未知客户端消息 %s", op)
		}
		if err := m.Err(); err != nil {
			t.Fatalf("解包失败: %v", err)
		}
	}
	return p
}

func parse(t *testing.T, c *ConnectionState, build func(m *protocol.Msg)) (bool, error) {
	t.Helper()
	m := protocol.NewWriteMsg()
	build(m)
	return c.ParseServerMessage(m.Bytes(), 0)
}

func mustParse(t *testing.T, c *ConnectionState, build func(m *protocol.Msg)) bool {
	t.Helper()
	got, err := parse(t, c, build)
	if err != nil {
		t.Fatalf("ParseServerMessage: %v", err)
	}
	return got
}

func TestHandshakeAndFirstFrame(t *testing.T) {
	c := newTestConn(ConnOptions{})
	if err := c.Start(""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p := readClientPacket(t, c.WritePacket())
	if strings.Join(p.commands, "|") != "name tester|new" || p.hasMove {
		t.Fatalf("首包 = %+v", p)
	}

	mustParse(t, c, func(m *protocol.Msg) {
		writeServerData(m, 7, 2, "tok")
		writeServerCmd(m, 1, "cmd baselines 7 0")
		writeClcAck(m, 2)
	})
	if c.State() != StateLoading || c.PlayerNum() != 2 || c.Token() != "tok" || c.SpawnCount() != 7 {
		t.Fatalf("serverdata 之后: state %s player %d token %q", c.State(), c.PlayerNum(), c.Token())
	}
	p = readClientPacket(t, c.WritePacket())
	if p.ack != 1 || strings.Join(p.commands, "|") != "baselines 7 0" {
		t.Fatalf("baselines 请求 = %+v", p)
	}

	// 服务器侧的基线表
	wall := core.EntityState{Number: 70, Type: core.ETGeneric, Model: 3, Origin: core.Vec3{10, 20, 0}}
	serverBaselines := snapshot.NewBaselines()
	serverBaselines.Set(&wall)
	serverBaselines.MarkComplete()

	mustParse(t, c, func(m *protocol.Msg) {
		snapshot.WriteBaseline(m, &wall)
		writeServerCmd(m, 2, "precache 7")
		writeClcAck(m, 3)
	})
	if c.State() != StateActive {
		t.Fatalf("precache 之后 state = %s", c.State())
	}
	p = readClientPacket(t, c.WritePacket())
	if strings.Join(p.commands, "|") != "begin 7" || !p.hasMove || p.lastFrame != -1 {
		t.Fatalf("begin 包 = %+v", p)
	}

	me := core.EntityState{Number: 3, Type: core.ETPlayer, Team: core.TeamPlayers, Origin: core.Vec3{100, 0, 0}}
	frame := &snapshot.Frame{
		ServerFrame:  1,
		ServerTime:   1000,
		PlayerStates: []core.PlayerState{{PlayerNum: 2, POVNum: 3, Team: core.TeamPlayers}},
		Entities:     []core.EntityState{me, wall},
	}
	got := mustParse(t, c, func(m *protocol.Msg) {
		writeClcAck(m, 4)
		if err := snapshot.WriteFrame(m, frame, nil, serverBaselines,
			[]snapshot.OutgoingCommand{{Text: "pr tester entered the game"}}); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	})
	if !got || c.LastFrame() == nil || c.LastFrame().ServerFrame != 1 {
		t.Fatalf("应收到有效帧")
	}
	cg := c.CGame()
	if !cg.Started() || cg.PredictedPlayerState().POVNum != 3 {
		t.Fatalf("游戏层未开始: pov %d", cg.PredictedPlayerState().POVNum)
	}
	msgs := cg.TakeMessages()
	if len(msgs) != 1 || msgs[0].Text != "tester entered the game" {
		t.Fatalf("消息 = %+v", msgs)
	}
	if e := cg.Frame().Entity(70); e == nil || e.Origin != wall.Origin {
		t.Fatalf("基线实体 = %+v", e)
	}

	p = readClientPacket(t, c.WritePacket())
	if p.lastFrame != 1 || len(p.commands) != 0 {
		t.Fatalf("确认帧 = %+v", p)
	}
}

func TestServerCommandDedupAndGap(t *testing.T) {
	c := newTestConn(ConnOptions{})
	c.Start("")

	mustParse(t, c, func(m *protocol.Msg) {
		writeServerData(m, 1, 0, "")
		writeServerCmd(m, 1, `print "hello"`)
		writeServerCmd(m, 1, `print "hello"`)
	})
	if c.serverCmds.Executed() != 1 {
		t.Fatalf("executed = %d", c.serverCmds.Executed())
	}

	_, err := parse(t, c, func(m *protocol.Msg) {
		writeServerCmd(m, 3, "print gap")
	})
	if !errors.Is(err, protocol.ErrReliableGap) {
		t.Fatalf("期望 ErrReliableGap, got %v", err)
	}
}

func TestServerDisconnect(t *testing.T) {
	c := newTestConn(ConnOptions{})
	c.Start("")
	_, err := parse(t, c, func(m *protocol.Msg) {
		writeServerCmd(m, 1, `disconnect "server shutting down"`)
	})
	if !errors.Is(err, ErrServerDisconnect) || !strings.Contains(err.Error(), "server shutting down") {
		t.Fatalf("期望 ErrServerDisconnect, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state = %s", c.State())
	}
}

func TestFatalServerMessages(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *protocol.Msg)
		want  error
	}{
		{"协议版本", func(m *protocol.Msg) {
			m.WriteUint8(uint8(protocol.SvcServerData))
			m.WriteUvarint(protocol.ProtocolVersion + 1)
			m.WriteUvarint(1)
			m.WriteUvarint(50)
			m.WriteUvarint(0)
			m.WriteUvarint(4)
			m.WriteString("")
		}, ErrProtocolVersion},
		{"未知消息", func(m *protocol.Msg) { m.WriteUint8(200) }, ErrUnknownSvcOp},
		{"确认越界", func(m *protocol.Msg) { writeClcAck(m, 50) }, protocol.ErrBadAck},
		{"截断", func(m *protocol.Msg) { m.WriteUint8(uint8(protocol.SvcServerCmd)) }, protocol.ErrMessageOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConn(ConnOptions{})
			c.Start("")
			if _, err := parse(t, c, tt.build); !errors.Is(err, tt.want) {
				t.Fatalf("期望 %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStalePrecacheIgnored(t *testing.T) {
	c := newTestConn(ConnOptions{})
	c.Start("")
	mustParse(t, c, func(m *protocol.Msg) {
		writeServerData(m, 7, 0, "")
		writeServerCmd(m, 1, "precache 6")
		writeClcAck(m, 2)
	})
	if c.State() != StateLoading {
		t.Fatalf("state = %s", c.State())
	}
	if p := readClientPacket(t, c.WritePacket()); len(p.commands) != 0 {
		t.Fatalf("不应发送 begin: %+v", p.commands)
	}
}

func TestReconnectSendsToken(t *testing.T) {
	c := newTestConn(ConnOptions{Name: "two words"})
	c.Start("abc.def")
	p := readClientPacket(t, c.WritePacket())
	want := `name "two words"|reconnect abc.def|new`
	if got := strings.Join(p.commands, "|"); got != want {
		t.Fatalf("commands = %q, want %q", got, want)
	}
}

func TestMoveWindow(t *testing.T) {
	c := newTestConn(ConnOptions{})
	c.state = StateActive

	for i := 0; i < 100; i++ {
		c.AddUserCmd(core.UserCmd{ServerTimeStamp: 10, ForwardMove: 127})
	}
	p := readClientPacket(t, c.WritePacket())
	if p.ucmdHead != 100 || len(p.ucmds) != core.CmdMask {
		t.Fatalf("head %d count %d", p.ucmdHead, len(p.ucmds))
	}
	for i := 1; i < len(p.ucmds); i++ {
		if p.ucmds[i].ServerTimeStamp <= p.ucmds[i-1].ServerTimeStamp {
			t.Fatalf("时间戳未递增: %d", p.ucmds[i].ServerTimeStamp)
		}
	}
	if last := p.ucmds[len(p.ucmds)-1].ServerTimeStamp; last != 109 {
		t.Fatalf("最后时间戳 = %d", last)
	}

	// 服务器已执行到 98，只重发两条
	c.lastFrame = snapshot.Frame{ServerFrame: 5, UcmdExecuted: 98}
	c.hasFrame = true
	p = readClientPacket(t, c.WritePacket())
	if p.lastFrame != 5 || len(p.ucmds) != 2 || p.ucmds[1].ServerTimeStamp != 109 {
		t.Fatalf("move = %+v", p)
	}
}

type memRecorder struct{ packets [][]byte }

func (r *memRecorder) WritePacket(data []byte) error {
	r.packets = append(r.packets, append([]byte(nil), data...))
	return nil
}

func TestRecorderAndDemoPlayback(t *testing.T) {
	rec := &memRecorder{}
	live := newTestConn(ConnOptions{Recorder: rec})
	live.Start("")

	packets := []func(m *protocol.Msg){
		func(m *protocol.Msg) {
			writeServerData(m, 3, 1, "tok")
			writeServerCmd(m, 1, "cmd baselines 3 0")
			writeClcAck(m, 2)
		},
		func(m *protocol.Msg) {
			writeServerCmd(m, 2, "precache 3")
			writeClcAck(m, 3)
		},
	}
	for _, build := range packets {
		mustParse(t, live, build)
	}
	if len(rec.packets) != len(packets) {
		t.Fatalf("录制了 %d 个包", len(rec.packets))
	}

	// 回放：cmd 不回送，确认不检查
	demo := newTestConn(ConnOptions{DemoPlaying: true})
	for _, data := range rec.packets {
		if _, err := demo.ParseServerMessage(data, 0); err != nil {
			t.Fatalf("回放: %v", err)
		}
	}
	if demo.State() != StateActive {
		t.Fatalf("回放 state = %s", demo.State())
	}
	if demo.reliable.Pending() != 0 {
		t.Fatalf("回放不应产生客户端命令: %d", demo.reliable.Pending())
	}
	if !bytes.Equal(rec.packets[0][:1], []byte{byte(protocol.SvcServerData)}) {
		t.Fatal("录制的包应是原始字节")
	}
}

// activeConn 完成握手（无基线）的连接
func activeConn(t *testing.T) *ConnectionState {
	t.Helper()
	c := newTestConn(ConnOptions{})
	c.Start("")
	mustParse(t, c, func(m *protocol.Msg) {
		writeServerData(m, 1, 0, "")
		writeServerCmd(m, 1, "precache 1")
		writeClcAck(m, 2)
	})
	if c.State() != StateActive {
		t.Fatalf("state = %s", c.State())
	}
	return c
}

func TestLastFrameSurvivesSlotReuse(t *testing.T) {
	c := activeConn(t)
	baselines := snapshot.NewBaselines()
	baselines.MarkComplete()
	players := []core.PlayerState{{PlayerNum: 0, POVNum: 1, Team: core.TeamPlayers}}

	send := func(frame, from *snapshot.Frame, cmds ...snapshot.OutgoingCommand) bool {
		t.Helper()
		return mustParse(t, c, func(m *protocol.Msg) {
			if err := snapshot.WriteFrame(m, frame, from, baselines, cmds); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}
		})
	}

	frame10 := &snapshot.Frame{ServerFrame: 10, ServerTime: 500, PlayerStates: players}
	if !send(frame10, nil) {
		t.Fatal("帧 10 应有效")
	}
	c.CGame().TakeMessages()

	// 帧 42 与帧 10 落在同一个历史槽位
	frame42 := &snapshot.Frame{ServerFrame: 10 + core.UpdateBackup, ServerTime: 2100, PlayerStates: players}
	if !send(frame42, nil, snapshot.OutgoingCommand{FrameDiff: 0, Text: "pr hello"}) {
		t.Fatal("帧 42 应有效")
	}
	msgs := c.CGame().TakeMessages()
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Fatalf("消息 = %+v", msgs)
	}
	if p := readClientPacket(t, c.WritePacket()); p.lastFrame != frame42.ServerFrame {
		t.Fatalf("确认帧 = %d, want %d", p.lastFrame, frame42.ServerFrame)
	}

	// 基于已被覆盖的帧 10 的增量帧无效，确认帧保持 42
	frame43 := &snapshot.Frame{ServerFrame: 43, ServerTime: 2150, PlayerStates: players}
	if send(frame43, frame10) {
		t.Fatal("帧 43 应无效")
	}
	if got := c.LastFrame(); got == nil || got.ServerFrame != frame42.ServerFrame || !got.Valid {
		t.Fatalf("LastFrame = %+v", got)
	}
	if p := readClientPacket(t, c.WritePacket()); p.lastFrame != frame42.ServerFrame {
		t.Fatalf("确认帧 = %d, want %d", p.lastFrame, frame42.ServerFrame)
	}
}
