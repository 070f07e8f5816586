package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"

	"snapsync/internal/cgame"
	"snapsync/internal/command"
	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
	"snapsync/pkg/snapshot"
)

var (
	ErrProtocolVersion  = errors.New("协议版本不匹配")
	ErrUnknownSvcOp     = errors.New("未知服务器消息")
	ErrServerDisconnect = errors.New("服务器断开连接")
)

// ConnState 客户端连接阶段
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting             // 已发送 new，等待 serverdata
	StateLoading                // 接收基线
	StateActive                 // 已发送 begin，处理帧
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PacketRecorder 记录收到的原始服务器包（demo）
type PacketRecorder interface {
	WritePacket(data []byte) error
}

// ConnOptions 连接参数
type ConnOptions struct {
	Name        string
	ShowNet     int
	DemoPlaying bool
	Multiview   bool           // 进入游戏后请求所有玩家视角
	Recorder    PacketRecorder // nil 表示不录制
	Cgame       cgame.Options
}

// ConnectionState 一条逻辑连接的全部客户端状态，只由消息循环访问
type ConnectionState struct {
	opts   ConnOptions
	logger *log.Logger

	state      ConnState
	spawnCount int
	playerNum  int
	maxClients int
	snapTime   int64
	token      string

	parser    *snapshot.Parser
	history   *snapshot.History
	baselines *snapshot.Baselines
	lastFrame snapshot.Frame // 最后一个有效帧的拷贝，历史槽位会被后续帧复用
	hasFrame  bool
	cg        *cgame.State
	clock     *ServerClock

	reliable   protocol.ReliableQueue    // 发往服务器的可靠命令
	serverCmds protocol.ReliableReceiver // 服务器下发的可靠命令
	servercmds *command.Registry[*ConnectionState]

	ucmds     [core.CmdBackup]core.UserCmd
	ucmdHead  int64
	lastStamp int64

	framesParsed  int64
	invalidFrames int64
}

// NewConnectionState 创建连接状态
func NewConnectionState(opts ConnOptions, logger *log.Logger) *ConnectionState {
	c := &ConnectionState{
		opts:      opts,
		logger:    logger,
		parser:    snapshot.NewParser(logger, opts.ShowNet),
		history:   snapshot.NewHistory(core.UpdateBackup),
		baselines: snapshot.NewBaselines(),
		snapTime:  opts.Cgame.SnapFrameTime,
	}
	if c.snapTime <= 0 {
		c.snapTime = core.DefaultSnapFrameTime.Milliseconds()
	}
	c.cg = cgame.New(opts.Cgame, logger)
	c.clock = NewServerClock(c.snapTime)
	c.servercmds = newServerCommands()
	return c
}

// 服务器可靠命令
var serverCommands = []struct {
	name    string
	handler command.Handler[*ConnectionState]
}{
	{"cmd", (*ConnectionState).cmdForward},
	{"precache", (*ConnectionState).cmdPrecache},
	{"disconnect", (*ConnectionState).cmdDisconnect},
	{"print", (*ConnectionState).cmdPrint},
}

func newServerCommands() *command.Registry[*ConnectionState] {
	r := command.NewRegistry[*ConnectionState]()
	for _, c := range serverCommands {
		if err := r.Register(c.name, c.handler); err != nil {
			panic(err)
		}
	}
	return r
}

// State 当前连接阶段
func (c *ConnectionState) State() ConnState { return c.state }

// PlayerNum serverdata 下发的客户端编号
func (c *ConnectionState) PlayerNum() int { return c.playerNum }

// SpawnCount 当前地图的 spawncount
func (c *ConnectionState) SpawnCount() int { return c.spawnCount }

// Token 服务器签发的会话令牌，用于重连
func (c *ConnectionState) Token() string { return c.token }

// CGame 客户端游戏状态
func (c *ConnectionState) CGame() *cgame.State { return c.cg }

// Clock 服务器时钟
func (c *ConnectionState) Clock() *ServerClock { return c.clock }

// LastFrame 最后一个有效帧，未收到时为 nil
func (c *ConnectionState) LastFrame() *snapshot.Frame {
	if !c.hasFrame {
		return nil
	}
	return &c.lastFrame
}

// FrameStats 已解析帧数与其中无效帧数
func (c *ConnectionState) FrameStats() (parsed, invalid int64) {
	return c.framesParsed, c.invalidFrames
}

// Start 开始握手：name、可选的 reconnect、new
// token 非空时尝试接管断线前的槽位
func (c *ConnectionState) Start(token string) error {
	c.reliable.Reset()
	c.serverCmds.Reset()
	c.resetGame()
	c.state = StateConnecting

	cmds := []string{"name " + command.Quote(c.opts.Name)}
	if token != "" {
		cmds = append(cmds, "reconnect "+command.Quote(token))
	}
	cmds = append(cmds, "new")
	for _, text := range cmds {
		if err := c.SendCommand(text); err != nil {
			return err
		}
	}
	return nil
}

// resetGame 丢弃地图相关的全部状态
func (c *ConnectionState) resetGame() {
	c.history.Clear()
	c.baselines.Clear()
	c.lastFrame.Reset()
	c.hasFrame = false
	c.clock.Reset()
	c.ucmdHead = 0
	c.lastStamp = 0

	opts := c.opts.Cgame
	opts.PlayerNum = c.playerNum
	opts.SnapFrameTime = c.snapTime
	opts.DemoPlaying = c.opts.DemoPlaying
	c.cg = cgame.New(opts, c.logger)
}

// SendCommand 排队一条可靠的客户端命令
func (c *ConnectionState) SendCommand(text string) error {
	if c.opts.DemoPlaying {
		return nil
	}
	if err := c.reliable.Add(text); err != nil {
		return fmt.Errorf("客户端命令 %q: %w", text, err)
	}
	return nil
}

// AddUserCmd 记录一条新的用户命令，时间戳保证严格递增
func (c *ConnectionState) AddUserCmd(cmd core.UserCmd) {
	if cmd.ServerTimeStamp <= c.lastStamp {
		cmd.ServerTimeStamp = c.lastStamp + 1
	}
	c.lastStamp = cmd.ServerTimeStamp
	c.ucmdHead++
	c.ucmds[c.ucmdHead&core.CmdMask] = cmd
}

// ParseServerMessage 解析一个服务器包，返回其中是否有新的有效帧
func (c *ConnectionState) ParseServerMessage(data []byte, localMs int64) (gotFrame bool, err error) {
	defer func() { err = multierror.Prefix(err, "client.ParseServerMessage:") }()

	if c.opts.Recorder != nil && !c.opts.DemoPlaying {
		if err := c.opts.Recorder.WritePacket(data); err != nil {
			c.logger.Warn("demo 录制失败，停止录制", "err", err)
			c.opts.Recorder = nil
		}
	}

	m := protocol.NewMsg(data)
	for m.Remaining() > 0 {
		op := protocol.SvcOp(m.ReadUint8())
		if c.opts.ShowNet >= 2 {
			c.logger.Debug("shownet", "offset", m.ReadCount()-1, "op", op)
		}

		switch op {
		case protocol.SvcServerData:
			err = c.parseServerData(m)
		case protocol.SvcSpawnBaseline:
			err = c.parser.ParseBaseline(m, c.baselines)
		case protocol.SvcClcAck:
			seq := int64(m.ReadUvarint())
			if !c.opts.DemoPlaying && m.Err() == nil {
				err = c.reliable.Ack(seq)
			}
		case protocol.SvcServerCmd:
			err = c.parseServerCommand(m)
		case protocol.SvcFrame:
			var ok bool
			ok, err = c.parseFrame(m, localMs)
			gotFrame = gotFrame || ok
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownSvcOp, op)
		}

		if err == nil {
			err = m.Err()
		}
		if err != nil {
			return gotFrame, err
		}
	}
	return gotFrame, nil
}

// parseServerData 新地图：重置全部状态并记录服务器参数
func (c *ConnectionState) parseServerData(m *protocol.Msg) error {
	version := m.ReadUvarint()
	spawnCount := int(m.ReadUvarint())
	snapTime := int64(m.ReadUvarint())
	playerNum := int(m.ReadUvarint())
	maxClients := int(m.ReadUvarint())
	token := m.ReadString()
	if err := m.Err(); err != nil {
		return err
	}
	if version != protocol.ProtocolVersion {
		return fmt.Errorf("%w: 服务器 %d，客户端 %d", ErrProtocolVersion, version, protocol.ProtocolVersion)
	}

	c.spawnCount = spawnCount
	if snapTime > 0 {
		c.snapTime = snapTime
		c.clock.SetInterpolationDelay(snapTime)
	}
	c.playerNum = playerNum
	c.maxClients = maxClients
	c.token = token
	c.resetGame()
	c.state = StateLoading

	c.logger.Info("serverdata", "spawncount", spawnCount, "client", playerNum,
		"maxclients", maxClients, "snaptime", c.snapTime)
	return nil
}

// parseServerCommand 按序执行服务器可靠命令，重复的忽略
func (c *ConnectionState) parseServerCommand(m *protocol.Msg) error {
	seq := int64(m.ReadUvarint())
	text := m.ReadString()
	if err := m.Err(); err != nil {
		return err
	}

	execute, err := c.serverCmds.Check(seq)
	if err != nil {
		return err
	}
	if !execute {
		return nil
	}
	c.serverCmds.Done(seq)

	if c.opts.ShowNet >= 1 {
		c.logger.Debug("servercmd", "seq", seq, "cmd", text)
	}
	err = c.servercmds.Execute(c, text)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrServerDisconnect):
		return err
	default:
		c.logger.Warn("服务器命令执行失败", "cmd", text, "err", err)
		return nil
	}
}

// parseFrame 解析一帧并交给游戏层
func (c *ConnectionState) parseFrame(m *protocol.Msg, localMs int64) (bool, error) {
	prev := c.LastFrame()
	frame, err := c.parser.ParseFrame(m, prev, c.history, c.baselines)
	if err != nil {
		return false, err
	}
	c.framesParsed++
	if !frame.Valid {
		c.invalidFrames++
		return false, nil
	}

	c.clock.AddFrame(frame.ServerTime, localMs)
	if _, err := c.cg.NewFrameSnap(frame, prev); err != nil {
		return false, err
	}
	c.lastFrame.CopyFrom(frame)
	c.hasFrame = true
	return true, nil
}

// cmdForward cmd <command...> 把命令原样回送服务器
func (c *ConnectionState) cmdForward(args []string) error {
	if c.opts.DemoPlaying || len(args) < 2 {
		return nil
	}
	quoted := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		quoted = append(quoted, command.Quote(a))
	}
	return c.SendCommand(strings.Join(quoted, " "))
}

// cmdPrecache precache <spawncount> 基线接收完毕，进入游戏
func (c *ConnectionState) cmdPrecache(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("precache 缺少 spawncount")
	}
	sc, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("precache spawncount %q: %w", args[1], err)
	}
	if sc != c.spawnCount {
		c.logger.Warn("忽略过期的 precache", "spawncount", sc, "current", c.spawnCount)
		return nil
	}

	c.baselines.MarkComplete()
	c.cg.SetPrecacheDone(true)
	c.state = StateActive
	if err := c.SendCommand(fmt.Sprintf("begin %d", sc)); err != nil {
		return err
	}
	if c.opts.Multiview {
		return c.SendCommand("multiview")
	}
	return nil
}

// cmdDisconnect disconnect [reason]
func (c *ConnectionState) cmdDisconnect(args []string) error {
	reason := strings.Join(args[1:], " ")
	c.state = StateDisconnected
	return fmt.Errorf("%w: %s", ErrServerDisconnect, reason)
}

func (c *ConnectionState) cmdPrint(args []string) error {
	c.logger.Info(strings.Join(args[1:], " "))
	return nil
}

// WritePacket 构造一个发往服务器的包：确认、未确认的可靠命令、用户命令
func (c *ConnectionState) WritePacket() []byte {
	m := protocol.NewWriteMsg()
	m.WriteUint8(uint8(protocol.ClcSvcAck))
	m.WriteUvarint(uint64(c.serverCmds.Executed()))
	c.reliable.Write(m, uint8(protocol.ClcClientCommand))

	if c.state == StateActive {
		c.writeMove(m)
	}
	return m.Bytes()
}

// writeMove 发送服务器尚未执行的用户命令，第一条相对空命令增量编码
func (c *ConnectionState) writeMove(m *protocol.Msg) {
	lastFrame := int64(-1)
	var acked int64
	if c.hasFrame {
		lastFrame = c.lastFrame.ServerFrame
		acked = c.lastFrame.UcmdExecuted
	}

	first := max(acked+1, c.ucmdHead-core.CmdMask+1, 1)
	count := max(c.ucmdHead-first+1, 0)

	m.WriteUint8(uint8(protocol.ClcMove))
	m.WriteVarint(lastFrame)
	m.WriteUvarint(uint64(c.ucmdHead))
	m.WriteUint8(uint8(count))

	var from core.UserCmd
	for seq := c.ucmdHead - count + 1; seq <= c.ucmdHead; seq++ {
		cmd := &c.ucmds[seq&core.CmdMask]
		protocol.WriteDeltaUsercmd(m, &from, cmd)
		from = *cmd
	}
}
