package server

import (
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
	"snapsync/pkg/snapshot"
)

// ClientState 服务器端客户端槽位状态
type ClientState int

const (
	ClientFree      ClientState = iota
	ClientZombie                // 连接断开，保留玩家实体等待重连
	ClientConnected             // 已连接，尚未进入游戏
	ClientSpawned               // 已进入游戏，每帧接收快照
)

func (s ClientState) String() string {
	switch s {
	case ClientZombie:
		return "zombie"
	case ClientConnected:
		return "connected"
	case ClientSpawned:
		return "spawned"
	default:
		return "free"
	}
}

// gameCommand 待随帧下发的游戏命令
type gameCommand struct {
	text    string
	frame   int64
	all     bool
	targets [core.MaxTargetBytes]byte
}

// ClientStats 可被其他 goroutine 读取的客户端统计
type ClientStats struct {
	RTT           atomic.Duration
	FramesSent    atomic.Int64
	DeltaFrames   atomic.Int64
	UcmdsExecuted atomic.Int64
}

// Client 服务器端的一个客户端槽位，只由房间循环访问
type Client struct {
	session Session
	num     int
	state   ClientState
	name    string

	zombieUntil time.Time

	// 帧历史，用于选择增量基准
	frames      *snapshot.History
	frameSentAt [core.UpdateBackup]time.Time
	lastFrame   int64 // 客户端确认的最后一帧，<=0 表示需要完整帧
	nodelta     bool
	multiview   bool

	// 用户命令
	ucmds        [core.CmdBackup]core.UserCmd
	UcmdReceived int64
	UcmdExecuted int64
	UcmdTime     int64

	reliable protocol.ReliableQueue    // 服务器命令，等待客户端确认
	commands protocol.ReliableReceiver // 客户端命令，已执行序号
	limiter  *rate.Limiter

	gameCommands       [core.MaxReliableCommands]gameCommand
	gameCommandCurrent int64

	// 下一个包开头的即时消息（serverdata、基线）
	pending *protocol.Msg

	Stats ClientStats
}

func newClient(session Session, num int, limiter *rate.Limiter) *Client {
	return &Client{
		session:   session,
		num:       num,
		state:     ClientConnected,
		name:      "player",
		frames:    snapshot.NewHistory(core.UpdateBackup),
		lastFrame: -1,
		limiter:   limiter,
		pending:   protocol.NewWriteMsg(),
	}
}

// Num 客户端编号
func (cl *Client) Num() int { return cl.num }

// Name 客户端名字
func (cl *Client) Name() string { return cl.name }

// State 槽位状态
func (cl *Client) State() ClientState { return cl.state }

// userCmd 按序号取用户命令
func (cl *Client) userCmd(seq int64) *core.UserCmd {
	return &cl.ucmds[seq&core.CmdMask]
}

// addGameCommand 记录一条游戏命令；target < 0 表示所有视角
func (cl *Client) addGameCommand(text string, frame int64, target int) {
	cl.gameCommandCurrent++
	gc := &cl.gameCommands[cl.gameCommandCurrent&(core.MaxReliableCommands-1)]
	*gc = gameCommand{text: text, frame: frame, all: target < 0}
	if target >= 0 {
		gc.targets[target>>3] |= 1 << uint(target&7)
	}
}

// outgoingGameCommands 收集客户端可能还没收到的游戏命令
func (cl *Client) outgoingGameCommands(frameNum int64) []snapshot.OutgoingCommand {
	var out []snapshot.OutgoingCommand
	first := max(cl.gameCommandCurrent-core.MaxReliableCommands+1, 1)
	for seq := first; seq <= cl.gameCommandCurrent; seq++ {
		gc := &cl.gameCommands[seq&(core.MaxReliableCommands-1)]
		if gc.text == "" || gc.frame <= cl.lastFrame {
			continue
		}
		diff := frameNum - gc.frame
		if diff < 0 || diff > 32767 {
			continue
		}
		cmd := snapshot.OutgoingCommand{FrameDiff: int16(diff), Text: gc.text}
		if cl.multiview && !gc.all {
			cmd.Targets = trimTargets(gc.targets[:])
		}
		out = append(out, cmd)
	}
	return out
}

// trimTargets 去掉目标位图末尾的零字节
func trimTargets(targets []byte) []byte {
	n := len(targets)
	for n > 0 && targets[n-1] == 0 {
		n--
	}
	return targets[:n]
}
