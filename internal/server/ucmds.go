package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"snapsync/internal/command"
	"snapsync/pkg/protocol"
	"snapsync/pkg/snapshot"
)

// 每次 baselines 命令最多下发的基线数
const baselineChunk = 64

var (
	ErrMissingArgs        = errors.New("缺少参数")
	ErrSlotNotReclaimable = errors.New("槽位不可接管")
)

// registerCommands 协议命令（握手、连接控制）与游戏命令分两张表
func (r *Room) registerCommands() {
	protocolCommands := []struct {
		name    string
		handler command.Handler[*Client]
	}{
		{"new", r.cmdNew},
		{"baselines", r.cmdBaselines},
		{"begin", r.cmdBegin},
		{"disconnect", r.cmdDisconnect},
		{"nodelta", r.cmdNodelta},
		{"multiview", r.cmdMultiview},
		{"reconnect", r.cmdReconnect},
		{"info", r.cmdInfo},
	}
	for _, c := range protocolCommands {
		if err := r.ucmds.Register(c.name, c.handler); err != nil {
			panic(err)
		}
	}

	gameCommands := []struct {
		name    string
		handler command.Handler[*Client]
	}{
		{"say", r.cmdSay},
		{"name", r.cmdName},
		{"kill", r.cmdKill},
	}
	for _, c := range gameCommands {
		if err := r.gameCmds.Register(c.name, c.handler); err != nil {
			panic(err)
		}
	}
}

// executeUserCommand 执行一条客户端命令；协议表没有的交给游戏层，都没有则记录
func (r *Room) executeUserCommand(cl *Client, text string) {
	args, err := command.Tokenize(text)
	if err != nil {
		r.logger.Warn("无法解析客户端命令", "client", cl.num, "err", err)
		return
	}
	if len(args) == 0 {
		return
	}
	if r.cfg.ShowNet >= 1 {
		r.logger.Debug("ucmd", "client", cl.num, "cmd", text)
	}

	registry := r.ucmds
	if !registry.Has(args[0]) {
		registry = r.gameCmds
	}
	if err := registry.ExecuteArgs(cl, args); err != nil {
		if errors.Is(err, command.ErrUnknownCommand) {
			r.logger.Warn("未知客户端命令", "client", cl.num, "cmd", args[0])
			return
		}
		r.logger.Warn("客户端命令失败", "client", cl.num, "cmd", args[0], "err", err)
	}
}

// sendServerCommand 追加一条可靠命令，缓冲区溢出时断开客户端
func (r *Room) sendServerCommand(cl *Client, text string) bool {
	if err := cl.reliable.Add(text); err != nil {
		r.dropClient(cl, err.Error())
		return false
	}
	return true
}

// cmdNew 握手开始：下发 serverdata，然后请求基线
func (r *Room) cmdNew(cl *Client, _ []string) error {
	if cl.state == ClientSpawned {
		r.logger.Info("客户端重新握手", "client", cl.num)
		r.world.RemovePlayer(cl.num)
		cl.state = ClientConnected
	}
	if cl.state != ClientConnected {
		return fmt.Errorf("状态 %s 不能执行 new", cl.state)
	}

	token, err := r.tokens.Generate(cl.num, cl.name)
	if err != nil {
		return err
	}

	cl.lastFrame = -1
	cl.frames.Clear()

	m := cl.pending
	m.WriteUint8(uint8(protocol.SvcServerData))
	m.WriteUvarint(protocol.ProtocolVersion)
	m.WriteUvarint(uint64(r.spawnCount))
	m.WriteUvarint(uint64(r.snapTime))
	m.WriteUvarint(uint64(cl.num))
	m.WriteUvarint(uint64(r.cfg.MaxClients))
	m.WriteString(token)

	r.sendServerCommand(cl, fmt.Sprintf("cmd baselines %d 0", r.spawnCount))
	return nil
}

// cmdBaselines baselines <spawncount> <start>
func (r *Room) cmdBaselines(cl *Client, args []string) error {
	if cl.state != ClientConnected {
		return fmt.Errorf("状态 %s 不能请求基线", cl.state)
	}
	if len(args) < 3 {
		return ErrMissingArgs
	}
	if !r.checkSpawnCount(cl, args[1]) {
		return nil
	}
	start, err := strconv.Atoi(args[2])
	if err != nil || start < 0 {
		return fmt.Errorf("无效的基线起点 %q", args[2])
	}

	i := 0
	for i < len(r.baselineList) && r.baselineList[i].Number < start {
		i++
	}
	end := min(i+baselineChunk, len(r.baselineList))
	for ; i < end; i++ {
		snapshot.WriteBaseline(cl.pending, &r.baselineList[i])
	}

	if end < len(r.baselineList) {
		next := r.baselineList[end].Number
		r.sendServerCommand(cl, fmt.Sprintf("cmd baselines %d %d", r.spawnCount, next))
	} else {
		r.sendServerCommand(cl, fmt.Sprintf("precache %d", r.spawnCount))
	}
	return nil
}

// cmdBegin begin <spawncount>：客户端资源准备完毕，进入游戏
func (r *Room) cmdBegin(cl *Client, args []string) error {
	if len(args) < 2 {
		return ErrMissingArgs
	}
	if !r.checkSpawnCount(cl, args[1]) {
		return nil
	}
	if cl.state != ClientConnected {
		return fmt.Errorf("状态 %s 不能执行 begin", cl.state)
	}
	r.spawnClient(cl)
	return nil
}

// checkSpawnCount 客户端的 spawncount 过期时重新握手
func (r *Room) checkSpawnCount(cl *Client, arg string) bool {
	if sc, err := strconv.Atoi(arg); err == nil && sc == r.spawnCount {
		return true
	}
	r.logger.Info("spawncount 不匹配，重新握手", "client", cl.num, "got", arg, "want", r.spawnCount)
	if err := r.cmdNew(cl, nil); err != nil {
		r.logger.Warn("重新握手失败", "client", cl.num, "err", err)
	}
	return false
}

func (r *Room) cmdDisconnect(cl *Client, _ []string) error {
	r.dropClient(cl, "客户端断开")
	return nil
}

// cmdNodelta 下一帧强制发完整帧
func (r *Room) cmdNodelta(cl *Client, _ []string) error {
	cl.nodelta = true
	return nil
}

// cmdMultiview multiview <0|1>：切换为接收所有玩家状态与实体
func (r *Room) cmdMultiview(cl *Client, args []string) error {
	if len(args) < 2 {
		return ErrMissingArgs
	}
	on := args[1] == "1"
	if on != cl.multiview {
		cl.multiview = on
		cl.lastFrame = -1
	}
	return nil
}

// cmdReconnect reconnect <token>：新连接在进入游戏前接管断线时保留的槽位
func (r *Room) cmdReconnect(cl *Client, args []string) error {
	if len(args) < 2 {
		return ErrMissingArgs
	}
	if cl.state != ClientConnected {
		return fmt.Errorf("状态 %s 不能重连", cl.state)
	}
	claims, err := r.tokens.Verify(args[1])
	if err != nil {
		return err
	}

	num := claims.ClientNum
	if num == cl.num {
		return nil
	}
	if num < 0 || num >= len(r.clients) {
		return fmt.Errorf("%w: %d", ErrSlotNotReclaimable, num)
	}
	old := r.clients[num]
	if old == nil || old.state != ClientZombie {
		return fmt.Errorf("%w: %d", ErrSlotNotReclaimable, num)
	}

	r.clients[cl.num] = nil
	r.clients[num] = cl
	r.logger.Info("客户端重连", "from", cl.num, "to", num, "name", old.name)
	cl.num = num
	cl.name = old.name
	cl.multiview = old.multiview
	return nil
}

// cmdInfo 回复连接状态
func (r *Room) cmdInfo(cl *Client, _ []string) error {
	stats := cl.session.Stats()
	text := fmt.Sprintf("client %d %s state=%s rtt=%s frames=%d delta=%d ucmds=%d in=%d out=%d",
		cl.num, cl.name, cl.state,
		cl.Stats.RTT.Load(), cl.Stats.FramesSent.Load(), cl.Stats.DeltaFrames.Load(),
		cl.Stats.UcmdsExecuted.Load(), stats.BytesIn, stats.BytesOut)
	r.sendServerCommand(cl, "print "+command.Quote(text))
	return nil
}

// cmdSay say <text>：广播聊天
func (r *Room) cmdSay(cl *Client, args []string) error {
	if len(args) < 2 {
		return ErrMissingArgs
	}
	text := strings.Join(args[1:], " ")
	r.broadcastGameCommand("ch " + command.Quote(cl.name) + " " + command.Quote(text))
	return nil
}

// cmdName name <new>
func (r *Room) cmdName(cl *Client, args []string) error {
	if len(args) < 2 || args[1] == "" {
		return ErrMissingArgs
	}
	old := cl.name
	cl.name = args[1]
	if cl.state == ClientSpawned && old != cl.name {
		r.broadcastGameCommand(fmt.Sprintf("pr %s renamed to %s", command.Quote(old), command.Quote(cl.name)))
	}
	return nil
}

// cmdKill 回到出生点
func (r *Room) cmdKill(cl *Client, _ []string) error {
	if cl.state != ClientSpawned {
		return nil
	}
	r.world.Respawn(cl.num)
	r.gameCommandTo(cl, "cp respawned")
	return nil
}

// spawnClient 生成玩家实体；接管的槽位保留原有实体
func (r *Room) spawnClient(cl *Client) {
	if r.world.PlayerEntity(cl.num) == nil {
		r.world.SpawnPlayer(cl.num)
	}
	cl.state = ClientSpawned
	cl.lastFrame = -1
	cl.UcmdTime = r.world.Time
	cl.UcmdExecuted = cl.UcmdReceived
	r.logger.Info("客户端进入游戏", "client", cl.num, "name", cl.name)
	r.broadcastGameCommand(fmt.Sprintf("pr %s entered the game", command.Quote(cl.name)))
}
