package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"snapsync/internal/command"
	"snapsync/internal/config"
	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
	"snapsync/pkg/snapshot"
)

// 断线的已出生客户端保留槽位的时长
const zombieTimeout = 10 * time.Second

// 比赛进行中
const matchStatePlaying = 1

var (
	ErrServerFull = errors.New("服务器已满")
	ErrRoomClosed = errors.New("房间已关闭")
)

// Room 权威世界与所有客户端槽位，所有状态只在 Run 循环中访问
type Room struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg    config.ServerConfig
	logger *log.Logger
	tokens *TokenIssuer
	now    func() time.Time

	world        *core.World
	gameState    core.GameState
	frameNum     int64 // 下一个要发送的帧号
	snapTime     int64 // 毫秒
	spawnCount   int
	baselines    *snapshot.Baselines
	baselineList []core.EntityState

	clients  []*Client // 下标为客户端编号，nil 表示空闲
	sessions map[Session]*Client
	ucmds    *command.Registry[*Client]
	gameCmds *command.Registry[*Client]

	joinCh   chan joinRequest
	packetCh chan packetEvent
	leaveCh  chan Session
}

// NewRoom 创建房间，世界的静态实体作为基线
func NewRoom(parent context.Context, cfg config.ServerConfig, logger *log.Logger, tokens *TokenIssuer) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		logger:     logger.WithPrefix("room"),
		tokens:     tokens,
		now:        time.Now,
		world:      core.NewWorld(),
		frameNum:   1,
		snapTime:   cfg.SnapFrameTime().Milliseconds(),
		spawnCount: int(time.Now().UnixNano()&0xffff) + 1,
		baselines:  snapshot.NewBaselines(),
		clients:    make([]*Client, cfg.MaxClients),
		sessions:   make(map[Session]*Client),
		ucmds:      command.NewRegistry[*Client](),
		gameCmds:   command.NewRegistry[*Client](),
		joinCh:     make(chan joinRequest),
		packetCh:   make(chan packetEvent, 256),
		leaveCh:    make(chan Session, 256),
	}
	if r.snapTime <= 0 {
		r.snapTime = core.DefaultSnapFrameTime.Milliseconds()
	}

	r.gameState.MatchState = matchStatePlaying
	r.baselineList = r.world.Baselines()
	for i := range r.baselineList {
		if err := r.baselines.Set(&r.baselineList[i]); err != nil {
			panic(err)
		}
	}
	r.baselines.MarkComplete()

	r.registerCommands()
	return r
}

// Run 房间循环：处理连接事件，每个快照间隔推进世界并发帧
func (r *Room) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(time.Duration(r.snapTime) * time.Millisecond)
	defer ticker.Stop()

	r.logger.Info("房间循环启动", "snap", time.Duration(r.snapTime)*time.Millisecond, "spawncount", r.spawnCount)

	for {
		select {
		case <-r.ctx.Done():
			r.closeAllSessions()
			r.logger.Info("房间循环停止")
			return

		case req := <-r.joinCh:
			req.respCh <- r.handleJoin(req.session)

		case ev := <-r.packetCh:
			r.handlePacket(ev)

		case session := <-r.leaveCh:
			r.handleLeave(session)

		case <-ticker.C:
			r.tick()
		}
	}
}

// Shutdown 停止房间循环
func (r *Room) Shutdown() {
	r.cancel()
}

// Join 为新连接申请客户端槽位
func (r *Room) Join(session Session) error {
	respCh := make(chan error, 1)

	select {
	case <-r.ctx.Done():
		return ErrRoomClosed
	case r.joinCh <- joinRequest{session: session, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return ErrRoomClosed
	case err := <-respCh:
		return err
	}
}

// Deliver 投递一个收到的包
func (r *Room) Deliver(session Session, data []byte) {
	select {
	case <-r.ctx.Done():
	case r.packetCh <- packetEvent{session: session, data: data}:
	}
}

// Leave 通知连接已断开
func (r *Room) Leave(session Session) {
	select {
	case <-r.ctx.Done():
	case r.leaveCh <- session:
	}
}

func (r *Room) handleJoin(session Session) error {
	num := -1
	for i, cl := range r.clients {
		if cl == nil {
			num = i
			break
		}
	}
	if num < 0 {
		return fmt.Errorf("%w (%d)", ErrServerFull, len(r.clients))
	}

	limiter := rate.NewLimiter(rate.Limit(r.cfg.CommandRate.PerSecond), r.cfg.CommandRate.Burst)
	cl := newClient(session, num, limiter)
	r.clients[num] = cl
	r.sessions[session] = cl

	r.logger.Info("客户端连接", "client", num, "addr", session.RemoteAddr())
	return nil
}

func (r *Room) handlePacket(ev packetEvent) {
	cl, ok := r.sessions[ev.session]
	if !ok {
		return
	}
	if err := r.parseClientMessage(cl, protocol.NewMsg(ev.data)); err != nil {
		r.dropClient(cl, err.Error())
	}
}

// handleLeave 已出生的客户端变为僵尸，等待重连
func (r *Room) handleLeave(session Session) {
	cl, ok := r.sessions[session]
	if !ok {
		return
	}
	delete(r.sessions, session)
	cl.session = nil

	if cl.state == ClientSpawned {
		cl.state = ClientZombie
		cl.zombieUntil = r.now().Add(zombieTimeout)
		r.logger.Info("客户端断线，保留槽位", "client", cl.num, "name", cl.name)
		return
	}
	r.logger.Info("客户端断开", "client", cl.num)
	r.freeClient(cl)
}

// dropClient 服务器主动断开客户端并释放槽位
func (r *Room) dropClient(cl *Client, reason string) {
	if cl.state == ClientFree {
		return
	}
	r.logger.Info("断开客户端", "client", cl.num, "name", cl.name, "reason", reason)

	if session := cl.session; session != nil {
		// 尽力告知原因
		if cl.reliable.Add("disconnect "+command.Quote(reason)) == nil {
			if data, err := r.writeClientPacket(cl, nil, false); err == nil {
				_ = session.Send(data)
			}
		}
		delete(r.sessions, session)
		cl.session = nil
		session.CloseWithoutNotify()
	}
	r.freeClient(cl)
}

func (r *Room) freeClient(cl *Client) {
	inGame := r.world.PlayerEntity(cl.num) != nil
	r.world.RemovePlayer(cl.num)
	if r.clients[cl.num] == cl {
		r.clients[cl.num] = nil
	}
	cl.state = ClientFree
	if inGame {
		r.broadcastGameCommand(fmt.Sprintf("pr %s disconnected", command.Quote(cl.name)))
	}
}

// tick 推进世界一个快照间隔，执行用户命令，然后给每个客户端发包
func (r *Room) tick() {
	r.world.Step(r.world.Time + r.snapTime)

	for _, cl := range r.clients {
		if cl != nil {
			r.executeClientThinks(cl)
		}
	}

	r.checkZombies()
	r.sendClientMessages()
	r.frameNum++
}

func (r *Room) checkZombies() {
	now := r.now()
	for _, cl := range r.clients {
		if cl != nil && cl.state == ClientZombie && now.After(cl.zombieUntil) {
			r.logger.Info("僵尸槽位超时", "client", cl.num, "name", cl.name)
			r.freeClient(cl)
		}
	}
}

func (r *Room) sendClientMessages() {
	entities := r.world.Entities()
	for _, cl := range r.clients {
		if cl == nil || cl.session == nil {
			continue
		}
		data, err := r.writeClientPacket(cl, entities, true)
		if err != nil {
			r.dropClient(cl, err.Error())
			continue
		}
		if err := cl.session.Send(data); err != nil && errors.Is(err, ErrSendQueueFull) {
			r.logger.Warn("发送队列满，丢弃一帧", "client", cl.num)
		}
	}
}

func (r *Room) closeAllSessions() {
	for session := range r.sessions {
		session.CloseWithoutNotify()
	}
	clear(r.sessions)
}
