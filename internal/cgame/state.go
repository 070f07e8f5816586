package cgame

import (
	"io"

	"github.com/charmbracelet/log"

	"snapsync/internal/command"
	"snapsync/pkg/core"
	"snapsync/pkg/snapshot"
)

// Options 客户端游戏层参数
type Options struct {
	PlayerNum         int     // 本地客户端编号（0 起）
	ExtrapolationTime int64   // 外推时间（毫秒），0 关闭外推
	ProjectileAntilag float32 // 抛射物反延迟偏移比例，[0,1]
	SnapFrameTime     int64   // 服务器快照间隔（毫秒）
	DemoPlaying       bool

	Models CollisionModels               // 碰撞几何，nil 表示未加载
	Sound  func(number int, name string) // 实体音效回调，可为 nil
}

// Message 游戏命令产生的文本消息
type Message struct {
	Kind string // pr / ch / tch / cp / obry
	Text string
}

// State 一条连接的客户端游戏状态，只由该连接的消息循环访问
type State struct {
	opts     Options
	logger   *log.Logger
	commands *command.Registry[*State]

	entities  *Entities
	frame     snapshot.Frame
	oldFrame  snapshot.Frame
	gameState core.GameState

	predictedPlayerState core.PlayerState
	multiviewPlayerNum   int

	precacheDone bool
	firstFrame   bool
	fireEvents   bool

	solids   []EntityNum
	view     View
	messages []Message
}

// New 创建客户端游戏状态，logger 为 nil 时丢弃日志
func New(opts Options, logger *log.Logger) *State {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.SnapFrameTime <= 0 {
		opts.SnapFrameTime = core.DefaultSnapFrameTime.Milliseconds()
	}
	if opts.ExtrapolationTime < 0 {
		opts.ExtrapolationTime = 0
	}
	s := &State{
		opts:       opts,
		logger:     logger,
		commands:   newGameCommands(),
		entities:   NewEntities(core.MaxEdicts),
		firstFrame: true,
	}
	s.opts.ProjectileAntilag = clampAntilag(opts.ProjectileAntilag)
	return s
}

// Reset 断线或换图时清空全部状态
func (s *State) Reset() {
	s.entities.Clear()
	s.frame.Reset()
	s.oldFrame.Reset()
	s.gameState = core.GameState{}
	s.predictedPlayerState = core.PlayerState{}
	s.multiviewPlayerNum = 0
	s.precacheDone = false
	s.firstFrame = true
	s.fireEvents = false
	s.solids = s.solids[:0]
	s.view = View{}
	s.messages = s.messages[:0]
}

// SetPrecacheDone 资源加载完成后才开始处理帧
func (s *State) SetPrecacheDone(done bool) { s.precacheDone = done }

// SetPlayerNum 设置本地客户端编号（serverdata 下发）
func (s *State) SetPlayerNum(n int) { s.opts.PlayerNum = n }

// SetProjectileAntilag 运行时修改反延迟偏移，越界恢复默认值
func (s *State) SetProjectileAntilag(v float32) { s.opts.ProjectileAntilag = clampAntilag(v) }

// Frame 当前帧，下一帧到达前保持不变
func (s *State) Frame() *snapshot.Frame { return &s.frame }

// OldFrame 插值起点帧
func (s *State) OldFrame() *snapshot.Frame { return &s.oldFrame }

// PredictedPlayerState 当前视角的玩家状态
func (s *State) PredictedPlayerState() *core.PlayerState { return &s.predictedPlayerState }

// MultiviewPlayerNum 多视角下正在跟随的玩家编号
func (s *State) MultiviewPlayerNum() int { return s.multiviewPlayerNum }

// SetMultiviewPlayerNum 切换多视角跟随目标，下一帧生效
func (s *State) SetMultiviewPlayerNum(n int) { s.multiviewPlayerNum = n }

// Entities 持久实体表
func (s *State) Entities() *Entities { return s.entities }

// Entity 按编号取实体记录，越界返回 nil
func (s *State) Entity(number int) *CEntity { return s.entities.Lookup(number) }

// Solids 本帧参与预测碰撞的实体
func (s *State) Solids() []EntityNum { return s.solids }

// View 最近一次渲染节拍的时间参数
func (s *State) View() View { return s.view }

// Started 是否已经处理过至少一个有效帧
func (s *State) Started() bool { return !s.firstFrame }

// FireEvents 本帧事件是否尚未被消费
func (s *State) FireEvents() bool { return s.fireEvents }

// ConsumeEvents 预测层处理完本帧事件后调用
func (s *State) ConsumeEvents() { s.fireEvents = false }

// TakeMessages 取走累积的游戏消息
func (s *State) TakeMessages() []Message {
	msgs := s.messages
	s.messages = nil
	return msgs
}

// Present 实体是否在当前帧中
func (s *State) Present(cent *CEntity) bool {
	return cent.ServerFrame == s.frame.ServerFrame
}

// isViewer 实体是否为当前视角玩家
func (s *State) isViewer(number int) bool {
	pov := s.predictedPlayerState.POVNum
	return pov > 0 && pov == number
}

func (s *State) sound(number int, name string) {
	if s.opts.Sound != nil {
		s.opts.Sound(number, name)
	}
	s.logger.Debug("音效", "entity", number, "sound", name)
}

func clampAntilag(v float32) float32 {
	if v < 0 || v > 1 {
		return core.DefaultProjectileAntilagRate
	}
	return v
}
