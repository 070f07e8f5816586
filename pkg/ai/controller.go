package ai

import (
	"math/rand"

	"snapsync/pkg/ai/bt"
	"snapsync/pkg/core"
)

// AIController 用行为树根据最近一帧产生用户命令
type AIController struct {
	rnd    *rand.Rand
	config *AIConfig

	lastThink    int64
	thought      bool
	cachedCmd    core.UserCmd
	lastInDanger bool

	blackboard Blackboard
	tree       bt.Node[*Blackboard]
	danger     DangerField
}

// NewAIController 创建机器人控制器，config 为 nil 时用普通难度
func NewAIController(config *AIConfig, seed int64) *AIController {
	if config == nil {
		config = &AIConfigNormal
	}
	rnd := rand.New(rand.NewSource(seed))

	c := &AIController{
		rnd:    rnd,
		config: config,
	}
	c.blackboard = Blackboard{
		RNG:    rnd,
		Danger: &c.danger,
		Config: config,
	}

	type node = bt.Node[*Blackboard]
	c.tree = &bt.Selector[*Blackboard]{Children: []node{
		&bt.Sequence[*Blackboard]{Children: []node{
			&bt.Condition[*Blackboard]{Check: condInDanger},
			&bt.Action[*Blackboard]{Do: actDodge},
		}},
		&bt.Sequence[*Blackboard]{Children: []node{
			&bt.Condition[*Blackboard]{Check: condHasTarget},
			&bt.Action[*Blackboard]{Do: actAim},
			&bt.Action[*Blackboard]{Do: actFire},
		}},
		&bt.Action[*Blackboard]{Do: actWander},
	}}
	return c
}

// Decide 产生本节拍的命令；self 为 nil（观察者）时不动
func (c *AIController) Decide(self *core.EntityState, entities []core.EntityState, serverTime int64) core.UserCmd {
	if self == nil {
		return core.UserCmd{}
	}

	c.danger.Update(self, entities, serverTime, c.config)
	inDanger := c.danger.InDanger()
	force := inDanger != c.lastInDanger
	c.lastInDanger = inDanger

	if c.thought && !force && serverTime-c.lastThink < c.config.ThinkIntervalMs {
		cmd := c.cachedCmd
		cmd.Buttons = 0 // 开火只在思考时触发一次
		return cmd
	}
	c.lastThink = serverTime
	c.thought = true

	c.blackboard.ResetFrame(self, entities, serverTime)
	_ = c.tree.Tick(&c.blackboard)

	// 随机失误：什么都不做或原地转向
	if c.config.MistakeRate > 0 && c.rnd.Float64() < c.config.MistakeRate {
		switch c.rnd.Intn(2) {
		case 0:
			c.blackboard.NextCmd = core.UserCmd{}
		case 1:
			c.blackboard.NextCmd.Angles[1] = float32(c.rnd.Intn(360))
		}
	}

	c.cachedCmd = c.blackboard.NextCmd
	return c.cachedCmd
}

// Config 当前配置
func (c *AIController) Config() *AIConfig { return c.config }

// SetConfig 替换配置
func (c *AIController) SetConfig(config *AIConfig) {
	if config == nil {
		return
	}
	c.config = config
	c.blackboard.Config = config
}
