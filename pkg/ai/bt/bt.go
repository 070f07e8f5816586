// Package bt 最小的行为树：选择、顺序、条件、动作四种节点
package bt

type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

// Node 行为树节点，B 为黑板类型
type Node[B any] interface {
	Tick(bb B) Status
}

// Selector 选择节点：遇到 Success 或 Running 停止，全 Failure 才 Failure
type Selector[B any] struct {
	Children []Node[B]
}

func (s *Selector[B]) Tick(bb B) Status {
	for _, child := range s.Children {
		if status := child.Tick(bb); status != StatusFailure {
			return status
		}
	}
	return StatusFailure
}

// Sequence 顺序节点：遇到 Failure 或 Running 停止，全 Success 才 Success
type Sequence[B any] struct {
	Children []Node[B]
}

func (s *Sequence[B]) Tick(bb B) Status {
	for _, child := range s.Children {
		if status := child.Tick(bb); status != StatusSuccess {
			return status
		}
	}
	return StatusSuccess
}

// Condition 条件节点
type Condition[B any] struct {
	Check func(bb B) bool
}

func (c *Condition[B]) Tick(bb B) Status {
	if c.Check == nil {
		return StatusFailure
	}
	if c.Check(bb) {
		return StatusSuccess
	}
	return StatusFailure
}

// Action 动作节点
type Action[B any] struct {
	Do func(bb B) Status
}

func (a *Action[B]) Tick(bb B) Status {
	if a.Do == nil {
		return StatusFailure
	}
	return a.Do(bb)
}
