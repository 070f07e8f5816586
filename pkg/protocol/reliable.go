package protocol

import (
	"errors"
	"fmt"

	"snapsync/pkg/core"
)

var (
	ErrReliableOverflow = errors.New("可靠命令缓冲区溢出")
	ErrBadAck           = errors.New("确认了未发送的可靠命令")
	ErrReliableGap      = errors.New("可靠命令序号不连续")
)

// ReliableQueue 可靠命令发送端：每个包重发所有未确认的命令，直到对端确认
type ReliableQueue struct {
	cmds         [core.MaxReliableCommands]string
	sequence     int64
	acknowledged int64
}

// Add 追加一条命令，未确认的命令已占满缓冲区时返回 ErrReliableOverflow
func (q *ReliableQueue) Add(text string) error {
	if q.sequence-q.acknowledged >= core.MaxReliableCommands {
		return ErrReliableOverflow
	}
	q.sequence++
	q.cmds[q.sequence&(core.MaxReliableCommands-1)] = text
	return nil
}

// Ack 处理对端确认的最大序号，旧确认忽略
func (q *ReliableQueue) Ack(seq int64) error {
	if seq > q.sequence {
		return fmt.Errorf("%w: %d > %d", ErrBadAck, seq, q.sequence)
	}
	if seq > q.acknowledged {
		q.acknowledged = seq
	}
	return nil
}

func (q *ReliableQueue) Sequence() int64     { return q.sequence }
func (q *ReliableQueue) Acknowledged() int64 { return q.acknowledged }

// Pending 未确认的命令数
func (q *ReliableQueue) Pending() int { return int(q.sequence - q.acknowledged) }

// Write 以 op 为消息类型写出所有未确认的命令：op uvarint(seq) string
func (q *ReliableQueue) Write(m *Msg, op uint8) {
	for seq := q.acknowledged + 1; seq <= q.sequence; seq++ {
		m.WriteUint8(op)
		m.WriteUvarint(uint64(seq))
		m.WriteString(q.cmds[seq&(core.MaxReliableCommands-1)])
	}
}

// Reset 清空队列，序号归零
func (q *ReliableQueue) Reset() {
	*q = ReliableQueue{}
}

// ReliableReceiver 可靠命令接收端，保证每条命令恰好执行一次且按序
type ReliableReceiver struct {
	executed int64
}

// Check 判断序号：已执行过返回 false，跳号返回 ErrReliableGap
func (r *ReliableReceiver) Check(seq int64) (bool, error) {
	if seq <= r.executed {
		return false, nil
	}
	if seq != r.executed+1 {
		return false, fmt.Errorf("%w: 期望 %d，收到 %d", ErrReliableGap, r.executed+1, seq)
	}
	return true, nil
}

// Done 标记序号已执行
func (r *ReliableReceiver) Done(seq int64) {
	if seq > r.executed {
		r.executed = seq
	}
}

// Executed 已执行的最大序号，作为确认发回对端
func (r *ReliableReceiver) Executed() int64 { return r.executed }

// Reset 序号归零
func (r *ReliableReceiver) Reset() { r.executed = 0 }
