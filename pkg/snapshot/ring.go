package snapshot

import "fmt"

// RingIndex 容量为 2 的幂的环形下标
type RingIndex struct {
	mask int64
}

// NewRingIndex 创建环形下标，容量必须是 2 的幂
func NewRingIndex(capacity int) RingIndex {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("环形缓冲容量必须是 2 的幂: %d", capacity))
	}
	return RingIndex{mask: int64(capacity - 1)}
}

// Capacity 容量
func (r RingIndex) Capacity() int { return int(r.mask + 1) }

// SlotFor 序号对应的槽位
func (r RingIndex) SlotFor(seq int64) int {
	return int(seq & r.mask)
}

// IsFresh 槽位中保存的序号 stored 是否正是 seq，即该槽位尚未被覆盖
func (r RingIndex) IsFresh(stored, seq int64) bool {
	return seq >= 0 && stored == seq
}

// History 最近若干帧的环形历史，属于单个连接
type History struct {
	index  RingIndex
	frames []Frame
}

// NewHistory 创建帧历史
func NewHistory(capacity int) *History {
	idx := NewRingIndex(capacity)
	h := &History{
		index:  idx,
		frames: make([]Frame, idx.Capacity()),
	}
	h.Clear()
	return h
}

// Capacity 历史容量
func (h *History) Capacity() int { return h.index.Capacity() }

// Slot 返回 serverFrame 对应的槽位，不检查内容是否新鲜
func (h *History) Slot(serverFrame int64) *Frame {
	return &h.frames[h.index.SlotFor(serverFrame)]
}

// Lookup 返回序号为 serverFrame 的帧；槽位已被覆盖时返回 nil
func (h *History) Lookup(serverFrame int64) *Frame {
	f := h.Slot(serverFrame)
	if !h.index.IsFresh(f.ServerFrame, serverFrame) {
		return nil
	}
	return f
}

// Clear 使所有槽位失效
func (h *History) Clear() {
	for i := range h.frames {
		h.frames[i].Reset()
		h.frames[i].ServerFrame = -1
	}
}
