package cgame

import (
	"snapsync/pkg/core"
	"snapsync/pkg/snapshot"
)

// lostMultiviewPOV 跟随目标丢失时选择编号最接近的非观察者，没有则退而求其次取观察者
func (s *State) lostMultiviewPOV() int {
	best := core.MaxClients
	index, fallback := -1, -1

	for i := range s.frame.PlayerStates {
		ps := &s.frame.PlayerStates[i]
		value := abs(ps.PlayerNum - s.multiviewPlayerNum)
		if value == best && i > index {
			continue
		}
		if value < best {
			if ps.IsSpectator() {
				fallback = i
				continue
			}
			best = value
			index = i
		}
	}

	if index > -1 {
		return index
	}
	return fallback
}

// setFramePlayerState 选定帧的视角玩家状态，回放与多视角下禁用预测
func (s *State) setFramePlayerState(frame *snapshot.Frame, index int) {
	frame.PlayerState = frame.PlayerStates[index]
	if s.opts.DemoPlaying || s.frame.MultiPOV {
		frame.PlayerState.PMove.Flags |= core.PMFNoPrediction
		if frame.PlayerState.PMove.Type != core.PMSpectator {
			frame.PlayerState.PMove.Type = core.PMChasecam
		}
	}
}

// updatePlayerState 选择本帧与插值起点帧的视角玩家
func (s *State) updatePlayerState() {
	if len(s.frame.PlayerStates) == 0 {
		s.predictedPlayerState = s.frame.PlayerState
		return
	}

	index := 0
	if s.frame.MultiPOV {
		index = -1
		for i := range s.frame.PlayerStates {
			n := s.frame.PlayerStates[i].PlayerNum
			if n >= 0 && n < core.MaxClients && n == s.multiviewPlayerNum {
				index = i
				break
			}
		}
		if index < 0 || s.frame.PlayerStates[index].IsSpectator() {
			index = s.lostMultiviewPOV()
		}
		if index < 0 {
			index = 0
		}
	}

	s.multiviewPlayerNum = s.frame.PlayerStates[index].PlayerNum
	s.setFramePlayerState(&s.frame, index)

	index = -1
	for i := range s.oldFrame.PlayerStates {
		if s.oldFrame.PlayerStates[i].PlayerNum == s.multiviewPlayerNum {
			index = i
			break
		}
	}
	if index == -1 {
		s.oldFrame.PlayerState = s.frame.PlayerState
	} else {
		s.setFramePlayerState(&s.oldFrame, index)
	}

	s.predictedPlayerState = s.frame.PlayerState
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
