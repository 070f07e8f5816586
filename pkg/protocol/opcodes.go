package protocol

import "fmt"

// ProtocolVersion 协议版本，serverdata 中携带
const ProtocolVersion = 22

// SvcOp 服务器到客户端的消息类型
type SvcOp uint8

const (
	SvcBad SvcOp = iota // 0 同时用作 playerinfo 列表的结束符
	SvcServerCmd
	SvcServerData
	SvcSpawnBaseline
	SvcPlayerInfo
	SvcPacketEntities
	SvcGameCommands
	SvcMatch
	SvcClcAck
	SvcServerCs // 带序号的可靠命令，用于 demo
	SvcFrame
	SvcDemoInfo
)

var svcNames = [...]string{
	SvcBad:            "svc_bad",
	SvcServerCmd:      "svc_servercmd",
	SvcServerData:     "svc_serverdata",
	SvcSpawnBaseline:  "svc_spawnbaseline",
	SvcPlayerInfo:     "svc_playerinfo",
	SvcPacketEntities: "svc_packetentities",
	SvcGameCommands:   "svc_gamecommands",
	SvcMatch:          "svc_match",
	SvcClcAck:         "svc_clcack",
	SvcServerCs:       "svc_servercs",
	SvcFrame:          "svc_frame",
	SvcDemoInfo:       "svc_demoinfo",
}

func (op SvcOp) String() string {
	if int(op) < len(svcNames) {
		return svcNames[op]
	}
	return fmt.Sprintf("svc_%d", uint8(op))
}

// ClcOp 客户端到服务器的消息类型
type ClcOp uint8

const (
	ClcBad ClcOp = iota
	ClcNop
	ClcMove
	ClcSvcAck
	ClcClientCommand
)

var clcNames = [...]string{
	ClcBad:           "clc_bad",
	ClcNop:           "clc_nop",
	ClcMove:          "clc_move",
	ClcSvcAck:        "clc_svcack",
	ClcClientCommand: "clc_clientcommand",
}

func (op ClcOp) String() string {
	if int(op) < len(clcNames) {
		return clcNames[op]
	}
	return fmt.Sprintf("clc_%d", uint8(op))
}

// 帧标志
const (
	FrameFlagDelta       uint8 = 1 << 0
	FrameFlagMultiPOV    uint8 = 1 << 1
	FrameFlagAllEntities uint8 = 1 << 2
)

// ExpectOp 读取一个消息类型并检查是否为 want
func ExpectOp(m *Msg, want SvcOp) error {
	got := SvcOp(m.ReadUint8())
	if err := m.Err(); err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: 期望 %s，实际 %s", ErrUnexpectedOpcode, want, got)
	}
	return nil
}
