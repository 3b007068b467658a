package server

import "netsync/sim"

const TypeKeys = "keys"

// IntentMessage 入站按键状态（WebSocket 文本消息）
// 示例：{"type":"keys","right":true,"left":false}
type IntentMessage struct {
	Type  string `json:"type"`
	Right bool   `json:"right"`
	Left  bool   `json:"left"`
}

func (m IntentMessage) Controls() sim.Controls {
	return sim.Controls{Right: m.Right, Left: m.Left}
}

// intentEvent 发往房间循环的控制意图，下一次该玩家 Tick 时读取
type intentEvent struct {
	player   string
	controls sim.Controls
}
