package sim

import "time"

// DefaultEntitySpeed 实体速度（位置单位/秒）
const DefaultEntitySpeed = 2.0

// Input 客户端每个 Tick 产生的一次输入，发送后不可修改
type Input struct {
	PressTime float64 `json:"press_time"` // 按键时长（秒），向左为负
	Seq       uint64  `json:"input_sequence_number"`
	EntityID  int     `json:"entity_id"`
}

// EntityState 快照中单个实体的权威状态
type EntityState struct {
	EntityID           int     `json:"entity_id"`
	Position           float64 `json:"position"`
	LastProcessedInput uint64  `json:"last_processed_input"` // 0 表示尚未确认任何输入
}

// WorldSnapshot 服务端每个 Tick 广播的世界状态，广播后只读
type WorldSnapshot struct {
	Tick     uint64        `json:"tick"`
	Entities []EntityState `json:"entities"`
}

type positionSample struct {
	at time.Time
	x  float64
}

// Entity 一个可控制对象的最小模拟状态
type Entity struct {
	ID    int
	X     float64
	Speed float64

	buffer []positionSample // 远端实体插值缓冲，按到达时间排序
}

func NewEntity(id int, speed float64) *Entity {
	return &Entity{ID: id, Speed: speed}
}

// ApplyInput x += press_time * speed，不做任何校验
func (e *Entity) ApplyInput(in Input) {
	e.X += in.PressTime * e.Speed
}

// PushPosition 追加一个权威位置样本
func (e *Entity) PushPosition(at time.Time, x float64) {
	e.buffer = append(e.buffer, positionSample{at: at, x: x})
}

func (e *Entity) BufferLen() int { return len(e.buffer) }

// Interpolate 在 renderAt 两侧的样本之间线性插值。
// 先丢弃过旧样本（第二个样本仍不晚于 renderAt 时丢弃第一个）；
// 找不到包围区间时保持上一次的 X，不外推。
func (e *Entity) Interpolate(renderAt time.Time) {
	for len(e.buffer) >= 2 && !e.buffer[1].at.After(renderAt) {
		e.buffer = e.buffer[1:]
	}
	if len(e.buffer) < 2 {
		return
	}
	s0, s1 := e.buffer[0], e.buffer[1]
	if renderAt.Before(s0.at) || renderAt.After(s1.at) {
		return
	}
	span := s1.at.Sub(s0.at)
	if span <= 0 {
		return
	}
	elapsed := renderAt.Sub(s0.at)
	e.X = s0.x + (s1.x-s0.x)*float64(elapsed)/float64(span)
}

// EntityView 只读的实体位置，供渲染使用
type EntityView struct {
	ID int
	X  float64
}
