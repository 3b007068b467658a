package server

import (
	"time"

	"netsync/sim"
)

const TypeState = "state"

// Player 房间内一个具名客户端模拟
type Player struct {
	Name   string
	Client *sim.Client
}

// EntityState 渲染用的实体位置
type EntityState struct {
	ID      int     `json:"id"`
	X       float64 `json:"x"`
	ScreenX float64 `json:"screen_x"`
}

// AckState 某实体最后确认的输入序号
type AckState struct {
	EntityID           int    `json:"entity_id"`
	LastProcessedInput uint64 `json:"last_processed_input"`
}

type ServerView struct {
	Tick       uint64        `json:"tick"`
	TickRateHz int           `json:"tick_rate_hz"`
	Entities   []EntityState `json:"entities"`
	Acks       []AckState    `json:"acks"`
}

type PlayerView struct {
	Name           string        `json:"name"`
	EntityID       int           `json:"entity_id"`
	TickRateHz     int           `json:"tick_rate_hz"`
	LagMs          int64         `json:"lag_ms"`
	Prediction     bool          `json:"prediction"`
	Reconciliation bool          `json:"reconciliation"`
	Interpolation  bool          `json:"interpolation"`
	Pending        int           `json:"pending"`
	Entities       []EntityState `json:"entities"`
}

// StateMessage 每次调度后广播给观察者的房间视图，发布后只读
type StateMessage struct {
	Type    string       `json:"type"`
	Room    string       `json:"room"`
	Server  ServerView   `json:"server"`
	Players []PlayerView `json:"players"`
}

func entityStates(views []sim.EntityView, canvasWidth float64) []EntityState {
	out := make([]EntityState, 0, len(views))
	for _, v := range views {
		out = append(out, EntityState{ID: v.ID, X: v.X, ScreenX: ScreenX(v.X, canvasWidth)})
	}
	return out
}

func (p *Player) view(canvasWidth float64) PlayerView {
	id, ok := p.Client.EntityID()
	if !ok {
		id = -1
	}
	s := p.Client.Settings()
	return PlayerView{
		Name:           p.Name,
		EntityID:       id,
		TickRateHz:     p.Client.TickRate(),
		LagMs:          p.Client.Lag().Milliseconds(),
		Prediction:     s.Prediction,
		Reconciliation: s.Reconciliation,
		Interpolation:  s.Interpolation,
		Pending:        p.Client.PendingCount(),
		Entities:       entityStates(p.Client.Entities(), canvasWidth),
	}
}

func lagFromMs(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
