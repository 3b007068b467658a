package sim

import (
	"sort"
	"time"
)

const DefaultClientTickRate = 50

// Controls 本地控制意图，每个 Tick 读取一次
type Controls struct {
	Right bool
	Left  bool
}

type ClientConfig struct {
	TickRateHz  int
	Lag         time.Duration
	Settings    Settings
	EntitySpeed float64
}

// Client 客户端模拟：发送输入、本地预测、与权威快照和解、插值远端实体
type Client struct {
	clock Clock
	speed float64

	entities map[int]*Entity
	inbox    *Channel[WorldSnapshot]
	server   *Server

	entityID  int
	connected bool

	inputSeq uint64
	pending  []Input // 未确认的输入，序号严格递增

	settings Settings
	lag      time.Duration
	tickRate int
	controls Controls

	lastTick    time.Time
	hasLastTick bool
}

func NewClient(cfg ClientConfig, clock Clock) *Client {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = DefaultClientTickRate
	}
	if cfg.EntitySpeed == 0 {
		cfg.EntitySpeed = DefaultEntitySpeed
	}
	if cfg.Lag < 0 {
		cfg.Lag = 0
	}
	return &Client{
		clock:    clock,
		speed:    cfg.EntitySpeed,
		entities: make(map[int]*Entity),
		inbox:    NewChannel[WorldSnapshot](clock),
		settings: Settings{}.Apply(cfg.Settings),
		lag:      cfg.Lag,
		tickRate: cfg.TickRateHz,
	}
}

func (c *Client) attach(s *Server, entityID int) {
	c.server = s
	c.entityID = entityID
	c.connected = true
}

// Update 一个客户端 Tick：接收服务端消息 → 处理输入 → 插值远端实体。
// 未连接时只接收消息。
func (c *Client) Update() {
	c.processServerMessages()
	if !c.connected {
		return
	}
	c.processInputs()
	if c.settings.Interpolation {
		c.interpolateEntities()
	}
}

// entity 查找本地实体，首次被快照引用时创建
func (c *Client) entity(id int) *Entity {
	e, ok := c.entities[id]
	if !ok {
		e = NewEntity(id, c.speed)
		c.entities[id] = e
	}
	return e
}

func (c *Client) processServerMessages() {
	for {
		snap, ok := c.inbox.Receive()
		if !ok {
			return
		}
		for _, st := range snap.Entities {
			e := c.entity(st.EntityID)
			if c.connected && st.EntityID == c.entityID {
				c.reconcile(e, st)
				continue
			}
			if !c.settings.Interpolation {
				e.X = st.Position
				continue
			}
			e.PushPosition(c.clock.Now(), st.Position)
		}
	}
}

// reconcile 先无条件采用权威位置；开启和解时丢弃已确认输入并按序重放其余输入，
// 否则清空所有未确认输入。
func (c *Client) reconcile(e *Entity, st EntityState) {
	e.X = st.Position
	if !c.settings.Reconciliation {
		c.pending = c.pending[:0]
		return
	}
	kept := c.pending[:0]
	for _, in := range c.pending {
		if in.Seq <= st.LastProcessedInput {
			continue
		}
		e.ApplyInput(in)
		kept = append(kept, in)
	}
	c.pending = kept
}

func (c *Client) processInputs() {
	now := c.clock.Now()
	last, hadLast := c.lastTick, c.hasLastTick
	c.lastTick, c.hasLastTick = now, true
	if !hadLast {
		return
	}
	dt := now.Sub(last).Seconds()

	var press float64
	switch {
	case c.controls.Right:
		press = dt
	case c.controls.Left:
		press = -dt
	default:
		return
	}

	c.inputSeq++
	in := Input{PressTime: press, Seq: c.inputSeq, EntityID: c.entityID}
	c.server.inbox.Send(c.lag, in)

	if c.settings.Prediction {
		// 自己的实体还没出现在任何快照里时跳过预测，首个快照到达后由重放补上
		if e, ok := c.entities[c.entityID]; ok {
			e.ApplyInput(in)
		}
	}
	// 无论是否预测都记录，保证之后开启和解时重放簿记一致
	c.pending = append(c.pending, in)
}

func (c *Client) interpolateEntities() {
	renderAt := c.clock.Now().Add(-c.server.TickInterval())
	for id, e := range c.entities {
		if id == c.entityID {
			continue
		}
		e.Interpolate(renderAt)
	}
}

// Entities 按 entity_id 排序的本地实体位置
func (c *Client) Entities() []EntityView {
	out := make([]EntityView, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, EntityView{ID: e.ID, X: e.X})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EntityID 自己的实体 id；未连接时 ok 为 false
func (c *Client) EntityID() (id int, ok bool) { return c.entityID, c.connected }

// PendingCount 未被服务端确认的输入数
func (c *Client) PendingCount() int { return len(c.pending) }

// PendingInputs 未确认输入的副本
func (c *Client) PendingInputs() []Input {
	return append([]Input(nil), c.pending...)
}

func (c *Client) Settings() Settings { return c.settings }

// SetSettings 按联动规则应用新开关，返回最终生效的值
func (c *Client) SetSettings(next Settings) Settings {
	c.settings = c.settings.Apply(next)
	return c.settings
}

func (c *Client) Lag() time.Duration { return c.lag }

func (c *Client) SetLag(lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	c.lag = lag
}

func (c *Client) TickRate() int { return c.tickRate }

func (c *Client) SetTickRate(hz int) error {
	if hz <= 0 {
		return ErrInvalidTickRate
	}
	c.tickRate = hz
	return nil
}

func (c *Client) TickInterval() time.Duration { return tickInterval(c.tickRate) }

func (c *Client) Controls() Controls { return c.controls }

func (c *Client) SetControls(ctl Controls) { c.controls = ctl }
