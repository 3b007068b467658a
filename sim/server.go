package sim

import (
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultServerTickRate = 10
	// DefaultMaxPressTime 单个输入允许代表的最大运动时长（秒）
	DefaultMaxPressTime = 1.0 / 40
)

// DefaultSpawns 按连接顺序分配的出生点
var DefaultSpawns = []float64{4, 6}

// Metrics 服务端计数钩子
type Metrics interface {
	IncAccepted()
	IncRejected()
	AddSnapshots(n int)
}

type nopMetrics struct{}

func (nopMetrics) IncAccepted()     {}
func (nopMetrics) IncRejected()     {}
func (nopMetrics) AddSnapshots(int) {}

type ServerConfig struct {
	TickRateHz   int
	Spawns       []float64
	EntitySpeed  float64
	MaxPressTime float64

	Logger  *zap.SugaredLogger
	Metrics Metrics
}

// Server 权威服务端：校验并应用输入，每个 Tick 向所有客户端广播世界快照
type Server struct {
	cfg     ServerConfig
	clock   Clock
	log     *zap.SugaredLogger
	metrics Metrics

	clients       []*Client
	entities      []*Entity // 下标 == entity_id == 连接顺序
	lastProcessed []uint64

	inbox    *Channel[Input]
	tickRate int
	tick     uint64
}

func NewServer(cfg ServerConfig, clock Clock) *Server {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = DefaultServerTickRate
	}
	if len(cfg.Spawns) == 0 {
		cfg.Spawns = DefaultSpawns
	}
	if cfg.EntitySpeed == 0 {
		cfg.EntitySpeed = DefaultEntitySpeed
	}
	if cfg.MaxPressTime <= 0 {
		cfg.MaxPressTime = DefaultMaxPressTime
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	return &Server{
		cfg:      cfg,
		clock:    clock,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		inbox:    NewChannel[Input](clock),
		tickRate: cfg.TickRateHz,
	}
}

// Connect 为客户端分配下一个 entity_id，在出生点创建权威实体，并把客户端绑定到本服务端
func (s *Server) Connect(c *Client) int {
	id := len(s.clients)
	s.clients = append(s.clients, c)

	e := NewEntity(id, s.cfg.EntitySpeed)
	e.X = s.cfg.Spawns[id%len(s.cfg.Spawns)]
	s.entities = append(s.entities, e)
	s.lastProcessed = append(s.lastProcessed, 0)

	c.attach(s, id)
	s.log.Infow("client connected", "entity_id", id, "spawn", e.X)
	return id
}

// Update 一个服务端 Tick：处理输入 → 广播世界状态
func (s *Server) Update() {
	s.tick++
	s.processInputs()
	s.sendWorldState()
}

// ValidateInput 客户端不可信：超出单次运动上限、非有限数或指向未知实体的输入一律拒绝
func (s *Server) ValidateInput(in Input) bool {
	if math.IsNaN(in.PressTime) || math.IsInf(in.PressTime, 0) {
		return false
	}
	if math.Abs(in.PressTime) > s.cfg.MaxPressTime {
		return false
	}
	return in.EntityID >= 0 && in.EntityID < len(s.entities)
}

func (s *Server) processInputs() {
	for {
		in, ok := s.inbox.Receive()
		if !ok {
			return
		}
		if !s.ValidateInput(in) {
			s.metrics.IncRejected()
			s.log.Debugw("input rejected", "entity_id", in.EntityID, "seq", in.Seq, "press_time", in.PressTime)
			continue
		}
		s.entities[in.EntityID].ApplyInput(in)
		s.lastProcessed[in.EntityID] = in.Seq
		s.metrics.IncAccepted()
	}
}

func (s *Server) sendWorldState() {
	snap := s.State()
	// 所有客户端共享同一个快照对象，接收方只读
	for _, c := range s.clients {
		c.inbox.Send(c.lag, snap)
	}
	s.metrics.AddSnapshots(len(s.clients))
}

// State 按连接顺序构造当前的世界快照
func (s *Server) State() WorldSnapshot {
	snap := WorldSnapshot{
		Tick:     s.tick,
		Entities: make([]EntityState, 0, len(s.clients)),
	}
	for i := range s.clients {
		snap.Entities = append(snap.Entities, EntityState{
			EntityID:           s.entities[i].ID,
			Position:           s.entities[i].X,
			LastProcessedInput: s.lastProcessed[i],
		})
	}
	return snap
}

// Entities 权威实体位置（渲染用）
func (s *Server) Entities() []EntityView {
	out := make([]EntityView, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, EntityView{ID: e.ID, X: e.X})
	}
	return out
}

// LastProcessedInput 返回某实体最后确认的输入序号，0 表示没有
func (s *Server) LastProcessedInput(entityID int) uint64 {
	if entityID < 0 || entityID >= len(s.lastProcessed) {
		return 0
	}
	return s.lastProcessed[entityID]
}

func (s *Server) Tick() uint64 { return s.tick }

func (s *Server) TickRate() int { return s.tickRate }

// SetTickRate 修改 Tick 频率，在途消息不受影响
func (s *Server) SetTickRate(hz int) error {
	if hz <= 0 {
		return ErrInvalidTickRate
	}
	s.tickRate = hz
	return nil
}

// TickInterval 一个服务端 Tick 的时长，也是客户端插值的渲染延迟
func (s *Server) TickInterval() time.Duration { return tickInterval(s.tickRate) }

// Inbox 服务端入站通道
func (s *Server) Inbox() *Channel[Input] { return s.inbox }
