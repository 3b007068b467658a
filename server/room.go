package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"netsync/sim"
)

// ServerTask 调度器中服务端 Tick 的任务名（玩家不能使用）
const ServerTask = "server"

var (
	ErrUnknownPlayer = errors.New("unknown player")
	ErrRoomClosed    = errors.New("room closed")
)

// ConfigUpdate 运行时参数；nil 字段表示不修改。player 为空时只允许 tickRateHz（服务端）
type ConfigUpdate struct {
	TickRateHz     *int   `json:"tickRateHz,omitempty"`
	LagMs          *int64 `json:"lagMs,omitempty"`
	Prediction     *bool  `json:"prediction,omitempty"`
	Reconciliation *bool  `json:"reconciliation,omitempty"`
	Interpolation  *bool  `json:"interpolation,omitempty"`
}

type configRequest struct {
	player string
	update ConfigUpdate
	resp   chan configResult
}

type configResult struct {
	current ConfigUpdate
	err     error
}

type viewerEvent struct {
	conn *ClientConn
	join bool
}

// Room 一个权威服务端加若干客户端模拟，全部在同一个 goroutine 中按各自频率推进
type Room struct {
	ID string

	clock   sim.Clock
	log     *zap.SugaredLogger
	render  RenderConfig
	server  *sim.Server
	players []*Player
	byName  map[string]*Player
	sched   *Scheduler
	metrics *RoomMetrics
	trace   StatusSink

	viewers  map[*ClientConn]struct{}
	intentCh chan intentEvent
	configCh chan configRequest
	viewerCh chan viewerEvent
	done     chan struct{}

	view atomic.Pointer[StateMessage]

	tickerStarted bool
}

// NewRoom 按配置创建服务端，并依次连接每个玩家（entity_id 即配置顺序）
func NewRoom(id string, cfg Config, clock sim.Clock) (*Room, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Room{
		ID:       id,
		clock:    clock,
		log:      Log.With("room", id),
		render:   cfg.Render,
		byName:   make(map[string]*Player, len(cfg.Players)),
		sched:    NewScheduler(),
		metrics:  &RoomMetrics{},
		viewers:  make(map[*ClientConn]struct{}),
		intentCh: make(chan intentEvent, 256),
		configCh: make(chan configRequest),
		viewerCh: make(chan viewerEvent),
		done:     make(chan struct{}),
	}
	r.server = sim.NewServer(sim.ServerConfig{
		TickRateHz:   cfg.Server.TickRateHz,
		Spawns:       cfg.Server.Spawns,
		EntitySpeed:  cfg.Server.EntitySpeed,
		MaxPressTime: cfg.Server.MaxPressTime,
		Logger:       r.log,
		Metrics:      r.metrics,
	}, clock)

	now := clock.Now()
	if err := r.sched.Every(ServerTask, cfg.Server.TickRateHz, now, r.serverTick); err != nil {
		return nil, err
	}
	for _, pc := range cfg.Players {
		if pc.Name == ServerTask {
			return nil, fmt.Errorf("player name %q is reserved", pc.Name)
		}
		c := sim.NewClient(sim.ClientConfig{
			TickRateHz:  pc.TickRateHz,
			Lag:         pc.Lag(),
			Settings:    pc.Settings,
			EntitySpeed: cfg.Server.EntitySpeed,
		}, clock)
		r.server.Connect(c)
		p := &Player{Name: pc.Name, Client: c}
		r.players = append(r.players, p)
		r.byName[p.Name] = p
		if err := r.sched.Every(p.Name, pc.TickRateHz, now, r.playerTick(p)); err != nil {
			return nil, err
		}
	}
	r.publish()
	return r, nil
}

// SetTrace 设置状态记录；须在 StartTicker 之前调用
func (r *Room) SetTrace(sink StatusSink) { r.trace = sink }

func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// View 最近一次发布的房间视图（只读）
func (r *Room) View() *StateMessage { return r.view.Load() }

func (r *Room) HasPlayer(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Run 房间主循环：处理意图、配置与观察者变更，并在最近的 Tick 到期时推进模拟
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	defer r.shutdown()

	timer := time.NewTimer(r.sched.Until(r.clock.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.intentCh:
			r.applyIntent(ev)
		case ev := <-r.viewerCh:
			r.applyViewer(ev)
		case req := <-r.configCh:
			cur, err := r.applyConfig(req.player, req.update)
			req.resp <- configResult{current: cur, err: err}
			r.publish()
			resetTimer(timer, r.sched.Until(r.clock.Now()))
		case <-timer.C:
			r.step(r.clock.Now())
			timer.Reset(r.sched.Until(r.clock.Now()))
		}
	}
}

func (r *Room) step(now time.Time) {
	start := time.Now()
	if r.sched.RunDue(now) == 0 {
		return
	}
	r.publish()
	r.metrics.AddStep(time.Since(start).Nanoseconds())
}

func (r *Room) serverTick() {
	r.server.Update()
	r.metrics.IncServerTick()
	if r.trace == nil {
		return
	}
	if err := r.trace.WriteStatus(r.status()); err != nil {
		r.log.Warnw("trace write failed", "err", err)
	}
}

func (r *Room) playerTick(p *Player) func() {
	return func() {
		p.Client.Update()
		r.metrics.IncClientTick()
	}
}

// OnIntent 记录玩家的按键状态，在该玩家下一次 Tick 生效
func (r *Room) OnIntent(player string, ctl sim.Controls) {
	select {
	case r.intentCh <- intentEvent{player: player, controls: ctl}:
	case <-r.done:
	}
}

func (r *Room) applyIntent(ev intentEvent) {
	if p, ok := r.byName[ev.player]; ok {
		p.Client.SetControls(ev.controls)
	}
}

// UpdateConfig 在房间循环中应用参数修改并返回当前值；空更新即读取
func (r *Room) UpdateConfig(ctx context.Context, player string, upd ConfigUpdate) (ConfigUpdate, error) {
	if player != "" && !r.HasPlayer(player) {
		return ConfigUpdate{}, ErrUnknownPlayer
	}
	req := configRequest{player: player, update: upd, resp: make(chan configResult, 1)}
	select {
	case r.configCh <- req:
	case <-ctx.Done():
		return ConfigUpdate{}, ctx.Err()
	case <-r.done:
		return ConfigUpdate{}, ErrRoomClosed
	}
	select {
	case res := <-req.resp:
		return res.current, res.err
	case <-ctx.Done():
		return ConfigUpdate{}, ctx.Err()
	}
}

func (r *Room) applyConfig(player string, upd ConfigUpdate) (ConfigUpdate, error) {
	now := r.clock.Now()
	if upd.TickRateHz != nil && *upd.TickRateHz <= 0 {
		return r.currentConfig(player), sim.ErrInvalidTickRate
	}

	if player == "" {
		if upd.LagMs != nil || upd.Prediction != nil || upd.Reconciliation != nil || upd.Interpolation != nil {
			return r.currentConfig(player), fmt.Errorf("server only supports tickRateHz")
		}
		if upd.TickRateHz != nil {
			_ = r.server.SetTickRate(*upd.TickRateHz)
			_ = r.sched.SetRate(ServerTask, *upd.TickRateHz, now)
			r.log.Infow("server config updated", "tick_rate_hz", *upd.TickRateHz)
		}
		return r.currentConfig(player), nil
	}

	p, ok := r.byName[player]
	if !ok {
		return ConfigUpdate{}, ErrUnknownPlayer
	}
	if upd.LagMs != nil && *upd.LagMs < 0 {
		return r.currentConfig(player), fmt.Errorf("lagMs must not be negative")
	}
	c := p.Client
	if upd.TickRateHz != nil {
		_ = c.SetTickRate(*upd.TickRateHz)
		_ = r.sched.SetRate(player, *upd.TickRateHz, now)
	}
	if upd.LagMs != nil {
		c.SetLag(lagFromMs(*upd.LagMs))
	}
	next := c.Settings()
	if upd.Prediction != nil {
		next.Prediction = *upd.Prediction
	}
	if upd.Reconciliation != nil {
		next.Reconciliation = *upd.Reconciliation
	}
	if upd.Interpolation != nil {
		next.Interpolation = *upd.Interpolation
	}
	s := c.SetSettings(next)
	r.log.Infow("player config updated", "player", player, "tick_rate_hz", c.TickRate(),
		"lag_ms", c.Lag().Milliseconds(), "prediction", s.Prediction,
		"reconciliation", s.Reconciliation, "interpolation", s.Interpolation)
	return r.currentConfig(player), nil
}

func (r *Room) currentConfig(player string) ConfigUpdate {
	if player == "" {
		hz := r.server.TickRate()
		return ConfigUpdate{TickRateHz: &hz}
	}
	p, ok := r.byName[player]
	if !ok {
		return ConfigUpdate{}
	}
	hz := p.Client.TickRate()
	lag := p.Client.Lag().Milliseconds()
	s := p.Client.Settings()
	return ConfigUpdate{
		TickRateHz:     &hz,
		LagMs:          &lag,
		Prediction:     &s.Prediction,
		Reconciliation: &s.Reconciliation,
		Interpolation:  &s.Interpolation,
	}
}

// AddViewer 订阅房间视图广播
func (r *Room) AddViewer(c *ClientConn) bool {
	select {
	case r.viewerCh <- viewerEvent{conn: c, join: true}:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) RemoveViewer(c *ClientConn) {
	select {
	case r.viewerCh <- viewerEvent{conn: c}:
	case <-r.done:
	}
}

func (r *Room) applyViewer(ev viewerEvent) {
	if ev.join {
		r.viewers[ev.conn] = struct{}{}
		r.sendView(ev.conn, r.View())
		return
	}
	if _, ok := r.viewers[ev.conn]; ok {
		delete(r.viewers, ev.conn)
		ev.conn.Close()
	}
}

// publish 构造并发布房间视图，然后广播给所有观察者
func (r *Room) publish() {
	msg := r.buildView()
	r.view.Store(msg)
	if len(r.viewers) == 0 {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		r.log.Errorw("marshal state failed", "err", err)
		return
	}
	for c := range r.viewers {
		if !c.Enqueue(b) {
			r.metrics.IncViewerDropped()
		}
	}
}

func (r *Room) sendView(c *ClientConn, msg *StateMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.log.Errorw("marshal state failed", "err", err)
		return
	}
	if !c.Enqueue(b) {
		r.metrics.IncViewerDropped()
	}
}

func (r *Room) buildView() *StateMessage {
	w := r.render.CanvasWidth
	snap := r.server.State()
	acks := make([]AckState, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		acks = append(acks, AckState{EntityID: e.EntityID, LastProcessedInput: e.LastProcessedInput})
	}
	msg := &StateMessage{
		Type: TypeState,
		Room: r.ID,
		Server: ServerView{
			Tick:       snap.Tick,
			TickRateHz: r.server.TickRate(),
			Entities:   entityStates(r.server.Entities(), w),
			Acks:       acks,
		},
		Players: make([]PlayerView, 0, len(r.players)),
	}
	for _, p := range r.players {
		msg.Players = append(msg.Players, p.view(w))
	}
	return msg
}

func (r *Room) status() TickStatus {
	v := r.buildView()
	pending := make(map[string]int, len(v.Players))
	for _, p := range v.Players {
		pending[p.Name] = p.Pending
	}
	return TickStatus{
		Room:     r.ID,
		Tick:     v.Server.Tick,
		At:       r.clock.Now(),
		Entities: v.Server.Entities,
		Acks:     v.Server.Acks,
		Pending:  pending,
	}
}

func (r *Room) shutdown() {
	for c := range r.viewers {
		c.Close()
	}
	r.viewers = nil
	if r.trace != nil {
		if err := r.trace.Close(); err != nil {
			r.log.Warnw("close trace failed", "err", err)
		}
	}
	r.log.Info("room stopped")
}

// StartTicker 启动房间循环（单线程推进所有模拟）
func (r *Room) StartTicker(ctx context.Context) {
	if r.tickerStarted {
		return
	}
	r.tickerStarted = true
	go r.Run(ctx)
}
