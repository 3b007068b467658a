package server

import (
	"context"
	"sync"

	"netsync/sim"
)

const DefaultRoomID = "room-1"

// RoomManager 管理多个房间的生命周期
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	cfg    Config
	clock  sim.Clock
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRoomManager(cfg Config, clock sim.Clock) *RoomManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomManager{
		rooms:  make(map[string]*Room),
		cfg:    cfg,
		clock:  clock,
		ctx:    ctx,
		cancel: cancel,
	}
}

// GetOrCreateRoom 获取或创建房间，并确保开始 Tick
func (m *RoomManager) GetOrCreateRoom(id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	r, err := NewRoom(id, m.cfg, m.clock)
	if err != nil {
		return nil, err
	}
	if m.cfg.TraceDir != "" {
		r.SetTrace(NewTraceLogger(m.cfg.TraceDir, id))
	}
	m.rooms[id] = r
	r.StartTicker(m.ctx)
	Log.Infow("room created", "room", id, "players", len(r.players), "server_hz", m.cfg.Server.TickRateHz)
	return r, nil
}

// Close 停止所有房间循环并等待其退出
func (m *RoomManager) Close() {
	m.cancel()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rooms {
		<-r.done
	}
}
