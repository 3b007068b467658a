package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

func (m *RoomManager) roomFromQuery(w http.ResponseWriter, r *http.Request) *Room {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = DefaultRoomID
	}
	room, err := m.GetOrCreateRoom(roomID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil
	}
	return room
}

// HandleAdminConfig 提供运行时参数的读取与更新
// GET  /admin/config?room=room-1&player=player1  返回当前配置（不带 player 为服务端）
// POST /admin/config?room=room-1&player=player1  以 JSON 载荷更新部分字段
func (m *RoomManager) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	room := m.roomFromQuery(w, r)
	if room == nil {
		return
	}
	player := r.URL.Query().Get("player")

	var body ConfigUpdate
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cur, err := room.UpdateConfig(r.Context(), player, body)
	switch {
	case errors.Is(err, ErrUnknownPlayer):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, ErrRoomClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		_ = json.NewEncoder(w).Encode(cur)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "config": cur})
}

// HandleMetrics 输出指定房间的运行指标与确认状态
// GET /metrics?room=room-1
func (m *RoomManager) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	room := m.roomFromQuery(w, r)
	if room == nil {
		return
	}
	view := room.View()
	pending := make(map[string]int, len(view.Players))
	for _, p := range view.Players {
		pending[p.Name] = p.Pending
	}
	payload := map[string]any{
		"room":    room.ID,
		"tick":    view.Server.Tick,
		"metrics": room.Metrics().Snapshot(),
		"acks":    view.Server.Acks,
		"pending": pending,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// HandleRender 文本渲染：服务端与每个客户端各一行
// GET /render?room=room-1
func (m *RoomManager) HandleRender(w http.ResponseWriter, r *http.Request) {
	room := m.roomFromQuery(w, r)
	if room == nil {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(renderView(room.View(), m.cfg.Render.TextWidth)))
}

func renderView(v *StateMessage, width int) string {
	var b strings.Builder
	acks := make([]string, 0, len(v.Server.Acks))
	for _, a := range v.Server.Acks {
		acks = append(acks, fmt.Sprintf("#%d=%d", a.EntityID, a.LastProcessedInput))
	}
	fmt.Fprintf(&b, "%-10s |%s| tick=%d acks=[%s]\n", "server", RenderText(v.Server.Entities, width),
		v.Server.Tick, strings.Join(acks, " "))
	for _, p := range v.Players {
		fmt.Fprintf(&b, "%-10s |%s| pending=%d\n", p.Name, RenderText(p.Entities, width), p.Pending)
	}
	return b.String()
}
