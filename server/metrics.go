package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）；同时实现 sim.Metrics
type RoomMetrics struct {
	ServerTicks        int64 // 服务端 Tick 次数
	ClientTicks        int64 // 所有客户端 Tick 次数之和
	InputsAccepted     int64 // 通过校验的输入数
	InputsRejected     int64 // 被服务端拒绝的输入数
	SnapshotsSent      int64 // 发往客户端通道的快照数
	IntentsRateLimited int64 // 因限流丢弃的按键消息数
	ViewerDropped      int64 // 观察者发送队列满而丢弃的状态帧数
	StepCount          int64 // 调度循环执行次数
	TotalStepNs        int64 // 调度循环累计耗时（纳秒）
}

func (m *RoomMetrics) IncAccepted()       { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *RoomMetrics) IncRejected()       { atomic.AddInt64(&m.InputsRejected, 1) }
func (m *RoomMetrics) AddSnapshots(n int) { atomic.AddInt64(&m.SnapshotsSent, int64(n)) }
func (m *RoomMetrics) IncServerTick()     { atomic.AddInt64(&m.ServerTicks, 1) }
func (m *RoomMetrics) IncClientTick()     { atomic.AddInt64(&m.ClientTicks, 1) }
func (m *RoomMetrics) IncRateLimited()    { atomic.AddInt64(&m.IntentsRateLimited, 1) }
func (m *RoomMetrics) IncViewerDropped()  { atomic.AddInt64(&m.ViewerDropped, 1) }
func (m *RoomMetrics) AddStep(ns int64) {
	atomic.AddInt64(&m.StepCount, 1)
	atomic.AddInt64(&m.TotalStepNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	steps := atomic.LoadInt64(&m.StepCount)
	total := atomic.LoadInt64(&m.TotalStepNs)
	var avgMs float64
	if steps > 0 {
		avgMs = float64(total) / float64(steps) / 1e6
	}
	return map[string]any{
		"server_ticks":         atomic.LoadInt64(&m.ServerTicks),
		"client_ticks":         atomic.LoadInt64(&m.ClientTicks),
		"inputs_accepted":      atomic.LoadInt64(&m.InputsAccepted),
		"inputs_rejected":      atomic.LoadInt64(&m.InputsRejected),
		"snapshots_sent":       atomic.LoadInt64(&m.SnapshotsSent),
		"intents_rate_limited": atomic.LoadInt64(&m.IntentsRateLimited),
		"viewer_dropped":       atomic.LoadInt64(&m.ViewerDropped),
		"avg_step_ms":          avgMs,
	}
}
