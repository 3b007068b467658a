package server

import (
	"fmt"
	"time"
)

// task 一个按固定频率执行的 Tick 回调
type task struct {
	name     string
	interval time.Duration
	next     time.Time
	run      func()
}

// Scheduler 单线程调度多个频率可变的 Tick（服务端与各客户端共用一个 goroutine）
type Scheduler struct {
	tasks  []*task
	byName map[string]*task
}

func NewScheduler() *Scheduler {
	return &Scheduler{byName: make(map[string]*task)}
}

// Every 注册一个每秒 hz 次的任务，首次在 now+interval 触发
func (s *Scheduler) Every(name string, hz int, now time.Time, run func()) error {
	if hz <= 0 {
		return fmt.Errorf("task %s: invalid rate %d", name, hz)
	}
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("task %s already registered", name)
	}
	interval := time.Second / time.Duration(hz)
	t := &task{name: name, interval: interval, next: now.Add(interval), run: run}
	s.tasks = append(s.tasks, t)
	s.byName[name] = t
	return nil
}

// SetRate 修改频率并从 now 重新计时（相当于清除再重建定时器）
func (s *Scheduler) SetRate(name string, hz int, now time.Time) error {
	t, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("task %s not found", name)
	}
	if hz <= 0 {
		return fmt.Errorf("task %s: invalid rate %d", name, hz)
	}
	t.interval = time.Second / time.Duration(hz)
	t.next = now.Add(t.interval)
	return nil
}

// RunDue 按注册顺序执行所有到期任务，每个最多一次；落后超过一个周期时跳过错过的 Tick
func (s *Scheduler) RunDue(now time.Time) int {
	ran := 0
	for _, t := range s.tasks {
		if t.next.After(now) {
			continue
		}
		t.run()
		ran++
		t.next = t.next.Add(t.interval)
		if !t.next.After(now) {
			t.next = now.Add(t.interval)
		}
	}
	return ran
}

// Until 距离下一个任务到期的时间
func (s *Scheduler) Until(now time.Time) time.Duration {
	if len(s.tasks) == 0 {
		return time.Second
	}
	next := s.tasks[0].next
	for _, t := range s.tasks[1:] {
		if t.next.Before(next) {
			next = t.next
		}
	}
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}

// resetTimer 停止并清空 timer 后重新设定
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
