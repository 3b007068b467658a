package sim

import (
	"errors"
	"time"
)

var ErrInvalidTickRate = errors.New("tick rate must be positive")

// Settings 客户端三个网络同步开关
type Settings struct {
	Prediction     bool `json:"prediction" yaml:"prediction"`
	Reconciliation bool `json:"reconciliation" yaml:"reconciliation"`
	Interpolation  bool `json:"interpolation" yaml:"interpolation"`
}

// Apply 以 s 为当前值应用 next，并执行联动规则：
// 关闭预测会关闭和解；开启和解会强制开启预测（没有预测的和解不是合法状态）。
func (s Settings) Apply(next Settings) Settings {
	if s.Prediction && !next.Prediction {
		next.Reconciliation = false
	}
	if !s.Reconciliation && next.Reconciliation {
		next.Prediction = true
	}
	return next
}

func tickInterval(hz int) time.Duration {
	return time.Second / time.Duration(hz)
}
