package server

import (
	"math"
	"strings"
)

// WorldWidth 一维世界的显示范围 [0, WorldWidth]
const WorldWidth = 10.0

// ScreenX 将世界坐标线性映射到宽度为 width 的画布
func ScreenX(x, width float64) float64 {
	return x / WorldWidth * width
}

// RenderText 把实体画成一行文本：每个实体用 id 的个位数字标记，超出范围的不画
func RenderText(entities []EntityState, width int) string {
	if width <= 0 {
		return ""
	}
	row := []byte(strings.Repeat(".", width))
	for _, e := range entities {
		if e.X < 0 || e.X > WorldWidth {
			continue
		}
		col := int(math.Round(e.X / WorldWidth * float64(width-1)))
		row[col] = byte('0' + e.ID%10)
	}
	return string(row)
}
