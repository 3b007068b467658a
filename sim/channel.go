package sim

import "time"

type message[T any] struct {
	deliverAt time.Time
	payload   T
}

// Channel 模拟网络链路：每条消息带固定的投递时间，无容量上限、不丢包。
// Receive 按插入顺序扫描，返回第一条已到期的消息，因此不同延迟发送的消息
// 可能与发送顺序不一致地到达。
type Channel[T any] struct {
	clock    Clock
	messages []message[T]
}

func NewChannel[T any](clock Clock) *Channel[T] {
	return &Channel[T]{clock: clock}
}

// Send 入队，投递时间 = now + lag
func (c *Channel[T]) Send(lag time.Duration, payload T) {
	c.messages = append(c.messages, message[T]{
		deliverAt: c.clock.Now().Add(lag),
		payload:   payload,
	})
}

// Receive 非阻塞取出一条已到期消息；没有时 ok 为 false。
// 每次最多返回一条，调用方需要循环 drain。
func (c *Channel[T]) Receive() (payload T, ok bool) {
	now := c.clock.Now()
	for i, msg := range c.messages {
		if msg.deliverAt.After(now) {
			continue
		}
		copy(c.messages[i:], c.messages[i+1:])
		var zero message[T]
		c.messages[len(c.messages)-1] = zero
		c.messages = c.messages[:len(c.messages)-1]
		return msg.payload, true
	}
	return payload, false
}

// Len 返回仍在途中的消息数（含已到期未取出的）
func (c *Channel[T]) Len() int { return len(c.messages) }
