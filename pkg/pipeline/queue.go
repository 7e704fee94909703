package pipeline

import (
	"sync"

	"github.com/jzx17/gometer/pkg/types"
)

// messageKind tags a queue message
type messageKind uint8

const (
	kindMeasurement messageKind = iota
	kindDrain
)

// message is what travels from producers to the worker
type message struct {
	kind        messageKind
	measurement types.Measurement
}

var drainMessage = message{kind: kindDrain}

// queue is an unbounded FIFO. push never blocks; pop blocks while empty.
type queue struct {
	mu     sync.Mutex
	items  []message
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

// push appends msg and wakes the consumer
func (q *queue) push(msg message) {
	q.pushIf(msg, nil)
}

// pushIf appends msg only if accept, evaluated under the queue lock, allows it
func (q *queue) pushIf(msg message, accept func() bool) bool {
	q.mu.Lock()
	if accept != nil && !accept() {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest message, blocking until one is available.
// It returns false once quit is closed.
func (q *queue) pop(quit <-chan struct{}) (message, bool) {
	for {
		select {
		case <-quit:
			return message{}, false
		default:
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = message{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return msg, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-quit:
			return message{}, false
		}
	}
}

// purge drops every queued message and returns how many measurements were lost
func (q *queue) purge() int {
	return q.purgeThen(nil)
}

// purgeThen purges and runs then before releasing the queue lock, so no
// pushIf can land between the two
func (q *queue) purgeThen(then func()) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if then != nil {
		defer then()
	}

	lost := 0
	for _, msg := range q.items {
		if msg.kind == kindMeasurement {
			lost++
		}
	}
	q.items = nil
	return lost
}

// len returns the number of queued messages
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
