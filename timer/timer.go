package timer

import (
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/go-rbtree"
	"time"
)

// Operation runs when a timeout expires. The records it returns are appended
// like the records of any other write.
type Operation func() (model.Result[any], error)

// Expired is the outcome of one fired timeout.
type Expired struct {
	Key    string
	Result model.Result[any]
	Err    error
}

type timeout struct {
	key       string
	deadline  time.Time
	seq       uint64
	operation Operation
}

func (t *timeout) compare(o *timeout) int {
	switch {
	case t.deadline.Before(o.deadline):
		return -1
	case t.deadline.After(o.deadline):
		return 1
	case t.seq < o.seq:
		return -1
	case t.seq > o.seq:
		return 1
	}
	return 0
}

func (t *timeout) Less(r rbtree.Item) bool {
	return t.compare(r.(*timeout)) < 0
}

// Timer holds at most one pending timeout per key. It is not safe for
// concurrent use: it belongs to the goroutine that owns the shard.
type Timer struct {
	clock    Clock
	queue    rbtree.Tree
	timeouts map[string]*timeout
	seq      uint64
}

func NewTimer(clock Clock) *Timer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Timer{
		clock:    clock,
		timeouts: make(map[string]*timeout),
	}
}

// Schedule registers operation to run once delay elapsed, replacing any
// timeout pending under key.
func (t *Timer) Schedule(key string, delay time.Duration, operation Operation) {
	t.Cancel(key)
	t.seq++
	to := &timeout{
		key:       key,
		deadline:  t.clock.Now().Add(delay),
		seq:       t.seq,
		operation: operation,
	}
	t.queue.Insert(to)
	t.timeouts[key] = to
}

func (t *Timer) Cancel(key string) bool {
	to, ok := t.timeouts[key]
	if !ok {
		return false
	}
	if node := t.find(to); node != nil {
		t.queue.Delete(node)
	}
	delete(t.timeouts, key)
	return true
}

func (t *Timer) CancelAll() {
	for key := range t.timeouts {
		t.Cancel(key)
	}
}

func (t *Timer) Contains(key string) bool {
	_, ok := t.timeouts[key]
	return ok
}

func (t *Timer) Deadline(key string) (time.Time, bool) {
	to, ok := t.timeouts[key]
	if !ok {
		return time.Time{}, false
	}
	return to.deadline, true
}

func (t *Timer) find(to *timeout) *rbtree.Node {
	return t.queue.FindWith(func(n *rbtree.Node) int {
		return to.compare(n.Item.(*timeout))
	})
}

func (t *Timer) Size() int {
	return len(t.timeouts)
}

// Poll fires every timeout whose deadline passed, earliest first. Timeouts
// scheduled by the fired operations wait for the next Poll even when already
// due.
func (t *Timer) Poll() []Expired {
	now := t.clock.Now()
	last := t.seq
	var expired []Expired
	for t.queue.Len() > 0 {
		min := t.queue.Min()
		to := min.Item.(*timeout)
		if to.deadline.After(now) || to.seq > last {
			break
		}
		t.queue.Delete(min)
		delete(t.timeouts, to.key)
		result, err := to.operation()
		expired = append(expired, Expired{Key: to.key, Result: result, Err: err})
	}
	return expired
}
