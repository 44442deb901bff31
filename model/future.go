package model

import (
	"context"
	"sync"
)

// AppendFuture resolves once the records of a Result are durable.
type AppendFuture struct {
	once sync.Once
	done chan struct{}
	err  error

	mutex     sync.Mutex
	callbacks []func(err error)
}

func NewAppendFuture() *AppendFuture {
	return &AppendFuture{done: make(chan struct{})}
}

// Complete resolves the future, only the first call has an effect.
func (f *AppendFuture) Complete(err error) {
	f.once.Do(func() {
		f.mutex.Lock()
		f.err = err
		close(f.done)
		callbacks := f.callbacks
		f.callbacks = nil
		f.mutex.Unlock()
		for _, callback := range callbacks {
			callback(err)
		}
	})
}

// OnComplete runs callback with the append error once the future resolves,
// right away when it already has. Callbacks run on the completing goroutine.
func (f *AppendFuture) OnComplete(callback func(err error)) {
	f.mutex.Lock()
	select {
	case <-f.done:
		err := f.err
		f.mutex.Unlock()
		callback(err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, callback)
	f.mutex.Unlock()
}

func (f *AppendFuture) Done() <-chan struct{} {
	return f.done
}

// Err returns the append error, it is only meaningful after Done is closed.
func (f *AppendFuture) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

func (f *AppendFuture) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *AppendFuture) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
