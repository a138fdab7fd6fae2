package ingest

// call runs fn on the loop goroutine and waits for it. It reports false if
// the loop has stopped.
func (e *Engine) call(fn func()) bool {
	done := make(chan struct{})
	select {
	case e.inbox <- item{kind: itemCall, call: func() { fn(); close(done) }}:
	case <-e.done:
		return false
	}
	select {
	case <-done:
		return true
	case <-e.done:
		return false
	}
}
