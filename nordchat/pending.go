package nordchat

import (
	"encoding/json"
	"sort"
	"sync"
)

type callResult struct {
	result json.RawMessage
	err    error
}

// pendingCall is settled exactly once: whoever removes it from the table
// owns the single send on done.
type pendingCall struct {
	id   int64
	done chan callResult
	// then runs on the settling goroutine before the caller wakes, and
	// only for a successful result.
	then func(json.RawMessage)
}

func (p *pendingCall) settle(r callResult) {
	p.done <- r
}

// pendingTable tracks in-flight calls of one Session. Once closed it
// refuses new entries.
type pendingTable struct {
	mu     sync.Mutex
	calls  map[int64]*pendingCall
	closed bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[int64]*pendingCall)}
}

func (t *pendingTable) add(id int64, then func(json.RawMessage)) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false
	}
	p := &pendingCall{id: id, done: make(chan callResult, 1), then: then}
	t.calls[id] = p
	return p, true
}

func (t *pendingTable) take(id int64) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return p, ok
}

// rejectAll closes the table and settles every remaining call with err in
// ascending id order. It returns how many calls were rejected.
func (t *pendingTable) rejectAll(err error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[int64]*pendingCall)
	t.closed = true
	t.mu.Unlock()

	ids := make([]int64, 0, len(calls))
	for id := range calls {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		calls[id].settle(callResult{err: err})
	}
	return len(ids)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
