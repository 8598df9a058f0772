package nordchat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// sendFunc writes one request to the socket.
type sendFunc func(ctx context.Context, req Request) error

// Correlator issues request ids and matches responses to their callers.
// It belongs to exactly one Session; ids start at 1 and are never reused.
type Correlator struct {
	nextID  atomic.Int64
	pending *pendingTable
	send    sendFunc
}

func newCorrelator(send sendFunc) *Correlator {
	return &Correlator{pending: newPendingTable(), send: send}
}

// Call sends method with params and blocks until the matching response
// arrives, ctx is done, or the owning session closes.
func (c *Correlator) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.CallThen(ctx, method, params, nil)
}

// CallThen is Call with a continuation. then receives the result on the
// goroutine that settles the call, before any later frame is handled and
// before Call returns. It does not run when the call fails.
func (c *Correlator) CallThen(ctx context.Context, method string, params any, then func(json.RawMessage)) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)
	call, ok := c.pending.add(id, then)
	if !ok {
		return nil, NewError(ErrorConnectionClosed, "connection closed")
	}

	req := Request{JSONRPC: ProtocolVersion, ID: id, Method: method, Params: params}
	if err := c.send(ctx, req); err != nil {
		if _, mine := c.pending.take(id); mine {
			return nil, WrapError(ErrorTransport, fmt.Sprintf("send %s", method), err)
		}
		// Closed concurrently; the rejection is already queued.
		r := <-call.done
		return r.result, r.err
	}

	select {
	case r := <-call.done:
		return r.result, r.err
	case <-ctx.Done():
		if _, mine := c.pending.take(id); mine {
			return nil, ctx.Err()
		}
		r := <-call.done
		return r.result, r.err
	}
}

// Settle resolves or rejects the call matching resp.ID. A response for an
// unknown id yields an ErrorProtocol error and changes nothing.
func (c *Correlator) Settle(resp Response) error {
	call, ok := c.pending.take(resp.ID)
	if !ok {
		return NewError(ErrorProtocol, fmt.Sprintf("response for unknown call id %d", resp.ID))
	}
	if len(resp.Error) > 0 {
		call.settle(callResult{err: FromRPCError(resp.Error)})
		return nil
	}
	if call.then != nil {
		call.then(resp.Result)
	}
	call.settle(callResult{result: resp.Result})
	return nil
}

// Close rejects every pending call with ErrorConnectionClosed and refuses
// further calls. It returns the number of rejected calls.
func (c *Correlator) Close() int {
	return c.pending.rejectAll(NewError(ErrorConnectionClosed, "connection closed"))
}

// Pending returns the number of in-flight calls.
func (c *Correlator) Pending() int {
	return c.pending.len()
}
