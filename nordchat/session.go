package nordchat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/Nordlicht-IT-Solutions/nordlicht-chat-sdk-go/nordchat/internal"
)

type sessionEventKind int

const (
	sessionOpened sessionEventKind = iota
	sessionFrame
	sessionTransportError
	sessionClosed
)

// sessionEvent is what a Session reports to its owner, in socket order.
type sessionEvent struct {
	session  *Session
	kind     sessionEventKind
	data     []byte
	code     int
	err      error
	rejected int
}

// Session is one connection attempt: a socket plus the Correlator that owns
// its pending calls. A Session is never reused after it closes.
type Session struct {
	id     string
	cfg    Config
	logger Logger
	corr   *Correlator
	sink   func(sessionEvent)

	mu        sync.Mutex
	conn      *internal.Conn
	localCode int
	cancel    context.CancelFunc
	done      chan struct{}
}

func newSession(cfg Config, logger Logger, sink func(sessionEvent)) *Session {
	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		done:   make(chan struct{}),
	}
	s.corr = newCorrelator(s.send)
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Done is closed once the session reached its terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Pending returns the number of calls awaiting a response.
func (s *Session) Pending() int { return s.corr.Pending() }

// Call issues method on this session and waits for the result.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return s.callThen(ctx, method, params, nil)
}

// callThen runs then on the client's dispatch goroutine when the response
// is routed.
func (s *Session) callThen(ctx context.Context, method string, params any, then func(json.RawMessage)) (json.RawMessage, error) {
	if s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}
	return s.corr.CallThen(ctx, method, params, then)
}

// Close shuts the session down with code. Calling it more than once keeps
// the first code.
func (s *Session) Close(code int, reason string) error {
	s.mu.Lock()
	if s.localCode == 0 {
		s.localCode = code
	}
	conn, cancel := s.conn, s.cancel
	s.mu.Unlock()

	if conn == nil {
		if cancel != nil {
			cancel()
		}
		return nil
	}
	return conn.Close(code, reason)
}

func (s *Session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer s.cancelRun()

	conn, err := internal.Dial(ctx, s.cfg.URL, s.cfg.HandshakeTimeout, s.cfg.ReadTimeout, s.cfg.WriteTimeout, s.cfg.ReadLimit)
	if err != nil {
		code := s.closeCode(err)
		if !s.closedLocally() {
			s.logger.Warn("dial failed", map[string]any{"session": s.id, "error": err.Error()})
			s.emit(sessionEvent{kind: sessionTransportError, err: WrapError(ErrorTransport, "dial", err)})
		}
		s.finish(code)
		return
	}

	s.mu.Lock()
	if s.localCode != 0 {
		code := s.localCode
		s.mu.Unlock()
		_ = conn.Close(code, "session closed")
		s.finish(code)
		return
	}
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("session open", map[string]any{"session": s.id, "url": s.cfg.URL})
	s.emit(sessionEvent{kind: sessionOpened})

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			code := s.closeCode(err)
			if !IsDeliberateClose(code) && !s.closedLocally() {
				s.emit(sessionEvent{kind: sessionTransportError, err: WrapError(ErrorTransport, "read", err)})
			}
			s.finish(code)
			return
		}
		s.emit(sessionEvent{kind: sessionFrame, data: data})
	}
}

func (s *Session) cancelRun() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// closeCode prefers the code the client closed with over what the socket
// reports.
func (s *Session) closeCode(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localCode != 0 {
		return s.localCode
	}
	return internal.CloseCode(err)
}

func (s *Session) closedLocally() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localCode != 0
}

// finish rejects all pending calls in one pass, then reports the close.
func (s *Session) finish(code int) {
	n := s.corr.Close()
	s.logger.Info("session closed", map[string]any{"session": s.id, "code": code, "rejected": n})
	s.emit(sessionEvent{kind: sessionClosed, code: code, rejected: n})
	close(s.done)
}

func (s *Session) emit(ev sessionEvent) {
	ev.session = s
	if s.sink != nil {
		s.sink(ev)
	}
}

func (s *Session) send(ctx context.Context, req Request) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return NewError(ErrorNotConnected, "session not open")
	}
	return conn.Write(ctx, req)
}
