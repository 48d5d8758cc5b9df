// Package langserver manages stdio language server processes: a correlating
// JSON-RPC connection, a reconnecting client with typed document operations,
// and a per-language registry.
package langserver

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/jsonrpc"
)

// ServerMessageHandler receives server-initiated requests and notifications.
// Handlers run on their own goroutine and must not assume any reply has been
// sent on their behalf.
type ServerMessageHandler func(msg *jsonrpc.Message)

// Conn correlates JSON-RPC requests with responses over a framed byte
// stream. One background goroutine reads frames for the lifetime of the
// connection; callers suspend on a per-request channel until their response
// arrives, the stream closes, or their ctx ends.
type Conn struct {
	w       *jsonrpc.FrameWriter
	r       *jsonrpc.FrameReader
	handler ServerMessageHandler
	log     *zap.SugaredLogger

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan *jsonrpc.Message
	closed  bool

	// readDone closes when the read goroutine exits; by then every pending
	// request has been rejected
	readDone chan struct{}
}

// NewConn wraps a byte stream pair and starts the read goroutine. handler
// may be nil, in which case server-initiated traffic is debug-logged and
// dropped.
func NewConn(r io.Reader, w io.Writer, handler ServerMessageHandler, log *zap.SugaredLogger) *Conn {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Conn{
		w:        jsonrpc.NewFrameWriter(w),
		r:        jsonrpc.NewFrameReader(r),
		handler:  handler,
		log:      log,
		pending:  make(map[int64]chan *jsonrpc.Message),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call sends a request and waits for its response. The returned bytes are
// the raw result field; JSON-RPC error responses come back as protocol
// errors carrying the server's code and message.
func (c *Conn) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrConnectionClosed, "cannot call %s", method)
	}
	id := c.nextID.Add(1)
	ch := make(chan *jsonrpc.Message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.w.Write(jsonrpc.NewRequest(id, method, params)); err != nil {
		return nil, errors.Wrapf(err, "failed to send %s request", method)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, errors.Wrapf(errors.ErrConnectionClosed, "%s request abandoned", method)
		}
		if msg.Error != nil {
			return nil, errors.Wrapf(errors.Mark(msg.Error, errors.ErrProtocol), "method %s", method)
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "%s call canceled", method)
	}
}

// Notify sends a notification. No id is allocated and nothing is registered;
// the call returns as soon as the frame is written.
func (c *Conn) Notify(method string, params interface{}) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.Wrapf(errors.ErrConnectionClosed, "cannot notify %s", method)
	}
	c.mu.Unlock()

	if err := c.w.Write(jsonrpc.NewNotification(method, params)); err != nil {
		return errors.Wrapf(err, "failed to send %s notification", method)
	}
	return nil
}

// Close marks the connection closed and waits for the read goroutine to
// finish. The caller owns the underlying transport and must shut its stream
// down first; a closed stream is what unblocks the read loop.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	<-c.readDone
}

// Done is closed once the read goroutine has exited and all pending
// requests have been rejected.
func (c *Conn) Done() <-chan struct{} {
	return c.readDone
}

// PendingCount reports how many requests are awaiting responses
func (c *Conn) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// readLoop decodes frames and dispatches them until the stream fails. Body
// decode errors are survivable because the codec consumed exactly the
// declared byte count; header errors leave the frame boundary unknowable,
// so the loop terminates and rejects everything still pending.
func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer c.rejectPending()

	for {
		body, err := c.r.ReadRaw()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.log.Debugw("server stream ended")
			case c.isClosed():
				// Expected teardown noise
			default:
				c.log.Warnw("read loop terminating", "error", err)
			}
			return
		}

		msg, err := jsonrpc.ParseMessage(body)
		if err != nil {
			c.log.Warnw("discarding undecodable frame", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Conn) dispatch(msg *jsonrpc.Message) {
	if msg.IsResponse() {
		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.mu.Unlock()

		if !ok {
			c.log.Debugw("discarding response with no pending request", "id", *msg.ID)
			return
		}
		ch <- msg
		return
	}

	if msg.Method != "" {
		if c.handler != nil {
			go c.handler(msg)
		} else {
			c.log.Debugw("server message", "method", msg.Method, "request", msg.IsServerRequest())
		}
		return
	}

	c.log.Debugw("discarding message with neither id nor method")
}

// rejectPending runs exactly once, on read-loop exit, after dispatching has
// stopped. Closing the channels is what wakes suspended callers with a
// connection-closed error.
func (c *Conn) rejectPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
