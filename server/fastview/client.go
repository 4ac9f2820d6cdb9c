package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Updates are flushed to the client at most this often.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// The number of lost pings to tolerate before concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{
	// Views are served from other origins during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client publishes updates unidirectionally to one web client over a websocket.
// Messages from the client are read only to drive the pong handler and detect closure.
type Client[T any] struct {
	updates <-chan T
	ws      *websock
	rootCtx context.Context
}

// NewClient upgrades the request to a websocket. Items in @updates must be idempotent:
// updates arriving faster than the publication rate are coalesced and only the latest is sent.
func NewClient[T any](
	updates <-chan T,
	w http.ResponseWriter,
	r *http.Request,
) (*Client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	return &Client[T]{
		updates: updates,
		ws:      newWebSocket(ws),
		rootCtx: r.Context(),
	}, nil
}

// Sync publishes updates until the client disconnects or @updates is closed, or an
// unexpected error occurs. It returns nil on a normal disconnect. The socket is closed on return.
func (cli *Client[T]) Sync() error {
	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error {
		// Closing the socket is the only way to unblock a pending read.
		<-groupCtx.Done()
		cli.ws.Close()
		return nil
	})
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		// Ending publication ends the session; errgroup only cancels on error.
		if err := cli.publish(groupCtx); err != nil {
			return err
		}
		return errPublishDone
	})

	if err := group.Wait(); err != nil && !errors.Is(err, errPublishDone) && !isClosure(err) {
		return err
	}
	return nil
}

var (
	ErrPongDeadlineExceeded = errors.New("client disconnect, pong deadline exceeded")
	errPublishDone          = errors.New("update channel closed")
)

// pingPong runs the client liveness check. It requires readMessages to be running
// so that the pong handler is called.
func (cli *Client[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) error {
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil && isError(err) {
				return fmt.Errorf("ping failed: %w", err)
			}
			return err
		})
}

// readMessages drains client messages. Errors from websocket reads are permanent,
// so any error tears the client down.
func (cli *Client[T]) readMessages(ctx context.Context) error {
	for {
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, _, readErr = ws.ReadMessage()
				return
			})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// publish holds the newest update and flushes it on each tick, so the last update
// of a burst is always delivered.
func (cli *Client[T]) publish(ctx context.Context) error {
	var (
		pending T
		dirty   bool
	)
	flusher := channerics.NewTicker(ctx.Done(), pubResolution)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			if !ok {
				if dirty {
					return cli.write(ctx, pending)
				}
				return nil
			}
			pending, dirty = update, true
		case <-flusher:
			if !dirty {
				continue
			}
			if err := cli.write(ctx, pending); err != nil {
				return err
			}
			dirty = false
		}
	}
}

func (cli *Client[T]) write(ctx context.Context, update T) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (writeErr error) {
			if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
				return fmt.Errorf("failed to set deadline: %w", writeErr)
			}
			if writeErr = ws.WriteJSON(update); writeErr != nil && isError(writeErr) {
				writeErr = fmt.Errorf("publish failed: %w", writeErr)
			}
			return
		})
}

func isError(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const (
	writeDeadline    = time.Second
	closeGracePeriod = 100 * time.Millisecond
)

// websock serializes reads and writes to the websocket, which allows at most one
// concurrent reader and one concurrent writer.
type websock struct {
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebSocket(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the underlying websocket, for non-concurrent setup such as adding handlers.
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close frame and closes the connection. The close frame is best-effort
// and waits for no pending writer.
func (sock *websock) Close() {
	select {
	case sock.writeSem <- struct{}{}:
		_ = sock.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		time.Sleep(closeGracePeriod)
	case <-time.After(writeDeadline):
	}
	sock.ws.Close()
}

// Read serializes read operations on the websocket. A blocked read is not interrupted
// by @ctx; closing the connection ends it.
func (sock *websock) Read(
	ctx context.Context,
	readFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	}
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
