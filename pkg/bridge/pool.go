package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/events"
)

// wsConn is the subset of *websocket.Conn the pool needs. Tests substitute
// stubs.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type poolConn struct {
	conn   wsConn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func (pc *poolConn) shutdown() {
	pc.once.Do(func() {
		close(pc.done)
		_ = pc.conn.Close()
	})
}

// ConnectionPool manages the websocket connections mirroring one view. Each
// connection writes through its own buffered send queue; a slow client that
// fills its queue or times out a write is dropped rather than stalling the
// event path. Idle detection fires once the last connection is gone.
type ConnectionPool struct {
	view        events.ViewHandle
	mu          sync.Mutex
	conns       map[wsConn]*poolConn
	idleTimer   *time.Timer
	idleTimeout time.Duration
	onIdle      func()

	sendBuffer   int
	writeTimeout time.Duration
}

func NewConnectionPool(view events.ViewHandle, idleTimeout time.Duration, onIdle func()) *ConnectionPool {
	return &ConnectionPool{
		view:         view,
		conns:        map[wsConn]*poolConn{},
		idleTimeout:  idleTimeout,
		onIdle:       onIdle,
		sendBuffer:   64,
		writeTimeout: 10 * time.Second,
	}
}

func (cp *ConnectionPool) Add(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	pc := &poolConn{
		conn:   conn,
		sendCh: make(chan []byte, cp.sendBuffer),
		done:   make(chan struct{}),
	}
	cp.mu.Lock()
	cp.conns[conn] = pc
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
	go cp.writeLoop(pc)
}

func (cp *ConnectionPool) Remove(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	pc := cp.conns[conn]
	delete(cp.conns, conn)
	cp.scheduleIdleTimerLocked()
	cp.mu.Unlock()
	if pc != nil {
		pc.shutdown()
	} else {
		_ = conn.Close()
	}
}

// Broadcast enqueues data on every connection. Connections whose queue is
// full are dropped.
func (cp *ConnectionPool) Broadcast(data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	for conn, pc := range cp.conns {
		select {
		case pc.sendCh <- data:
		default:
			log.Warn().Str("component", "bridge").Int64("view", int64(cp.view)).Msg("ws send buffer full, dropping connection")
			delete(cp.conns, conn)
			pc.shutdown()
		}
	}
	cp.scheduleIdleTimerLocked()
	cp.mu.Unlock()
}

// SendToOne enqueues data for a single connection, if it is still pooled.
func (cp *ConnectionPool) SendToOne(conn wsConn, data []byte) {
	if cp == nil || conn == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	pc, ok := cp.conns[conn]
	if !ok {
		cp.mu.Unlock()
		return
	}
	select {
	case pc.sendCh <- data:
		cp.mu.Unlock()
	default:
		log.Warn().Str("component", "bridge").Int64("view", int64(cp.view)).Msg("ws send buffer full, dropping connection")
		delete(cp.conns, conn)
		cp.scheduleIdleTimerLocked()
		cp.mu.Unlock()
		pc.shutdown()
	}
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

func (cp *ConnectionPool) IsEmpty() bool {
	return cp.Count() == 0
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	dropped := make([]*poolConn, 0, len(cp.conns))
	for conn, pc := range cp.conns {
		dropped = append(dropped, pc)
		delete(cp.conns, conn)
	}
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
	for _, pc := range dropped {
		pc.shutdown()
	}
}

func (cp *ConnectionPool) writeLoop(pc *poolConn) {
	for {
		select {
		case <-pc.done:
			return
		case data := <-pc.sendCh:
			if cp.writeTimeout > 0 {
				_ = pc.conn.SetWriteDeadline(time.Now().Add(cp.writeTimeout))
			}
			if err := pc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("component", "bridge").Int64("view", int64(cp.view)).Msg("ws write failed, dropping connection")
				cp.Remove(pc.conn)
				return
			}
		}
	}
}

func (cp *ConnectionPool) stopIdleTimerLocked() {
	if cp.idleTimer != nil {
		cp.idleTimer.Stop()
		cp.idleTimer = nil
	}
}

func (cp *ConnectionPool) scheduleIdleTimerLocked() {
	if len(cp.conns) != 0 || cp.idleTimeout <= 0 || cp.onIdle == nil {
		cp.stopIdleTimerLocked()
		return
	}
	cp.stopIdleTimerLocked()
	cp.idleTimer = time.AfterFunc(cp.idleTimeout, cp.triggerIdle)
}

func (cp *ConnectionPool) triggerIdle() {
	if cp == nil {
		return
	}
	var callback func()
	cp.mu.Lock()
	if len(cp.conns) == 0 {
		callback = cp.onIdle
	}
	cp.idleTimer = nil
	cp.mu.Unlock()
	if callback != nil {
		callback()
	}
}
