package bridge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu       sync.Mutex
	writes   [][]byte
	blockCh  chan struct{}
	closedCh chan struct{}
}

func newStubConn(blockWrites bool) *stubConn {
	blockCh := make(chan struct{})
	if !blockWrites {
		close(blockCh)
	}
	return &stubConn{blockCh: blockCh, closedCh: make(chan struct{})}
}

func (s *stubConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-s.closedCh:
		return errors.New("closed")
	case <-s.blockCh:
	}
	s.mu.Lock()
	s.writes = append(s.writes, append([]byte(nil), data...))
	s.mu.Unlock()
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closedCh:
		return nil
	default:
		close(s.closedCh)
		return nil
	}
}

func (s *stubConn) SetWriteDeadline(_ time.Time) error {
	return nil
}

func (s *stubConn) written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([][]byte, len(s.writes))
	copy(ret, s.writes)
	return ret
}

func TestConnectionPoolBroadcastReachesEveryConn(t *testing.T) {
	pool := NewConnectionPool(1, 0, nil)

	c1 := newStubConn(false)
	c2 := newStubConn(false)
	pool.Add(c1)
	pool.Add(c2)
	require.Equal(t, 2, pool.Count())

	pool.Broadcast([]byte("hello"))

	require.Eventually(t, func() bool {
		return len(c1.written()) == 1 && len(c2.written()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []byte("hello"), c1.written()[0])
}

func TestConnectionPoolDropsOnFullBuffer(t *testing.T) {
	pool := NewConnectionPool(1, 0, nil)
	pool.sendBuffer = 1
	pool.writeTimeout = 0

	conn := newStubConn(true)
	pool.Add(conn)

	pool.Broadcast([]byte("one"))
	pool.Broadcast([]byte("two"))
	pool.Broadcast([]byte("three"))

	require.Eventually(t, func() bool {
		return pool.Count() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestConnectionPoolSendToOne(t *testing.T) {
	pool := NewConnectionPool(1, 0, nil)

	c1 := newStubConn(false)
	c2 := newStubConn(false)
	pool.Add(c1)
	pool.Add(c2)

	pool.SendToOne(c1, []byte("direct"))

	require.Eventually(t, func() bool {
		return len(c1.written()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Empty(t, c2.written())
}

func TestConnectionPoolIdleCallbackFiresWhenEmpty(t *testing.T) {
	idleCh := make(chan struct{}, 1)
	pool := NewConnectionPool(1, 20*time.Millisecond, func() {
		select {
		case idleCh <- struct{}{}:
		default:
		}
	})

	conn := newStubConn(false)
	pool.Add(conn)
	pool.Remove(conn)

	select {
	case <-idleCh:
	case <-time.After(time.Second):
		t.Fatal("idle callback did not fire")
	}
	require.True(t, pool.IsEmpty())
}

func TestConnectionPoolAddCancelsIdleTimer(t *testing.T) {
	idleCh := make(chan struct{}, 1)
	pool := NewConnectionPool(1, 30*time.Millisecond, func() {
		select {
		case idleCh <- struct{}{}:
		default:
		}
	})

	first := newStubConn(false)
	pool.Add(first)
	pool.Remove(first)

	// A new connection inside the idle window keeps the pool alive.
	second := newStubConn(false)
	pool.Add(second)

	select {
	case <-idleCh:
		t.Fatal("idle callback fired despite live connection")
	case <-time.After(80 * time.Millisecond):
	}
	require.Equal(t, 1, pool.Count())
}

func TestConnectionPoolCloseAll(t *testing.T) {
	pool := NewConnectionPool(1, 0, nil)

	c1 := newStubConn(false)
	c2 := newStubConn(false)
	pool.Add(c1)
	pool.Add(c2)

	pool.CloseAll()
	require.Equal(t, 0, pool.Count())

	select {
	case <-c1.closedCh:
	default:
		t.Fatal("expected first connection to be closed")
	}
	select {
	case <-c2.closedCh:
	default:
		t.Fatal("expected second connection to be closed")
	}
}
