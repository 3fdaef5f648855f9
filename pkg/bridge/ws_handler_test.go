package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/stretchr/testify/require"
)

func attachStubConn(t *testing.T, r *Router) (*View, *stubConn) {
	t.Helper()

	v, err := r.vm.CreateView(nil)
	require.NoError(t, err)

	conn := newStubConn(false)
	_, err = r.vm.AttachConn(v.Handle, conn)
	require.NoError(t, err)
	return v, conn
}

func TestDispatchFrameUpdateCommitDrivesView(t *testing.T) {
	r, err := NewRouter(context.Background(), values.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	v, conn := attachStubConn(t, r)

	var update Frame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"update","props":{"source":{"html":"<title>WS</title>"}}}`), &update))
	r.dispatchFrame(v, conn, update)
	r.dispatchFrame(v, conn, Frame{Type: FrameCommit})

	st, err := r.vm.Status(v.Handle)
	require.NoError(t, err)
	require.Equal(t, "WS", st.Title)

	// The commit's load events are mirrored back over the connection.
	require.Eventually(t, func() bool {
		return len(conn.written()) >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchFrameEvalRepliesOnConn(t *testing.T) {
	r, err := NewRouter(context.Background(), values.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	v, conn := attachStubConn(t, r)

	r.dispatchFrame(v, conn, Frame{Type: FrameEval, Script: "6*7", ID: "e1"})

	require.Eventually(t, func() bool {
		for _, raw := range conn.written() {
			var reply struct {
				Eval struct {
					ID    string `json:"id"`
					Value string `json:"value"`
				} `json:"eval"`
			}
			if err := json.Unmarshal(raw, &reply); err != nil {
				continue
			}
			if reply.Eval.ID == "e1" && reply.Eval.Value == "42" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchFrameUnknownTypeReportsError(t *testing.T) {
	r, err := NewRouter(context.Background(), values.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	v, conn := attachStubConn(t, r)

	r.dispatchFrame(v, conn, Frame{Type: "warp", ID: "x1"})

	require.Eventually(t, func() bool {
		for _, raw := range conn.written() {
			var reply struct {
				Error struct {
					ID      string `json:"id"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(raw, &reply); err != nil {
				continue
			}
			if reply.Error.ID == "x1" && reply.Error.Message != "" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchFrameDetachTearsDownView(t *testing.T) {
	r, err := NewRouter(context.Background(), values.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	v, conn := attachStubConn(t, r)

	r.dispatchFrame(v, conn, Frame{Type: FrameDetach})

	require.Eventually(t, func() bool {
		select {
		case <-conn.closedCh:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	_, ok := r.vm.GetView(v.Handle)
	require.False(t, ok)
}
