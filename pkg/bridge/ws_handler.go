package bridge

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/relay"
)

// wsHandler upgrades ?view=<handle> requests and attaches the connection to
// the view's pool. Inbound frames drive the relay; outbound traffic is the
// mirrored event stream plus eval replies.
func (r *Router) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rawView := strings.TrimSpace(req.URL.Query().Get("view"))
		if rawView == "" {
			http.Error(w, "missing view", http.StatusBadRequest)
			return
		}
		handle, err := parseViewHandle(rawView)
		if err != nil {
			http.Error(w, "invalid view", http.StatusBadRequest)
			return
		}
		if _, ok := r.vm.GetView(handle); !ok {
			http.Error(w, "view not found", http.StatusNotFound)
			return
		}

		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		v, err := r.vm.AttachConn(handle, conn)
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"failed to attach websocket"}`))
			_ = conn.Close()
			return
		}
		go r.readFrames(v, conn)
	}
}

// readFrames is the per-connection read pump. It exits when the client goes
// away or the pool closes the connection underneath it.
func (r *Router) readFrames(v *View, conn *websocket.Conn) {
	logger := log.With().Str("component", "bridge").Int64("view", int64(v.Handle)).Logger()
	defer v.Pool().Remove(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("ws read pump closed")
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			v.Pool().SendToOne(conn, errorReply("", "", errors.Wrap(err, "could not decode frame")))
			continue
		}
		r.dispatchFrame(v, conn, frame)
	}
}

func (r *Router) dispatchFrame(v *View, conn wsConn, frame Frame) {
	switch frame.Type {
	case FrameUpdate:
		if err := r.vm.Update(v.Handle, frame.Props); err != nil {
			v.Pool().SendToOne(conn, errorReply(frame.ID, frame.Type, err))
		}
	case FrameCommit:
		if err := r.vm.Commit(r.baseCtx, v.Handle); err != nil {
			v.Pool().SendToOne(conn, errorReply(frame.ID, frame.Type, err))
		}
	case FrameCommand:
		if err := r.vm.Command(r.baseCtx, v.Handle, relay.CommandID(frame.Opcode), frame.Args); err != nil {
			v.Pool().SendToOne(conn, errorReply(frame.ID, frame.Type, err))
		}
	case FrameEval:
		// Evaluation can block on the page; keep the read pump responsive.
		go func() {
			value, err := r.vm.Eval(r.baseCtx, v.Handle, frame.Script)
			v.Pool().SendToOne(conn, evalReply(frame.ID, value, err))
		}()
	case FrameDetach:
		if err := r.vm.DetachView(v.Handle); err != nil {
			v.Pool().SendToOne(conn, errorReply(frame.ID, frame.Type, err))
		}
	default:
		v.Pool().SendToOne(conn, errorReply(frame.ID, frame.Type, errors.Errorf("unknown frame type %q", frame.Type)))
	}
}
