package bridge

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/events"
	"github.com/go-go-golems/finestra/pkg/relay"
)

type viewSummary struct {
	View          int64  `json:"view"`
	URI           string `json:"uri"`
	Title         string `json:"title,omitempty"`
	SourceKind    string `json:"source_kind"`
	SourcePending bool   `json:"source_pending"`
	ActiveSockets int    `json:"active_sockets"`
	StreamRunning bool   `json:"stream_running"`
}

func parseViewHandle(raw string) (events.ViewHandle, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, relay.ErrViewNotFound
	}
	return events.ViewHandle(v), nil
}

// httpStatusForViewError maps relay errors onto HTTP statuses. Unknown
// errors stay internal.
func httpStatusForViewError(err error) int {
	switch {
	case stderrors.Is(err, relay.ErrViewNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, relay.ErrViewAlreadyAttached):
		return http.StatusConflict
	case stderrors.Is(err, relay.ErrMessagingDisabled):
		return http.StatusConflict
	case stderrors.Is(err, relay.ErrUnknownCommand),
		stderrors.Is(err, relay.ErrMissingArgument),
		stderrors.Is(err, relay.ErrUnsupportedMethod):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) registerViewAPIHandlers(mux *http.ServeMux) {
	logger := log.With().Str("component", "bridge").Logger()

	mux.HandleFunc("/api/views", func(w http.ResponseWriter, r0 *http.Request) {
		switch r0.Method {
		case http.MethodGet:
			items := make([]viewSummary, 0)
			for _, handle := range r.vm.Handles() {
				st, err := r.vm.Status(handle)
				if err != nil {
					continue
				}
				item := viewSummary{
					View:          int64(handle),
					URI:           st.URI,
					Title:         st.Title,
					SourceKind:    st.SourceKind,
					SourcePending: st.SourcePending,
				}
				if v, ok := r.vm.GetView(handle); ok {
					item.ActiveSockets = v.Pool().Count()
					item.StreamRunning = v.isReading()
				}
				items = append(items, item)
			}
			sort.Slice(items, func(i, j int) bool { return items[i].View < items[j].View })

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": items,
			})

		case http.MethodPost:
			var body struct {
				Props *relay.Props `json:"props"`
			}
			if r0.Body != nil {
				// An empty body is a plain create without initial props.
				if err := json.NewDecoder(r0.Body).Decode(&body); err != nil && !stderrors.Is(err, io.EOF) {
					http.Error(w, "bad request", http.StatusBadRequest)
					return
				}
			}

			v, err := r.vm.CreateView(body.Props)
			if err != nil {
				logger.Error().Err(err).Msg("view create failed")
				http.Error(w, "view create failed", httpStatusForViewError(err))
				return
			}
			// Creation is one update batch; settle it right away.
			commitErr := r.vm.Commit(r0.Context(), v.Handle)
			if commitErr != nil {
				logger.Warn().Err(commitErr).Int64("view", int64(v.Handle)).Msg("initial commit failed")
			}

			resp := map[string]any{
				"view": int64(v.Handle),
			}
			if commitErr != nil {
				resp["commit_error"] = commitErr.Error()
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(resp)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/views/", func(w http.ResponseWriter, r0 *http.Request) {
		raw := strings.Trim(strings.TrimPrefix(r0.URL.Path, "/api/views/"), "/")
		if raw == "" {
			http.Error(w, "missing view handle", http.StatusBadRequest)
			return
		}
		parts := strings.SplitN(raw, "/", 2)
		handle, err := parseViewHandle(parts[0])
		if err != nil {
			http.Error(w, "invalid view handle", http.StatusBadRequest)
			return
		}
		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}

		switch {
		case action == "" && r0.Method == http.MethodGet:
			r.handleViewStatus(w, handle)
		case action == "" && r0.Method == http.MethodDelete:
			r.handleViewDetach(w, handle)
		case action == "detach" && r0.Method == http.MethodPost:
			r.handleViewDetach(w, handle)
		case action == "update" && r0.Method == http.MethodPost:
			r.handleViewUpdate(w, r0, handle)
		case action == "commit" && r0.Method == http.MethodPost:
			r.handleViewCommit(w, r0, handle)
		case action == "command" && r0.Method == http.MethodPost:
			r.handleViewCommand(w, r0, handle)
		case action == "eval" && r0.Method == http.MethodPost:
			r.handleViewEval(w, r0, handle)
		case action != "" && action != "detach" && action != "update" && action != "commit" && action != "command" && action != "eval":
			http.Error(w, "unknown view action", http.StatusNotFound)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func (r *Router) handleViewStatus(w http.ResponseWriter, handle events.ViewHandle) {
	st, err := r.vm.Status(handle)
	if err != nil {
		http.Error(w, "view not found", httpStatusForViewError(err))
		return
	}
	activeSockets := 0
	streamRunning := false
	if v, ok := r.vm.GetView(handle); ok {
		activeSockets = v.Pool().Count()
		streamRunning = v.isReading()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"view":           int64(handle),
		"status":         st,
		"active_sockets": activeSockets,
		"stream_running": streamRunning,
	})
}

func (r *Router) handleViewDetach(w http.ResponseWriter, handle events.ViewHandle) {
	if err := r.vm.DetachView(handle); err != nil {
		http.Error(w, "view not found", httpStatusForViewError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"view":     int64(handle),
		"detached": true,
	})
}

func (r *Router) handleViewUpdate(w http.ResponseWriter, r0 *http.Request, handle events.ViewHandle) {
	props := &relay.Props{}
	if err := json.NewDecoder(r0.Body).Decode(props); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := r.vm.Update(handle, props); err != nil {
		http.Error(w, err.Error(), httpStatusForViewError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"view": int64(handle),
		"ok":   true,
	})
}

func (r *Router) handleViewCommit(w http.ResponseWriter, r0 *http.Request, handle events.ViewHandle) {
	if err := r.vm.Commit(r0.Context(), handle); err != nil {
		http.Error(w, err.Error(), httpStatusForViewError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"view":      int64(handle),
		"committed": true,
	})
}

func (r *Router) handleViewCommand(w http.ResponseWriter, r0 *http.Request, handle events.ViewHandle) {
	var body struct {
		Opcode int      `json:"opcode"`
		Name   string   `json:"name"`
		Args   []string `json:"args"`
	}
	if err := json.NewDecoder(r0.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	opcode := relay.CommandID(body.Opcode)
	if body.Opcode == 0 {
		name := strings.TrimSpace(body.Name)
		if name == "" {
			http.Error(w, "missing opcode or name", http.StatusBadRequest)
			return
		}
		id, ok := relay.CommandFromName(name)
		if !ok {
			http.Error(w, "unknown command name", http.StatusBadRequest)
			return
		}
		opcode = id
	}

	if err := r.vm.Command(r0.Context(), handle, opcode, body.Args); err != nil {
		http.Error(w, err.Error(), httpStatusForViewError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"view":    int64(handle),
		"command": opcode.String(),
		"ok":      true,
	})
}

func (r *Router) handleViewEval(w http.ResponseWriter, r0 *http.Request, handle events.ViewHandle) {
	logger := log.With().Str("component", "bridge").Logger()

	var body struct {
		Script string `json:"script"`
	}
	if err := json.NewDecoder(r0.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Script) == "" {
		http.Error(w, "missing script", http.StatusBadRequest)
		return
	}

	result, err := r.vm.Eval(r0.Context(), handle, body.Script)
	if err != nil {
		status := httpStatusForViewError(err)
		if status == http.StatusInternalServerError {
			// Script failures are request-level errors, not server faults.
			status = http.StatusUnprocessableEntity
		}
		logger.Debug().Err(err).Int64("view", int64(handle)).Msg("script eval failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"view":  int64(handle),
			"error": err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"view":   int64(handle),
		"result": result,
	})
}
