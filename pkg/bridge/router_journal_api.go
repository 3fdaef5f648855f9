package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/journal"
)

func (r *Router) registerJournalAPIHandlers(mux *http.ServeMux) {
	logger := log.With().Str("component", "bridge").Logger()

	mux.HandleFunc("/api/journal/views", func(w http.ResponseWriter, r0 *http.Request) {
		if r0.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.journalStore == nil {
			http.Error(w, "journal store not enabled", http.StatusNotFound)
			return
		}

		limit := 0
		if s := strings.TrimSpace(r0.URL.Query().Get("limit")); s != "" {
			var v int
			_, _ = fmt.Sscanf(s, "%d", &v)
			if v > 0 {
				limit = v
			}
		}
		var sinceMs int64
		if s := strings.TrimSpace(r0.URL.Query().Get("since_ms")); s != "" {
			var v int64
			_, _ = fmt.Sscanf(s, "%d", &v)
			if v > 0 {
				sinceMs = v
			}
		}

		items, err := r.journalStore.ListViews(r0.Context(), limit, sinceMs)
		if err != nil {
			logger.Error().Err(err).Msg("journal views query failed")
			http.Error(w, "journal views query failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"since_ms": sinceMs,
			"items":    items,
		})
	})

	mux.HandleFunc("/api/journal/events/", func(w http.ResponseWriter, r0 *http.Request) {
		if r.journalStore == nil {
			http.Error(w, "journal store not enabled", http.StatusNotFound)
			return
		}

		raw := strings.Trim(strings.TrimPrefix(r0.URL.Path, "/api/journal/events/"), "/")
		if raw == "" {
			http.Error(w, "missing view handle", http.StatusBadRequest)
			return
		}
		handle, err := parseViewHandle(raw)
		if err != nil {
			http.Error(w, "invalid view handle", http.StatusBadRequest)
			return
		}

		switch r0.Method {
		case http.MethodGet:
			var sinceID int64
			if s := strings.TrimSpace(r0.URL.Query().Get("since_id")); s != "" {
				var v int64
				_, _ = fmt.Sscanf(s, "%d", &v)
				if v > 0 {
					sinceID = v
				}
			}
			limit := 200
			if s := strings.TrimSpace(r0.URL.Query().Get("limit")); s != "" {
				var v int
				_, _ = fmt.Sscanf(s, "%d", &v)
				if v > 0 {
					limit = v
				}
			}
			typeFilter := strings.TrimSpace(r0.URL.Query().Get("type"))

			recs, err := r.journalStore.Events(r0.Context(), handle, sinceID, limit)
			if err != nil {
				logger.Error().Err(err).Int64("view", int64(handle)).Msg("journal events query failed")
				http.Error(w, "journal events query failed", http.StatusInternalServerError)
				return
			}
			if typeFilter != "" {
				filtered := make([]journal.Record, 0, len(recs))
				for _, rec := range recs {
					if rec.Type == typeFilter {
						filtered = append(filtered, rec)
					}
				}
				recs = filtered
			}

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"view":     int64(handle),
				"since_id": sinceID,
				"type":     typeFilter,
				"items":    recs,
			})

		case http.MethodDelete:
			purged, err := r.journalStore.Purge(r0.Context(), handle)
			if err != nil {
				logger.Error().Err(err).Int64("view", int64(handle)).Msg("journal purge failed")
				http.Error(w, "journal purge failed", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"view":   int64(handle),
				"purged": purged,
			})

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
