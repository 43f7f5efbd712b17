package hub

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chatcast/connectivity"
	"github.com/hazyhaar/chatcast/hub/internal/store"
	"github.com/hazyhaar/chatcast/idgen"
	"github.com/hazyhaar/chatcast/kit"
	"github.com/hazyhaar/chatcast/siteconfig"
)

const maxBody = 1 << 20

// Handler returns the HTTP API. mcpSrv may be nil; otherwise it is served
// at /mcp over streamable HTTP.
func (h *Hub) Handler(mcpSrv *mcp.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestContext)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		open := 0
		for _, t := range h.Targets() {
			if t.Open {
				open++
			}
		}
		writeJSON(w, 200, map[string]any{"status": "ok", "open_targets": open, "feed_clients": h.feed.Clients()})
	})

	r.Post("/api/message", func(w http.ResponseWriter, r *http.Request) {
		var m Message
		if !decodeBody(w, r, &m) {
			return
		}
		writeJSON(w, 200, h.Dispatch(r.Context(), m))
	})

	r.Post("/api/send", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		b, err := h.SendToAll(r.Context(), req.Text)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, 200, b)
	})

	r.Route("/api/targets", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, h.Targets())
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				URL     string `json:"url"`
				Enabled *bool  `json:"enabled"`
			}
			if !decodeBody(w, r, &req) {
				return
			}
			enabled := req.Enabled == nil || *req.Enabled
			st, err := h.Register(r.Context(), Target{ID: req.ID, Name: req.Name, URL: req.URL, Enabled: enabled})
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 201, st)
		})
		r.Post("/open", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, h.OpenAll(r.Context()))
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if err := h.Remove(r.Context(), id); err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, map[string]string{"id": id, "status": "removed"})
		})
		r.Post("/{id}/send", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Text string `json:"text"`
			}
			if !decodeBody(w, r, &req) {
				return
			}
			res, err := h.Send(r.Context(), chi.URLParam(r, "id"), req.Text)
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, res)
		})
		r.Get("/{id}/probe", func(w http.ResponseWriter, r *http.Request) {
			d, err := h.Probe(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, d)
		})
	})

	r.Route("/api/sites", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			sites, err := h.Sites(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, sites)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			c, err := h.Site(r.Context(), id)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if c == nil {
				writeJSON(w, 404, map[string]string{"error": "no configuration for " + id})
				return
			}
			writeJSON(w, 200, c)
		})
		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			var c siteconfig.SiteConfig
			if !decodeBody(w, r, &c) {
				return
			}
			c.ID = chi.URLParam(r, "id")
			warnings, err := h.PutSite(r.Context(), &c)
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, map[string]any{"site": c, "warnings": warnings})
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			ok, err := h.DeleteSite(r.Context(), id)
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			if !ok {
				writeJSON(w, 404, map[string]string{"error": "no stored configuration for " + id})
				return
			}
			writeJSON(w, 200, map[string]string{"id": id, "status": "deleted"})
		})
	})

	r.Get("/api/attempts", func(w http.ResponseWriter, r *http.Request) {
		if h.store == nil {
			writeError(w, 501, ErrNoStore)
			return
		}
		q := r.URL.Query()
		if q.Get("stats") != "" {
			stats, err := h.store.Stats(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, stats)
			return
		}
		list, err := h.store.ListAttempts(r.Context(), store.AttemptFilter{
			TargetID:   q.Get("target"),
			FailedOnly: q.Get("failed") == "true",
			Limit:      queryInt(r, "limit", 50),
		})
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, list)
	})

	r.Post("/api/call/{service}", func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			writeError(w, 400, err)
			return
		}
		out, err := h.router.Call(r.Context(), chi.URLParam(r, "service"), payload)
		if err != nil {
			var nf *connectivity.ErrServiceNotFound
			if errors.As(err, &nf) {
				writeError(w, 404, err)
			} else {
				writeError(w, 502, err)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if len(out) == 0 {
			w.WriteHeader(204)
			return
		}
		w.Write(out)
	})

	if h.store != nil {
		h.mountRoutesAdmin(r, connectivity.NewAdmin(h.store.DB))
	}

	r.Get("/ws", h.feed.ServeHTTP)

	if mcpSrv != nil {
		mh := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		r.Handle("/mcp", mh)
		r.Handle("/mcp/*", mh)
	}
	return r
}

func (h *Hub) mountRoutesAdmin(r chi.Router, admin *connectivity.Admin) {
	r.Route("/api/routes", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			routes, err := admin.ListRoutes(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, map[string]any{"routes": routes, "services": h.router.Services()})
		})
		r.Get("/{service}", func(w http.ResponseWriter, r *http.Request) {
			route, err := admin.GetRoute(r.Context(), chi.URLParam(r, "service"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if route == nil {
				writeError(w, 404, errors.New("no route for service"))
				return
			}
			writeJSON(w, 200, route)
		})
		r.Put("/{service}", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Strategy string          `json:"strategy"`
				Endpoint string          `json:"endpoint"`
				Config   json.RawMessage `json:"config"`
			}
			if !decodeBody(w, r, &req) {
				return
			}
			svc := chi.URLParam(r, "service")
			if err := admin.SetRoute(r.Context(), svc, req.Strategy, req.Endpoint, req.Config); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := h.router.Reload(r.Context(), h.store.DB); err != nil {
				h.logger.Warn("hub: route reload failed", "error", err)
			}
			writeJSON(w, 200, map[string]string{"service": svc, "status": "updated"})
		})
		r.Delete("/{service}", func(w http.ResponseWriter, r *http.Request) {
			svc := chi.URLParam(r, "service")
			if route, err := admin.GetRoute(r.Context(), svc); err == nil && route == nil {
				writeError(w, 404, errors.New("no route for service"))
				return
			}
			if err := admin.DeleteRoute(r.Context(), svc); err != nil {
				writeError(w, 500, err)
				return
			}
			if err := h.router.Reload(r.Context(), h.store.DB); err != nil {
				h.logger.Warn("hub: route reload failed", "error", err)
			}
			writeJSON(w, 200, map[string]string{"service": svc, "status": "deleted"})
		})
	})
}

var newRequestID = idgen.Prefixed("req_", idgen.Default)

func (h *Hub) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, id)
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, 400, errors.New("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

func statusOf(err error) int {
	var nf *connectivity.ErrServiceNotFound
	switch {
	case errors.Is(err, ErrUnknownTarget), errors.As(err, &nf):
		return 404
	case errors.Is(err, ErrNotOpen):
		return 409
	case errors.Is(err, ErrNoStore):
		return 501
	default:
		// Validation errors from Register and PutSite.
		return 400
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
