package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/keepmind9/guildbot/internal/features"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/sirupsen/logrus"
)

// AdminBackend is what the admin server reads and controls.
type AdminBackend interface {
	features.ModuleControl
	Status() Status
	Registry() *registry.Registry
}

// AdminServer serves health, status and module control over HTTP.
type AdminServer struct {
	addr       string
	backend    AdminBackend
	router     chi.Router
	httpServer *http.Server
}

// NewAdminServer builds the router; Start begins listening.
func NewAdminServer(addr string, backend AdminBackend) *AdminServer {
	s := &AdminServer{addr: addr, backend: backend}
	s.router = s.buildRouter()
	return s
}

func (s *AdminServer) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	r.Get("/handlers", s.handleHandlers)

	r.Route("/modules/{module}", func(r chi.Router) {
		r.Post("/", s.handleModule("loaded", s.backend.LoadModule))
		r.Delete("/", s.handleModule("unloaded", s.backend.UnloadModule))
		r.Post("/reload", s.handleModule("reloaded", s.backend.ReloadModule))
	})

	return r
}

// Handler exposes the router for tests.
func (s *AdminServer) Handler() http.Handler { return s.router }

// Start listens until Shutdown. It returns nil after a graceful shutdown.
func (s *AdminServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("addr", s.addr).Info("admin-server-listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Status())
}

// HandlerInfo describes one registration.
type HandlerInfo struct {
	Name     string   `json:"name"`
	Module   string   `json:"module"`
	Class    string   `json:"class"`
	Trigger  string   `json:"trigger"`
	Aliases  []string `json:"aliases,omitempty"`
	Priority int      `json:"priority"`
	Cooldown string   `json:"cooldown,omitempty"`
	Slash    bool     `json:"slash,omitempty"`
}

func (s *AdminServer) handleHandlers(w http.ResponseWriter, r *http.Request) {
	snap := s.backend.Registry().Current()
	module := r.URL.Query().Get("module")

	out := make([]HandlerInfo, 0, snap.Len())
	for _, reg := range snap.All() {
		if module != "" && reg.Module != module {
			continue
		}
		out = append(out, describe(reg))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generation": snap.Generation,
		"handlers":   out,
	})
}

func describe(reg *registry.Registration) HandlerInfo {
	info := HandlerInfo{
		Name:     reg.Name,
		Module:   reg.Module,
		Class:    reg.Class.String(),
		Priority: reg.Priority,
		Slash:    reg.Slash,
	}
	switch reg.Trigger.Kind {
	case registry.TriggerCommand:
		info.Trigger = "command:" + reg.Trigger.Name
		info.Aliases = reg.Trigger.Aliases
	case registry.TriggerKeywords:
		if len(reg.Trigger.Words) > 0 {
			info.Trigger = "keywords:" + strings.Join(reg.Trigger.Words, ",")
		} else {
			info.Trigger = "predicate"
		}
	case registry.TriggerEvents:
		kinds := make([]string, len(reg.Trigger.Events))
		for i, k := range reg.Trigger.Events {
			kinds[i] = k.String()
		}
		info.Trigger = "events:" + strings.Join(kinds, ",")
	}
	if reg.Cooldown.Max > 0 {
		info.Cooldown = fmt.Sprintf("%d/%s", reg.Cooldown.Max, reg.Cooldown.Window)
	}
	return info
}

func (s *AdminServer) handleModule(action string, op func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.ToLower(chi.URLParam(r, "module"))
		if !isModule(name) {
			writeError(w, http.StatusNotFound, "unknown module "+name)
			return
		}
		if action == "unloaded" && name == features.ModuleAdmin {
			writeError(w, http.StatusBadRequest, "the admin module cannot be unloaded")
			return
		}

		if err := op(name); err != nil {
			var dup *registry.DuplicateNameError
			var missing *registry.NotFoundError
			switch {
			case errors.As(err, &dup):
				writeError(w, http.StatusConflict, "module "+name+" is already loaded")
			case errors.As(err, &missing):
				writeError(w, http.StatusNotFound, "module "+name+" is not loaded")
			default:
				logger.WithFields(logrus.Fields{
					"module": name,
					"action": action,
					"error":  err,
				}).Error("admin-module-action-failed")
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}

		logger.WithFields(logrus.Fields{
			"module": name,
			"action": action,
		}).Info("admin-module-action")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"module":     name,
			"action":     action,
			"generation": s.backend.Registry().Current().Generation,
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("admin-request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
