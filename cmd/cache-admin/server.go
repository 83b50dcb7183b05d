package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/dashboard-cache/pkg/cache"
	"github.com/Sternrassler/dashboard-cache/pkg/invalidation"
	"github.com/Sternrassler/dashboard-cache/pkg/metrics"
	"github.com/Sternrassler/dashboard-cache/pkg/monitor"
)

const (
	usersListMaxAge = 60 * time.Second
	usersListStale  = 120 * time.Second
	defaultLimit    = 10
	maxLimit        = 100
)

// server wires the cache layer to the admin HTTP routes.
type server struct {
	manager   *cache.Manager
	responses *cache.ResponseCache
	engine    *invalidation.Engine
	utils     *invalidation.Utils
	monitor   *monitor.Monitor
	users     *userStore
	configs   map[string]cache.Config
	logger    zerolog.Logger
}

func newServer(manager *cache.Manager, responses *cache.ResponseCache, engine *invalidation.Engine, mon *monitor.Monitor, users *userStore, logger zerolog.Logger) *server {
	return &server{
		manager:   manager,
		responses: responses,
		engine:    engine,
		utils:     invalidation.NewUtils(engine, "cache-admin"),
		monitor:   mon,
		users:     users,
		configs:   cache.DefaultConfigs(),
		logger:    logger,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.Handle("GET /api/cache/stats", s.monitor)
	mux.HandleFunc("GET /api/cache/invalidations", s.invalidationLog)
	mux.HandleFunc("POST /api/cache/invalidate", s.invalidate)
	mux.HandleFunc("DELETE /api/cache/{name}", s.clearCache)

	mux.HandleFunc("GET /api/users", s.listUsers)
	mux.Handle("GET /api/users/stats", s.responses.Middleware(cache.ResponseConfig{
		TTL:                  5 * time.Minute,
		StaleWhileRevalidate: 10 * time.Minute,
		Tags:                 []string{"users", "stats"},
	})(http.HandlerFunc(s.userStats)))
	mux.HandleFunc("GET /api/users/{id}", s.getUser)
	mux.HandleFunc("POST /api/users", s.createUser)
	mux.HandleFunc("PUT /api/users/{id}", s.updateUser)
	mux.HandleFunc("DELETE /api/users/{id}", s.deleteUser)

	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// listUsers serves the filtered users list through the usersList cache.
func (s *server) listUsers(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	page := queryInt(r, "page", 1)
	limit := min(queryInt(r, "limit", defaultLimit), maxLimit)

	key := cache.UsersListKey(map[string]string{"role": role}, page, limit)
	cfg := s.configs[cache.UsersListCache]
	s.monitor.RecordAccess(cache.UsersListCache, key)

	w.Header().Set(cache.HeaderCacheControl, cache.CacheControl(usersListMaxAge, usersListStale))
	if users, ok := cache.GetAs[[]User](s.manager, cache.UsersListCache, key, cfg); ok {
		w.Header().Set(cache.HeaderXCache, cache.CacheHit)
		s.writeJSON(w, http.StatusOK, users)
		return
	}

	all := s.users.List(role)
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	users := all[start:end]

	s.manager.Set(cache.UsersListCache, key, users, cfg)
	w.Header().Set(cache.HeaderXCache, cache.CacheMiss)
	s.writeJSON(w, http.StatusOK, users)
}

func (s *server) getUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := cache.UserKey(id)
	cfg := s.configs[cache.UsersCache]
	s.monitor.RecordAccess(cache.UsersCache, key)

	if u, ok := cache.GetAs[User](s.manager, cache.UsersCache, key, cfg); ok {
		w.Header().Set(cache.HeaderXCache, cache.CacheHit)
		s.writeJSON(w, http.StatusOK, u)
		return
	}

	u, err := s.users.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.manager.Set(cache.UsersCache, key, u, cfg)
	w.Header().Set(cache.HeaderXCache, cache.CacheMiss)
	s.writeJSON(w, http.StatusOK, u)
}

func (s *server) userStats(w http.ResponseWriter, r *http.Request) {
	key := cache.UserStatsKey(nil)
	cfg := s.configs[cache.UserStatsCache]

	stats, ok := cache.GetAs[map[string]int](s.manager, cache.UserStatsCache, key, cfg)
	if !ok {
		stats = s.users.Stats()
		s.manager.Set(cache.UserStatsCache, key, stats, cfg)
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *server) createUser(w http.ResponseWriter, r *http.Request) {
	var in User
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errInvalidUser, err))
		return
	}
	u, err := s.users.Create(in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidateUser(r, u.ID, invalidation.ActionCreate)
	s.writeJSON(w, http.StatusCreated, u)
}

func (s *server) updateUser(w http.ResponseWriter, r *http.Request) {
	var in User
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errInvalidUser, err))
		return
	}
	u, changed, err := s.users.Update(r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidateUser(r, u.ID, invalidation.ActionUpdate, changed...)
	s.writeJSON(w, http.StatusOK, u)
}

func (s *server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.users.Delete(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidateUser(r, id, invalidation.ActionDelete)
	w.WriteHeader(http.StatusNoContent)
}

// invalidateUser queues the invalidation after a successful mutation. A
// queue failure does not fail the request; the data change already happened.
func (s *server) invalidateUser(r *http.Request, id string, action invalidation.Action, fields ...string) {
	if err := s.utils.InvalidateUser(r.Context(), id, action, fields...); err != nil {
		s.logger.Error().
			Err(err).
			Str("entity_id", id).
			Str("action", string(action)).
			Msg("Failed to queue user invalidation")
	}
}

type invalidateRequest struct {
	Domain   invalidation.Domain `json:"domain"`
	Action   invalidation.Action `json:"action"`
	EntityID string              `json:"entity_id"`
	Tags     []string            `json:"tags"`
}

type invalidateResponse struct {
	Event             string `json:"event,omitempty"`
	TaggedInvalidated int    `json:"tagged_invalidated,omitempty"`
}

// invalidate applies an operator-triggered event synchronously, and
// optionally drops tagged responses.
func (s *server) invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var resp invalidateResponse
	if req.Domain != "" {
		ev := invalidation.Event{
			Domain:   req.Domain,
			Action:   req.Action,
			EntityID: req.EntityID,
			Source:   "operator",
		}
		if ev.Kind() == invalidation.KindUnknown {
			http.Error(w, "unknown event "+ev.Key(), http.StatusBadRequest)
			return
		}
		if err := s.engine.InvalidateImmediate(r.Context(), ev); err != nil {
			s.logger.Error().Err(err).Str("event", ev.Key()).Msg("Operator invalidation failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Event = ev.Key()
	}
	if len(req.Tags) > 0 {
		resp.TaggedInvalidated = s.responses.InvalidateByTags(req.Tags...)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) invalidationLog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Log(queryInt(r, "n", 50)))
}

func (s *server) clearCache(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.manager.Stats(name); !ok {
		http.Error(w, "unknown cache "+name, http.StatusNotFound)
		return
	}
	s.manager.Clear(name)
	s.logger.Info().Str("cache", name).Msg("Cache cleared by operator")
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, errInvalidUser):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}
