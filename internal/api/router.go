package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentsim/society/internal/db"
	"github.com/agentsim/society/internal/emotion"
	"github.com/agentsim/society/internal/experiment"
	"github.com/agentsim/society/internal/journal"
	mw "github.com/agentsim/society/internal/middleware"
	"github.com/agentsim/society/internal/persona"
	"github.com/agentsim/society/internal/relation"
	"github.com/agentsim/society/internal/sim"
	"github.com/agentsim/society/internal/social"
	"github.com/agentsim/society/internal/validation"
)

// run tracks one in-flight simulation.
type run struct {
	cancel context.CancelFunc

	mu          sync.Mutex
	currentTick int
	message     string
	done        bool
}

func (r *run) update(tick int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tick >= 0 {
		r.currentTick = tick
	}
	if message != "" {
		r.message = message
	}
}

func (r *run) status() (int, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentTick, r.message, r.done
}

// Server handles HTTP requests: experiment lifecycle, run control and
// relation analytics.
type Server struct {
	router      chi.Router
	db          *db.DB
	manager     *experiment.Manager
	gen         sim.Generator
	rateLimiter *mw.RateLimiter

	runsMu sync.RWMutex
	runs   map[string]*run

	relMu   sync.Mutex
	learned map[string]*relation.Manager
}

// NewServer creates a new API server. gen must satisfy both the scheduler
// and the persona generator (any *agents.Generator does).
func NewServer(database *db.DB, manager *experiment.Manager, gen sim.Generator) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		db:          database,
		manager:     manager,
		gen:         gen,
		rateLimiter: mw.NewRateLimiter(),
		runs:        make(map[string]*run),
		learned:     make(map[string]*relation.Manager),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.SetHeader("Content-Type", "application/json"))
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(mw.SecurityHeadersMiddleware)
	s.router.Use(mw.MaxBodySizeMiddleware(1024 * 1024)) // 1MB max

	// Public read endpoints
	s.router.Get("/api/experiments", s.listExperiments)
	s.router.Get("/api/experiments/{slug}", s.getExperiment)
	s.router.Get("/api/experiments/{slug}/status", s.getStatus)

	// Protected endpoints
	s.router.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware)
		r.Post("/api/experiments", s.createExperiment)
		r.Delete("/api/experiments/{slug}", s.deleteExperiment)
		r.Get("/api/experiments/{slug}/logs", s.getLogs)
		r.Post("/api/experiments/{slug}/start", s.startRun)
		r.Post("/api/experiments/{slug}/stop", s.stopRun)
		r.Get("/api/experiments/{slug}/history", s.getHistory)
		r.Get("/api/experiments/{slug}/encounters", s.getEncounters)
		r.Post("/api/experiments/{slug}/interactions", s.recordInteraction)
		r.Get("/api/experiments/{slug}/relations", s.getRelations)
		r.Get("/api/experiments/{slug}/relations/{agentID}", s.getAgentRelations)
		r.Post("/api/experiments/{slug}/relations/normalize", s.normalizeRelations)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response wraps API responses
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response; 5xx details never leave the server.
func writeError(w http.ResponseWriter, status int, message string) {
	if status >= 500 {
		message = "Internal server error"
	}
	writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

func (s *Server) slugParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	slug := chi.URLParam(r, "slug")
	if err := validation.ValidateSlug(slug); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid experiment slug")
		return "", false
	}
	return slug, true
}

// createExperiment builds a new experiment directory and registers it.
func (s *Server) createExperiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string               `json:"name"`
		EnvHint           string               `json:"env_hint"`
		Count             int                  `json:"count"`
		RelationInfluence float64              `json:"relation_influence"`
		Constraints       *persona.Constraints `json:"constraints,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.EnvHint == "" {
		writeError(w, http.StatusBadRequest, "Missing name or env_hint")
		return
	}
	if err := validation.ValidateAgentCount(req.Count); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RelationInfluence == 0 {
		req.RelationInfluence = 0.8
	}
	if err := validation.ValidateRelationInfluence(req.RelationInfluence); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := s.manager.Create(r.Context(), req.Name, req.EnvHint, req.Count, req.RelationInfluence, req.Constraints)
	if err != nil {
		slog.Error("create experiment failed", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create experiment")
		return
	}

	if err := s.db.SaveExperiment(meta.Slug, meta.Name, meta.RelationInfluence, meta.Count); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to register experiment")
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    meta,
	})
}

// listExperiments lists all experiments, newest first.
func (s *Server) listExperiments(w http.ResponseWriter, r *http.Request) {
	metas, err := s.manager.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list experiments")
		return
	}

	type info struct {
		*experiment.Meta
		Running bool `json:"running"`
	}
	out := make([]info, 0, len(metas))
	for _, m := range metas {
		out = append(out, info{Meta: m, Running: s.isRunning(m.Slug)})
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    out,
	})
}

// getExperiment returns everything about one experiment.
func (s *Server) getExperiment(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	meta, env, personas, err := s.manager.LoadWorld(slug)
	if err != nil {
		writeError(w, http.StatusNotFound, "Experiment not found")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"meta":        meta,
			"environment": env,
			"agents":      personas,
			"running":     s.isRunning(slug),
		},
	})
}

// deleteExperiment stops any running simulation and removes the
// experiment directory and database rows.
func (s *Server) deleteExperiment(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	s.runsMu.Lock()
	if active, exists := s.runs[slug]; exists {
		active.cancel()
		delete(s.runs, slug)
	}
	s.runsMu.Unlock()

	if err := s.manager.Delete(slug); err != nil {
		writeError(w, http.StatusNotFound, "Experiment not found")
		return
	}
	if err := s.db.DeleteExperiment(slug); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete experiment")
		return
	}
	s.relMu.Lock()
	delete(s.learned, slug)
	s.relMu.Unlock()

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    "Experiment deleted",
	})
}

// getLogs reads journal entries: all of one agent's records, or the
// latest record of every agent.
func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}
	if _, err := s.manager.Load(slug); err != nil {
		writeError(w, http.StatusNotFound, "Experiment not found")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	reader := journal.NewReader(journal.ForExperiment(s.manager.Dir(slug)))

	agentName := r.URL.Query().Get("agent_name")
	var (
		logs    []map[string]any
		readErr error
	)
	if agentName != "" {
		logs, readErr = reader.AgentTail(agentName, limit)
	} else {
		logs, readErr = reader.LatestPerAgent()
	}
	if readErr != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read logs")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]any{"logs": logs},
	})
}

// startRun launches a background simulation for an experiment.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Temperature         float64 `json:"temperature"`
		MaxTokens           int     `json:"max_tokens"`
		IntervalSeconds     float64 `json:"interval"`
		MaxTicks            int     `json:"max_ticks"`
		StopCondition       string  `json:"stop_condition"`
		UseLearnedRelations bool    `json:"use_learned_relations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	meta, env, personas, err := s.manager.LoadWorld(slug)
	if err != nil {
		writeError(w, http.StatusNotFound, "Experiment not found")
		return
	}
	if len(personas) == 0 {
		writeError(w, http.StatusBadRequest, "Experiment has no agents")
		return
	}

	cfg := sim.DefaultConfig()
	cfg.RelationInfluence = meta.RelationInfluence
	if req.Temperature > 0 {
		cfg.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		cfg.MaxTokens = req.MaxTokens
	}
	if req.MaxTicks > 0 {
		cfg.Steps = req.MaxTicks
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stop, err := sim.CompileStopCondition(req.StopCondition)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stop condition")
		return
	}

	interval := 10 * time.Second
	if req.IntervalSeconds > 0 {
		interval = time.Duration(req.IntervalSeconds * float64(time.Second))
	}

	var pairs sim.PairSourceFactory
	if req.UseLearnedRelations {
		mgr, err := s.learnedManager(slug)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load relation graph")
			return
		}
		pairs = func([]*sim.AgentPersona) social.PairSource {
			return social.LearnedSource{Graph: mgr.Graph()}
		}
	}

	s.runsMu.Lock()
	if _, exists := s.runs[slug]; exists {
		s.runsMu.Unlock()
		writeError(w, http.StatusConflict, "Simulation already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	active := &run{cancel: cancel, message: "starting"}
	s.runs[slug] = active
	s.runsMu.Unlock()

	j := journal.New(journal.ForExperiment(s.manager.Dir(slug)))
	scheduler := sim.NewScheduler(personas, env, cfg, s.gen, j, pairs)
	runner := sim.NewRunner(scheduler, cfg, interval, stop)
	runner.OnTick = func(tick int, outputs []*sim.TickOutput, encounters []*sim.Encounter) error {
		active.update(tick, "running")
		if err := s.db.SaveTickOutputs(slug, outputs); err != nil {
			return err
		}
		for _, enc := range encounters {
			if err := s.db.SaveEncounter(slug, enc.Tick, enc.Location, enc.Participants, enc.Notes); err != nil {
				return err
			}
		}
		return nil
	}

	go func() {
		defer func() {
			time.AfterFunc(5*time.Second, func() {
				s.runsMu.Lock()
				if s.runs[slug] == active {
					delete(s.runs, slug)
				}
				s.runsMu.Unlock()
			})
		}()

		_, err := runner.Run(ctx)
		switch {
		case err == nil:
			active.update(-1, "completed")
		case errors.Is(err, context.Canceled):
			active.update(-1, "stopped")
		default:
			slog.Error("simulation failed", "slug", slug, "error", err)
			active.update(-1, "error: "+err.Error())
		}
		active.mu.Lock()
		active.done = true
		active.mu.Unlock()
	}()

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    "Simulation started",
	})
}

// stopRun cancels a running simulation.
func (s *Server) stopRun(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	s.runsMu.RLock()
	active, exists := s.runs[slug]
	s.runsMu.RUnlock()
	if !exists {
		writeError(w, http.StatusBadRequest, "No running simulation")
		return
	}

	active.cancel()
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    "Stopping simulation",
	})
}

// getStatus reports run progress.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	s.runsMu.RLock()
	active, exists := s.runs[slug]
	s.runsMu.RUnlock()
	if !exists {
		writeJSON(w, http.StatusOK, Response{
			Success: true,
			Data:    map[string]any{"running": false, "current_tick": 0, "message": "not running"},
		})
		return
	}

	tick, message, done := active.status()
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]any{"running": !done, "current_tick": tick, "message": message},
	})
}

// getHistory returns persisted tick outputs, optionally for one agent.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	agentID := r.URL.Query().Get("agent_id")
	if agentID != "" {
		if err := validation.ValidateAgentID(agentID); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid agent ID")
			return
		}
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	outputs, err := s.db.GetTickOutputs(slug, agentID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    outputs,
	})
}

// getEncounters returns persisted encounter events.
func (s *Server) getEncounters(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	encounters, err := s.db.GetEncounters(slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load encounters")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    encounters,
	})
}

// learnedManager returns the evolving relation manager for an experiment,
// restoring it from the latest database snapshot or seeding it from the
// declared relations.
func (s *Server) learnedManager(slug string) (*relation.Manager, error) {
	s.relMu.Lock()
	defer s.relMu.Unlock()

	if mgr, ok := s.learned[slug]; ok {
		return mgr, nil
	}

	mgr := relation.NewManager()
	if _, doc, err := s.db.LoadLatestRelationSnapshot(slug); err == nil {
		mgr.Graph().Import(*doc)
	} else if errors.Is(err, sql.ErrNoRows) {
		_, _, personas, loadErr := s.manager.LoadWorld(slug)
		if loadErr != nil {
			return nil, loadErr
		}
		decls := make([]relation.AgentDecl, len(personas))
		for i, p := range personas {
			decls[i] = relation.AgentDecl{ID: p.ID, Relations: p.Relations}
		}
		mgr.InitializeFromAgents(decls)
	} else {
		return nil, err
	}

	s.learned[slug] = mgr
	return mgr, nil
}

func (s *Server) snapshotRelations(slug string, mgr *relation.Manager) error {
	doc := mgr.Graph().Export()
	tick := 0
	s.runsMu.RLock()
	if active, ok := s.runs[slug]; ok {
		tick, _, _ = active.status()
	}
	s.runsMu.RUnlock()
	return s.db.SaveRelationSnapshot(slug, tick, &doc)
}

// recordInteraction feeds one interaction event into the evolving
// relation graph. Emotions are given as template names with optional
// context text.
func (s *Server) recordInteraction(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	var req struct {
		From        string   `json:"from"`
		To          string   `json:"to"`
		EventType   string   `json:"event_type"`
		Context     string   `json:"context"`
		FromEmotion string   `json:"from_emotion,omitempty"`
		ToEmotion   string   `json:"to_emotion,omitempty"`
		ImpactFrom  *float64 `json:"impact_from,omitempty"`
		ImpactTo    *float64 `json:"impact_to,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.From == "" || req.To == "" || req.From == req.To {
		writeError(w, http.StatusBadRequest, "Invalid agent pair")
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "Missing event_type")
		return
	}

	var custom *relation.CustomImpact
	if req.ImpactFrom != nil || req.ImpactTo != nil {
		custom = &relation.CustomImpact{}
		if req.ImpactFrom != nil {
			if err := validation.ValidateInteractionImpact(*req.ImpactFrom); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			custom.From = *req.ImpactFrom
		}
		if req.ImpactTo != nil {
			if err := validation.ValidateInteractionImpact(*req.ImpactTo); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			custom.To = *req.ImpactTo
		}
	}

	var fromEmotion, toEmotion *emotion.Profile
	if req.FromEmotion != "" {
		p := emotion.FromTemplate(req.FromEmotion, req.Context)
		fromEmotion = &p
	}
	if req.ToEmotion != "" {
		p := emotion.FromTemplate(req.ToEmotion, req.Context)
		toEmotion = &p
	}

	mgr, err := s.learnedManager(slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load relation graph")
		return
	}
	mgr.ProcessInteractionEvent(req.From, req.To, req.EventType, fromEmotion, toEmotion, req.Context, custom)

	if err := s.snapshotRelations(slug, mgr); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist relation graph")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    mgr.MutualRelationSummary(req.From, req.To),
	})
}

// getRelations exports the evolving relation graph with per-agent social
// profiles.
func (s *Server) getRelations(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	mgr, err := s.learnedManager(slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load relation graph")
		return
	}

	doc := mgr.Graph().Export()
	profiles := make(map[string]relation.SocialProfile, len(doc.Agents))
	for _, id := range doc.Agents {
		profiles[id] = mgr.AgentSocialProfile(id)
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"graph":    doc,
			"profiles": profiles,
		},
	})
}

// getAgentRelations returns one agent's statistics and, when the "other"
// query parameter names a partner, the mutual summary of the pair.
func (s *Server) getAgentRelations(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}
	agentID := chi.URLParam(r, "agentID")
	if err := validation.ValidateAgentID(agentID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	mgr, err := s.learnedManager(slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load relation graph")
		return
	}

	data := map[string]any{
		"statistics": mgr.Graph().AgentStatistics(agentID),
		"profile":    mgr.AgentSocialProfile(agentID),
	}
	if other := r.URL.Query().Get("other"); other != "" {
		if err := validation.ValidateAgentID(other); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid agent ID")
			return
		}
		data["mutual"] = mgr.MutualRelationSummary(agentID, other)
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// normalizeRelations rescales every agent's outgoing intimacies with the
// requested method.
func (s *Server) normalizeRelations(w http.ResponseWriter, r *http.Request) {
	slug, ok := s.slugParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	switch req.Method {
	case "minmax", "zscore", "softmax":
	default:
		writeError(w, http.StatusBadRequest, "Method must be minmax, zscore or softmax")
		return
	}

	mgr, err := s.learnedManager(slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load relation graph")
		return
	}
	mgr.NormalizeAll(req.Method)

	if err := s.snapshotRelations(slug, mgr); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist relation graph")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    mgr.Graph().Export(),
	})
}

func (s *Server) isRunning(slug string) bool {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	_, ok := s.runs[slug]
	return ok
}
