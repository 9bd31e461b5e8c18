// Package cbapi serves the HTTP ingest and query surface of cbwatch.
package cbapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/channelcfg"
	"github.com/linnemanlabs/cbwatch/internal/classify"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
	"github.com/linnemanlabs/cbwatch/internal/pipeline"
	"github.com/linnemanlabs/cbwatch/internal/prefs"
	"github.com/linnemanlabs/cbwatch/internal/store"
)

// BatchService accepts raw batches for processing.
type BatchService interface {
	Submit(ctx context.Context, b pipeline.Batch) (string, error)
}

// Classifier labels stored broadcasts for display.
type Classifier interface {
	Classify(msg *broadcast.Message) classify.Classification
}

// ChannelPlanner computes the radio channel plan.
type ChannelPlanner interface {
	Plan(format pdu.Format, snap prefs.Snapshot) channelcfg.Plan
}

// ChannelApplier pushes a fresh channel plan to the radio.
type ChannelApplier interface {
	Apply(ctx context.Context, format pdu.Format) (channelcfg.Plan, error)
}

// Deps are the collaborators of the API. Applier is optional.
type Deps struct {
	Batches    BatchService
	Store      store.Store
	Prefs      prefs.Source
	Planner    ChannelPlanner
	Classifier Classifier
	Applier    ChannelApplier
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	deps   Deps
}

// New creates a new API handler.
func New(logger log.Logger, deps Deps) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if deps.Batches == nil || deps.Store == nil || deps.Prefs == nil || deps.Planner == nil || deps.Classifier == nil {
		panic(xerrors.New("cbapi: batches, store, prefs, planner and classifier are required"))
	}
	return &API{
		logger: logger,
		deps:   deps,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/broadcasts", func(r chi.Router) {
			r.Post("/", a.handleIngest)
			r.Get("/", a.handleList)
			r.Get("/{id}", a.handleGet)
			r.Post("/{id}/read", a.handleMarkRead)
			r.Delete("/{id}", a.handleDelete)
		})
		r.Get("/channels", a.handleChannels)
		r.Get("/preferences", a.handleGetPreferences)
		r.Put("/preferences/{key}", a.handleSetPreference)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
