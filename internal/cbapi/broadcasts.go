package cbapi

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/pipeline"
	"github.com/linnemanlabs/cbwatch/internal/store"
)

const maxIngestBody = 1 << 20

type ingestRequest struct {
	Action string   `json:"action"`
	PDUs   []string `json:"pdus"`
}

// broadcastView is a stored message with its display classification.
type broadcastView struct {
	*broadcast.Message
	Category  string `json:"category"`
	Title     string `json:"title"`
	TitleKey  string `json:"title_key"`
	Emergency bool   `json:"emergency"`
}

func (a *API) view(msg *broadcast.Message) broadcastView {
	cl := a.deps.Classifier.Classify(msg)
	return broadcastView{
		Message:   msg,
		Category:  cl.Category.String(),
		Title:     cl.Title(),
		TitleKey:  cl.TitleKey(),
		Emergency: cl.EmergencyGrade(),
	}
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	action, err := pipeline.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.PDUs) == 0 {
		writeError(w, http.StatusBadRequest, "pdus must not be empty")
		return
	}

	pdus := make([][]byte, 0, len(req.PDUs))
	for i, s := range req.PDUs {
		raw, err := hex.DecodeString(strings.TrimSpace(s))
		if err != nil || len(raw) == 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("pdus[%d] is not a hex encoded pdu", i))
			return
		}
		pdus = append(pdus, raw)
	}

	id, err := a.deps.Batches.Submit(r.Context(), pipeline.Batch{Action: action, PDUs: pdus})
	switch {
	case errors.Is(err, pipeline.ErrEmptyBatch), errors.Is(err, pipeline.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		a.logger.Error(r.Context(), err, "failed to submit batch", "action", req.Action)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("cbwatch.batch_id", id),
		attribute.String("cbwatch.action", string(action)),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := a.deps.Store.List(r.Context(), store.ClampLimit(limit))
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list broadcasts")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]broadcastView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, a.view(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"broadcasts": views})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("cbwatch.message_id", id))

	msg, ok, err := a.deps.Store.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get broadcast", "message_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, a.view(msg))
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := a.deps.Store.MarkRead(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to mark broadcast read", "message_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := a.deps.Store.Delete(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to delete broadcast", "message_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
