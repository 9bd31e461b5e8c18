package cbapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/cbwatch/internal/channelcfg"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
	"github.com/linnemanlabs/cbwatch/internal/prefs"
)

// channelKeys are the preferences that change the radio channel plan.
var channelKeys = map[string]bool{
	prefs.KeyEnableEmergencyAlerts: true,
	prefs.KeyEnableChannel50Alerts: true,
}

type preferenceRequest struct {
	Value string `json:"value"`
}

func (a *API) handleChannels(w http.ResponseWriter, r *http.Request) {
	snap, err := a.deps.Prefs.Snapshot(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to load preferences")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]channelcfg.Plan{
		"plans": {
			a.deps.Planner.Plan(pdu.FormatGSM, snap),
			a.deps.Planner.Plan(pdu.FormatCDMA, snap),
		},
	})
}

func (a *API) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	snap, err := a.deps.Prefs.Snapshot(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to load preferences")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snap.Effective())
}

func (a *API) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := prefs.Validate(key, req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Prefs.Set(r.Context(), key, req.Value); err != nil {
		a.logger.Error(r.Context(), err, "failed to store preference", "key", key)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.logger.Info(r.Context(), "preference updated", "key", key, "value", req.Value)

	if channelKeys[key] && a.deps.Applier != nil {
		if _, err := a.deps.Applier.Apply(r.Context(), pdu.FormatGSM); err != nil {
			a.logger.Warn(r.Context(), "channel reconfiguration failed", "key", key, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
