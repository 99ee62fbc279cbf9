package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aysenurcaglar/snake-oil-game/internal/engine"
)

func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeEngineError maps engine sentinels onto HTTP statuses. Lost
// races and ordering violations are conflicts, not server faults.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, engine.ErrNotAParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, engine.ErrInvalidSelection):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrSessionUnavailable),
		errors.Is(err, engine.ErrInvalidTurn),
		errors.Is(err, engine.ErrRoundNotReady),
		errors.Is(err, engine.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
