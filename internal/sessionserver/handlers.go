// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sessionserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/holomush/multilogin/internal/identity"
	"github.com/holomush/multilogin/pkg/errutil"
)

// maxAdminBody bounds admin request bodies.
const maxAdminBody = 4 << 10

type handlers struct {
	auth     Authenticator
	failures FailureTaker
	locks    LockAdmin
	logger   *slog.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

type lockBody struct {
	Name      string `json:"name,omitempty"`
	Authority string `json:"authority"`
	UUID      string `json:"uuid,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// hasJoined answers 200 with the profile on success and 204 on a deferred
// rejection, matching what hosts expect from a session server.
func (h *handlers) hasJoined(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, serverID := q.Get("username"), q.Get("serverId")
	if name == "" || serverID == "" {
		writeError(w, http.StatusBadRequest, "username and serverId are required")
		return
	}

	res, err := h.auth.Authenticate(r.Context(), name, serverID)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errutil.Code(err) == "PIPELINE_INVALID_REQUEST" {
			status = http.StatusBadRequest
		}
		errutil.Log(r.Context(), h.logger, slog.LevelWarn, "join attempt did not run", err, "name", name)
		writeError(w, status, "authentication unavailable")
		return
	}

	if !res.Accepted() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res.Profile)
}

func (h *handlers) takeFailure(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	f, ok := h.failures.TakeAndClear(name)
	if !ok {
		writeError(w, http.StatusNotFound, "no failure recorded")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handlers) getLock(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	label, found, err := h.locks.GetLock(r.Context(), name)
	if err != nil {
		errutil.Log(r.Context(), h.logger, slog.LevelError, "get lock failed", err, "name", name)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no lock for name")
		return
	}
	writeJSON(w, http.StatusOK, lockBody{Name: name, Authority: label})
}

func (h *handlers) setLock(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body lockBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Authority == "" {
		writeError(w, http.StatusBadRequest, "authority is required")
		return
	}

	var id *uuid.UUID
	if body.UUID != "" {
		parsed, err := uuid.Parse(body.UUID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid uuid")
			return
		}
		id = &parsed
	}

	err := h.locks.SetLock(r.Context(), name, id, body.Authority)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, http.StatusNotFound, "no identity for name; supply uuid to create one")
		return
	case errutil.Code(err) == identity.CodeInvalid:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		errutil.Log(r.Context(), h.logger, slog.LevelError, "set lock failed", err, "name", name)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	h.logger.InfoContext(r.Context(), "lock set by admin", "name", name, "authority", body.Authority)
	writeJSON(w, http.StatusOK, lockBody{Name: name, Authority: body.Authority, UUID: body.UUID})
}
