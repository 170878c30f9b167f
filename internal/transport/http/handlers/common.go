package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	authsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/auth"
	httperrors "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/errors"
)

const maxBodyBytes = 64 << 10

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	httperrors.WriteError(w, r, http.StatusBadRequest, httperrors.CodeValidation, message)
}

func writeNotFound(w http.ResponseWriter, r *http.Request, message string) {
	httperrors.WriteError(w, r, http.StatusNotFound, httperrors.CodeNotFound, message)
}

func writeInternal(w http.ResponseWriter, r *http.Request, code, message string) {
	httperrors.WriteError(w, r, http.StatusInternalServerError, code, message)
}

func identityFromRequest(w http.ResponseWriter, r *http.Request) (authsvc.Identity, bool) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok || identity.UserID <= 0 {
		httperrors.WriteError(w, r, http.StatusUnauthorized, httperrors.CodeUnauthorized, "authentication required")
		return authsvc.Identity{}, false
	}
	return identity, true
}

func int64PathParam(r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// queryInt parses an optional non-negative integer query value.
func queryInt(r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
