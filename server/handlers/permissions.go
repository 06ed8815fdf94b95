package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/auth"
	"github.com/ebogdum/sharefs/core"
	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/server/middleware"
)

// GrantPermissionRequest is the payload for granting a role on a file
type GrantPermissionRequest struct {
	PrincipalID string `json:"principal_id"`
	Role        string `json:"role"`
}

// V1GrantPermissionHandler grants a viewer or editor role on a file
func V1GrantPermissionHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		callerID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		fileID := chi.URLParam(r, "fileID")

		var req GrantPermissionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendErrorResponse(w, logger, errors.New("invalid JSON in request body"), http.StatusBadRequest)
			return
		}

		role, err := metadata.ParseRole(req.Role)
		if err != nil {
			SendErrorResponse(w, logger, core.ErrInvalidInput, http.StatusBadRequest)
			return
		}

		if err := engine.GrantRole(ctx, callerID, fileID, req.PrincipalID, role); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusCreated, map[string]string{
			"file_id":      fileID,
			"principal_id": req.PrincipalID,
			"role":         string(role),
		})
	}
}

// V1RevokePermissionHandler revokes a principal's role on a file. The role
// being revoked comes from the "role" query parameter.
func V1RevokePermissionHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		callerID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		fileID := chi.URLParam(r, "fileID")
		targetPrincipal := chi.URLParam(r, "principalID")

		role, err := metadata.ParseRole(r.URL.Query().Get("role"))
		if err != nil {
			SendErrorResponse(w, logger, core.ErrInvalidInput, http.StatusBadRequest)
			return
		}

		if err := engine.RevokeRole(ctx, callerID, fileID, targetPrincipal, role); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// V1ListPermissionsHandler lists all grants on a file
func V1ListPermissionsHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		callerID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		fileID := chi.URLParam(r, "fileID")
		perms, err := engine.ListPermissions(ctx, callerID, fileID)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusOK, map[string]interface{}{
			"permissions": perms,
			"count":       len(perms),
		})
	}
}
