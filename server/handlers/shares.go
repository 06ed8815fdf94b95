package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/auth"
	"github.com/ebogdum/sharefs/core"
	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/server/middleware"
	"github.com/ebogdum/sharefs/shares"
)

// IssueShareRequest is the payload for minting a share token
type IssueShareRequest struct {
	FileID        string `json:"file_id"`
	ExpirySeconds int64  `json:"expiry_seconds"`
	MaxUses       *int64 `json:"max_uses,omitempty"`
	Password      string `json:"password,omitempty"`
}

// IssueShareResponse carries the minted token. The full token string is
// returned exactly once, here.
type IssueShareResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	FileID    string    `json:"file_id"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   *int64    `json:"max_uses,omitempty"`
}

// ShareInfo is the listing view of a share token
type ShareInfo struct {
	Token      string     `json:"token"`
	FileID     string     `json:"file_id"`
	IssuedBy   string     `json:"issued_by"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	MaxUses    *int64     `json:"max_uses,omitempty"`
	UseCount   int64      `json:"use_count"`
	Revoked    bool       `json:"revoked"`
	Protected  bool       `json:"password_protected"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func toShareInfo(st *metadata.ShareToken) ShareInfo {
	return ShareInfo{
		Token:      st.TokenID,
		FileID:     st.FileID,
		IssuedBy:   st.IssuedBy,
		IssuedAt:   st.IssuedAt,
		ExpiresAt:  st.ExpiresAt,
		MaxUses:    st.MaxUses,
		UseCount:   st.UseCount,
		Revoked:    st.Revoked,
		Protected:  st.PasswordHash != "",
		LastUsedAt: st.LastUsedAt,
	}
}

// V1IssueShareHandler mints a share token for a file the caller can edit
func V1IssueShareHandler(engine *core.Engine, apiHost string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		callerID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		var req IssueShareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendErrorResponse(w, logger, errors.New("invalid JSON in request body"), http.StatusBadRequest)
			return
		}
		if req.FileID == "" {
			SendErrorResponse(w, logger, errors.New("file_id is required"), http.StatusBadRequest)
			return
		}

		ttl := time.Duration(req.ExpirySeconds) * time.Second
		st, err := engine.IssueShare(ctx, callerID, req.FileID, ttl, req.MaxUses, req.Password)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusCreated, IssueShareResponse{
			URL:       fmt.Sprintf("https://%s/shared/%s", apiHost, st.TokenID),
			Token:     st.TokenID,
			FileID:    st.FileID,
			ExpiresAt: st.ExpiresAt,
			MaxUses:   st.MaxUses,
		})
	}
}

// V1RevokeShareHandler revokes a share token
func V1RevokeShareHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		callerID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		token := chi.URLParam(r, "token")
		if err := engine.RevokeShare(ctx, callerID, token); err != nil {
			if errors.Is(err, shares.ErrTokenNotFound) {
				SendErrorResponse(w, logger, err, http.StatusNotFound)
				return
			}
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// V1ListSharesHandler lists the share tokens of a file
func V1ListSharesHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		callerID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		fileID := chi.URLParam(r, "fileID")
		tokens, err := engine.ListShares(ctx, callerID, fileID)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		infos := make([]ShareInfo, 0, len(tokens))
		for _, st := range tokens {
			infos = append(infos, toShareInfo(st))
		}
		SendJSONResponse(w, http.StatusOK, map[string]interface{}{
			"shares": infos,
			"count":  len(infos),
		})
	}
}
