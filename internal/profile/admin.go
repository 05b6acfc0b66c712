package profile

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/httputil"
)

type userSummary struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(r.Context(),
		`SELECT u.id, u.email, COALESCE(p.display_name, u.name), COALESCE(p.role, 'user'), u.created_at
		 FROM users u LEFT JOIN profiles p ON p.user_id = u.id
		 ORDER BY u.created_at ASC`)
	if err != nil {
		slog.Error("profile: failed to list users", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	defer rows.Close()

	users := make([]userSummary, 0)
	for rows.Next() {
		var u userSummary
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.CreatedAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to list users")
			return
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, users)
}

// SetRole takes effect the next time the user's tokens are issued or
// refreshed. Admins cannot demote themselves.
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	targetID, ok := httputil.UUIDParam(w, r, "id", "user not found")
	if !ok {
		return
	}

	var req roleRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role != auth.RoleUser && req.Role != auth.RoleAdmin {
		httputil.WriteError(w, http.StatusBadRequest, "role must be user or admin")
		return
	}
	if targetID == auth.UserIDFromContext(r.Context()) && req.Role != auth.RoleAdmin {
		httputil.WriteError(w, http.StatusBadRequest, "cannot remove your own admin role")
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`UPDATE profiles SET role = $2, updated_at = now() WHERE user_id = $1`,
		targetID, req.Role,
	)
	if err != nil {
		slog.Error("profile: failed to set role", "user_id", targetID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update role")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "user not found")
		return
	}
	slog.Info("profile: role changed", "user_id", targetID, "role", req.Role)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	targetID, ok := httputil.UUIDParam(w, r, "id", "user not found")
	if !ok {
		return
	}
	if targetID == auth.UserIDFromContext(r.Context()) {
		httputil.WriteError(w, http.StatusBadRequest, "cannot delete your own account here")
		return
	}

	var avatarKey *string
	err := h.db.QueryRow(r.Context(),
		`WITH doomed AS (SELECT avatar_key FROM profiles WHERE user_id = $1)
		 DELETE FROM users WHERE id = $1
		 RETURNING (SELECT avatar_key FROM doomed)`,
		targetID,
	).Scan(&avatarKey)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		slog.Error("profile: failed to delete user", "user_id", targetID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	if avatarKey != nil {
		if err := h.storage.DeleteObject(r.Context(), *avatarKey); err != nil {
			slog.Warn("profile: failed to delete avatar", "key", *avatarKey, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
