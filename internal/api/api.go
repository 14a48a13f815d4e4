// internal/api/api.go
// HTTP surface: auth routes, comment CRUD, the websocket endpoint, and
// diagnostics. After every successful comment mutation the handler
// invalidates the list cache and hands the wire projection to the hub for
// broadcast; the hub never touches the store.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/commentboard/server/internal/auth"
	"github.com/commentboard/server/internal/cache"
	"github.com/commentboard/server/internal/db"
	"github.com/commentboard/server/internal/hub"
	"github.com/commentboard/server/internal/logger"
	"github.com/commentboard/server/internal/store"
)

const maxCommentLength = 500

type API struct {
	store    *store.Store
	cache    *cache.Cache
	hub      *hub.Hub
	sessions *auth.Sessions
	db       *db.DB
	log      *logger.Logger
}

func New(st *store.Store, ca *cache.Cache, h *hub.Hub, se *auth.Sessions, dbc *db.DB, log *logger.Logger) *API {
	return &API{store: st, cache: ca, hub: h, sessions: se, db: dbc, log: log}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", a.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
		r.Post("/logout", a.handleLogout)
		r.Get("/me", a.handleMe)
	})

	r.Route("/api/comments", func(r chi.Router) {
		r.Get("/", a.handleListComments)
		r.Get("/{id}", a.handleGetComment)
		r.Group(func(r chi.Router) {
			r.Use(a.sessions.RequireAuth)
			r.Post("/", a.handleCreateComment)
			r.Put("/{id}", a.handleUpdateComment)
			r.Delete("/{id}", a.handleDeleteComment)
		})
	})

	r.Get("/ws", a.handleWs)
	r.Get("/ws/status", a.handleWsStatus)

	return r
}

func (a *API) handleWs(w http.ResponseWriter, r *http.Request) {
	id, err := a.sessions.FromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	a.hub.ServeWs(w, r, id.Name)
}

func (a *API) handleWsStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{
		"connected": a.hub.Count(),
		"typing":    a.hub.TypingCount(),
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if err := a.db.Pool.Ping(r.Context()); err != nil {
		dbStatus = "unreachable"
	}
	redisStatus := "disabled"
	if a.cache != nil {
		redisStatus = "unreachable"
		if a.cache.Ping(r.Context()) {
			redisStatus = "ok"
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"db":     dbStatus,
		"redis":  redisStatus,
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad json")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "email, password and name are required")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		a.log.Errorf("hash password: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	user, err := a.store.CreateUser(r.Context(), req.Email, hashed, req.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "User already exists")
			return
		}
		a.log.Errorf("create user: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to register")
		return
	}
	respondSuccess(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad json")
		return
	}

	user, err := a.store.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		a.log.Errorf("find user: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := a.sessions.Issue(auth.Identity{UserID: user.ID, Name: user.Name})
	if err != nil {
		a.log.Errorf("issue session: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	a.sessions.SetCookie(w, token)
	respondSuccess(w, http.StatusOK, user)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.sessions.ClearCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, err := a.sessions.FromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	user, err := a.store.FindUserByID(r.Context(), id.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "User not found")
		return
	}
	respondSuccess(w, http.StatusOK, user)
}

func (a *API) handleListComments(w http.ResponseWriter, r *http.Request) {
	if cached, ok := a.cache.GetList(r.Context()); ok {
		respondSuccess(w, http.StatusOK, cached)
		return
	}

	comments, err := a.store.FindAllComments(r.Context())
	if err != nil {
		a.log.Errorf("list comments: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch comments")
		return
	}
	wire := make([]hub.Comment, 0, len(comments))
	for i := range comments {
		wire = append(wire, comments[i].Wire())
	}
	a.cache.SetList(r.Context(), wire)
	respondSuccess(w, http.StatusOK, wire)
}

func (a *API) handleGetComment(w http.ResponseWriter, r *http.Request) {
	id, ok := commentID(w, r)
	if !ok {
		return
	}
	comment, err := a.store.FindCommentByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Comment not found")
			return
		}
		a.log.Errorf("get comment: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch comment")
		return
	}
	respondSuccess(w, http.StatusOK, comment.Wire())
}

func (a *API) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	content, ok := commentContent(w, r)
	if !ok {
		return
	}

	comment, err := a.store.CreateComment(r.Context(), identity.UserID, content)
	if err != nil {
		a.log.Errorf("create comment: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create comment")
		return
	}

	a.cache.InvalidateList(r.Context())
	wire := comment.Wire()
	a.hub.BroadcastCommentCreated(wire)
	respondSuccess(w, http.StatusCreated, wire)
}

func (a *API) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	id, ok := commentID(w, r)
	if !ok {
		return
	}
	content, ok := commentContent(w, r)
	if !ok {
		return
	}

	comment, err := a.store.UpdateComment(r.Context(), id, identity.UserID, content)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "Comment not found")
		case errors.Is(err, store.ErrNotOwner):
			respondError(w, http.StatusForbidden, "You can only update your own comments")
		default:
			a.log.Errorf("update comment: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to update comment")
		}
		return
	}

	a.cache.InvalidateList(r.Context())
	wire := comment.Wire()
	a.hub.BroadcastCommentUpdated(wire)
	respondSuccess(w, http.StatusOK, wire)
}

func (a *API) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	id, ok := commentID(w, r)
	if !ok {
		return
	}

	if err := a.store.DeleteComment(r.Context(), id, identity.UserID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "Comment not found")
		case errors.Is(err, store.ErrNotOwner):
			respondError(w, http.StatusForbidden, "You can only delete your own comments")
		default:
			a.log.Errorf("delete comment: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to delete comment")
		}
		return
	}

	a.cache.InvalidateList(r.Context())
	a.hub.BroadcastCommentDeleted(strconv.FormatInt(id, 10))
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Comment deleted successfully",
	})
}

func commentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid comment ID")
		return 0, false
	}
	return id, true
}

func commentContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad json")
		return "", false
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondError(w, http.StatusBadRequest, "Comment content cannot be empty")
		return "", false
	}
	if len(content) > maxCommentLength {
		respondError(w, http.StatusBadRequest, "Comment content must be at most 500 characters")
		return "", false
	}
	return content, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondSuccess(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, map[string]any{"success": true, "data": data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"success": false, "error": msg})
}
