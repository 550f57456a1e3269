// Package web exposes Lumen's JSON API and wires the stream endpoints.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumenjournal/lumen/internal/auth"
	"github.com/lumenjournal/lumen/internal/ratelimit"
	"github.com/lumenjournal/lumen/internal/realtime"
	"github.com/lumenjournal/lumen/internal/storage"
	"github.com/lumenjournal/lumen/pkg/models"
)

// Handler implements the JSON API.
type Handler struct {
	stores  storage.StoreSet
	bus     *realtime.Bus
	auth    *auth.Service
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewHandler builds the API handler. If logger is nil, slog.Default() is used.
func NewHandler(stores storage.StoreSet, bus *realtime.Bus, authService *auth.Service, limiter *ratelimit.Limiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		stores:  stores,
		bus:     bus,
		auth:    authService,
		limiter: limiter,
		logger:  logger.With("component", "api"),
	}
}

type credentialsRequest struct {
	Handle   string `json:"handle"`
	Alias    string `json:"alias,omitempty"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string `json:"token"`
	Alias string `json:"alias"`
}

// Signup handles POST /api/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Handle = strings.TrimSpace(req.Handle)
	req.Alias = strings.TrimSpace(req.Alias)
	if req.Handle == "" || req.Alias == "" {
		h.jsonError(w, "handle and alias are required", http.StatusBadRequest)
		return
	}
	if !h.limiter.Allow("signup:" + remoteHost(r)) {
		h.jsonError(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrPasswordTooShort):
			h.jsonError(w, "password too short", http.StatusBadRequest)
		case errors.Is(err, auth.ErrPasswordTooLong):
			h.jsonError(w, "password too long", http.StatusBadRequest)
		default:
			h.logger.Error("hash password failed", "error", err)
			h.jsonError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Handle:       req.Handle,
		Alias:        req.Alias,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.stores.Users.Create(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			h.jsonError(w, "handle already taken", http.StatusConflict)
			return
		}
		h.logger.Error("create user failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.issueSession(w, user)
}

// Login handles POST /api/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.stores.Users.GetByHandle(r.Context(), req.Handle)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.jsonError(w, auth.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		return
	}

	h.issueSession(w, user)
}

func (h *Handler) issueSession(w http.ResponseWriter, user *models.User) {
	token, err := h.auth.GenerateToken(&auth.Identity{UserID: user.ID, Alias: user.Alias})
	if err != nil {
		h.logger.Error("issue session failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.writeJSON(w, http.StatusOK, sessionResponse{Token: token, Alias: user.Alias})
}

type createPostRequest struct {
	Body string `json:"body"`
	Mood string `json:"mood,omitempty"`
}

// CreatePost handles POST /api/posts. After the write commits it publishes a
// newPost event to the feed topic; the publish is a side-channel and can
// never fail the request.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if !h.limiter.Allow(identity.UserID) {
		h.jsonError(w, "slow down", http.StatusTooManyRequests)
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" || len(req.Body) > models.MaxPostLength {
		h.jsonError(w, "post body must be 1-2000 characters", http.StatusBadRequest)
		return
	}

	post := &models.Post{
		ID:        uuid.NewString(),
		AuthorID:  identity.UserID,
		Body:      req.Body,
		Mood:      strings.TrimSpace(req.Mood),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.stores.Posts.Create(r.Context(), post); err != nil {
		h.logger.Error("create post failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	created, err := h.stores.Posts.Get(r.Context(), post.ID)
	if err != nil {
		// The write committed; fall back to what we have.
		created = post
		created.AuthorAlias = identity.Alias
	}

	h.bus.Publish(realtime.TopicFeed, "newPost", created)

	h.writeJSON(w, http.StatusCreated, created)
}

// feedResponse is the JSON response for the feed listing.
type feedResponse struct {
	Posts    []*models.Post `json:"posts"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// Feed handles GET /api/feed.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "size", 50)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	posts, err := h.stores.Posts.ListRecent(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Error("list posts failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	h.writeJSON(w, http.StatusOK, feedResponse{Posts: posts, Page: page, PageSize: pageSize})
}

// HeartPost handles POST /api/posts/{id}/heart. A successful heart notifies
// the post's author on their private topic, unless they hearted their own
// post.
func (h *Handler) HeartPost(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	postID := r.PathValue("id")

	post, err := h.stores.Posts.Get(r.Context(), postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.jsonError(w, "post not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get post failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	reaction := &models.Reaction{PostID: postID, UserID: identity.UserID, CreatedAt: time.Now().UTC()}
	if err := h.stores.Reactions.Create(r.Context(), reaction); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			h.jsonError(w, "already hearted", http.StatusConflict)
		case errors.Is(err, storage.ErrNotFound):
			h.jsonError(w, "post not found", http.StatusNotFound)
		default:
			h.logger.Error("create reaction failed", "error", err)
			h.jsonError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	if post.AuthorID != identity.UserID {
		h.bus.Publish(realtime.UserTopic(post.AuthorID), "notification", models.Notification{
			Kind:      models.NotificationHeart,
			PostID:    postID,
			FromAlias: identity.Alias,
			CreatedAt: reaction.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"hearts": post.Hearts + 1})
}

type replyRequest struct {
	Body string `json:"body"`
}

// ReplyToPost handles POST /api/posts/{id}/reply. After the write commits
// it notifies the post's author on their private topic, unless they replied
// to their own post.
func (h *Handler) ReplyToPost(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if !h.limiter.Allow(identity.UserID) {
		h.jsonError(w, "slow down", http.StatusTooManyRequests)
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" || len(req.Body) > models.MaxReplyLength {
		h.jsonError(w, "reply body must be 1-500 characters", http.StatusBadRequest)
		return
	}

	post, err := h.stores.Posts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.jsonError(w, "post not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get post failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	reply := &models.Reply{
		ID:          uuid.NewString(),
		PostID:      post.ID,
		AuthorID:    identity.UserID,
		AuthorAlias: identity.Alias,
		Body:        req.Body,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.stores.Replies.Create(r.Context(), reply); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.jsonError(w, "post not found", http.StatusNotFound)
			return
		}
		h.logger.Error("create reply failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if post.AuthorID != identity.UserID {
		h.bus.Publish(realtime.UserTopic(post.AuthorID), "notification", models.Notification{
			Kind:      models.NotificationReply,
			PostID:    post.ID,
			FromAlias: identity.Alias,
			CreatedAt: reply.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusCreated, reply)
}

type repliesResponse struct {
	Replies []*models.Reply `json:"replies"`
}

// ListReplies handles GET /api/posts/{id}/replies.
func (h *Handler) ListReplies(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")
	if _, err := h.stores.Posts.Get(r.Context(), postID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.jsonError(w, "post not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get post failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	replies, err := h.stores.Replies.ListForPost(r.Context(), postID)
	if err != nil {
		h.logger.Error("list replies failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if replies == nil {
		replies = []*models.Reply{}
	}
	h.writeJSON(w, http.StatusOK, repliesResponse{Replies: replies})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"topics": h.bus.Topics(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("write response failed", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
