package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pesio-ai/be-approvals/internal/errors"
	"github.com/pesio-ai/be-approvals/internal/logger"
	"github.com/pesio-ai/be-approvals/internal/service"
)

// ApprovalServiceInterface is the approval engine as seen by transports.
type ApprovalServiceInterface interface {
	CreateApproval(ctx context.Context, req *service.CreateApprovalRequest) (*service.CreatedApproval, error)
	Approve(ctx context.Context, documentID, groupID, userID string) (*service.Snapshot, error)
	Reject(ctx context.Context, documentID, groupID, userID string) (*service.Snapshot, error)
	GetPendingByUser(ctx context.Context, userID string) ([]service.PendingItem, error)
	GetDocumentSnapshot(ctx context.Context, documentID string) (*service.Snapshot, error)
	GetSnapshotByGroup(ctx context.Context, groupID string) (*service.Snapshot, error)
	GetByOrigin(ctx context.Context, origin, originRef string) (*service.Snapshot, error)
	GetHistory(ctx context.Context, documentID string) ([]service.AuditEntryView, error)
}

// RulesServiceInterface manages approval rules.
type RulesServiceInterface interface {
	CreateRule(ctx context.Context, req *service.RuleRequest) (*service.RuleView, error)
	ListRules(ctx context.Context, approvalGroup string, activeOnly bool) ([]service.RuleView, error)
	UpdateRule(ctx context.Context, id string, req *service.RuleRequest) (*service.RuleView, error)
	DeleteRule(ctx context.Context, id string) error
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// userIDHeader carries the acting user on approve and reject.
const userIDHeader = "X-User-ID"

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals ApprovalServiceInterface
	rules     RulesServiceInterface
	db        Pinger
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler. rules and db may be nil; the rule
// endpoints are then not mounted and /health does not probe the database.
func NewHTTPHandler(
	approvals ApprovalServiceInterface,
	rules RulesServiceInterface,
	db Pinger,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		rules:     rules,
		db:        db,
		log:       log,
	}
}

// Routes mounts every endpoint on a chi router.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/approvals", h.CreateApproval)
		r.Get("/approvals/by-origin", h.GetByOrigin)
		r.Get("/approvals/{documentID}", h.GetDocumentSnapshot)
		r.Get("/approvals/{documentID}/history", h.GetHistory)
		r.Post("/approvals/{documentID}/groups/{groupID}/approve", h.Approve)
		r.Post("/approvals/{documentID}/groups/{groupID}/reject", h.Reject)
		r.Get("/approval-groups/{groupID}/snapshot", h.GetSnapshotByGroup)
		r.Get("/users/{userID}/pending-approvals", h.GetPendingByUser)

		if h.rules != nil {
			r.Get("/approval-rules", h.ListRules)
			r.Post("/approval-rules", h.CreateRule)
			r.Put("/approval-rules/{ruleID}", h.UpdateRule)
			r.Delete("/approval-rules/{ruleID}", h.DeleteRule)
		}
	})

	return r
}

// Health reports liveness and database reachability.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Health check failed")
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Approvals ────────────────────────────────────────────────────────────────

// CreateApproval handles POST /approvals
func (h *HTTPHandler) CreateApproval(w http.ResponseWriter, r *http.Request) {
	var req service.CreateApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	created, err := h.approvals.CreateApproval(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// Approve handles POST /approvals/{documentID}/groups/{groupID}/approve
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	documentID, groupID, userID, err := h.decisionParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	snap, err := h.approvals.Approve(r.Context(), documentID, groupID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// Reject handles POST /approvals/{documentID}/groups/{groupID}/reject
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	documentID, groupID, userID, err := h.decisionParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	snap, err := h.approvals.Reject(r.Context(), documentID, groupID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// GetDocumentSnapshot handles GET /approvals/{documentID}
func (h *HTTPHandler) GetDocumentSnapshot(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuidParam(r, "documentID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	snap, err := h.approvals.GetDocumentSnapshot(r.Context(), documentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// GetHistory handles GET /approvals/{documentID}/history
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuidParam(r, "documentID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	history, err := h.approvals.GetHistory(r.Context(), documentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": history})
}

// GetSnapshotByGroup handles GET /approval-groups/{groupID}/snapshot
func (h *HTTPHandler) GetSnapshotByGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuidParam(r, "groupID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	snap, err := h.approvals.GetSnapshotByGroup(r.Context(), groupID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// GetByOrigin handles GET /approvals/by-origin?origin=&origin_ref=
func (h *HTTPHandler) GetByOrigin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snap, err := h.approvals.GetByOrigin(r.Context(), q.Get("origin"), q.Get("origin_ref"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// GetPendingByUser handles GET /users/{userID}/pending-approvals
func (h *HTTPHandler) GetPendingByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuidParam(r, "userID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	items, err := h.approvals.GetPendingByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "total": len(items)})
}

// decisionParams reads the document, group and acting user of an approve or
// reject call. The user comes from the X-User-ID header, falling back to a
// JSON body {"user_id": "..."}.
func (h *HTTPHandler) decisionParams(r *http.Request) (string, string, string, error) {
	documentID, err := uuidParam(r, "documentID")
	if err != nil {
		return "", "", "", err
	}
	groupID, err := uuidParam(r, "groupID")
	if err != nil {
		return "", "", "", err
	}

	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			return "", "", "", errors.InvalidInput("body", "invalid request body")
		}
		userID = strings.TrimSpace(body.UserID)
	}
	if userID == "" {
		return "", "", "", errors.New(errors.ErrCodeUnauthorized, "acting user is required")
	}
	if err := requireUUID("user_id", userID); err != nil {
		return "", "", "", err
	}
	return documentID, groupID, userID, nil
}

// ── Approval rules ───────────────────────────────────────────────────────────

// ListRules handles GET /approval-rules?approval_group=&active=
func (h *HTTPHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, errors.InvalidInput("active", "must be a boolean"))
			return
		}
		activeOnly = parsed
	}

	rules, err := h.rules.ListRules(r.Context(), r.URL.Query().Get("approval_group"), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// CreateRule handles POST /approval-rules
func (h *HTTPHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req service.RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	rule, err := h.rules.CreateRule(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /approval-rules/{ruleID}
func (h *HTTPHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuidParam(r, "ruleID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req service.RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	rule, err := h.rules.UpdateRule(r.Context(), ruleID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /approval-rules/{ruleID}
func (h *HTTPHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuidParam(r, "ruleID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.rules.DeleteRule(r.Context(), ruleID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func uuidParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if err := requireUUID(name, value); err != nil {
		return "", err
	}
	return value, nil
}

// httpStatus maps error codes to HTTP status codes.
func httpStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidState:
		return http.StatusConflict
	case errors.ErrCodeNoApprovers:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Field   string           `json:"field,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)

	body := errorBody{Code: code, Message: err.Error()}
	if e, ok := err.(*errors.Error); ok {
		body.Field = e.Field
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		body.Message = "internal server error"
	}

	h.writeJSON(w, status, map[string]errorBody{"error": body})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}
