package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/syntroph/crm/pkg/logger"
	"github.com/syntroph/crm/pkg/schema"
	"github.com/syntroph/crm/pkg/tenant"
)

// Provisioner is the service surface the HTTP handlers need.
type Provisioner interface {
	Register(ctx context.Context, p RegisterParams) (*tenant.Tenant, error)
	Deregister(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*tenant.Tenant, error)
	Orphans(ctx context.Context) ([]string, error)
	Missing(ctx context.Context) ([]string, error)
	AddMember(ctx context.Context, tenantID, userID uuid.UUID, role tenant.Role) (*tenant.Membership, error)
}

// Handler exposes tenant provisioning over HTTP with JSON bodies.
type Handler struct {
	svc Provisioner
	log *slog.Logger
}

// NewHandler returns a Handler over svc.
func NewHandler(svc Provisioner, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, log: log}
}

// Router mounts the provisioning endpoints. Mount it under an exempt path
// prefix: provisioning always runs in the public schema.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.register)
	r.Get("/", h.list)
	r.Get("/orphans", h.orphans)
	r.Get("/missing", h.missing)
	r.Delete("/{id}", h.deregister)
	r.Post("/{id}/members", h.addMember)

	return r
}

type registerRequest struct {
	Name       string `json:"name"`
	SchemaName string `json:"schema_name"`
	Domain     string `json:"domain,omitempty"`
	MaxMembers int    `json:"max_members,omitempty"`
	OwnerID    string `json:"owner_id"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid_request", "owner_id must be a valid UUID")
		return
	}

	t, err := h.svc.Register(r.Context(), RegisterParams{
		Name:       req.Name,
		SchemaName: req.SchemaName,
		Domain:     req.Domain,
		MaxMembers: req.MaxMembers,
		OwnerID:    ownerID,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respond(w, http.StatusCreated, t)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if all == nil {
		all = []*tenant.Tenant{}
	}
	h.respond(w, http.StatusOK, all)
}

func (h *Handler) deregister(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid_request", "tenant id must be a valid UUID")
		return
	}

	if err := h.svc.Deregister(r.Context(), id); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orphans(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Orphans(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.respond(w, http.StatusOK, map[string][]string{"orphans": names})
}

func (h *Handler) missing(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Missing(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.respond(w, http.StatusOK, map[string][]string{"missing": names})
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid_request", "tenant id must be a valid UUID")
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid_request", "user_id must be a valid UUID")
		return
	}

	m, err := h.svc.AddMember(r.Context(), tenantID, userID, tenant.Role(req.Role))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, m)
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.respond(w, status, map[string]string{"error": code, "message": message})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, schema.ErrInvalidSchemaName):
		h.respondError(w, r, http.StatusUnprocessableEntity, "invalid_schema_name",
			"schema name must be lowercase alphanumerics and underscores, starting with a letter")
	case errors.Is(err, ErrSchemaNameTaken):
		h.respondError(w, r, http.StatusConflict, "schema_name_taken",
			"this schema name is already in use")
	case errors.Is(err, ErrInvalidRole):
		h.respondError(w, r, http.StatusUnprocessableEntity, "invalid_role",
			"role must be one of owner, admin, manager, member, guest")
	case errors.Is(err, tenant.ErrTenantNotFound):
		h.respondError(w, r, http.StatusNotFound, "tenant_not_found", "no such tenant")
	case errors.Is(err, tenant.ErrMembershipExists):
		h.respondError(w, r, http.StatusConflict, "membership_exists",
			"user is already a member of this tenant")
	case errors.Is(err, tenant.ErrTenantCapacity):
		h.respondError(w, r, http.StatusConflict, "tenant_capacity",
			"tenant member limit reached")
	default:
		h.log.ErrorContext(r.Context(), "tenant provisioning failed", logger.Error(err))
		h.respondError(w, r, http.StatusInternalServerError, "internal_error",
			"tenant provisioning failed")
	}
}
