package http

import (
	"net/http"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/aussiebroadwan/storefront/pkg/authsdk"
	"github.com/aussiebroadwan/storefront/pkg/httpx"
)

// StoreHandler serves store creation and membership management.
type StoreHandler struct {
	Tenants *service.TenantService
	Roles   *service.RoleAuthorizer
}

func storeResponse(t domain.Tenant, role domain.Role) authsdk.StoreResponse {
	limits := t.Plan.Limits()
	return authsdk.StoreResponse{
		ID:      t.ID,
		Name:    t.Name,
		Domain:  t.Domain,
		OwnerID: t.OwnerID,
		Plan:    string(t.Plan),
		Status:  string(t.Status),
		Limits: authsdk.PlanLimits{
			MaxProducts:       limits.MaxProducts,
			MaxOrdersPerMonth: limits.MaxOrdersPerMonth,
		},
		Role: string(role),
	}
}

// HandleCreate godoc
//
//	@Summary		Create store
//	@Description	Create a store owned by the caller. The caller becomes its owner member in the same transaction.
//	@Tags			Stores
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		authsdk.CreateStoreRequest	true	"name, domain, plan"
//	@Success		201		{object}	authsdk.StoreResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_domain, invalid_plan"
//	@Failure		409		{object}	authsdk.ErrorResponse	"domain_taken"
//	@Router			/v1/stores [post].
func (h *StoreHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	var req authsdk.CreateStoreRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		invalidRequest(w, "invalid JSON body")
		return
	}

	t, err := h.Tenants.CreateTenant(r.Context(), service.CreateTenantParams{
		OwnerID: userID,
		Name:    req.Name,
		Domain:  req.Domain,
		Plan:    req.Plan,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, storeResponse(t, domain.RoleOwner))
}

// HandleCurrent godoc
//
//	@Summary		Current store
//	@Description	The store named by X-Store-Domain (or Host, or the token) together with the caller's role in it.
//	@Tags			Stores
//	@Produce		json
//	@Security		BearerAuth
//	@Param			X-Store-Domain	header		string	false	"Store domain"
//	@Success		200				{object}	authsdk.StoreResponse
//	@Failure		403				{object}	authsdk.ErrorResponse	"tenant_mismatch, tenant_inactive, insufficient_role"
//	@Failure		404				{object}	authsdk.ErrorResponse	"tenant_not_found"
//	@Router			/v1/stores/current [get].
func (h *StoreHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())
	t, _ := tenantFromContext(r.Context())

	role, err := h.Roles.RoleOf(r.Context(), userID, t.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, storeResponse(t, role))
}

// HandleListMembers godoc
//
//	@Summary		List members
//	@Tags			Stores
//	@Produce		json
//	@Security		BearerAuth
//	@Param			X-Store-Domain	header		string	false	"Store domain"
//	@Success		200				{object}	authsdk.MembersResponse
//	@Failure		403				{object}	authsdk.ErrorResponse	"insufficient_role"
//	@Router			/v1/stores/current/members [get].
func (h *StoreHandler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	t, _ := tenantFromContext(r.Context())

	members, err := h.Tenants.ListMembers(r.Context(), t.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := authsdk.MembersResponse{Members: make([]authsdk.MemberResponse, 0, len(members))}
	for _, m := range members {
		resp.Members = append(resp.Members, authsdk.MemberResponse{UserID: m.UserID, Role: string(m.Role)})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleGrantRole godoc
//
//	@Summary		Grant role
//	@Description	Set a user's role in the current store. Admins may grant up to admin; only owners may grant owner.
//	@Tags			Stores
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			X-Store-Domain	header		string					false	"Store domain"
//	@Param			body			body		authsdk.GrantRoleRequest	true	"user_id, role"
//	@Success		200				{object}	authsdk.MemberResponse
//	@Failure		400				{object}	authsdk.ErrorResponse	"invalid_role"
//	@Failure		403				{object}	authsdk.ErrorResponse	"insufficient_role"
//	@Failure		404				{object}	authsdk.ErrorResponse	"user_not_found"
//	@Router			/v1/stores/current/members [put].
func (h *StoreHandler) HandleGrantRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := httpx.UserIDFromContext(r.Context())
	t, _ := tenantFromContext(r.Context())

	var req authsdk.GrantRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.UserID == "" {
		invalidRequest(w, "user_id and role are required")
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, service.ErrInvalidRole)
		return
	}

	if err := h.Tenants.GrantRole(r.Context(), actorID, t.ID, req.UserID, role); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MemberResponse{UserID: req.UserID, Role: string(role)})
}
