package authsdk

import (
	"context"
	"net/http"
)

// CreateStore creates a store owned by the session's user.
func (s *Session) CreateStore(ctx context.Context, req CreateStoreRequest) (*StoreResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/stores", req)
	if err != nil {
		return nil, err
	}

	var out StoreResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentStore returns the store selected by the client's StoreDomain (or
// the session's store claim) along with the caller's role in it.
func (s *Session) CurrentStore(ctx context.Context) (*StoreResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/stores/current", nil)
	if err != nil {
		return nil, err
	}

	var out StoreResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMembers lists the current store's memberships. Requires staff.
func (s *Session) ListMembers(ctx context.Context) ([]MemberResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/stores/current/members", nil)
	if err != nil {
		return nil, err
	}

	var out MembersResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// GrantRole sets a user's role in the current store. Requires admin.
func (s *Session) GrantRole(ctx context.Context, userID, role string) (*MemberResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPut, "/v1/stores/current/members", GrantRoleRequest{
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		return nil, err
	}

	var out MemberResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
