package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestIdentityFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserID, "  cus_1  ")
	h.Set(HeaderUserEmail, " a@example.com ")
	h.Set(HeaderUserRoles, "Customer, STAFF, customer, , staff")

	identity := IdentityFromHeaders(h)
	if identity == nil {
		t.Fatalf("identity = nil")
	}
	if identity.UID != "cus_1" || identity.Email != "a@example.com" {
		t.Fatalf("identity = %+v, want trimmed fields", identity)
	}
	if !reflect.DeepEqual(identity.Roles, []string{"customer", "staff"}) {
		t.Fatalf("roles = %v, want lowercased and deduplicated", identity.Roles)
	}
}

func TestIdentityFromHeadersWithoutUser(t *testing.T) {
	if identity := IdentityFromHeaders(http.Header{}); identity != nil {
		t.Fatalf("identity = %+v, want nil without a user header", identity)
	}
}

func TestHasRole(t *testing.T) {
	identity := &Identity{UID: "u1", Roles: []string{"staff"}}

	if !identity.HasRole("STAFF") {
		t.Fatalf("role match should be case-insensitive")
	}
	if identity.HasRole("admin") {
		t.Fatalf("unexpected admin role")
	}
	if identity.HasRole("") {
		t.Fatalf("blank role matched")
	}

	var nilIdentity *Identity
	if nilIdentity.HasRole("staff") {
		t.Fatalf("nil identity reported a role")
	}
	if !identity.HasAnyRole("admin", "staff") {
		t.Fatalf("HasAnyRole missed staff")
	}
}

func TestExtractIdentity(t *testing.T) {
	var got *Identity
	handler := ExtractIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(HeaderUserID, "cus_1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got == nil || got.UID != "cus_1" {
		t.Fatalf("identity = %+v", got)
	}
}

func TestExtractIdentityPassesGuestsThrough(t *testing.T) {
	var called bool
	handler := ExtractIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatalf("guest request carried an identity")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if !called {
		t.Fatalf("guest request was blocked")
	}
}

func TestRequireRoles(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireRoles(RoleStaff, RoleAdmin)(next)

	cases := []struct {
		name       string
		uid        string
		roles      string
		wantStatus int
		wantError  string
	}{
		{"no identity", "", "", http.StatusUnauthorized, "unauthenticated"},
		{"customer only", "cus_1", "customer", http.StatusForbidden, "insufficient_role"},
		{"staff allowed", "staff_1", "staff", http.StatusNoContent, ""},
		{"admin allowed", "adm_1", "Admin", http.StatusNoContent, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
			if tc.uid != "" {
				req.Header.Set(HeaderUserID, tc.uid)
				req.Header.Set(HeaderUserRoles, tc.roles)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantError == "" {
				return
			}
			var payload struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if payload.Error != tc.wantError {
				t.Fatalf("error = %q, want %q", payload.Error, tc.wantError)
			}
		})
	}
}

func TestRequireRolesUsesContextIdentity(t *testing.T) {
	handler := RequireRoles(RoleStaff)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req = req.WithContext(WithIdentity(req.Context(), &Identity{UID: "staff_1", Roles: []string{"staff"}}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want context identity honoured", rec.Code)
	}
}
