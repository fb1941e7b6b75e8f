// Package api implements HTTP handlers and helpers for the shipflow service.
package api

import (
    "net/http"
    "strings"
)

type Principal struct {
    Tenant    string
    Role      string // admin, operator, carrier
    CarrierID string
}

// getPrincipal extracts tenant, role and carrier identity.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return Principal{Tenant: pr.Tenant, Role: pr.Role, CarrierID: pr.CarrierID}
        }
    }
    tenant := r.Header.Get("X-Tenant-Id")
    role := r.Header.Get("X-Role")
    carrierID := r.Header.Get("X-Carrier-Id")
    if tenant == "" {
        tenant = "t_demo"
    }
    if role == "" {
        role = "admin"
    }
    return Principal{Tenant: tenant, Role: role, CarrierID: carrierID}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// carrierFor resolves the carrier acting in this request: the carrier
// claim when present, else an explicit body/query value for operator
// calls.
func (p Principal) carrierFor(explicit string) string {
    if p.CarrierID != "" {
        return p.CarrierID
    }
    return explicit
}
