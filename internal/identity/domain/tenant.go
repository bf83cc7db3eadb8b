package domain

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Plan is the billing tier of a store. Only the ceilings are modelled here,
// enforcement happens in the catalogue and order services.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanBasic      Plan = "basic"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

// PlanLimits are per-plan ceilings. Zero means unlimited.
type PlanLimits struct {
	MaxProducts       int
	MaxOrdersPerMonth int
}

var planLimits = map[Plan]PlanLimits{
	PlanFree:       {MaxProducts: 10, MaxOrdersPerMonth: 50},
	PlanBasic:      {MaxProducts: 100, MaxOrdersPerMonth: 500},
	PlanPremium:    {MaxProducts: 1000, MaxOrdersPerMonth: 5000},
	PlanEnterprise: {},
}

func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PlanFree, nil
	}
	if _, ok := planLimits[p]; !ok {
		return "", fmt.Errorf("unknown plan %q", s)
	}
	return p, nil
}

func (p Plan) Limits() PlanLimits { return planLimits[p] }

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
)

// Tenant is a store. Domain is unique across all tenants.
type Tenant struct {
	ID        string
	Name      string
	Domain    string
	OwnerID   string
	Plan      Plan
	Status    TenantStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeDomain lower-cases a host and strips any port so that
// "Store-A.example.com:8443" and "store-a.example.com" compare equal.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	return strings.TrimSuffix(d, ".")
}
