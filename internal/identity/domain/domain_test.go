package domain_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/stretchr/testify/require"
)

func TestRoleOrdering(t *testing.T) {
	roles := []domain.Role{domain.RoleMember, domain.RoleStaff, domain.RoleAdmin, domain.RoleOwner}

	for i, held := range roles {
		for j, min := range roles {
			require.Equal(t, i >= j, held.AtLeast(min), "%s >= %s", held, min)
		}
	}

	require.False(t, domain.Role("root").AtLeast(domain.RoleMember))
	require.False(t, domain.RoleOwner.AtLeast(domain.Role("")))
}

func TestParseRole(t *testing.T) {
	r, err := domain.ParseRole("admin")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, r)

	_, err = domain.ParseRole("superuser")
	require.Error(t, err)
	_, err = domain.ParseRole("Admin")
	require.Error(t, err)
}

func TestNormalizeDomain(t *testing.T) {
	cases := map[string]string{
		"store-a.example.com":      "store-a.example.com",
		" Store-A.Example.com ":    "store-a.example.com",
		"store-a.example.com:8443": "store-a.example.com",
		"store-a.example.com.":     "store-a.example.com",
		"":                         "",
		"localhost:8080":           "localhost",
	}
	for in, want := range cases {
		require.Equal(t, want, domain.NormalizeDomain(in), "input %q", in)
	}
}

func TestParsePlan(t *testing.T) {
	p, err := domain.ParsePlan("")
	require.NoError(t, err)
	require.Equal(t, domain.PlanFree, p)

	p, err = domain.ParsePlan("Premium")
	require.NoError(t, err)
	require.Equal(t, domain.PlanPremium, p)
	require.Equal(t, 1000, p.Limits().MaxProducts)
	require.Zero(t, domain.PlanEnterprise.Limits().MaxProducts)

	_, err = domain.ParsePlan("platinum")
	require.Error(t, err)
}

func TestOneTimeCodeState(t *testing.T) {
	now := time.Now()
	c := domain.OneTimeCode{ExpiresAt: now.Add(time.Minute)}

	require.True(t, c.Active())
	require.False(t, c.Expired(now))
	require.True(t, c.Expired(now.Add(time.Minute)))

	c.ConsumedAt = &now
	require.False(t, c.Active())
}

func TestRefreshSessionUsable(t *testing.T) {
	s := domain.RefreshSession{}
	require.True(t, s.Usable())

	s.ReplacedBy = "next"
	require.False(t, s.Usable())

	now := time.Now()
	require.False(t, domain.RefreshSession{RevokedAt: &now}.Usable())
}
