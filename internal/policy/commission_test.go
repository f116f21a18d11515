package policy_test

import (
	"testing"

	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/policy"
)

func TestResolveCommissionPercentage(t *testing.T) {
	got, err := policy.ResolveCommission(models.CommissionPercentage, 30, 997000)
	if err != nil {
		t.Fatalf("resolve commission: %v", err)
	}
	if got != 299100 {
		t.Fatalf("expected 299100, got %d", got)
	}
}

func TestResolveCommissionPercentageRounding(t *testing.T) {
	// 12.5% of 99 is 12.375, rounds to 12.
	got, err := policy.ResolveCommission(models.CommissionPercentage, 12.5, 99)
	if err != nil {
		t.Fatalf("resolve commission: %v", err)
	}
	if got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}

func TestResolveCommissionFlat(t *testing.T) {
	got, err := policy.ResolveCommission(models.CommissionFlat, 50000, 250000)
	if err != nil {
		t.Fatalf("resolve commission: %v", err)
	}
	if got != 50000 {
		t.Fatalf("expected 50000, got %d", got)
	}
}

func TestResolveCommissionFlatNeverExceedsSale(t *testing.T) {
	got, err := policy.ResolveCommission(models.CommissionFlat, 50000, 30000)
	if err != nil {
		t.Fatalf("resolve commission: %v", err)
	}
	if got != 30000 {
		t.Fatalf("expected commission capped at sale amount 30000, got %d", got)
	}
}

func TestResolveCommissionRejectsNegativeInputs(t *testing.T) {
	if _, err := policy.ResolveCommission(models.CommissionPercentage, 30, -1); err == nil {
		t.Fatal("expected error for negative amount")
	}
	if _, err := policy.ResolveCommission(models.CommissionPercentage, -30, 1000); err == nil {
		t.Fatal("expected error for negative rate")
	}
}

func TestResolveCommissionUnknownType(t *testing.T) {
	if _, err := policy.ResolveCommission("TIERED", 30, 1000); err == nil {
		t.Fatal("expected error for unknown commission type")
	}
}
