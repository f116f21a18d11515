package policy_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/policy"
)

func TestEndDateFixedUsesCalendarMonths(t *testing.T) {
	ent := policy.Entitlement{DurationKind: models.DurationFixed, Months: 3}

	start := time.Date(2026, time.January, 31, 10, 0, 0, 0, time.UTC)
	got := ent.EndDate(start)
	want := start.AddDate(0, 3, 0)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEndDateLifetimeSentinel(t *testing.T) {
	ent := policy.Entitlement{DurationKind: models.DurationLifetime}

	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	got := ent.EndDate(start)
	if got.Year() != start.Year()+policy.LifetimeYears {
		t.Fatalf("expected lifetime end ~%d years out, got %v", policy.LifetimeYears, got)
	}
}

func TestResolveEntitlementCollectsGrants(t *testing.T) {
	groupID := uuid.New()
	courseA := uuid.New()
	courseB := uuid.New()
	membership := &models.Membership{
		DurationKind:   models.DurationFixed,
		DurationMonths: 12,
		Groups:         []models.Group{{ID: groupID}},
		Courses:        []models.Course{{ID: courseA}, {ID: courseB}},
	}

	ent := policy.ResolveEntitlement(membership)
	if ent.Months != 12 {
		t.Fatalf("expected 12 months, got %d", ent.Months)
	}
	if len(ent.GroupIDs) != 1 || ent.GroupIDs[0] != groupID {
		t.Fatalf("expected group grant %s, got %v", groupID, ent.GroupIDs)
	}
	if len(ent.CourseIDs) != 2 {
		t.Fatalf("expected 2 course grants, got %v", ent.CourseIDs)
	}
}
