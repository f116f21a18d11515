package policy

import (
	"time"

	"github.com/google/uuid"

	"github.com/pradiptya/memberkit/internal/models"
)

// LifetimeYears is the far-future sentinel for lifetime memberships. Keeping
// lifetime as a concrete end date means the expiry sweep stays one uniform
// comparison instead of a special case on a nullable column.
const LifetimeYears = 100

// Entitlement is what a membership tier confers: a duration policy and the
// group/course access to cascade on activation.
type Entitlement struct {
	DurationKind string
	Months       int
	GroupIDs     []uuid.UUID
	CourseIDs    []uuid.UUID
}

// ResolveEntitlement reads the grant set off a tier definition. The
// membership must be loaded with its groups and courses.
func ResolveEntitlement(membership *models.Membership) Entitlement {
	ent := Entitlement{
		DurationKind: membership.DurationKind,
		Months:       membership.DurationMonths,
	}
	for _, group := range membership.Groups {
		ent.GroupIDs = append(ent.GroupIDs, group.ID)
	}
	for _, course := range membership.Courses {
		ent.CourseIDs = append(ent.CourseIDs, course.ID)
	}
	return ent
}

// EndDate computes the expiry for a membership starting at start, using
// calendar-month arithmetic for fixed durations.
func (e Entitlement) EndDate(start time.Time) time.Time {
	if e.DurationKind == models.DurationLifetime {
		return start.AddDate(LifetimeYears, 0, 0)
	}
	return start.AddDate(0, e.Months, 0)
}
