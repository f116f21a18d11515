package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/policy"
)

var (
	ErrTransactionNotSuccess    = errors.New("transaction is not SUCCESS")
	ErrNotMembershipTransaction = errors.New("transaction is not a membership purchase")
	ErrMembershipNotFound       = errors.New("membership tier not found")
)

// Activator turns a successful payment into an active membership plus its
// cascaded access grants. Activate is idempotent: replaying the same
// transaction, or an older transaction than the one already applied, leaves
// the membership row untouched.
type Activator struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
	nowFn    func() time.Time
}

func NewActivator(store Store, notifier Notifier, log *slog.Logger) *Activator {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &Activator{
		store:    store,
		notifier: notifier,
		log:      log,
		nowFn:    time.Now,
	}
}

type ActivationResult struct {
	UserMembership *models.UserMembership
	Created        bool
	Renewed        bool
	AlreadyApplied bool
	GroupsGranted  int
	CoursesGranted int
	RoleUpgraded   bool
	// CascadeErrors are transient grant failures. The membership row stands
	// regardless; the reconciliation auditor retries the grants.
	CascadeErrors []error
}

func (a *Activator) Activate(ctx context.Context, transaction *models.Transaction) (*ActivationResult, error) {
	if transaction.Status != models.TransactionStatusSuccess {
		return nil, ErrTransactionNotSuccess
	}
	if transaction.Type != models.TransactionTypeMembership || transaction.MembershipID == nil {
		return nil, ErrNotMembershipTransaction
	}

	membership, err := a.store.MembershipByID(ctx, *transaction.MembershipID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if membership == nil {
		return nil, fmt.Errorf("%w: %s", ErrMembershipNotFound, transaction.MembershipID)
	}
	entitlement := policy.ResolveEntitlement(membership)

	existing, err := a.store.UserMembership(ctx, transaction.UserID, membership.ID)
	if err != nil {
		return nil, fmt.Errorf("load user membership: %w", err)
	}

	now := a.nowFn()
	paidAt := now
	if transaction.PaidAt != nil {
		paidAt = *transaction.PaidAt
	}

	result := &ActivationResult{}
	switch {
	case existing == nil:
		um := &models.UserMembership{
			UserID:        transaction.UserID,
			MembershipID:  membership.ID,
			Status:        models.MembershipStatusActive,
			IsActive:      true,
			StartsAt:      paidAt,
			EndsAt:        entitlement.EndDate(paidAt),
			TransactionID: transaction.ID,
		}
		if err := a.store.SaveUserMembership(ctx, um); err != nil {
			return nil, fmt.Errorf("save user membership: %w", err)
		}
		result.UserMembership = um
		result.Created = true

	case a.alreadyApplied(ctx, existing, transaction):
		result.UserMembership = existing
		result.AlreadyApplied = true

	default:
		// Renewal: extend from the later of now and the current expiry so an
		// early renewal never truncates unexpired paid time.
		start := now
		if existing.EndsAt.After(start) {
			start = existing.EndsAt
		}
		existing.Status = models.MembershipStatusActive
		existing.IsActive = true
		existing.StartsAt = start
		existing.EndsAt = entitlement.EndDate(start)
		existing.TransactionID = transaction.ID
		if err := a.store.SaveUserMembership(ctx, existing); err != nil {
			return nil, fmt.Errorf("save user membership: %w", err)
		}
		result.UserMembership = existing
		result.Renewed = true
	}

	a.cascadeGrants(ctx, transaction, entitlement, result)
	a.upgradeRole(ctx, transaction, result)

	if !result.AlreadyApplied {
		a.notifier.MembershipActivated(ctx, transaction.UserID, membership.ID)
	}
	return result, nil
}

// alreadyApplied reports whether the membership row already reflects this
// transaction or a newer one, so a replayed or out-of-order event must not
// extend the expiry again.
func (a *Activator) alreadyApplied(ctx context.Context, existing *models.UserMembership, transaction *models.Transaction) bool {
	if existing.TransactionID == transaction.ID {
		return true
	}
	applied, err := a.store.TransactionByID(ctx, existing.TransactionID)
	if err != nil || applied == nil {
		return false
	}
	if applied.PaidAt == nil || transaction.PaidAt == nil {
		return false
	}
	return !applied.PaidAt.Before(*transaction.PaidAt)
}

// cascadeGrants upserts the derived access rows. Grant failures are collected
// and reported, never rolled back with the membership: grants are idempotent
// at-least-once additions that the auditor retries.
func (a *Activator) cascadeGrants(ctx context.Context, transaction *models.Transaction, entitlement policy.Entitlement, result *ActivationResult) {
	for _, groupID := range entitlement.GroupIDs {
		created, err := a.store.AddGroupMember(ctx, transaction.UserID, groupID)
		if err != nil {
			a.log.WarnContext(ctx, "group grant failed",
				"user_id", transaction.UserID.String(),
				"group_id", groupID.String(),
				"error", err.Error(),
			)
			result.CascadeErrors = append(result.CascadeErrors, fmt.Errorf("grant group %s: %w", groupID, err))
			continue
		}
		if created {
			result.GroupsGranted++
		}
	}
	for _, courseID := range entitlement.CourseIDs {
		created, err := a.store.AddCourseEnrollment(ctx, transaction.UserID, courseID)
		if err != nil {
			a.log.WarnContext(ctx, "course grant failed",
				"user_id", transaction.UserID.String(),
				"course_id", courseID.String(),
				"error", err.Error(),
			)
			result.CascadeErrors = append(result.CascadeErrors, fmt.Errorf("enroll course %s: %w", courseID, err))
			continue
		}
		if created {
			result.CoursesGranted++
		}
	}
}

// upgradeRole lifts the user to premium when a paid membership is active.
// One-directional: mentors and admins are never touched.
func (a *Activator) upgradeRole(ctx context.Context, transaction *models.Transaction, result *ActivationResult) {
	user, err := a.store.UserByID(ctx, transaction.UserID)
	if err != nil || user == nil {
		result.CascadeErrors = append(result.CascadeErrors, fmt.Errorf("load user %s for role upgrade: %w", transaction.UserID, err))
		return
	}
	if models.RoleRank(user.Role.Name) >= models.RoleRank(models.RolePremium) {
		return
	}
	premium, err := a.store.RoleByName(ctx, models.RolePremium)
	if err != nil || premium == nil {
		result.CascadeErrors = append(result.CascadeErrors, fmt.Errorf("load premium role: %w", err))
		return
	}
	if err := a.store.SetUserRole(ctx, user.ID, premium.ID); err != nil {
		result.CascadeErrors = append(result.CascadeErrors, fmt.Errorf("upgrade role: %w", err))
		return
	}
	result.RoleUpgraded = true
}
