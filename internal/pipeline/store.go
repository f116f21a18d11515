package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/pradiptya/memberkit/internal/models"
)

// Store is the persistence surface the activation engine and commission
// ledger run against. Lookups where absence is a normal outcome return
// (nil, nil); write methods that insert-once report whether the row was
// created so a webhook redelivery lands as a no-op.
//
// Correctness under concurrent redelivery comes from the implementation's
// uniqueness guarantees, not from locks here: SaveUserMembership upserts on
// (user, membership), RecordConversion inserts once on transaction id.
type Store interface {
	TransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	MembershipByID(ctx context.Context, id uuid.UUID) (*models.Membership, error)

	UserMembership(ctx context.Context, userID, membershipID uuid.UUID) (*models.UserMembership, error)
	SaveUserMembership(ctx context.Context, um *models.UserMembership) error
	AddGroupMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
	AddCourseEnrollment(ctx context.Context, userID, courseID uuid.UUID) (bool, error)

	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	RoleByName(ctx context.Context, name string) (*models.Role, error)
	SetUserRole(ctx context.Context, userID, roleID uuid.UUID) error

	AffiliateByID(ctx context.Context, id uuid.UUID) (*models.AffiliateProfile, error)
	AffiliateByLegacyRef(ctx context.Context, ref string) (*models.AffiliateProfile, error)
	ConversionByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.AffiliateConversion, error)

	// RecordConversion atomically inserts the conversion row, appends the
	// COMMISSION wallet transaction keyed by the same transaction id, and
	// re-derives the wallet balance and affiliate counters from the ledger.
	// Returns false when a conversion for the transaction already exists.
	RecordConversion(ctx context.Context, conversion *models.AffiliateConversion) (bool, error)

	// RefreshAffiliateAggregates rewrites the affiliate's cached counters and
	// wallet balance as a fold over its conversion and wallet rows.
	RefreshAffiliateAggregates(ctx context.Context, affiliateID uuid.UUID) error
}
