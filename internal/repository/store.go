package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pradiptya/memberkit/internal/models"
)

// Store is the gorm-backed persistence layer for the activation engine, the
// commission ledger and the auditor. Idempotency is anchored in the schema:
// upsert on (user, membership) for activation, insert-once on transaction id
// for the ledger. Multiple server instances replaying the same webhook land
// on the same unique indexes, so no in-process locking is involved.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) TransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := s.db.WithContext(ctx).First(&transaction, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (s *Store) MembershipByID(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	var membership models.Membership
	err := s.db.WithContext(ctx).Preload("Groups").Preload("Courses").First(&membership, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (s *Store) UserMembership(ctx context.Context, userID, membershipID uuid.UUID) (*models.UserMembership, error) {
	var um models.UserMembership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND membership_id = ?", userID, membershipID).
		First(&um).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &um, nil
}

func (s *Store) SaveUserMembership(ctx context.Context, um *models.UserMembership) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "membership_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "is_active", "starts_at", "ends_at", "transaction_id", "updated_at",
		}),
	}).Create(um).Error
	if err != nil {
		return err
	}
	// A concurrent first activation may have won the insert; reload so the
	// caller holds the canonical row.
	return s.db.WithContext(ctx).
		Where("user_id = ? AND membership_id = ?", um.UserID, um.MembershipID).
		First(um).Error
}

func (s *Store) AddGroupMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GroupMember{UserID: userID, GroupID: groupID})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) AddCourseEnrollment(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CourseEnrollment{UserID: userID, CourseID: courseID})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Role").First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *Store) SetUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("role_id", roleID).Error
}

func (s *Store) AffiliateByID(ctx context.Context, id uuid.UUID) (*models.AffiliateProfile, error) {
	var affiliate models.AffiliateProfile
	err := s.db.WithContext(ctx).First(&affiliate, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (s *Store) AffiliateByLegacyRef(ctx context.Context, ref string) (*models.AffiliateProfile, error) {
	var affiliate models.AffiliateProfile
	err := s.db.WithContext(ctx).Where("legacy_ref = ?", ref).First(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (s *Store) ConversionByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.AffiliateConversion, error) {
	var conversion models.AffiliateConversion
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&conversion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversion, nil
}

// RecordConversion performs the ledger write as one database transaction:
// conversion row, COMMISSION wallet entry keyed by the same transaction id,
// wallet balance and affiliate counters re-derived from the ledger. A
// conflicting insert commits nothing and reports created=false.
func (s *Store) RecordConversion(ctx context.Context, conversion *models.AffiliateConversion) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affiliate models.AffiliateProfile
		if err := tx.First(&affiliate, "id = ?", conversion.AffiliateID).Error; err != nil {
			return fmt.Errorf("load affiliate: %w", err)
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).Create(conversion)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created = true

		wallet := models.Wallet{UserID: affiliate.UserID}
		if err := tx.Where(models.Wallet{UserID: affiliate.UserID}).FirstOrCreate(&wallet).Error; err != nil {
			return fmt.Errorf("ensure wallet: %w", err)
		}

		walletTx := models.WalletTransaction{
			WalletID:    wallet.ID,
			Type:        models.WalletTransactionCommission,
			Amount:      conversion.CommissionAmount,
			ReferenceID: &conversion.TransactionID,
			Description: fmt.Sprintf("Affiliate commission for transaction %s", conversion.TransactionID),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "type"}, {Name: "reference_id"}},
			DoNothing: true,
		}).Create(&walletTx).Error; err != nil {
			return fmt.Errorf("append wallet transaction: %w", err)
		}

		return refreshAggregates(tx, &affiliate, wallet.ID)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *Store) RefreshAffiliateAggregates(ctx context.Context, affiliateID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affiliate models.AffiliateProfile
		if err := tx.First(&affiliate, "id = ?", affiliateID).Error; err != nil {
			return fmt.Errorf("load affiliate: %w", err)
		}
		wallet := models.Wallet{UserID: affiliate.UserID}
		if err := tx.Where(models.Wallet{UserID: affiliate.UserID}).FirstOrCreate(&wallet).Error; err != nil {
			return fmt.Errorf("ensure wallet: %w", err)
		}
		return refreshAggregates(tx, &affiliate, wallet.ID)
	})
}

// refreshAggregates rewrites the derived values from subquery folds inside
// the caller's transaction, so the write reflects the ledger at write time
// rather than a stale read.
func refreshAggregates(tx *gorm.DB, affiliate *models.AffiliateProfile, walletID uuid.UUID) error {
	err := tx.Model(&models.Wallet{}).Where("id = ?", walletID).
		Update("balance", gorm.Expr(
			"(SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE wallet_id = ?)", walletID,
		)).Error
	if err != nil {
		return fmt.Errorf("recompute wallet balance: %w", err)
	}

	err = tx.Model(&models.AffiliateProfile{}).Where("id = ?", affiliate.ID).
		Updates(map[string]interface{}{
			"total_earnings": gorm.Expr(
				"(SELECT COALESCE(SUM(commission_amount), 0) FROM affiliate_conversions WHERE affiliate_id = ?)", affiliate.ID,
			),
			"total_conversions": gorm.Expr(
				"(SELECT COUNT(*) FROM affiliate_conversions WHERE affiliate_id = ?)", affiliate.ID,
			),
		}).Error
	if err != nil {
		return fmt.Errorf("recompute affiliate counters: %w", err)
	}
	return nil
}

func (s *Store) ListSuccessTransactions(ctx context.Context) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ?", models.TransactionStatusSuccess).
		Order("created_at").
		Find(&transactions).Error
	return transactions, err
}

func (s *Store) ListUserMemberships(ctx context.Context) ([]models.UserMembership, error) {
	var memberships []models.UserMembership
	err := s.db.WithContext(ctx).Find(&memberships).Error
	return memberships, err
}

func (s *Store) ListConversions(ctx context.Context) ([]models.AffiliateConversion, error) {
	var conversions []models.AffiliateConversion
	err := s.db.WithContext(ctx).Find(&conversions).Error
	return conversions, err
}

func (s *Store) ListAffiliates(ctx context.Context) ([]models.AffiliateProfile, error) {
	var affiliates []models.AffiliateProfile
	err := s.db.WithContext(ctx).Find(&affiliates).Error
	return affiliates, err
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Preload("Role").Find(&users).Error
	return users, err
}

func (s *Store) WalletByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Store) WalletTransactionSum(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("wallet_id = ?", walletID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (s *Store) CancelUserMembership(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.UserMembership{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    models.MembershipStatusCancelled,
			"is_active": false,
		}).Error
}

func (s *Store) ExpireDueMemberships(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.UserMembership{}).
		Where("status = ? AND ends_at < ?", models.MembershipStatusActive, now).
		Updates(map[string]interface{}{
			"status":    models.MembershipStatusExpired,
			"is_active": false,
		})
	return result.RowsAffected, result.Error
}
