// Package storetest provides an in-memory implementation of the pipeline and
// reconcile store interfaces, mirroring the unique-index semantics the
// postgres layer gets from its schema. It backs the unit suites so the
// engines can be driven through real replay and corruption scenarios.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pradiptya/memberkit/internal/models"
)

type pairKey struct {
	a, b uuid.UUID
}

type Store struct {
	mu sync.Mutex

	transactions    map[uuid.UUID]models.Transaction
	memberships     map[uuid.UUID]models.Membership
	userMemberships map[pairKey]models.UserMembership
	groupMembers    map[pairKey]bool
	enrollments     map[pairKey]bool
	users           map[uuid.UUID]models.User
	rolesByName     map[string]models.Role
	rolesByID       map[uuid.UUID]models.Role
	affiliates      map[uuid.UUID]models.AffiliateProfile
	conversions     []models.AffiliateConversion
	wallets         map[uuid.UUID]models.Wallet
	walletTxs       []models.WalletTransaction

	// FailGroupGrants makes AddGroupMember return an error, simulating
	// momentary contention on the cascade path.
	FailGroupGrants bool
}

func New() *Store {
	return &Store{
		transactions:    make(map[uuid.UUID]models.Transaction),
		memberships:     make(map[uuid.UUID]models.Membership),
		userMemberships: make(map[pairKey]models.UserMembership),
		groupMembers:    make(map[pairKey]bool),
		enrollments:     make(map[pairKey]bool),
		users:           make(map[uuid.UUID]models.User),
		rolesByName:     make(map[string]models.Role),
		rolesByID:       make(map[uuid.UUID]models.Role),
		affiliates:      make(map[uuid.UUID]models.AffiliateProfile),
		wallets:         make(map[uuid.UUID]models.Wallet),
	}
}

// Seed helpers.

func (s *Store) AddRole(name string) models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	role := models.Role{ID: uuid.New(), Name: name}
	s.rolesByName[name] = role
	s.rolesByID[role.ID] = role
	return role
}

func (s *Store) AddUser(name, roleName string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	role := s.rolesByName[roleName]
	user := models.User{
		ID:     uuid.New(),
		Name:   name,
		Email:  fmt.Sprintf("%s@example.test", uuid.NewString()[:8]),
		RoleID: role.ID,
		Role:   role,
	}
	s.users[user.ID] = user
	return user
}

func (s *Store) AddMembership(membership models.Membership) models.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	if membership.ID == uuid.Nil {
		membership.ID = uuid.New()
	}
	s.memberships[membership.ID] = membership
	return membership
}

func (s *Store) AddTransaction(transaction models.Transaction) models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if transaction.ID == uuid.Nil {
		transaction.ID = uuid.New()
	}
	if transaction.InvoiceNumber == "" {
		transaction.InvoiceNumber = fmt.Sprintf("INV-%s", uuid.NewString()[:8])
	}
	s.transactions[transaction.ID] = transaction
	return transaction
}

func (s *Store) AddAffiliate(affiliate models.AffiliateProfile) models.AffiliateProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if affiliate.ID == uuid.Nil {
		affiliate.ID = uuid.New()
	}
	if affiliate.AffiliateCode == "" {
		affiliate.AffiliateCode = uuid.NewString()[:8]
	}
	s.affiliates[affiliate.ID] = affiliate
	return affiliate
}

// AddRawConversion inserts a ledger row without touching wallets or counters,
// for building corrupted data sets. It bypasses the transaction-id uniqueness
// the real schema enforces.
func (s *Store) AddRawConversion(conversion models.AffiliateConversion) models.AffiliateConversion {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversion.ID == uuid.Nil {
		conversion.ID = uuid.New()
	}
	s.conversions = append(s.conversions, conversion)
	return conversion
}

// SetWalletBalance overwrites the cached balance without a ledger entry,
// reproducing the drift class the auditor exists to catch.
func (s *Store) SetWalletBalance(userID uuid.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet := s.wallets[userID]
	wallet.Balance = balance
	s.wallets[userID] = wallet
}

func (s *Store) GroupMemberExists(userID, groupID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupMembers[pairKey{userID, groupID}]
}

func (s *Store) EnrollmentExists(userID, courseID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrollments[pairKey{userID, courseID}]
}

// Store interface.

func (s *Store) TransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if transaction, ok := s.transactions[id]; ok {
		return &transaction, nil
	}
	return nil, nil
}

func (s *Store) MembershipByID(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if membership, ok := s.memberships[id]; ok {
		return &membership, nil
	}
	return nil, nil
}

func (s *Store) UserMembership(ctx context.Context, userID, membershipID uuid.UUID) (*models.UserMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if um, ok := s.userMemberships[pairKey{userID, membershipID}]; ok {
		return &um, nil
	}
	return nil, nil
}

func (s *Store) SaveUserMembership(ctx context.Context, um *models.UserMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{um.UserID, um.MembershipID}
	if existing, ok := s.userMemberships[key]; ok {
		um.ID = existing.ID
	} else if um.ID == uuid.Nil {
		um.ID = uuid.New()
	}
	s.userMemberships[key] = *um
	return nil
}

func (s *Store) AddGroupMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGroupGrants {
		return false, errors.New("simulated contention")
	}
	key := pairKey{userID, groupID}
	if s.groupMembers[key] {
		return false, nil
	}
	s.groupMembers[key] = true
	return true, nil
}

func (s *Store) AddCourseEnrollment(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{userID, courseID}
	if s.enrollments[key] {
		return false, nil
	}
	s.enrollments[key] = true
	return true, nil
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.Role = s.rolesByID[user.RoleID]
		return &user, nil
	}
	return nil, nil
}

func (s *Store) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role, ok := s.rolesByName[name]; ok {
		return &role, nil
	}
	return nil, nil
}

func (s *Store) SetUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	user.RoleID = roleID
	user.Role = s.rolesByID[roleID]
	s.users[userID] = user
	return nil
}

func (s *Store) AffiliateByID(ctx context.Context, id uuid.UUID) (*models.AffiliateProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if affiliate, ok := s.affiliates[id]; ok {
		return &affiliate, nil
	}
	return nil, nil
}

func (s *Store) AffiliateByLegacyRef(ctx context.Context, ref string) (*models.AffiliateProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, affiliate := range s.affiliates {
		if affiliate.LegacyRef != nil && *affiliate.LegacyRef == ref {
			return &affiliate, nil
		}
	}
	return nil, nil
}

func (s *Store) ConversionByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.AffiliateConversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversions {
		if s.conversions[i].TransactionID == transactionID {
			conversion := s.conversions[i]
			return &conversion, nil
		}
	}
	return nil, nil
}

func (s *Store) RecordConversion(ctx context.Context, conversion *models.AffiliateConversion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversions {
		if s.conversions[i].TransactionID == conversion.TransactionID {
			return false, nil
		}
	}
	affiliate, ok := s.affiliates[conversion.AffiliateID]
	if !ok {
		return false, fmt.Errorf("affiliate %s not found", conversion.AffiliateID)
	}
	if conversion.ID == uuid.Nil {
		conversion.ID = uuid.New()
	}
	s.conversions = append(s.conversions, *conversion)

	wallet := s.ensureWalletLocked(affiliate.UserID)
	ref := conversion.TransactionID
	s.walletTxs = append(s.walletTxs, models.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        models.WalletTransactionCommission,
		Amount:      conversion.CommissionAmount,
		ReferenceID: &ref,
		Description: fmt.Sprintf("Affiliate commission for transaction %s", conversion.TransactionID),
	})
	s.refreshLocked(conversion.AffiliateID)
	return true, nil
}

func (s *Store) RefreshAffiliateAggregates(ctx context.Context, affiliateID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.affiliates[affiliateID]; !ok {
		return fmt.Errorf("affiliate %s not found", affiliateID)
	}
	s.refreshLocked(affiliateID)
	return nil
}

func (s *Store) ensureWalletLocked(userID uuid.UUID) models.Wallet {
	wallet, ok := s.wallets[userID]
	if !ok {
		wallet = models.Wallet{ID: uuid.New(), UserID: userID}
		s.wallets[userID] = wallet
	}
	return wallet
}

func (s *Store) refreshLocked(affiliateID uuid.UUID) {
	affiliate := s.affiliates[affiliateID]
	wallet := s.ensureWalletLocked(affiliate.UserID)

	var earnings, count int64
	for _, conversion := range s.conversions {
		if conversion.AffiliateID == affiliateID {
			earnings += conversion.CommissionAmount
			count++
		}
	}
	affiliate.TotalEarnings = earnings
	affiliate.TotalConversions = count
	s.affiliates[affiliateID] = affiliate

	var balance int64
	for _, walletTx := range s.walletTxs {
		if walletTx.WalletID == wallet.ID {
			balance += walletTx.Amount
		}
	}
	wallet.Balance = balance
	s.wallets[affiliate.UserID] = wallet
}

// Reconcile store surface.

func (s *Store) ListSuccessTransactions(ctx context.Context) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, transaction := range s.transactions {
		if transaction.Status == models.TransactionStatusSuccess {
			out = append(out, transaction)
		}
	}
	return out, nil
}

func (s *Store) ListUserMemberships(ctx context.Context) ([]models.UserMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserMembership
	for _, um := range s.userMemberships {
		out = append(out, um)
	}
	return out, nil
}

func (s *Store) ListConversions(ctx context.Context) ([]models.AffiliateConversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AffiliateConversion, len(s.conversions))
	copy(out, s.conversions)
	return out, nil
}

func (s *Store) ListAffiliates(ctx context.Context) ([]models.AffiliateProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AffiliateProfile
	for _, affiliate := range s.affiliates {
		out = append(out, affiliate)
	}
	return out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, user := range s.users {
		user.Role = s.rolesByID[user.RoleID]
		out = append(out, user)
	}
	return out, nil
}

func (s *Store) WalletByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wallet, ok := s.wallets[userID]; ok {
		return &wallet, nil
	}
	return nil, nil
}

func (s *Store) WalletTransactionSum(ctx context.Context, walletID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, walletTx := range s.walletTxs {
		if walletTx.WalletID == walletID {
			sum += walletTx.Amount
		}
	}
	return sum, nil
}

func (s *Store) CancelUserMembership(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, um := range s.userMemberships {
		if um.ID == id {
			um.Status = models.MembershipStatusCancelled
			um.IsActive = false
			s.userMemberships[key] = um
			return nil
		}
	}
	return fmt.Errorf("user membership %s not found", id)
}

func (s *Store) ExpireDueMemberships(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired int64
	for key, um := range s.userMemberships {
		if um.Status == models.MembershipStatusActive && um.EndsAt.Before(now) {
			um.Status = models.MembershipStatusExpired
			um.IsActive = false
			s.userMemberships[key] = um
			expired++
		}
	}
	return expired, nil
}
