package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/pipeline"
	"github.com/pradiptya/memberkit/internal/policy"
)

type Mode int

const (
	DryRun Mode = iota
	Repair
)

const (
	FindingMissingActivation        = "MISSING_ACTIVATION"
	FindingMissingConversion        = "MISSING_CONVERSION"
	FindingDuplicateConversion      = "DUPLICATE_CONVERSION"
	FindingUnattributableCommission = "UNATTRIBUTABLE_COMMISSION"
	FindingCommissionMismatch       = "COMMISSION_MISMATCH"
	FindingWalletMismatch           = "WALLET_MISMATCH"
	FindingCounterMismatch          = "COUNTER_MISMATCH"
	FindingRoleMismatch             = "ROLE_MISMATCH"
)

// walletTolerance absorbs sub-unit rounding left behind by the migrated
// system. Anything past one rupiah is real drift.
const walletTolerance int64 = 1

type Finding struct {
	Kind     string `json:"kind"`
	EntityID string `json:"entity_id"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Repaired bool   `json:"repaired"`
}

type Report struct {
	Mode                Mode      `json:"-"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	TransactionsChecked int       `json:"transactions_checked"`
	AffiliatesChecked   int       `json:"affiliates_checked"`
	UsersChecked        int       `json:"users_checked"`
	Findings            []Finding `json:"findings"`
}

// Unrepaired counts findings still standing after the run. Non-zero means an
// unhealthy data set.
func (r *Report) Unrepaired() int {
	n := 0
	for _, f := range r.Findings {
		if !f.Repaired {
			n++
		}
	}
	return n
}

// Auditor is the safety net for events that were missed, double-applied, or
// applied before the current code was correct. It scans the full data set for
// invariant violations and, in repair mode, heals the ones that are safe to
// heal by re-invoking the idempotent engines or re-deriving cached state.
// Destructive corrections (deleting duplicate ledger entries, rewriting
// commission amounts) are always report-only.
type Auditor struct {
	store     Store
	activator *pipeline.Activator
	ledger    *pipeline.Ledger
	log       *slog.Logger
	nowFn     func() time.Time
}

func NewAuditor(store Store, activator *pipeline.Activator, ledger *pipeline.Ledger, log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{
		store:     store,
		activator: activator,
		ledger:    ledger,
		log:       log,
		nowFn:     time.Now,
	}
}

func (a *Auditor) Run(ctx context.Context, mode Mode) (*Report, error) {
	report := &Report{Mode: mode, StartedAt: a.nowFn()}

	transactions, err := a.store.ListSuccessTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	memberships, err := a.store.ListUserMemberships(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user memberships: %w", err)
	}
	conversions, err := a.store.ListConversions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}

	type pair struct{ user, membership uuid.UUID }
	membershipByPair := make(map[pair]bool, len(memberships))
	for _, um := range memberships {
		membershipByPair[pair{um.UserID, um.MembershipID}] = true
	}
	conversionsByTransaction := make(map[uuid.UUID][]models.AffiliateConversion)
	for _, conversion := range conversions {
		conversionsByTransaction[conversion.TransactionID] = append(conversionsByTransaction[conversion.TransactionID], conversion)
	}

	for i := range transactions {
		transaction := &transactions[i]
		report.TransactionsChecked++

		if transaction.Type == models.TransactionTypeMembership && transaction.MembershipID != nil {
			if !membershipByPair[pair{transaction.UserID, *transaction.MembershipID}] {
				a.checkMissingActivation(ctx, mode, transaction, report)
			}
		}
		if transaction.AffiliateID != nil || transaction.LegacyAffiliateRef != nil {
			a.checkConversion(ctx, mode, transaction, conversionsByTransaction[transaction.ID], report)
		}
	}

	if err := a.checkAffiliates(ctx, mode, report); err != nil {
		return nil, err
	}
	if err := a.checkRoles(ctx, mode, report); err != nil {
		return nil, err
	}

	report.FinishedAt = a.nowFn()
	a.log.InfoContext(ctx, "reconciliation finished",
		"transactions", report.TransactionsChecked,
		"affiliates", report.AffiliatesChecked,
		"findings", len(report.Findings),
		"unrepaired", report.Unrepaired(),
	)
	return report, nil
}

func (a *Auditor) checkMissingActivation(ctx context.Context, mode Mode, transaction *models.Transaction, report *Report) {
	finding := Finding{
		Kind:     FindingMissingActivation,
		EntityID: transaction.ID.String(),
		Expected: fmt.Sprintf("user membership for user %s tier %s", transaction.UserID, transaction.MembershipID),
		Actual:   "none",
	}
	if mode == Repair {
		if _, err := a.activator.Activate(ctx, transaction); err != nil {
			a.log.WarnContext(ctx, "activation repair failed",
				"transaction_id", transaction.ID.String(), "error", err.Error())
		} else {
			finding.Repaired = true
		}
	}
	report.Findings = append(report.Findings, finding)
}

func (a *Auditor) checkConversion(ctx context.Context, mode Mode, transaction *models.Transaction, existing []models.AffiliateConversion, report *Report) {
	switch len(existing) {
	case 0:
		if !a.attributable(ctx, transaction) {
			report.Findings = append(report.Findings, Finding{
				Kind:     FindingUnattributableCommission,
				EntityID: transaction.ID.String(),
				Expected: "an affiliate profile matching the attribution",
				Actual:   fmt.Sprintf("no mapping for legacy ref %s", deref(transaction.LegacyAffiliateRef)),
			})
			return
		}
		finding := Finding{
			Kind:     FindingMissingConversion,
			EntityID: transaction.ID.String(),
			Expected: "one affiliate conversion",
			Actual:   "none",
		}
		if mode == Repair {
			if _, err := a.ledger.RecordCommission(ctx, transaction); err != nil {
				a.log.WarnContext(ctx, "commission repair failed",
					"transaction_id", transaction.ID.String(), "error", err.Error())
			} else {
				finding.Repaired = true
			}
		}
		report.Findings = append(report.Findings, finding)

	case 1:
		a.checkCommissionAmount(ctx, transaction, &existing[0], report)

	default:
		// Duplicates are flagged for manual merge. Deleting ledger entries is
		// destructive and must stay a reviewed action.
		report.Findings = append(report.Findings, Finding{
			Kind:     FindingDuplicateConversion,
			EntityID: transaction.ID.String(),
			Expected: "one affiliate conversion",
			Actual:   fmt.Sprintf("%d conversions", len(existing)),
		})
	}
}

// checkCommissionAmount re-derives the commission from the authoritative
// per-membership policy and flags disagreement. The stored amount may come
// from a historical flat-table convention; which one was "correct" is a
// manual call, so this is report-only in every mode.
func (a *Auditor) checkCommissionAmount(ctx context.Context, transaction *models.Transaction, conversion *models.AffiliateConversion, report *Report) {
	if transaction.MembershipID == nil {
		return
	}
	membership, err := a.store.MembershipByID(ctx, *transaction.MembershipID)
	if err != nil || membership == nil {
		return
	}
	expected, err := policy.ResolveCommission(membership.CommissionType, membership.CommissionRate, transaction.Amount)
	if err != nil {
		return
	}
	if expected != conversion.CommissionAmount {
		report.Findings = append(report.Findings, Finding{
			Kind:     FindingCommissionMismatch,
			EntityID: conversion.ID.String(),
			Expected: fmt.Sprintf("%d", expected),
			Actual:   fmt.Sprintf("%d", conversion.CommissionAmount),
		})
	}
}

func (a *Auditor) attributable(ctx context.Context, transaction *models.Transaction) bool {
	if transaction.AffiliateID != nil {
		affiliate, err := a.store.AffiliateByID(ctx, *transaction.AffiliateID)
		return err == nil && affiliate != nil
	}
	affiliate, err := a.store.AffiliateByLegacyRef(ctx, *transaction.LegacyAffiliateRef)
	return err == nil && affiliate != nil
}

func (a *Auditor) checkAffiliates(ctx context.Context, mode Mode, report *Report) error {
	affiliates, err := a.store.ListAffiliates(ctx)
	if err != nil {
		return fmt.Errorf("list affiliates: %w", err)
	}
	conversions, err := a.store.ListConversions(ctx)
	if err != nil {
		return fmt.Errorf("list conversions: %w", err)
	}

	earningsByAffiliate := make(map[uuid.UUID]int64)
	countByAffiliate := make(map[uuid.UUID]int64)
	for _, conversion := range conversions {
		earningsByAffiliate[conversion.AffiliateID] += conversion.CommissionAmount
		countByAffiliate[conversion.AffiliateID]++
	}

	for i := range affiliates {
		affiliate := &affiliates[i]
		report.AffiliatesChecked++

		wantEarnings := earningsByAffiliate[affiliate.ID]
		wantCount := countByAffiliate[affiliate.ID]
		if affiliate.TotalEarnings != wantEarnings || affiliate.TotalConversions != wantCount {
			finding := Finding{
				Kind:     FindingCounterMismatch,
				EntityID: affiliate.ID.String(),
				Expected: fmt.Sprintf("earnings=%d conversions=%d", wantEarnings, wantCount),
				Actual:   fmt.Sprintf("earnings=%d conversions=%d", affiliate.TotalEarnings, affiliate.TotalConversions),
			}
			finding.Repaired = a.refresh(ctx, mode, affiliate.ID)
			report.Findings = append(report.Findings, finding)
		}

		wallet, err := a.store.WalletByUserID(ctx, affiliate.UserID)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}
		if wallet == nil {
			if wantEarnings > 0 {
				finding := Finding{
					Kind:     FindingWalletMismatch,
					EntityID: affiliate.ID.String(),
					Expected: fmt.Sprintf("wallet with balance %d", wantEarnings),
					Actual:   "no wallet",
				}
				finding.Repaired = a.refresh(ctx, mode, affiliate.ID)
				report.Findings = append(report.Findings, finding)
			}
			continue
		}
		ledgerSum, err := a.store.WalletTransactionSum(ctx, wallet.ID)
		if err != nil {
			return fmt.Errorf("sum wallet transactions: %w", err)
		}
		if abs(wallet.Balance-ledgerSum) > walletTolerance {
			finding := Finding{
				Kind:     FindingWalletMismatch,
				EntityID: wallet.ID.String(),
				Expected: fmt.Sprintf("%d", ledgerSum),
				Actual:   fmt.Sprintf("%d", wallet.Balance),
			}
			finding.Repaired = a.refresh(ctx, mode, affiliate.ID)
			report.Findings = append(report.Findings, finding)
		}
	}
	return nil
}

// refresh rewrites derived state as a fold over the ledger at write time, so
// a concurrent credit between our read and the repair write is folded in
// rather than overwritten.
func (a *Auditor) refresh(ctx context.Context, mode Mode, affiliateID uuid.UUID) bool {
	if mode != Repair {
		return false
	}
	if err := a.store.RefreshAffiliateAggregates(ctx, affiliateID); err != nil {
		a.log.WarnContext(ctx, "aggregate repair failed",
			"affiliate_id", affiliateID.String(), "error", err.Error())
		return false
	}
	return true
}

func (a *Auditor) checkRoles(ctx context.Context, mode Mode, report *Report) error {
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	memberships, err := a.store.ListUserMemberships(ctx)
	if err != nil {
		return fmt.Errorf("list user memberships: %w", err)
	}

	activeByUser := make(map[uuid.UUID][]models.UserMembership)
	for _, um := range memberships {
		if um.Status == models.MembershipStatusActive {
			activeByUser[um.UserID] = append(activeByUser[um.UserID], um)
		}
	}

	for i := range users {
		user := &users[i]
		report.UsersChecked++
		active := activeByUser[user.ID]
		rank := models.RoleRank(user.Role.Name)

		if rank == models.RoleRank(models.RolePremium) && len(active) == 0 {
			report.Findings = append(report.Findings, Finding{
				Kind:     FindingRoleMismatch,
				EntityID: user.ID.String(),
				Expected: "at least one ACTIVE membership for premium role",
				Actual:   "none",
			})
			continue
		}

		// Role downgraded out of band while memberships stayed ACTIVE: the
		// memberships follow the role and are cancelled, not left dangling.
		if rank < models.RoleRank(models.RolePremium) && len(active) > 0 {
			for _, um := range active {
				finding := Finding{
					Kind:     FindingRoleMismatch,
					EntityID: um.ID.String(),
					Expected: fmt.Sprintf("CANCELLED membership for downgraded role %q", user.Role.Name),
					Actual:   models.MembershipStatusActive,
				}
				if mode == Repair {
					if err := a.store.CancelUserMembership(ctx, um.ID); err != nil {
						a.log.WarnContext(ctx, "membership cancel failed",
							"user_membership_id", um.ID.String(), "error", err.Error())
					} else {
						finding.Repaired = true
					}
				}
				report.Findings = append(report.Findings, finding)
			}
		}
	}
	return nil
}

// SweepExpired marks ACTIVE memberships whose end date has passed as EXPIRED.
func (a *Auditor) SweepExpired(ctx context.Context) (int64, error) {
	return a.store.ExpireDueMemberships(ctx, a.nowFn())
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
