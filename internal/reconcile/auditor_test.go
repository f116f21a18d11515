package reconcile_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/pipeline"
	"github.com/pradiptya/memberkit/internal/reconcile"
	"github.com/pradiptya/memberkit/internal/storetest"
)

type fixture struct {
	store      *storetest.Store
	activator  *pipeline.Activator
	ledger     *pipeline.Ledger
	auditor    *reconcile.Auditor
	buyer      models.User
	partner    models.User
	affiliate  models.AffiliateProfile
	membership models.Membership
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storetest.New()
	for _, name := range []string{models.RoleMember, models.RolePremium, models.RoleMentor, models.RoleAdmin} {
		store.AddRole(name)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	activator := pipeline.NewActivator(store, nil, log)
	ledger := pipeline.NewLedger(store, nil, log)

	buyer := store.AddUser("Citra", models.RoleMember)
	partner := store.AddUser("Dewi", models.RoleMember)
	affiliate := store.AddAffiliate(models.AffiliateProfile{UserID: partner.ID})
	membership := store.AddMembership(models.Membership{
		Name:           "Lifetime",
		Price:          997000,
		DurationKind:   models.DurationLifetime,
		CommissionType: models.CommissionPercentage,
		CommissionRate: 30,
	})
	return &fixture{
		store:      store,
		activator:  activator,
		ledger:     ledger,
		auditor:    reconcile.NewAuditor(store, activator, ledger, log),
		buyer:      buyer,
		partner:    partner,
		affiliate:  affiliate,
		membership: membership,
	}
}

// processedSale runs one attributed SUCCESS transaction through both engines,
// leaving a fully consistent data set behind.
func (f *fixture) processedSale(t *testing.T) models.Transaction {
	t.Helper()
	paid := time.Now().UTC()
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:       f.buyer.ID,
		Type:         models.TransactionTypeMembership,
		Amount:       f.membership.Price,
		Status:       models.TransactionStatusSuccess,
		MembershipID: &f.membership.ID,
		AffiliateID:  &f.affiliate.ID,
		PaidAt:       &paid,
	})
	if _, err := f.activator.Activate(context.Background(), &transaction); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := f.ledger.RecordCommission(context.Background(), &transaction); err != nil {
		t.Fatalf("record commission: %v", err)
	}
	return transaction
}

func findingsOfKind(report *reconcile.Report, kind string) []reconcile.Finding {
	var out []reconcile.Finding
	for _, f := range report.Findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestAuditorCleanDataHasNoFindings(t *testing.T) {
	f := newFixture(t)
	f.processedSale(t)

	report, err := f.auditor.Run(context.Background(), reconcile.DryRun)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(report.Findings) != 0 {
		t.Fatalf("expected no findings on clean data, got %+v", report.Findings)
	}
}

func TestAuditorDetectsExactlyTheInjectedCorruption(t *testing.T) {
	f := newFixture(t)
	f.processedSale(t)

	// One SUCCESS membership transaction that was never activated.
	other := f.store.AddUser("Eka", models.RoleMember)
	paid := time.Now().UTC()
	f.store.AddTransaction(models.Transaction{
		UserID:       other.ID,
		Type:         models.TransactionTypeMembership,
		Amount:       f.membership.Price,
		Status:       models.TransactionStatusSuccess,
		MembershipID: &f.membership.ID,
		PaidAt:       &paid,
	})
	// One wallet whose cached balance drifted from its ledger.
	f.store.SetWalletBalance(f.partner.ID, 299100+1500000000)

	report, err := f.auditor.Run(context.Background(), reconcile.DryRun)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(report.Findings) != 2 {
		t.Fatalf("expected exactly 2 findings, got %+v", report.Findings)
	}
	if len(findingsOfKind(report, reconcile.FindingMissingActivation)) != 1 {
		t.Fatalf("expected one MISSING_ACTIVATION, got %+v", report.Findings)
	}
	wallet := findingsOfKind(report, reconcile.FindingWalletMismatch)
	if len(wallet) != 1 {
		t.Fatalf("expected one WALLET_MISMATCH, got %+v", report.Findings)
	}
	if wallet[0].Expected != "299100" {
		t.Fatalf("expected computed correct value 299100, got %s", wallet[0].Expected)
	}
	if wallet[0].Repaired {
		t.Fatal("dry run must not repair")
	}
}

func TestAuditorRepairHealsAndSecondRunIsClean(t *testing.T) {
	f := newFixture(t)
	f.processedSale(t)

	other := f.store.AddUser("Eka", models.RoleMember)
	paid := time.Now().UTC()
	f.store.AddTransaction(models.Transaction{
		UserID:       other.ID,
		Type:         models.TransactionTypeMembership,
		Amount:       f.membership.Price,
		Status:       models.TransactionStatusSuccess,
		MembershipID: &f.membership.ID,
		PaidAt:       &paid,
	})
	f.store.SetWalletBalance(f.partner.ID, 42)

	report, err := f.auditor.Run(context.Background(), reconcile.Repair)
	if err != nil {
		t.Fatalf("repair run: %v", err)
	}
	if report.Unrepaired() != 0 {
		t.Fatalf("expected all findings repaired, got %+v", report.Findings)
	}

	um, _ := f.store.UserMembership(context.Background(), other.ID, f.membership.ID)
	if um == nil || um.Status != models.MembershipStatusActive {
		t.Fatal("expected missing activation to be healed")
	}
	wallet, _ := f.store.WalletByUserID(context.Background(), f.partner.ID)
	if wallet.Balance != 299100 {
		t.Fatalf("expected wallet balance restored to 299100, got %d", wallet.Balance)
	}

	again, err := f.auditor.Run(context.Background(), reconcile.DryRun)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(again.Findings) != 0 {
		t.Fatalf("expected clean data after repair, got %+v", again.Findings)
	}
}

func TestAuditorMissingConversionRepairedThroughLedger(t *testing.T) {
	f := newFixture(t)
	paid := time.Now().UTC()
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:       f.buyer.ID,
		Type:         models.TransactionTypeMembership,
		Amount:       f.membership.Price,
		Status:       models.TransactionStatusSuccess,
		MembershipID: &f.membership.ID,
		AffiliateID:  &f.affiliate.ID,
		PaidAt:       &paid,
	})
	if _, err := f.activator.Activate(context.Background(), &transaction); err != nil {
		t.Fatalf("activate: %v", err)
	}

	report, err := f.auditor.Run(context.Background(), reconcile.Repair)
	if err != nil {
		t.Fatalf("repair run: %v", err)
	}
	missing := findingsOfKind(report, reconcile.FindingMissingConversion)
	if len(missing) != 1 || !missing[0].Repaired {
		t.Fatalf("expected repaired MISSING_CONVERSION, got %+v", report.Findings)
	}
	conversion, _ := f.store.ConversionByTransactionID(context.Background(), transaction.ID)
	if conversion == nil || conversion.CommissionAmount != 299100 {
		t.Fatalf("expected commission 299100 after repair, got %+v", conversion)
	}
}

func TestAuditorDuplicateConversionIsFlaggedNotDeleted(t *testing.T) {
	f := newFixture(t)
	transaction := f.processedSale(t)

	f.store.AddRawConversion(models.AffiliateConversion{
		AffiliateID:      f.affiliate.ID,
		TransactionID:    transaction.ID,
		CommissionAmount: 299100,
	})

	report, err := f.auditor.Run(context.Background(), reconcile.Repair)
	if err != nil {
		t.Fatalf("repair run: %v", err)
	}
	duplicates := findingsOfKind(report, reconcile.FindingDuplicateConversion)
	if len(duplicates) != 1 {
		t.Fatalf("expected one DUPLICATE_CONVERSION, got %+v", report.Findings)
	}
	if duplicates[0].Repaired {
		t.Fatal("duplicate conversions must stay a manual merge")
	}
	conversions, _ := f.store.ListConversions(context.Background())
	if len(conversions) != 2 {
		t.Fatalf("expected both ledger rows preserved, got %d", len(conversions))
	}
}

func TestAuditorUnattributableCommissionReported(t *testing.T) {
	f := newFixture(t)
	paid := time.Now().UTC()
	unknown := "sejoli-99999"
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:             f.buyer.ID,
		Type:               models.TransactionTypeMembership,
		Amount:             f.membership.Price,
		Status:             models.TransactionStatusSuccess,
		MembershipID:       &f.membership.ID,
		LegacyAffiliateRef: &unknown,
		PaidAt:             &paid,
	})
	if _, err := f.activator.Activate(context.Background(), &transaction); err != nil {
		t.Fatalf("activate: %v", err)
	}

	report, err := f.auditor.Run(context.Background(), reconcile.Repair)
	if err != nil {
		t.Fatalf("repair run: %v", err)
	}
	unattributable := findingsOfKind(report, reconcile.FindingUnattributableCommission)
	if len(unattributable) != 1 || unattributable[0].Repaired {
		t.Fatalf("expected one unrepaired UNATTRIBUTABLE_COMMISSION, got %+v", report.Findings)
	}
}

func TestAuditorCommissionMismatchIsReportOnly(t *testing.T) {
	f := newFixture(t)
	paid := time.Now().UTC()
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:       f.buyer.ID,
		Type:         models.TransactionTypeMembership,
		Amount:       f.membership.Price,
		Status:       models.TransactionStatusSuccess,
		MembershipID: &f.membership.ID,
		AffiliateID:  &f.affiliate.ID,
		PaidAt:       &paid,
	})
	if _, err := f.activator.Activate(context.Background(), &transaction); err != nil {
		t.Fatalf("activate: %v", err)
	}
	// Historical flat-table amount instead of the policy-derived 299100.
	f.store.AddRawConversion(models.AffiliateConversion{
		AffiliateID:      f.affiliate.ID,
		TransactionID:    transaction.ID,
		CommissionAmount: 250000,
	})
	if err := f.store.RefreshAffiliateAggregates(context.Background(), f.affiliate.ID); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	report, err := f.auditor.Run(context.Background(), reconcile.Repair)
	if err != nil {
		t.Fatalf("repair run: %v", err)
	}
	mismatches := findingsOfKind(report, reconcile.FindingCommissionMismatch)
	if len(mismatches) != 1 {
		t.Fatalf("expected one COMMISSION_MISMATCH, got %+v", report.Findings)
	}
	if mismatches[0].Repaired {
		t.Fatal("commission mismatch must never be auto-corrected")
	}
	if mismatches[0].Expected != "299100" || mismatches[0].Actual != "250000" {
		t.Fatalf("expected 299100 vs 250000, got %s vs %s", mismatches[0].Expected, mismatches[0].Actual)
	}
}

func TestAuditorCancelsMembershipAfterRoleDowngrade(t *testing.T) {
	f := newFixture(t)
	f.processedSale(t)

	member, err := f.store.RoleByName(context.Background(), models.RoleMember)
	if err != nil {
		t.Fatalf("role lookup: %v", err)
	}
	if err := f.store.SetUserRole(context.Background(), f.buyer.ID, member.ID); err != nil {
		t.Fatalf("downgrade: %v", err)
	}

	report, err := f.auditor.Run(context.Background(), reconcile.Repair)
	if err != nil {
		t.Fatalf("repair run: %v", err)
	}
	mismatches := findingsOfKind(report, reconcile.FindingRoleMismatch)
	if len(mismatches) != 1 || !mismatches[0].Repaired {
		t.Fatalf("expected repaired ROLE_MISMATCH, got %+v", report.Findings)
	}
	um, _ := f.store.UserMembership(context.Background(), f.buyer.ID, f.membership.ID)
	if um.Status != models.MembershipStatusCancelled {
		t.Fatalf("expected CANCELLED membership, got %s", um.Status)
	}
}

func TestAuditorFlagsPremiumRoleWithoutMembership(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser("Fajar", models.RolePremium)

	report, err := f.auditor.Run(context.Background(), reconcile.DryRun)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(findingsOfKind(report, reconcile.FindingRoleMismatch)) != 1 {
		t.Fatalf("expected one ROLE_MISMATCH, got %+v", report.Findings)
	}
}

func TestSweepExpiredMarksPastMemberships(t *testing.T) {
	f := newFixture(t)
	monthly := f.store.AddMembership(models.Membership{
		Name:           "Monthly",
		Price:          100000,
		DurationKind:   models.DurationFixed,
		DurationMonths: 1,
		CommissionType: models.CommissionPercentage,
		CommissionRate: 10,
	})
	paid := time.Now().UTC().AddDate(0, -2, 0)
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:       f.buyer.ID,
		Type:         models.TransactionTypeMembership,
		Amount:       monthly.Price,
		Status:       models.TransactionStatusSuccess,
		MembershipID: &monthly.ID,
		PaidAt:       &paid,
	})
	if _, err := f.activator.Activate(context.Background(), &transaction); err != nil {
		t.Fatalf("activate: %v", err)
	}

	expired, err := f.auditor.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired membership, got %d", expired)
	}
	um, _ := f.store.UserMembership(context.Background(), f.buyer.ID, monthly.ID)
	if um.Status != models.MembershipStatusExpired || um.IsActive {
		t.Fatalf("expected EXPIRED membership, got %+v", um)
	}
}
