package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/pipeline"
	"github.com/pradiptya/memberkit/internal/storetest"
)

type ledgerFixture struct {
	store      *storetest.Store
	ledger     *pipeline.Ledger
	buyer      models.User
	partner    models.User
	affiliate  models.AffiliateProfile
	membership models.Membership
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	store := storetest.New()
	store.AddRole(models.RoleMember)
	buyer := store.AddUser("Citra", models.RoleMember)
	partner := store.AddUser("Dewi", models.RoleMember)
	legacyRef := "sejoli-4521"
	affiliate := store.AddAffiliate(models.AffiliateProfile{
		UserID:    partner.ID,
		LegacyRef: &legacyRef,
	})
	membership := store.AddMembership(models.Membership{
		Name:           "Lifetime",
		Price:          997000,
		DurationKind:   models.DurationLifetime,
		CommissionType: models.CommissionPercentage,
		CommissionRate: 30,
	})
	return &ledgerFixture{
		store:      store,
		ledger:     pipeline.NewLedger(store, nil, quietLogger()),
		buyer:      buyer,
		partner:    partner,
		affiliate:  affiliate,
		membership: membership,
	}
}

func (f *ledgerFixture) attributedTransaction() models.Transaction {
	paid := time.Now().UTC()
	return f.store.AddTransaction(models.Transaction{
		UserID:       f.buyer.ID,
		Type:         models.TransactionTypeMembership,
		Amount:       f.membership.Price,
		Status:       models.TransactionStatusSuccess,
		MembershipID: &f.membership.ID,
		AffiliateID:  &f.affiliate.ID,
		PaidAt:       &paid,
	})
}

func TestRecordCommissionEndToEnd(t *testing.T) {
	f := newLedgerFixture(t)
	transaction := f.attributedTransaction()

	result, err := f.ledger.RecordCommission(context.Background(), &transaction)
	if err != nil {
		t.Fatalf("record commission: %v", err)
	}
	if !result.Created {
		t.Fatal("expected a created conversion")
	}
	if result.Conversion.CommissionAmount != 299100 {
		t.Fatalf("expected commission 299100, got %d", result.Conversion.CommissionAmount)
	}
	wallet, _ := f.store.WalletByUserID(context.Background(), f.partner.ID)
	if wallet == nil || wallet.Balance != 299100 {
		t.Fatalf("expected wallet balance 299100, got %+v", wallet)
	}
	affiliate, _ := f.store.AffiliateByID(context.Background(), f.affiliate.ID)
	if affiliate.TotalEarnings != 299100 || affiliate.TotalConversions != 1 {
		t.Fatalf("expected counters earnings=299100 conversions=1, got %d/%d",
			affiliate.TotalEarnings, affiliate.TotalConversions)
	}
}

func TestRecordCommissionIsIdempotent(t *testing.T) {
	f := newLedgerFixture(t)
	transaction := f.attributedTransaction()

	first, err := f.ledger.RecordCommission(context.Background(), &transaction)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	second, err := f.ledger.RecordCommission(context.Background(), &transaction)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if second.Created {
		t.Fatal("expected replay to return the existing conversion")
	}
	if first.Conversion.ID != second.Conversion.ID {
		t.Fatal("expected the same conversion row")
	}

	conversions, _ := f.store.ListConversions(context.Background())
	if len(conversions) != 1 {
		t.Fatalf("expected exactly one conversion, got %d", len(conversions))
	}
	wallet, _ := f.store.WalletByUserID(context.Background(), f.partner.ID)
	if wallet.Balance != 299100 {
		t.Fatalf("expected a single wallet credit, balance %d", wallet.Balance)
	}
}

func TestRecordCommissionResolvesLegacyRef(t *testing.T) {
	f := newLedgerFixture(t)
	paid := time.Now().UTC()
	legacyRef := "sejoli-4521"
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:             f.buyer.ID,
		Type:               models.TransactionTypeMembership,
		Amount:             f.membership.Price,
		Status:             models.TransactionStatusSuccess,
		MembershipID:       &f.membership.ID,
		LegacyAffiliateRef: &legacyRef,
		PaidAt:             &paid,
	})

	result, err := f.ledger.RecordCommission(context.Background(), &transaction)
	if err != nil {
		t.Fatalf("record commission: %v", err)
	}
	if result.Conversion.AffiliateID != f.affiliate.ID {
		t.Fatal("expected legacy ref to map to the affiliate profile")
	}
}

func TestRecordCommissionUnattributableLegacyRef(t *testing.T) {
	f := newLedgerFixture(t)
	paid := time.Now().UTC()
	unknown := "sejoli-unknown"
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:             f.buyer.ID,
		Type:               models.TransactionTypeMembership,
		Amount:             f.membership.Price,
		Status:             models.TransactionStatusSuccess,
		MembershipID:       &f.membership.ID,
		LegacyAffiliateRef: &unknown,
		PaidAt:             &paid,
	})

	_, err := f.ledger.RecordCommission(context.Background(), &transaction)
	if !errors.Is(err, pipeline.ErrUnattributable) {
		t.Fatalf("expected ErrUnattributable, got %v", err)
	}
	conversions, _ := f.store.ListConversions(context.Background())
	if len(conversions) != 0 {
		t.Fatal("unattributable commission must not create a ledger entry")
	}
}

func TestRecordCommissionWithoutAttribution(t *testing.T) {
	f := newLedgerFixture(t)
	paid := time.Now().UTC()
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:       f.buyer.ID,
		Type:         models.TransactionTypeMembership,
		Amount:       f.membership.Price,
		Status:       models.TransactionStatusSuccess,
		MembershipID: &f.membership.ID,
		PaidAt:       &paid,
	})

	if _, err := f.ledger.RecordCommission(context.Background(), &transaction); !errors.Is(err, pipeline.ErrNoAttribution) {
		t.Fatalf("expected ErrNoAttribution, got %v", err)
	}
}

func TestRecordCommissionMissingPolicyDefaultsToZero(t *testing.T) {
	f := newLedgerFixture(t)
	paid := time.Now().UTC()
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:      f.buyer.ID,
		Type:        models.TransactionTypeProduct,
		Amount:      150000,
		Status:      models.TransactionStatusSuccess,
		AffiliateID: &f.affiliate.ID,
		PaidAt:      &paid,
	})

	result, err := f.ledger.RecordCommission(context.Background(), &transaction)
	if err != nil {
		t.Fatalf("record commission: %v", err)
	}
	if !result.ZeroDefaulted {
		t.Fatal("expected zero-defaulted commission to be reported")
	}
	if result.Conversion.CommissionAmount != 0 {
		t.Fatalf("expected zero commission, got %d", result.Conversion.CommissionAmount)
	}
}

func TestRecordCommissionFlatCappedAtSale(t *testing.T) {
	f := newLedgerFixture(t)
	flat := f.store.AddMembership(models.Membership{
		Name:           "Starter",
		Price:          30000,
		DurationKind:   models.DurationFixed,
		DurationMonths: 1,
		CommissionType: models.CommissionFlat,
		CommissionRate: 50000,
	})
	paid := time.Now().UTC()
	transaction := f.store.AddTransaction(models.Transaction{
		UserID:       f.buyer.ID,
		Type:         models.TransactionTypeMembership,
		Amount:       flat.Price,
		Status:       models.TransactionStatusSuccess,
		MembershipID: &flat.ID,
		AffiliateID:  &f.affiliate.ID,
		PaidAt:       &paid,
	})

	result, err := f.ledger.RecordCommission(context.Background(), &transaction)
	if err != nil {
		t.Fatalf("record commission: %v", err)
	}
	if result.Conversion.CommissionAmount != 30000 {
		t.Fatalf("expected commission capped at 30000, got %d", result.Conversion.CommissionAmount)
	}
}
