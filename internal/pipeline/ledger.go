package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/policy"
)

var (
	ErrNoAttribution    = errors.New("transaction carries no affiliate attribution")
	ErrUnattributable   = errors.New("no affiliate profile matches the attribution")
	ErrAffiliateMissing = errors.New("attributed affiliate profile not found")
)

// Ledger records affiliate commissions. RecordCommission is keyed by
// transaction id: the conversion row and the wallet credit happen in one
// atomic step, and a replay returns the existing entry with no second credit.
type Ledger struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
}

func NewLedger(store Store, notifier Notifier, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &Ledger{store: store, notifier: notifier, log: log}
}

type ConversionResult struct {
	Conversion *models.AffiliateConversion
	Created    bool
	// ZeroDefaulted marks a commission recorded as zero because the purchased
	// item carries no policy. Reported, never silently assumed.
	ZeroDefaulted bool
}

func (l *Ledger) RecordCommission(ctx context.Context, transaction *models.Transaction) (*ConversionResult, error) {
	if transaction.Status != models.TransactionStatusSuccess {
		return nil, ErrTransactionNotSuccess
	}
	if transaction.AffiliateID == nil && transaction.LegacyAffiliateRef == nil {
		return nil, ErrNoAttribution
	}

	if existing, err := l.store.ConversionByTransactionID(ctx, transaction.ID); err != nil {
		return nil, fmt.Errorf("load conversion: %w", err)
	} else if existing != nil {
		return &ConversionResult{Conversion: existing, Created: false}, nil
	}

	affiliate, err := l.resolveAffiliate(ctx, transaction)
	if err != nil {
		return nil, err
	}

	amount, rate, zeroDefaulted, err := l.commissionFor(ctx, transaction)
	if err != nil {
		return nil, err
	}

	conversion := &models.AffiliateConversion{
		AffiliateID:      affiliate.ID,
		TransactionID:    transaction.ID,
		CommissionAmount: amount,
		CommissionRate:   rate,
	}
	created, err := l.store.RecordConversion(ctx, conversion)
	if err != nil {
		return nil, fmt.Errorf("record conversion: %w", err)
	}
	if !created {
		// Lost the insert race to a concurrent redelivery; the winner's row
		// is the ledger entry.
		existing, err := l.store.ConversionByTransactionID(ctx, transaction.ID)
		if err != nil || existing == nil {
			return nil, fmt.Errorf("conversion insert conflicted but row not found: %w", err)
		}
		return &ConversionResult{Conversion: existing, Created: false}, nil
	}

	if zeroDefaulted {
		l.log.WarnContext(ctx, "commission defaulted to zero, no policy on purchased item",
			"transaction_id", transaction.ID.String(),
			"affiliate_id", affiliate.ID.String(),
		)
	}
	l.notifier.CommissionEarned(ctx, affiliate.ID, amount)
	return &ConversionResult{Conversion: conversion, Created: true, ZeroDefaulted: zeroDefaulted}, nil
}

// resolveAffiliate maps the transaction's attribution to a profile, trying
// the internal id first and falling back to the legacy reference from the
// migrated system. A mapping miss is an error, not a silent skip: it is lost
// commission and stays retryable once mapping data improves.
func (l *Ledger) resolveAffiliate(ctx context.Context, transaction *models.Transaction) (*models.AffiliateProfile, error) {
	if transaction.AffiliateID != nil {
		affiliate, err := l.store.AffiliateByID(ctx, *transaction.AffiliateID)
		if err != nil {
			return nil, fmt.Errorf("load affiliate: %w", err)
		}
		if affiliate == nil {
			return nil, fmt.Errorf("%w: id %s", ErrAffiliateMissing, transaction.AffiliateID)
		}
		return affiliate, nil
	}

	affiliate, err := l.store.AffiliateByLegacyRef(ctx, *transaction.LegacyAffiliateRef)
	if err != nil {
		return nil, fmt.Errorf("map legacy affiliate ref: %w", err)
	}
	if affiliate == nil {
		return nil, fmt.Errorf("%w: legacy ref %q", ErrUnattributable, *transaction.LegacyAffiliateRef)
	}
	return affiliate, nil
}

func (l *Ledger) commissionFor(ctx context.Context, transaction *models.Transaction) (amount int64, rate float64, zeroDefaulted bool, err error) {
	if transaction.MembershipID == nil {
		return 0, 0, true, nil
	}
	membership, err := l.store.MembershipByID(ctx, *transaction.MembershipID)
	if err != nil {
		return 0, 0, false, fmt.Errorf("load membership: %w", err)
	}
	if membership == nil || membership.CommissionType == "" {
		return 0, 0, true, nil
	}
	amount, err = policy.ResolveCommission(membership.CommissionType, membership.CommissionRate, transaction.Amount)
	if err != nil {
		return 0, 0, false, fmt.Errorf("resolve commission: %w", err)
	}
	return amount, membership.CommissionRate, false, nil
}
