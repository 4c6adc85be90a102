// Payment events and pending invoices.
//
// Payment events are immutable; the unique index on
// (provider, invoice_id, status) is the deduplication point for webhook
// re-posts. Pending invoices track issued-but-unsettled invoices and are
// deleted on cancel or terminal settlement.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/domain"
)

// InsertPaymentEvent inserts an immutable payment event row. The duplicate
// result is true when a row with the same (provider, invoice_id, status)
// already exists; that case is not an error.
func InsertPaymentEvent(ctx context.Context, db *gorm.DB, ev domain.PaymentEvent) (duplicate bool, err error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Meta == "" {
		ev.Meta = "{}"
	}
	if err := db.WithContext(ctx).Create(&ev).Error; err != nil {
		if isUniqueViolation(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// SumPaidByUser totals the amounts of paid events whose meta names userID.
// Used for the relay header's total-paid figure; currency mixing is accepted
// there the way the operators read it.
func SumPaidByUser(ctx context.Context, db *gorm.DB, userID int64) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := db.WithContext(ctx).
		Model(&domain.PaymentEvent{}).
		Where("status = ? AND json_extract(meta, '$.user_id') = ?", domain.PayStatusPaid, userID).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

// CreatePendingInvoice records an issued invoice awaiting settlement.
func CreatePendingInvoice(ctx context.Context, db *gorm.DB, inv domain.PendingInvoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(&inv).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetPendingInvoice returns the pending invoice or ErrNotFound.
func GetPendingInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.PendingInvoice, error) {
	var inv domain.PendingInvoice
	err := db.WithContext(ctx).First(&inv, "invoice_id = ?", invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// DeletePendingInvoice removes a settled or cancelled invoice. Deleting an
// absent row is a no-op.
func DeletePendingInvoice(ctx context.Context, db *gorm.DB, invoiceID string) error {
	return db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Delete(&domain.PendingInvoice{}).Error
}
