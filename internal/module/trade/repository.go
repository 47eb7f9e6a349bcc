package trade

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Repository defines the interface for trade data access.
type Repository interface {
	// Charge operations
	CreateCharge(ctx context.Context, charge *Charge) error
	GetCharge(ctx context.Context, chargeNo string) (*Charge, error)
	GetChargeByPlatformTradeNo(ctx context.Context, platform, platformTradeNo string) (*Charge, error)
	UpdateCharge(ctx context.Context, charge *Charge, expectedVersion int64) error
	ListChargesByOrder(ctx context.Context, appID int64, orderNo string) ([]*Charge, error)
	ListCharges(ctx context.Context, appID int64, query *ListChargesQuery) ([]*Charge, int64, error)
	CountByStatus(ctx context.Context, appIDFrom, appIDTo int64) ([]StatusCount, error)

	// Refund operations
	CreateRefund(ctx context.Context, refund *Refund) error
	GetRefund(ctx context.Context, refundNo string) (*Refund, error)
	UpdateRefund(ctx context.Context, refund *Refund, expectedVersion int64) error
	ListRefundsByCharge(ctx context.Context, chargeNo string) ([]*Refund, error)

	// Notify event operations
	CreateNotifyEvent(ctx context.Context, event *NotifyEvent) error
	GetNotifyEvent(ctx context.Context, platform, eventID string) (*NotifyEvent, error)
	MarkNotifyEventProcessed(ctx context.Context, id int64, processErr error) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new trade repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// --- Charge Operations ---

func (r *repository) CreateCharge(ctx context.Context, charge *Charge) error {
	if err := r.db.WithContext(ctx).Create(charge).Error; err != nil {
		return fmt.Errorf("create charge: %w", err)
	}
	return nil
}

func (r *repository) GetCharge(ctx context.Context, chargeNo string) (*Charge, error) {
	var charge Charge
	err := r.db.WithContext(ctx).First(&charge, "charge_no = ?", chargeNo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, fmt.Errorf("get charge: %w", err)
	}
	return &charge, nil
}

func (r *repository) GetChargeByPlatformTradeNo(ctx context.Context, platform, platformTradeNo string) (*Charge, error) {
	var charge Charge
	err := r.db.WithContext(ctx).
		First(&charge, "platform = ? AND platform_trade_no = ?", platform, platformTradeNo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, fmt.Errorf("get charge by platform trade no: %w", err)
	}
	return &charge, nil
}

// UpdateCharge persists the charge only if nobody else has touched the
// row since it was read. The version check keeps concurrent refreshes
// from clobbering each other.
func (r *repository) UpdateCharge(ctx context.Context, charge *Charge, expectedVersion int64) error {
	charge.Version = expectedVersion + 1
	result := r.db.WithContext(ctx).
		Model(&Charge{}).
		Where("charge_no = ? AND version = ?", charge.ChargeNo, expectedVersion).
		Select("status", "credential", "platform_trade_no", "refunded_amount", "paid_at", "version", "updated_at").
		Updates(charge)
	if result.Error != nil {
		return fmt.Errorf("update charge: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (r *repository) ListChargesByOrder(ctx context.Context, appID int64, orderNo string) ([]*Charge, error) {
	var charges []*Charge
	err := r.db.WithContext(ctx).
		Where("app_id = ? AND order_no = ?", appID, orderNo).
		Order("created_at DESC").
		Find(&charges).Error
	if err != nil {
		return nil, fmt.Errorf("list charges by order: %w", err)
	}
	return charges, nil
}

func (r *repository) ListCharges(ctx context.Context, appID int64, query *ListChargesQuery) ([]*Charge, int64, error) {
	db := r.db.WithContext(ctx).Model(&Charge{}).Where("app_id = ?", appID)
	if query.OrderNo != "" {
		db = db.Where("order_no = ?", query.OrderNo)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count charges: %w", err)
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	perPage := query.PerPage
	if perPage < 1 {
		perPage = 20
	}

	var charges []*Charge
	err := db.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&charges).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list charges: %w", err)
	}
	return charges, total, nil
}

func (r *repository) CountByStatus(ctx context.Context, appIDFrom, appIDTo int64) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&Charge{}).
		Select("status, COUNT(*) AS count").
		Where("app_id BETWEEN ? AND ?", appIDFrom, appIDTo).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count charges by status: %w", err)
	}
	return counts, nil
}

// --- Refund Operations ---

func (r *repository) CreateRefund(ctx context.Context, refund *Refund) error {
	if err := r.db.WithContext(ctx).Create(refund).Error; err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

func (r *repository) GetRefund(ctx context.Context, refundNo string) (*Refund, error) {
	var refund Refund
	err := r.db.WithContext(ctx).First(&refund, "refund_no = ?", refundNo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("get refund: %w", err)
	}
	return &refund, nil
}

func (r *repository) UpdateRefund(ctx context.Context, refund *Refund, expectedVersion int64) error {
	refund.Version = expectedVersion + 1
	result := r.db.WithContext(ctx).
		Model(&Refund{}).
		Where("refund_no = ? AND version = ?", refund.RefundNo, expectedVersion).
		Select("status", "platform_refund_no", "succeeded_at", "version", "updated_at").
		Updates(refund)
	if result.Error != nil {
		return fmt.Errorf("update refund: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (r *repository) ListRefundsByCharge(ctx context.Context, chargeNo string) ([]*Refund, error) {
	var refunds []*Refund
	err := r.db.WithContext(ctx).
		Where("charge_no = ?", chargeNo).
		Order("created_at DESC").
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("list refunds by charge: %w", err)
	}
	return refunds, nil
}

// --- Notify Event Operations ---

func (r *repository) CreateNotifyEvent(ctx context.Context, event *NotifyEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		// The unique (platform, event_id) index rejects the insert when
		// a concurrent delivery of the same notification got in first.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateNotifyEvent
		}
		return fmt.Errorf("create notify event: %w", err)
	}
	return nil
}

func (r *repository) GetNotifyEvent(ctx context.Context, platform, eventID string) (*NotifyEvent, error) {
	var event NotifyEvent
	err := r.db.WithContext(ctx).
		First(&event, "platform = ? AND event_id = ?", platform, eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notify event: %w", err)
	}
	return &event, nil
}

func (r *repository) MarkNotifyEventProcessed(ctx context.Context, id int64, processErr error) error {
	updates := map[string]interface{}{
		"processed":    true,
		"processed_at": gorm.Expr("NOW()"),
		"error":        nil,
	}
	if processErr != nil {
		errStr := processErr.Error()
		updates["error"] = errStr
	}
	err := r.db.WithContext(ctx).
		Model(&NotifyEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark notify event processed: %w", err)
	}
	return nil
}
