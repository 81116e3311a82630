package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/billing"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionPage is a paginated slice of usage transactions.
type TransactionPage struct {
	Transactions []models.UsageTransaction `json:"transactions"`
	TotalCount   int64                     `json:"total_count"`
	Page         int                       `json:"page"`
	PageSize     int                       `json:"page_size"`
	TotalPages   int                       `json:"total_pages"`
}

type CreditRepo interface {
	billing.Ledger
	Balance(ctx context.Context, organizationID uuid.UUID) (*models.CreditBalance, error)
	Transactions(ctx context.Context, organizationID uuid.UUID, page, pageSize int) (*TransactionPage, error)
	FindTransactionByMessageID(ctx context.Context, messageID uuid.UUID) (*models.UsageTransaction, error)
}

type creditRepo struct {
	db *gorm.DB
}

func NewCreditRepo(db *gorm.DB) CreditRepo {
	return &creditRepo{db: db}
}

// Debit subtracts credits only when the balance covers them, in a single
// conditional UPDATE, and records the usage transaction in the same
// database transaction. Concurrent debits serialize on the balance row.
// The message row is locked first so a debit and an abandonment of the
// same message cannot interleave.
func (r *creditRepo) Debit(ctx context.Context, req billing.DebitRequest) (*billing.DebitResult, error) {
	if req.Credits < 0 {
		return nil, fmt.Errorf("negative debit amount %d", req.Credits)
	}

	var result billing.DebitResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPending(tx, req.MessageID); err != nil {
			return err
		}

		var rows []struct {
			Balance   int64
			UpdatedAt time.Time
		}
		err := tx.Raw(`
			UPDATE saas_credit_balances
			SET balance = balance - ?, updated_at = NOW()
			WHERE organization_id = ? AND balance >= ?
			RETURNING balance, updated_at
		`, req.Credits, req.OrganizationID, req.Credits).Scan(&rows).Error
		if err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}

		if len(rows) == 0 {
			var count int64
			if err := tx.Model(&models.CreditBalance{}).
				Where("organization_id = ?", req.OrganizationID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("check balance row: %w", err)
			}
			if count == 0 {
				return billing.ErrBalanceRecordMissing
			}
			return billing.ErrInsufficientBalance
		}

		usage := models.UsageTransaction{
			OrganizationID: req.OrganizationID,
			MessageID:      req.MessageID,
			Amount:         req.Credits,
			BalanceAfter:   rows[0].Balance,
			Tokens:         req.Tokens,
		}
		if err := tx.Create(&usage).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return billing.ErrAlreadyBilled
			}
			return fmt.Errorf("record usage transaction: %w", err)
		}

		result = billing.DebitResult{
			TransactionID: usage.ID,
			BalanceAfter:  rows[0].Balance,
			ChargedAt:     rows[0].UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *creditRepo) Balance(ctx context.Context, organizationID uuid.UUID) (*models.CreditBalance, error) {
	var bal models.CreditBalance
	if err := r.db.WithContext(ctx).Where("organization_id = ?", organizationID).First(&bal).Error; err != nil {
		return nil, err
	}
	return &bal, nil
}

func (r *creditRepo) Transactions(ctx context.Context, organizationID uuid.UUID, page, pageSize int) (*TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	query := r.db.WithContext(ctx).Model(&models.UsageTransaction{}).Where("organization_id = ?", organizationID)

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count usage transactions: %w", err)
	}

	transactions := []models.UsageTransaction{}
	if err := query.
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to get usage transactions: %w", err)
	}

	totalPages := int(totalCount) / pageSize
	if int(totalCount)%pageSize > 0 {
		totalPages++
	}

	return &TransactionPage{
		Transactions: transactions,
		TotalCount:   totalCount,
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   totalPages,
	}, nil
}

func (r *creditRepo) FindTransactionByMessageID(ctx context.Context, messageID uuid.UUID) (*models.UsageTransaction, error) {
	var usage models.UsageTransaction
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&usage).Error; err != nil {
		return nil, err
	}
	return &usage, nil
}
