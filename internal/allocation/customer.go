package allocation

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
	"github.com/iliyamo/haunted-house-queue/internal/validate"
)

// checkInput validates v's struct tags and reports the first failure
// as INVALID_INPUT.
func checkInput(v any) error {
	if err := validate.Struct(v); err != nil {
		return reject(CodeInvalidInput, "%s", err.Error())
	}
	return nil
}

// getOrCreateCustomer returns the customer keyed by data.StudentID,
// inserting it with zero reservation attempts when absent.  The insert
// ignores duplicates so two first-time calls racing on the same id
// both end up reading the single stored row.
func (e *Engine) getOrCreateCustomer(ctx context.Context, tx Tx, data CustomerData) (*model.Customer, error) {
	c, err := tx.Customers().Get(ctx, data.StudentID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	now := e.now()
	fresh := &model.Customer{
		StudentID:  data.StudentID,
		Name:       strings.TrimSpace(data.Name),
		Email:      strings.ToLower(strings.TrimSpace(data.Email)),
		Homeroom:   strings.TrimSpace(data.Homeroom),
		TicketType: strings.TrimSpace(data.TicketType),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.Customers().InsertIgnore(ctx, fresh); err != nil {
		return nil, err
	}
	return tx.Customers().Get(ctx, data.StudentID)
}

// NormalizeCode upper-cases a user supplied reservation code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
