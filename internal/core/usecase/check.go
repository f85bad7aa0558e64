package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/ports"
)

// CheckUseCase verifies a single identifier without touching any session.
type CheckUseCase struct {
	verifier ports.PaymentVerifier
	now      func() time.Time
}

func NewCheckUseCase(verifier ports.PaymentVerifier) *CheckUseCase {
	return &CheckUseCase{
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// VerifyOne rejects a blank identifier before any request is sent.
func (uc *CheckUseCase) VerifyOne(ctx context.Context, identifier string) (domain.ItemRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.ItemRecord{}, domain.WrapError(domain.ErrInvalidInput, "verify prn", errors.New("PRN must not be empty"))
	}
	rec := domain.NewItemRecord(identifier)
	return domain.ApplyOutcome(rec, uc.verifier.Verify(ctx, rec.Identifier), uc.now()), nil
}
