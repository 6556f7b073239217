package allocation

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/queue"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

// Sweep pass names reported in failures.
const (
	PassExpire   = "expire"
	PassFinalize = "finalize"
)

// SweepFailure records a reservation the sweep could not settle.
type SweepFailure struct {
	ReservationID string `json:"reservation_id"`
	Pass          string `json:"pass"`
	Err           error  `json:"-"`
	Message       string `json:"message"`
}

// SweepResult summarises one reconciliation run.
type SweepResult struct {
	Expired   int            `json:"expired"`
	Completed int            `json:"completed"`
	Failures  []SweepFailure `json:"failures,omitempty"`
}

// Count is the number of reservations that changed state.
func (r SweepResult) Count() int { return r.Expired + r.Completed }

// ReconcileExpirations expires active reservations whose deadline
// passed before they filled up and finalises filled ones.  Each
// reservation is settled in its own transaction; a failure is recorded
// and the sweep moves on.  The returned error is non-nil only when the
// candidate lists themselves could not be loaded.
func (e *Engine) ReconcileExpirations(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := e.now()

	var expiredIDs, filledIDs []string
	err := e.run(ctx, func(tx Tx) error {
		var err error
		expiredIDs, err = tx.Reservations().ListExpiredUnfilled(ctx, now)
		if err != nil {
			return err
		}
		filledIDs, err = tx.Reservations().ListFilled(ctx)
		return err
	})
	if err != nil {
		return result, err
	}

	for _, id := range expiredIDs {
		res, changed, err := e.expireOne(ctx, id)
		if err != nil {
			result.Failures = append(result.Failures, SweepFailure{ReservationID: id, Pass: PassExpire, Err: err, Message: err.Error()})
			continue
		}
		if changed {
			result.Expired++
			e.publish(ctx, queue.ReservationExpired, *res)
		}
	}
	for _, id := range filledIDs {
		res, changed, err := e.finalizeOne(ctx, id)
		if err != nil {
			result.Failures = append(result.Failures, SweepFailure{ReservationID: id, Pass: PassFinalize, Err: err, Message: err.Error()})
			continue
		}
		if changed {
			result.Completed++
			e.publish(ctx, queue.ReservationFinalized, *res)
		}
	}

	entry := e.log.WithFields(logrus.Fields{
		"expired":   result.Expired,
		"completed": result.Completed,
		"failed":    len(result.Failures),
	})
	switch {
	case len(result.Failures) > 0:
		entry.Warn("reconciliation finished with failures")
	case result.Count() > 0:
		entry.Info("reconciliation finished")
	default:
		entry.Debug("reconciliation finished")
	}
	return result, nil
}

// expireOne re-checks the reservation under a row lock so a member
// joining concurrently either fills it first or waits for the expiry.
func (e *Engine) expireOne(ctx context.Context, id string) (*model.Reservation, bool, error) {
	var out *model.Reservation
	changed := false
	err := e.run(ctx, func(tx Tx) error {
		changed = false
		res, err := tx.Reservations().GetForUpdate(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if res.Status != model.ReservationActive || res.Filled() || !e.now().After(res.ExpiresAt) {
			return nil
		}
		if _, err := tx.Spots().ReleaseByReservation(ctx, res.ID); err != nil {
			return err
		}
		if err := tx.Reservations().Transition(ctx, res.ID,
			[]model.ReservationStatus{model.ReservationActive}, model.ReservationExpired); err != nil {
			return err
		}
		if err := tx.Customers().IncrementAttempts(ctx, res.RepresentativeCustomerID); err != nil {
			return err
		}
		res.Status = model.ReservationExpired
		out = res
		changed = true
		return nil
	})
	return out, changed, err
}

// finalizeOne turns the claimed spots of a filled reservation into
// plain occupied spots and marks it completed.  Running it again on a
// finalised reservation changes nothing.
func (e *Engine) finalizeOne(ctx context.Context, id string) (*model.Reservation, bool, error) {
	var out *model.Reservation
	changed := false
	err := e.run(ctx, func(tx Tx) error {
		changed = false
		res, err := tx.Reservations().GetForUpdate(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !res.Filled() {
			return nil
		}
		if res.Status != model.ReservationActive && res.Status != model.ReservationCompleted {
			return nil
		}
		n, err := tx.Spots().FinalizeByReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		if res.Status == model.ReservationActive {
			if err := tx.Reservations().Transition(ctx, res.ID,
				[]model.ReservationStatus{model.ReservationActive}, model.ReservationCompleted); err != nil {
				return err
			}
			res.Status = model.ReservationCompleted
			changed = true
		}
		if n > 0 {
			changed = true
		}
		out = res
		return nil
	})
	return out, changed, err
}
