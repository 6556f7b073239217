package allocation

import (
	"context"
	"database/sql"

	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

// SQLStore is the MySQL backed Store.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore returns a Store running transactions on db.
func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

// InTx begins a transaction, hands fn repositories bound to it and
// commits when fn succeeds.
func (s *SQLStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(sqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

type sqlTx struct{ tx *sql.Tx }

func (t sqlTx) Houses() HouseStore             { return repository.NewHouseRepo(t.tx) }
func (t sqlTx) Queues() QueueStore             { return repository.NewQueueRepo(t.tx) }
func (t sqlTx) Spots() SpotStore               { return repository.NewSpotRepo(t.tx) }
func (t sqlTx) Reservations() ReservationStore { return repository.NewReservationRepo(t.tx) }
func (t sqlTx) Customers() CustomerStore       { return repository.NewCustomerRepo(t.tx) }
