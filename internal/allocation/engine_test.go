package allocation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/haunted-house-queue/internal/allocation"
	"github.com/iliyamo/haunted-house-queue/internal/allocation/memstore"
	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/queue"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
	"github.com/iliyamo/haunted-house-queue/internal/retry"
)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (r *recorder) PublishReservationEvent(_ context.Context, ev queue.ReservationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []queue.ReservationEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.ReservationEventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memstore.Store
	clock  *clock
	events *recorder
	engine *allocation.Engine
	queue  *model.Queue
}

func newFixture(t *testing.T, spots uint32) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  memstore.New(),
		clock:  &clock{now: time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC)},
		events: &recorder{},
	}
	f.engine = allocation.NewEngine(f.store,
		allocation.WithClock(f.clock.Now),
		allocation.WithLogger(log),
		allocation.WithPublisher(f.events),
		allocation.WithRetryPolicy(retry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}),
	)
	_, err := f.engine.CreateHouse(f.ctx, allocation.HouseInput{Name: "Crypt of Echoes", Duration: 20, BreakTimePerQueue: 5})
	require.NoError(t, err)
	f.queue, err = f.engine.CreateQueue(f.ctx, allocation.QueueInput{
		HouseSlug:      "crypt-of-echoes",
		QueueNumber:    1,
		MaxCustomers:   spots,
		QueueStartTime: f.clock.Now().Add(time.Hour),
		QueueEndTime:   f.clock.Now().Add(90 * time.Minute),
	})
	require.NoError(t, err)
	return f
}

func student(n int) allocation.CustomerData {
	return allocation.CustomerData{
		StudentID:  fmt.Sprintf("S%03d", n),
		Name:       fmt.Sprintf("Student %d", n),
		Email:      fmt.Sprintf("s%d@school.test", n),
		Homeroom:   "7B",
		TicketType: "standard",
	}
}

func (f *fixture) spots() []model.Spot {
	f.t.Helper()
	st, err := f.engine.GetQueue(f.ctx, f.queue.ID)
	require.NoError(f.t, err)
	return st.Spots
}

func (f *fixture) reservation(code string) model.Reservation {
	f.t.Helper()
	d, err := f.engine.GetReservation(f.ctx, code)
	require.NoError(f.t, err)
	return d.Reservation
}

func assertCode(t *testing.T, err error, code allocation.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, allocation.CodeOf(err), err.Error())
}

func TestCreateQueueBuildsNumberedPool(t *testing.T) {
	f := newFixture(t, 5)
	spots := f.spots()
	require.Len(t, spots, 5)
	for i, sp := range spots {
		assert.Equal(t, uint32(i+1), sp.SpotNumber)
		assert.Equal(t, model.SpotAvailable, sp.Status)
		assert.Nil(t, sp.CustomerID)
		assert.Nil(t, sp.ReservationID)
	}
}

func TestJoinQueueSequentialUntilFull(t *testing.T) {
	f := newFixture(t, 3)
	for i := 1; i <= 3; i++ {
		p, err := f.engine.JoinQueue(f.ctx, f.queue.ID, student(i))
		require.NoError(t, err)
		assert.Equal(t, uint32(i), p.Spot.SpotNumber)
		assert.Equal(t, model.SpotOccupied, p.Spot.Status)
		assert.Equal(t, student(i).StudentID, *p.Spot.CustomerID)
		assert.Equal(t, f.clock.Now(), *p.Spot.OccupiedAt)
	}
	_, err := f.engine.JoinQueue(f.ctx, f.queue.ID, student(4))
	assertCode(t, err, allocation.CodeNoAvailableSpots)
}

func TestJoinQueueRejectsSecondSpot(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.engine.JoinQueue(f.ctx, f.queue.ID, student(1))
	require.NoError(t, err)
	_, err = f.engine.JoinQueue(f.ctx, f.queue.ID, student(1))
	assertCode(t, err, allocation.CodeAlreadyInQueue)
}

func TestJoinQueueUnknownQueue(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.engine.JoinQueue(f.ctx, "missing", student(1))
	assertCode(t, err, allocation.CodeNotFound)

	// The queue is resolved before the held-spot check.
	_, err = f.engine.JoinQueue(f.ctx, f.queue.ID, student(1))
	require.NoError(t, err)
	_, err = f.engine.JoinQueue(f.ctx, "missing", student(1))
	assertCode(t, err, allocation.CodeNotFound)
}

func TestJoinQueueValidatesCustomer(t *testing.T) {
	f := newFixture(t, 1)
	data := student(1)
	data.Email = "not-an-email"
	_, err := f.engine.JoinQueue(f.ctx, f.queue.ID, data)
	assertCode(t, err, allocation.CodeInvalidInput)
}

func TestConcurrentJoinsNeverShareASpot(t *testing.T) {
	f := newFixture(t, 10)
	var wg sync.WaitGroup
	errs := make([]error, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.JoinQueue(f.ctx, f.queue.ID, student(i))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assertCode(t, err, allocation.CodeNoAvailableSpots)
	}
	assert.Equal(t, 10, ok)
	seen := map[string]bool{}
	for _, sp := range f.spots() {
		require.NotNil(t, sp.CustomerID)
		assert.False(t, seen[*sp.CustomerID])
		seen[*sp.CustomerID] = true
	}
}

func TestCreateReservationHoldsSpots(t *testing.T) {
	f := newFixture(t, 5)
	d, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 3, student(1))
	require.NoError(t, err)

	res := d.Reservation
	assert.Len(t, res.Code, 6)
	assert.Equal(t, uint32(3), res.MaxSpots)
	assert.Equal(t, uint32(1), res.CurrentSpots)
	assert.Equal(t, model.ReservationActive, res.Status)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), res.ExpiresAt)
	assert.Equal(t, "S001", res.RepresentativeCustomerID)

	require.Len(t, d.Spots, 3)
	for i, sp := range d.Spots {
		assert.Equal(t, uint32(i+1), sp.SpotNumber)
		assert.Equal(t, model.SpotReserved, sp.Status)
		assert.Equal(t, res.ID, *sp.ReservationID)
	}
	assert.Equal(t, "S001", *d.Spots[0].CustomerID)
	assert.Nil(t, d.Spots[1].CustomerID)
	assert.Equal(t, []queue.ReservationEventKind{queue.ReservationCreated}, f.events.kinds())

	st, err := f.engine.GetQueue(f.ctx, f.queue.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.Stats{AvailableSpots: 2, ReservedSpots: 3, TotalSpots: 5, ActiveReservations: 1}, st.Stats)
}

func TestCreateReservationSizeBounds(t *testing.T) {
	f := newFixture(t, 20)
	for _, n := range []int{0, 1, 11} {
		_, err := f.engine.CreateReservation(f.ctx, f.queue.ID, n, student(1))
		assertCode(t, err, allocation.CodeInvalidInput)
	}
	_, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 10, student(1))
	assert.NoError(t, err)
}

func TestCreateReservationNotEnoughSpotsWritesNothing(t *testing.T) {
	f := newFixture(t, 4)
	_, err := f.engine.JoinQueue(f.ctx, f.queue.ID, student(1))
	require.NoError(t, err)
	_, err = f.engine.JoinQueue(f.ctx, f.queue.ID, student(2))
	require.NoError(t, err)

	_, err = f.engine.CreateReservation(f.ctx, f.queue.ID, 3, student(3))
	assertCode(t, err, allocation.CodeNoAvailableSpots)

	st, err := f.engine.GetQueue(f.ctx, f.queue.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Stats.AvailableSpots)
	assert.Equal(t, 0, st.Stats.ReservedSpots)
	assert.Equal(t, 0, st.Stats.ActiveReservations)
	assert.Empty(t, f.events.kinds())
}

func TestCreateReservationAttemptLimit(t *testing.T) {
	f := newFixture(t, 10)
	for i := 0; i < model.MaxReservationAttempts; i++ {
		_, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 2, student(1))
		require.NoError(t, err)
		f.clock.Advance(11 * time.Minute)
		r, err := f.engine.ReconcileExpirations(f.ctx)
		require.NoError(t, err)
		require.Equal(t, 1, r.Expired)
	}
	_, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 2, student(1))
	assertCode(t, err, allocation.CodeMaxReservationAttempts)

	c, err := f.engine.ResetAttempts(f.ctx, "S001")
	require.NoError(t, err)
	assert.Zero(t, c.ReservationAttempts)
	_, err = f.engine.CreateReservation(f.ctx, f.queue.ID, 2, student(1))
	assert.NoError(t, err)
}

func TestResetAttemptsUnknownCustomer(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.engine.ResetAttempts(f.ctx, "nobody")
	assertCode(t, err, allocation.CodeNotFound)
}

func TestCreateReservationWhileHoldingSpot(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.engine.JoinQueue(f.ctx, f.queue.ID, student(1))
	require.NoError(t, err)
	_, err = f.engine.CreateReservation(f.ctx, f.queue.ID, 2, student(1))
	assertCode(t, err, allocation.CodeAlreadyInQueue)
}

func TestCodeGenerationGivesUpOnCollisions(t *testing.T) {
	f := newFixture(t, 10)
	log, _ := test.NewNullLogger()
	fixed := allocation.NewEngine(f.store,
		allocation.WithLogger(log),
		allocation.WithCodeGenerator(func() (string, error) { return "AAAAAA", nil }))

	_, err := fixed.CreateReservation(f.ctx, f.queue.ID, 2, student(1))
	require.NoError(t, err)
	_, err = fixed.CreateReservation(f.ctx, f.queue.ID, 2, student(2))
	assertCode(t, err, allocation.CodeCodeGenerationFailed)

	_, err = f.engine.GetReservation(f.ctx, "AAAAAA")
	require.NoError(t, err)
	st, err := f.engine.GetQueue(f.ctx, f.queue.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, st.Stats.AvailableSpots)
}

func TestJoinReservationFillsAndCompletes(t *testing.T) {
	f := newFixture(t, 5)
	d, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 3, student(1))
	require.NoError(t, err)

	p, err := f.engine.JoinReservation(f.ctx, " "+lower(d.Reservation.Code)+" ", student(2))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), p.Spot.SpotNumber)
	assert.Equal(t, uint32(2), p.Reservation.CurrentSpots)
	assert.Equal(t, model.ReservationActive, p.Reservation.Status)

	p, err = f.engine.JoinReservation(f.ctx, d.Reservation.Code, student(3))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), p.Spot.SpotNumber)
	assert.Equal(t, model.ReservationCompleted, p.Reservation.Status)
	assert.Equal(t, model.SpotOccupied, p.Spot.Status)
	assert.Nil(t, p.Spot.ReservationID)

	// Filling the group detaches its spots at once.
	for _, sp := range f.spots()[:3] {
		assert.Equal(t, model.SpotOccupied, sp.Status)
		assert.NotNil(t, sp.CustomerID)
		assert.Nil(t, sp.ReservationID)
	}

	_, err = f.engine.JoinReservation(f.ctx, d.Reservation.Code, student(4))
	assertCode(t, err, allocation.CodeReservationNotActive)
	assert.Equal(t, []queue.ReservationEventKind{queue.ReservationCreated, queue.ReservationCompleted}, f.events.kinds())
}

func lower(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b >= 'A' && b <= 'Z' {
			out[i] = b + 'a' - 'A'
		}
	}
	return string(out)
}

func TestJoinReservationRejections(t *testing.T) {
	f := newFixture(t, 5)
	d, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 2, student(1))
	require.NoError(t, err)

	_, err = f.engine.JoinReservation(f.ctx, "ZZZZZZ", student(2))
	assertCode(t, err, allocation.CodeInvalidReservationCode)

	_, err = f.engine.JoinReservation(f.ctx, "", student(2))
	assertCode(t, err, allocation.CodeInvalidReservationCode)

	_, err = f.engine.JoinReservation(f.ctx, d.Reservation.Code, student(1))
	assertCode(t, err, allocation.CodeAlreadyInQueue)

	f.clock.Advance(10*time.Minute + time.Second)
	_, err = f.engine.JoinReservation(f.ctx, d.Reservation.Code, student(2))
	assertCode(t, err, allocation.CodeReservationExpired)
}

func TestFilledGroupSurvivesLeaveAndSweep(t *testing.T) {
	f := newFixture(t, 5)
	d, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 2, student(1))
	require.NoError(t, err)
	_, err = f.engine.JoinReservation(f.ctx, d.Reservation.Code, student(2))
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	out, err := f.engine.LeaveQueue(f.ctx, "S002")
	require.NoError(t, err)
	assert.Nil(t, out.Reservation)
	assert.Equal(t, model.SpotAvailable, out.Spot.Status)
	assert.Equal(t, model.ReservationCompleted, f.reservation(d.Reservation.Code).Status)

	r, err := f.engine.ReconcileExpirations(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, r.Count())

	p, err := f.engine.CurrentSpot(f.ctx, "S001")
	require.NoError(t, err)
	assert.Equal(t, model.SpotOccupied, p.Spot.Status)
	assert.Zero(t, f.reservationDetail(d.Reservation.Code).Representative.ReservationAttempts)
	assert.Equal(t, model.ReservationCompleted, f.reservation(d.Reservation.Code).Status)
}

func TestConcurrentJoinReservationCountsEveryClaim(t *testing.T) {
	f := newFixture(t, 10)
	d, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 10, student(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 14)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.JoinReservation(f.ctx, d.Reservation.Code, student(i+2))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assertCode(t, err, allocation.CodeReservationNotActive)
	}
	assert.Equal(t, 9, ok)

	res := f.reservation(d.Reservation.Code)
	assert.Equal(t, model.ReservationCompleted, res.Status)
	claimed := 0
	for _, sp := range f.spots() {
		if sp.CustomerID != nil {
			claimed++
		}
	}
	assert.Equal(t, int(res.CurrentSpots), claimed)
	assert.Equal(t, 10, claimed)
}

func TestLeaveQueueDirectSpot(t *testing.T) {
	f := newFixture(t, 2)
	_, err := f.engine.JoinQueue(f.ctx, f.queue.ID, student(1))
	require.NoError(t, err)

	out, err := f.engine.LeaveQueue(f.ctx, "S001")
	require.NoError(t, err)
	assert.False(t, out.Cancelled)
	assert.Equal(t, model.SpotAvailable, out.Spot.Status)

	_, err = f.engine.LeaveQueue(f.ctx, "S001")
	assertCode(t, err, allocation.CodeNotInQueue)

	p, err := f.engine.JoinQueue(f.ctx, f.queue.ID, student(2))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), p.Spot.SpotNumber)

	// A release on behalf of the previous holder must not evict S002.
	err = f.store.InTx(f.ctx, func(tx allocation.Tx) error {
		return tx.Spots().Release(f.ctx, p.Spot.ID, "S001")
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
	cur, err := f.engine.CurrentSpot(f.ctx, "S002")
	require.NoError(t, err)
	assert.Equal(t, p.Spot.ID, cur.Spot.ID)
}

func TestLeaveQueueRepresentativeCancels(t *testing.T) {
	f := newFixture(t, 4)
	d, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 3, student(1))
	require.NoError(t, err)
	_, err = f.engine.JoinReservation(f.ctx, d.Reservation.Code, student(2))
	require.NoError(t, err)

	out, err := f.engine.LeaveQueue(f.ctx, "S001")
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.Equal(t, model.ReservationCancelled, out.Reservation.Status)

	for _, sp := range f.spots() {
		assert.Equal(t, model.SpotAvailable, sp.Status)
		assert.Nil(t, sp.CustomerID)
		assert.Nil(t, sp.ReservationID)
	}
	_, err = f.engine.CurrentSpot(f.ctx, "S002")
	assertCode(t, err, allocation.CodeNotInQueue)
	assert.Contains(t, f.events.kinds(), queue.ReservationCancelled)
}

func TestLeaveQueueMemberKeepsSpotHeld(t *testing.T) {
	f := newFixture(t, 4)
	d, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 3, student(1))
	require.NoError(t, err)
	p, err := f.engine.JoinReservation(f.ctx, d.Reservation.Code, student(2))
	require.NoError(t, err)

	out, err := f.engine.LeaveQueue(f.ctx, "S002")
	require.NoError(t, err)
	assert.False(t, out.Cancelled)
	assert.Equal(t, model.SpotReserved, out.Spot.Status)
	assert.Equal(t, uint32(1), out.Reservation.CurrentSpots)

	for _, sp := range f.spots() {
		if sp.ID == p.Spot.ID {
			assert.Equal(t, model.SpotReserved, sp.Status)
			assert.Nil(t, sp.CustomerID)
			assert.Equal(t, d.Reservation.ID, *sp.ReservationID)
		}
	}
	assert.Equal(t, uint32(1), f.reservation(d.Reservation.Code).CurrentSpots)
}

func TestKickUsesLeaveRules(t *testing.T) {
	f := newFixture(t, 2)
	_, err := f.engine.JoinQueue(f.ctx, f.queue.ID, student(1))
	require.NoError(t, err)
	_, err = f.engine.Kick(f.ctx, "S001")
	require.NoError(t, err)
	_, err = f.engine.Kick(f.ctx, "S001")
	assertCode(t, err, allocation.CodeNotInQueue)
}

func TestCancelReservation(t *testing.T) {
	f := newFixture(t, 4)
	d, err := f.engine.CreateReservation(f.ctx, f.queue.ID, 2, student(1))
	require.NoError(t, err)

	res, err := f.engine.CancelReservation(f.ctx, d.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, res.Status)
	assert.Equal(t, 4, len(f.spots()))
	for _, sp := range f.spots() {
		assert.Equal(t, model.SpotAvailable, sp.Status)
	}

	_, err = f.engine.CancelReservation(f.ctx, d.Reservation.ID)
	assertCode(t, err, allocation.CodeCannotCancel)
	_, err = f.engine.CancelReservation(f.ctx, "missing")
	assertCode(t, err, allocation.CodeNotFound)
}

func TestTransientFailuresAreRetried(t *testing.T) {
	f := newFixture(t, 2)
	f.store.FailNext(repository.ErrConflict, repository.ErrConflict)
	p, err := f.engine.JoinQueue(f.ctx, f.queue.ID, student(1))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), p.Spot.SpotNumber)

	f.store.FailNext(repository.ErrConflict, repository.ErrConflict, repository.ErrConflict)
	_, err = f.engine.JoinQueue(f.ctx, f.queue.ID, student(2))
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, allocation.CodeConflict, allocation.CodeOf(err))
}

func TestRejectionsAreNotRetried(t *testing.T) {
	f := newFixture(t, 1)
	before := f.store.Transactions()
	_, err := f.engine.JoinQueue(f.ctx, "missing", student(1))
	assertCode(t, err, allocation.CodeNotFound)
	assert.Equal(t, before+1, f.store.Transactions())
}

func TestPublisherFailureDoesNotFailOperation(t *testing.T) {
	log, hook := test.NewNullLogger()
	store := memstore.New()
	e := allocation.NewEngine(store, allocation.WithLogger(log), allocation.WithPublisher(failingPublisher{}))
	_, err := e.CreateHouse(context.Background(), allocation.HouseInput{Name: "Attic", Duration: 10})
	require.NoError(t, err)
	q, err := e.CreateQueue(context.Background(), allocation.QueueInput{
		HouseSlug: "attic", QueueNumber: 1, MaxCustomers: 2,
		QueueStartTime: time.Now(), QueueEndTime: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = e.CreateReservation(context.Background(), q.ID, 2, student(1))
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

type failingPublisher struct{}

func (failingPublisher) PublishReservationEvent(context.Context, queue.ReservationEvent) error {
	return fmt.Errorf("broker down")
}
