package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/queue"
	"github.com/iliyamo/cinema-seat-locking/internal/repository"
)

var showStart = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: showStart} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type catalogMock struct{ mock.Mock }

func (m *catalogMock) ResolveForShow(ctx context.Context, showID uint64, row string, number uint32) (*model.Seat, error) {
	args := m.Called(ctx, showID, row, number)
	seat, _ := args.Get(0).(*model.Seat)
	return seat, args.Error(1)
}

func (m *catalogMock) CodesByIDs(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	args := m.Called(ctx, ids)
	codes, _ := args.Get(0).(map[uint64]string)
	return codes, args.Error(1)
}

// hallCatalog returns a catalog mock knowing seats A10 (id 10), A11 (id 11)
// and A12 (id 12) for show 5.
func hallCatalog() *catalogMock {
	c := &catalogMock{}
	codes := map[uint64]string{}
	for _, n := range []uint32{10, 11, 12} {
		seat := &model.Seat{ID: uint64(n), HallID: 1, RowLabel: "A", SeatNumber: n, IsActive: true}
		c.On("ResolveForShow", mock.Anything, uint64(5), "A", n).Return(seat, nil)
		codes[uint64(n)] = seat.Code()
	}
	c.On("ResolveForShow", mock.Anything, uint64(5), mock.Anything, mock.Anything).Return(nil, repository.ErrSeatNotFound)
	c.On("ResolveForShow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, repository.ErrShowNotFound)
	c.On("CodesByIDs", mock.Anything, mock.Anything).Return(codes, nil)
	return c
}

type publisherMock struct{ mock.Mock }

func (m *publisherMock) PublishSeatEvent(ctx context.Context, ev queue.SeatLockEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *publisherMock) PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// memReservations is an in-memory booking ledger standing in for MySQL.
type memReservations struct {
	mu     sync.Mutex
	nextID uint64
	booked map[uint64]map[uint64]uint64 // show -> seat -> reservation
	price  uint32
}

func newMemReservations() *memReservations {
	return &memReservations{booked: map[uint64]map[uint64]uint64{}, price: 1000}
}

func (r *memReservations) IsSeatBooked(_ context.Context, showID, seatID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.booked[showID][seatID]
	return ok, nil
}

func (r *memReservations) BookedSeatIDs(_ context.Context, showID uint64) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint64
	for id := range r.booked[showID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memReservations) CreateConfirmed(ctx context.Context, res *model.Reservation, collect repository.SeatCollector) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, err := collect(ctx, (*sql.Tx)(nil))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := r.booked[res.ShowID][id]; ok {
			return nil, repository.ErrSeatBooked
		}
	}
	r.nextID++
	res.ID = r.nextID
	res.Status = model.ReservationConfirmed
	res.TotalAmountCents = r.price * uint32(len(ids))
	if r.booked[res.ShowID] == nil {
		r.booked[res.ShowID] = map[uint64]uint64{}
	}
	for _, id := range ids {
		r.booked[res.ShowID][id] = res.ID
	}
	return ids, nil
}

func (r *memReservations) Cancel(_ context.Context, reservationID, _ uint64, _ time.Time) (uint64, []uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for show, seats := range r.booked {
		var freed []uint64
		for seat, rid := range seats {
			if rid == reservationID {
				freed = append(freed, seat)
				delete(seats, seat)
			}
		}
		if len(freed) > 0 {
			return show, freed, nil
		}
	}
	return 0, nil, repository.ErrReservationNotFound
}

func newRedisStore(t *testing.T) *repository.RedisSeatLockRepo {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 64})
	t.Cleanup(func() { rdb.Close() })
	return repository.NewRedisSeatLockRepo(rdb, "")
}

type fixture struct {
	clock   *fakeClock
	store   *repository.RedisSeatLockRepo
	catalog *catalogMock
	booking *memReservations
	locks   *SeatLockService
	bookSvc *BookingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:   newFakeClock(),
		store:   newRedisStore(t),
		catalog: hallCatalog(),
		booking: newMemReservations(),
	}
	f.locks = NewSeatLockService(f.store, f.catalog, f.booking, nil, nil, Policy{LeaseDuration: 300 * time.Second}).
		WithClock(f.clock.Now)
	f.bookSvc = NewBookingService(f.store, f.booking, f.catalog, nil, nil).WithClock(f.clock.Now)
	return f
}
