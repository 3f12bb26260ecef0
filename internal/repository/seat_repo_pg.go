package repository

import (
	"context"
	"fmt"

	"github.com/avelio/flightdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SeatRepository interface {
	ListByFlight(ctx context.Context, flightID int64) ([]domain.FlightSeat, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.FlightSeat, error)
	// ClaimTx marks the whole batch HELD inside the caller's transaction.
	// Any seat not currently AVAILABLE fails the batch with
	// domain.ErrSeatUnavailable and no seat changes state.
	ClaimTx(ctx context.Context, tx pgx.Tx, ids []int64) error
	// ReleaseTx returns HELD seats to AVAILABLE. Seats in any other state
	// are left alone; a stale release must never un-book a seat another
	// transaction finalized.
	ReleaseTx(ctx context.Context, tx pgx.Tx, ids []int64) error
	// FinalizeTx books the whole batch. Seats normally move HELD to
	// BOOKED; reattempt also accepts AVAILABLE seats that an earlier
	// failure released. Booking fewer seats than requested is an error so
	// the caller's transaction rolls back.
	FinalizeTx(ctx context.Context, tx pgx.Tx, ids []int64, reattempt bool) error
}

type PGSeatRepository struct {
	db *pgxpool.Pool
}

func NewSeatRepository(db *pgxpool.Pool) SeatRepository {
	return &PGSeatRepository{db: db}
}

func (r *PGSeatRepository) ListByFlight(ctx context.Context, flightID int64) ([]domain.FlightSeat, error) {
	rows, err := r.db.Query(ctx, `SELECT id, flight_id, seat_row, seat_column, status FROM flight_seats WHERE flight_id=$1 ORDER BY seat_row, seat_column`, flightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSeats(rows)
}

func (r *PGSeatRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.FlightSeat, error) {
	if len(ids) == 0 {
		return []domain.FlightSeat{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, flight_id, seat_row, seat_column, status FROM flight_seats WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSeats(rows)
}

func (r *PGSeatRepository) ClaimTx(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	cmd, err := tx.Exec(ctx, `UPDATE flight_seats SET status=$1, updated_at=now() WHERE id = ANY($2) AND status=$3`,
		domain.SeatStatusHeld, ids, domain.SeatStatusAvailable)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("claim %d seats, %d available: %w", len(ids), cmd.RowsAffected(), domain.ErrSeatUnavailable)
	}
	return nil
}

func (r *PGSeatRepository) ReleaseTx(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	// Scoped to HELD: releasing a seat that is already AVAILABLE is a safe
	// no-op, and a seat meanwhile booked by another transaction stays
	// BOOKED.
	_, err := tx.Exec(ctx, `UPDATE flight_seats SET status=$1, updated_at=now() WHERE id = ANY($2) AND status=$3`,
		domain.SeatStatusAvailable, ids, domain.SeatStatusHeld)
	return err
}

func (r *PGSeatRepository) FinalizeTx(ctx context.Context, tx pgx.Tx, ids []int64, reattempt bool) error {
	if len(ids) == 0 {
		return nil
	}
	from := []string{string(domain.SeatStatusHeld)}
	if reattempt {
		// A credit-card reattempt succeeds after the earlier failure
		// already released the seats.
		from = append(from, string(domain.SeatStatusAvailable))
	}
	cmd, err := tx.Exec(ctx, `UPDATE flight_seats SET status=$1, updated_at=now() WHERE id = ANY($2) AND status = ANY($3)`,
		domain.SeatStatusBooked, ids, from)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != int64(len(ids)) {
		// Never commit a successful payment with unbooked seats.
		return fmt.Errorf("book %d seats, %d eligible: %w", len(ids), cmd.RowsAffected(), domain.ErrSeatUnavailable)
	}
	return nil
}

func scanSeats(rows pgx.Rows) ([]domain.FlightSeat, error) {
	seats := make([]domain.FlightSeat, 0)
	for rows.Next() {
		var s domain.FlightSeat
		if err := rows.Scan(&s.ID, &s.FlightID, &s.Row, &s.Column, &s.Status); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

var _ SeatRepository = (*PGSeatRepository)(nil)
