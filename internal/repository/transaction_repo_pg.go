package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avelio/flightdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FinalizeParams describes one terminal reconciliation outcome. The payment
// update, the seat batch update and the optional user notification insert
// are applied in a single database transaction, and the payment update
// re-checks its status predicate at write time so a concurrent finalizer
// cannot apply the same outcome twice.
type FinalizeParams struct {
	TransactionID string
	Status        domain.PaymentStatus
	Method        *domain.PaymentMethod
	SeatIDs       []int64
	SeatStatus    domain.SeatStatus
	// AllowReattempt widens the predicate to FAILED credit-card payments
	// whose deadline has not passed yet (the reattempt window).
	AllowReattempt bool
	Notification   *domain.Notification
}

type TransactionRepository interface {
	// CreateWithBookings persists the transaction, its payment, its
	// bookings and the HELD claim on every referenced seat as one atomic
	// unit.
	CreateWithBookings(ctx context.Context, txn *domain.Transaction, seatIDs []int64) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByIDForUser(ctx context.Context, userID int64, id string) (*domain.Transaction, error)
	SetCheckout(ctx context.Context, transactionID, token, redirectURL string) error
	// MarkPending records the method the user is attempting. It also
	// serves the single FAILED -> PENDING reattempt transition; the
	// predicate enforces the credit-card and deadline conditions.
	MarkPending(ctx context.Context, transactionID string, method domain.PaymentMethod) (bool, error)
	// FinalizePayment applies a terminal outcome. It reports false when
	// the conditional update hit no rows, meaning another finalizer won.
	FinalizePayment(ctx context.Context, params FinalizeParams) (bool, error)
	// ExpirePending force-fails up to limit PENDING payments past their
	// deadline and releases their seats, returning how many were failed.
	ExpirePending(ctx context.Context, now time.Time, limit int) (int, error)
}

type PGTransactionRepository struct {
	db    *pgxpool.Pool
	seats SeatRepository
}

func NewTransactionRepository(db *pgxpool.Pool, seats SeatRepository) TransactionRepository {
	return &PGTransactionRepository{db: db, seats: seats}
}

func (r *PGTransactionRepository) CreateWithBookings(ctx context.Context, txn *domain.Transaction, seatIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `INSERT INTO transactions (id, user_id, departure_flight_id, return_flight_id, booking_code, contact_email)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		txn.ID, txn.UserID, txn.DepartureFlightID, txn.ReturnFlightID, txn.BookingCode, txn.ContactEmail).
		Scan(&txn.CreatedAt); err != nil {
		return err
	}

	p := &txn.Payment
	p.TransactionID = txn.ID
	p.Status = domain.PaymentStatusPending
	if err := tx.QueryRow(ctx, `INSERT INTO payments (transaction_id, amount, status, checkout_token, redirect_url, expires_at, method_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		p.TransactionID, p.Amount, p.Status, p.CheckoutToken, p.RedirectURL, p.ExpiresAt, p.MethodDeadline).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}

	for i := range txn.Bookings {
		b := &txn.Bookings[i]
		b.TransactionID = txn.ID
		if err := tx.QueryRow(ctx, `INSERT INTO bookings (transaction_id, passenger_name, passenger_type, identity_number, departure_seat_id, return_seat_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			b.TransactionID, b.PassengerName, b.PassengerType, b.IdentityNumber, b.DepartureSeatID, b.ReturnSeatID).
			Scan(&b.ID); err != nil {
			return err
		}
	}

	if err := r.seats.ClaimTx(ctx, tx, seatIDs); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGTransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.get(ctx, `t.id=$1`, id)
}

func (r *PGTransactionRepository) GetByIDForUser(ctx context.Context, userID int64, id string) (*domain.Transaction, error) {
	return r.get(ctx, `t.id=$1 AND t.user_id=$2`, id, userID)
}

func (r *PGTransactionRepository) get(ctx context.Context, where string, args ...any) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT t.id, t.user_id, t.departure_flight_id, t.return_flight_id, t.booking_code, t.contact_email, t.created_at,
		p.id, p.amount, p.status, p.method, p.checkout_token, p.redirect_url, p.expires_at, p.method_deadline, p.created_at, p.updated_at
		FROM transactions t JOIN payments p ON p.transaction_id = t.id WHERE `+where, args...)

	var txn domain.Transaction
	var method *string
	if err := row.Scan(&txn.ID, &txn.UserID, &txn.DepartureFlightID, &txn.ReturnFlightID, &txn.BookingCode, &txn.ContactEmail, &txn.CreatedAt,
		&txn.Payment.ID, &txn.Payment.Amount, &txn.Payment.Status, &method, &txn.Payment.CheckoutToken, &txn.Payment.RedirectURL,
		&txn.Payment.ExpiresAt, &txn.Payment.MethodDeadline, &txn.Payment.CreatedAt, &txn.Payment.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	txn.Payment.TransactionID = txn.ID
	if method != nil {
		m := domain.PaymentMethod(*method)
		txn.Payment.Method = &m
	}

	rows, err := r.db.Query(ctx, `SELECT id, transaction_id, passenger_name, passenger_type, identity_number, departure_seat_id, return_seat_id FROM bookings WHERE transaction_id=$1 ORDER BY id`, txn.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.TransactionID, &b.PassengerName, &b.PassengerType, &b.IdentityNumber, &b.DepartureSeatID, &b.ReturnSeatID); err != nil {
			return nil, err
		}
		txn.Bookings = append(txn.Bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *PGTransactionRepository) SetCheckout(ctx context.Context, transactionID, token, redirectURL string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE payments SET checkout_token=$1, redirect_url=$2, updated_at=now() WHERE transaction_id=$3`, token, redirectURL, transactionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("payment for transaction %s: %w", transactionID, domain.ErrNotFound)
	}
	return nil
}

func (r *PGTransactionRepository) MarkPending(ctx context.Context, transactionID string, method domain.PaymentMethod) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE payments SET status=$1, method=$2, updated_at=now()
		WHERE transaction_id=$3
		AND (status=$1 OR (status=$4 AND method=$5 AND expires_at > now()))`,
		domain.PaymentStatusPending, method, transactionID,
		domain.PaymentStatusFailed, domain.PaymentMethodCreditCard)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *PGTransactionRepository) FinalizePayment(ctx context.Context, params FinalizeParams) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `UPDATE payments SET status=$1, method=$2, updated_at=now()
		WHERE transaction_id=$3
		AND (status=$4 OR ($5 AND status=$6 AND method=$7 AND expires_at > now()))`,
		params.Status, params.Method, params.TransactionID,
		domain.PaymentStatusPending, params.AllowReattempt,
		domain.PaymentStatusFailed, domain.PaymentMethodCreditCard)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		// Another finalizer (webhook or sweeper) got there first.
		return false, tx.Commit(ctx)
	}

	switch params.SeatStatus {
	case domain.SeatStatusBooked:
		err = r.seats.FinalizeTx(ctx, tx, params.SeatIDs, params.AllowReattempt)
	default:
		err = r.seats.ReleaseTx(ctx, tx, params.SeatIDs)
	}
	if err != nil {
		// The deferred rollback also undoes the payment update, so a
		// payment never turns terminal with its seats unresolved.
		return false, err
	}

	if n := params.Notification; n != nil {
		if err := tx.QueryRow(ctx, `INSERT INTO notifications (user_id, name, description) VALUES ($1, $2, $3) RETURNING id, created_at`,
			n.UserID, n.Name, n.Description).Scan(&n.ID, &n.CreatedAt); err != nil {
			return false, err
		}
	}

	return true, tx.Commit(ctx)
}

func (r *PGTransactionRepository) ExpirePending(ctx context.Context, now time.Time, limit int) (int, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// The inner select picks the batch, the outer update re-checks the
	// PENDING status at write time; a payment finalized by a concurrent
	// webhook between the two simply drops out of the batch.
	rows, err := tx.Query(ctx, `UPDATE payments SET status=$1, updated_at=now()
		WHERE transaction_id IN (
			SELECT transaction_id FROM payments
			WHERE status=$2 AND (expires_at <= $3 OR (method IS NULL AND method_deadline <= $3))
			ORDER BY expires_at
			LIMIT $4)
		AND status=$2
		RETURNING transaction_id`,
		domain.PaymentStatusFailed, domain.PaymentStatusPending, now, limit)
	if err != nil {
		return 0, err
	}
	expired := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		expired = append(expired, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, tx.Commit(ctx)
	}

	seatRows, err := tx.Query(ctx, `SELECT departure_seat_id, return_seat_id FROM bookings WHERE transaction_id = ANY($1)`, expired)
	if err != nil {
		return 0, err
	}
	seatIDs := make([]int64, 0)
	for seatRows.Next() {
		var dep, ret *int64
		if err := seatRows.Scan(&dep, &ret); err != nil {
			seatRows.Close()
			return 0, err
		}
		if dep != nil {
			seatIDs = append(seatIDs, *dep)
		}
		if ret != nil {
			seatIDs = append(seatIDs, *ret)
		}
	}
	seatRows.Close()
	if err := seatRows.Err(); err != nil {
		return 0, err
	}

	if err := r.seats.ReleaseTx(ctx, tx, seatIDs); err != nil {
		return 0, err
	}

	return len(expired), tx.Commit(ctx)
}

var _ TransactionRepository = (*PGTransactionRepository)(nil)
