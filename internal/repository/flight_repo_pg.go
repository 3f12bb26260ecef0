package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/avelio/flightdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FlightRepository interface {
	List(ctx context.Context) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	GetAirplane(ctx context.Context, flightID int64) (*domain.Airplane, error)
}

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

func (r *PGFlightRepository) List(ctx context.Context) ([]domain.Flight, error) {
	rows, err := r.db.Query(ctx, `SELECT id, airplane_id, code, from_airport, to_airport, departure_time, arrival_time, price, created_at, updated_at FROM flights ORDER BY departure_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		var f domain.Flight
		if err := rows.Scan(&f.ID, &f.AirplaneID, &f.Code, &f.FromAirport, &f.ToAirport, &f.DepartureTime, &f.ArrivalTime, &f.Price, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	row := r.db.QueryRow(ctx, `SELECT id, airplane_id, code, from_airport, to_airport, departure_time, arrival_time, price, created_at, updated_at FROM flights WHERE id=$1`, id)
	var f domain.Flight
	if err := row.Scan(&f.ID, &f.AirplaneID, &f.Code, &f.FromAirport, &f.ToAirport, &f.DepartureTime, &f.ArrivalTime, &f.Price, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("flight %d: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &f, nil
}

func (r *PGFlightRepository) GetAirplane(ctx context.Context, flightID int64) (*domain.Airplane, error) {
	row := r.db.QueryRow(ctx, `SELECT a.id, a.model, a.seat_rows, a.seat_columns FROM airplanes a JOIN flights f ON f.airplane_id = a.id WHERE f.id=$1`, flightID)
	var a domain.Airplane
	if err := row.Scan(&a.ID, &a.Model, &a.SeatRows, &a.SeatColumns); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("airplane for flight %d: %w", flightID, domain.ErrNotFound)
		}
		return nil, err
	}
	return &a, nil
}

var _ FlightRepository = (*PGFlightRepository)(nil)
