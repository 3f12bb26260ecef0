package domain

import (
	"strings"
	"time"
)

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusHeld      SeatStatus = "HELD"
	SeatStatusBooked    SeatStatus = "BOOKED"
)

type Airplane struct {
	ID          int64
	Model       string
	SeatRows    int
	SeatColumns string
}

// HasPosition reports whether row/column fall inside the airplane's seat grid.
// SeatColumns holds the ordered column letters, e.g. "ABCDEF".
func (a Airplane) HasPosition(row int, column string) bool {
	if row < 1 || row > a.SeatRows {
		return false
	}
	return len(column) == 1 && strings.Contains(a.SeatColumns, column)
}

type Flight struct {
	ID            int64
	AirplaneID    int64
	Code          string
	FromAirport   string
	ToAirport     string
	DepartureTime time.Time
	ArrivalTime   time.Time
	Price         int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type FlightSeat struct {
	ID       int64
	FlightID int64
	Row      int
	Column   string
	Status   SeatStatus
}
