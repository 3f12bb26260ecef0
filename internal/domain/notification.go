package domain

import "time"

type Notification struct {
	ID          int64
	UserID      int64
	Name        string
	Description string
	Viewed      bool
	CreatedAt   time.Time
}
