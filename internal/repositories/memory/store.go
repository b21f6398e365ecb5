// Package memory holds process-local repositories used by the "memory"
// database driver and by tests.
package memory

import (
	"tripchat/internal/repositories/interfaces"
)

// Store bundles the in-memory repositories so services can share them.
type Store struct {
	Bookings *BookingRepository
	Trips    *TripRepository
	Messages *MessageRepository
	Users    *UserRepository
}

func NewStore() *Store {
	return &Store{
		Bookings: NewBookingRepository(),
		Trips:    NewTripRepository(),
		Messages: NewMessageRepository(),
		Users:    NewUserRepository(),
	}
}

var (
	_ interfaces.BookingRepository = (*BookingRepository)(nil)
	_ interfaces.TripRepository    = (*TripRepository)(nil)
	_ interfaces.MessageRepository = (*MessageRepository)(nil)
	_ interfaces.UserRepository    = (*UserRepository)(nil)
)
