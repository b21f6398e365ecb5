package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingStatus string
type PaymentStatus string
type PartyRole string

const (
	BookingStatusPending              BookingStatus = "pending"
	BookingStatusConfirmed            BookingStatus = "confirmed"
	BookingStatusInProgress           BookingStatus = "in_progress"
	BookingStatusCompleted            BookingStatus = "completed"
	BookingStatusCancelledByPassenger BookingStatus = "cancelled_by_passenger"
	BookingStatusCancelledByDriver    BookingStatus = "cancelled_by_driver"
	BookingStatusNoShow               BookingStatus = "no_show"

	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"

	PartyRoleDriver    PartyRole = "driver"
	PartyRolePassenger PartyRole = "passenger"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelledByPassenger, BookingStatusCancelledByDriver, BookingStatusNoShow:
		return true
	}
	return false
}

func (s BookingStatus) IsCancelled() bool {
	return s == BookingStatusCancelledByPassenger || s == BookingStatusCancelledByDriver
}

// HoldsSeats reports whether seats of the trip are reserved for a booking in this status.
func (s BookingStatus) HoldsSeats() bool {
	return s == BookingStatusConfirmed || s == BookingStatusInProgress
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress:
		return true
	}
	return s.IsTerminal()
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusAuthorized, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

type Booking struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TripID             primitive.ObjectID `json:"trip_id" bson:"trip_id" validate:"required"`
	PassengerID        primitive.ObjectID `json:"passenger_id" bson:"passenger_id" validate:"required"`
	DriverID           primitive.ObjectID `json:"driver_id" bson:"driver_id" validate:"required"`
	NumberOfSeats      int                `json:"number_of_seats" bson:"number_of_seats" validate:"required,min=1"`
	Status             BookingStatus      `json:"status" bson:"status" default:"pending"`
	PaymentStatus      PaymentStatus      `json:"payment_status" bson:"payment_status" default:"pending"`
	PaymentProvider    string             `json:"payment_provider,omitempty" bson:"payment_provider"`
	PaymentReference   string             `json:"-" bson:"payment_reference"`
	CancellationReason string             `json:"cancellation_reason,omitempty" bson:"cancellation_reason"`
	CancelledBy        PartyRole          `json:"cancelled_by,omitempty" bson:"cancelled_by"`
	Rating             *BookingRating     `json:"rating,omitempty" bson:"rating"`
	ChatOpenedAt       *time.Time         `json:"chat_opened_at,omitempty" bson:"chat_opened_at"`
	ConfirmedAt        *time.Time         `json:"confirmed_at,omitempty" bson:"confirmed_at"`
	StartedAt          *time.Time         `json:"started_at,omitempty" bson:"started_at"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty" bson:"completed_at"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty" bson:"cancelled_at"`
	Version            int64              `json:"version" bson:"version"`
	CreatedAt          time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" bson:"updated_at"`
}

type BookingRating struct {
	Score     int       `json:"score" bson:"score" validate:"required,min=1,max=5"`
	Comment   string    `json:"comment,omitempty" bson:"comment"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ChatEligible is the gate for the trip chat room: confirmed and paid.
func (b *Booking) ChatEligible() bool {
	return b.Status == BookingStatusConfirmed && b.PaymentStatus == PaymentStatusPaid
}

// RoleOf returns the party role of userID in this booking, or "" for third parties.
func (b *Booking) RoleOf(userID primitive.ObjectID) PartyRole {
	switch userID {
	case b.DriverID:
		return PartyRoleDriver
	case b.PassengerID:
		return PartyRolePassenger
	}
	return ""
}

func (b *Booking) Clone() *Booking {
	c := *b
	if b.Rating != nil {
		r := *b.Rating
		c.Rating = &r
	}
	return &c
}

// BookingSummary is the payload of trip_status_updated events.
type BookingSummary struct {
	BookingID     string        `json:"booking_id"`
	TripID        string        `json:"trip_id"`
	PassengerID   string        `json:"passenger_id"`
	DriverID      string        `json:"driver_id"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	ChatEligible  bool          `json:"chat_eligible"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (b *Booking) Summary() *BookingSummary {
	return &BookingSummary{
		BookingID:     b.ID.Hex(),
		TripID:        b.TripID.Hex(),
		PassengerID:   b.PassengerID.Hex(),
		DriverID:      b.DriverID.Hex(),
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		ChatEligible:  b.ChatEligible(),
		UpdatedAt:     b.UpdatedAt,
	}
}
