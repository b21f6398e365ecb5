package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Trip struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	DriverID       primitive.ObjectID `json:"driver_id" bson:"driver_id" validate:"required"`
	Origin         string             `json:"origin" bson:"origin"`
	Destination    string             `json:"destination" bson:"destination"`
	DepartureTime  time.Time          `json:"departure_time" bson:"departure_time"`
	TotalSeats     int                `json:"total_seats" bson:"total_seats" validate:"required,min=1"`
	AvailableSeats int                `json:"available_seats" bson:"available_seats"`
	PricePerSeat   float64            `json:"price_per_seat" bson:"price_per_seat"`
	Currency       string             `json:"currency" bson:"currency" default:"USD"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updated_at"`
}
