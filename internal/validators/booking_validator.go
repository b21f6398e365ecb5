package validators

import (
	"tripchat/internal/models"

	"github.com/go-playground/validator/v10"
)

type BookingCreateRequest struct {
	TripID        string `json:"trip_id" validate:"required,object_id"`
	NumberOfSeats int    `json:"number_of_seats" validate:"required,min=1,max=8"`
}

type BookingCancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type BookingRateRequest struct {
	Score   int    `json:"score" validate:"required,rating_value"`
	Comment string `json:"comment" validate:"omitempty,max=500"`
}

// PaymentStatusRequest is the body of the trusted payment status callback.
type PaymentStatusRequest struct {
	Status    string `json:"status" validate:"required,payment_status"`
	Provider  string `json:"provider" validate:"omitempty,max=32"`
	Reference string `json:"reference" validate:"omitempty,max=255"`
}

func validatePaymentStatus(fl validator.FieldLevel) bool {
	return models.PaymentStatus(fl.Field().String()).Valid()
}

func ValidateBookingCreate(req *BookingCreateRequest) ValidationErrors {
	return ValidateStruct(req)
}

func ValidateBookingCancel(req *BookingCancelRequest) ValidationErrors {
	req.Reason = SanitizeInput(req.Reason)
	return ValidateStruct(req)
}

func ValidateBookingRate(req *BookingRateRequest) ValidationErrors {
	req.Comment = SanitizeInput(req.Comment)
	return ValidateStruct(req)
}

func ValidatePaymentStatus(req *PaymentStatusRequest) ValidationErrors {
	return ValidateStruct(req)
}
