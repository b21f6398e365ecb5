package services

import (
	"fmt"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
)

var bookingStatusTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingStatusPending: {
		models.BookingStatusConfirmed,
		models.BookingStatusCancelledByDriver,
		models.BookingStatusCancelledByPassenger,
	},
	models.BookingStatusConfirmed: {
		models.BookingStatusInProgress,
		models.BookingStatusCancelledByDriver,
		models.BookingStatusCancelledByPassenger,
	},
	models.BookingStatusInProgress: {
		models.BookingStatusCompleted,
		models.BookingStatusNoShow,
		models.BookingStatusCancelledByDriver,
		models.BookingStatusCancelledByPassenger,
	},
}

var paymentStatusTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending:    {models.PaymentStatusAuthorized, models.PaymentStatusPaid, models.PaymentStatusFailed},
	models.PaymentStatusAuthorized: {models.PaymentStatusPaid, models.PaymentStatusFailed},
	models.PaymentStatusFailed:     {models.PaymentStatusAuthorized, models.PaymentStatusPaid},
	models.PaymentStatusPaid:       {models.PaymentStatusRefunded},
}

// CheckStatusTransition validates moving booking b to status to.
func CheckStatusTransition(b *models.Booking, to models.BookingStatus) error {
	if !to.Valid() {
		return apperrors.New(apperrors.KindInvalidInput, fmt.Sprintf("unknown booking status %q", to))
	}
	if b.Status.IsTerminal() {
		return apperrors.New(apperrors.KindInvalidTransition,
			fmt.Sprintf("booking is %s and accepts no further transitions", b.Status))
	}
	if !containsStatus(bookingStatusTransitions[b.Status], to) {
		return apperrors.New(apperrors.KindInvalidTransition,
			fmt.Sprintf("cannot move booking from %s to %s", b.Status, to))
	}
	if (to == models.BookingStatusInProgress || to == models.BookingStatusCompleted) &&
		b.PaymentStatus != models.PaymentStatusPaid {
		return apperrors.New(apperrors.KindPreconditionFailed,
			fmt.Sprintf("booking must be paid before it can be %s", to))
	}
	return nil
}

// CheckPaymentTransition validates moving the payment of b to status to.
// It reports false when to equals the current status, which callers treat as a no-op.
func CheckPaymentTransition(b *models.Booking, to models.PaymentStatus) (bool, error) {
	if !to.Valid() {
		return false, apperrors.New(apperrors.KindInvalidInput, fmt.Sprintf("unknown payment status %q", to))
	}
	if b.PaymentStatus == to {
		return false, nil
	}
	if b.Status.IsTerminal() && to != models.PaymentStatusRefunded {
		return false, apperrors.New(apperrors.KindInvalidTransition,
			fmt.Sprintf("booking is %s; only a refund can be recorded", b.Status))
	}
	if !containsPayment(paymentStatusTransitions[b.PaymentStatus], to) {
		return false, apperrors.New(apperrors.KindInvalidTransition,
			fmt.Sprintf("cannot move payment from %s to %s", b.PaymentStatus, to))
	}
	switch to {
	case models.PaymentStatusPaid:
		if b.Status != models.BookingStatusConfirmed {
			return false, apperrors.New(apperrors.KindPreconditionFailed, "only a confirmed booking can be paid")
		}
	case models.PaymentStatusRefunded:
		if !b.Status.IsCancelled() {
			return false, apperrors.New(apperrors.KindPreconditionFailed, "only a cancelled booking can be refunded")
		}
	}
	return true, nil
}

func containsStatus(list []models.BookingStatus, s models.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPayment(list []models.PaymentStatus, s models.PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
