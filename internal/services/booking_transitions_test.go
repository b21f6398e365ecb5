package services

import (
	"testing"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCheckStatusTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    models.BookingStatus
		payment models.PaymentStatus
		to      models.BookingStatus
		want    apperrors.Kind
	}{
		{"pending to confirmed", models.BookingStatusPending, models.PaymentStatusPending, models.BookingStatusConfirmed, ""},
		{"pending to driver cancel", models.BookingStatusPending, models.PaymentStatusPending, models.BookingStatusCancelledByDriver, ""},
		{"pending to passenger cancel", models.BookingStatusPending, models.PaymentStatusPending, models.BookingStatusCancelledByPassenger, ""},
		{"pending to in progress", models.BookingStatusPending, models.PaymentStatusPaid, models.BookingStatusInProgress, apperrors.KindInvalidTransition},
		{"pending to completed", models.BookingStatusPending, models.PaymentStatusPaid, models.BookingStatusCompleted, apperrors.KindInvalidTransition},
		{"pending to no show", models.BookingStatusPending, models.PaymentStatusPending, models.BookingStatusNoShow, apperrors.KindInvalidTransition},
		{"confirmed paid to in progress", models.BookingStatusConfirmed, models.PaymentStatusPaid, models.BookingStatusInProgress, ""},
		{"confirmed unpaid to in progress", models.BookingStatusConfirmed, models.PaymentStatusAuthorized, models.BookingStatusInProgress, apperrors.KindPreconditionFailed},
		{"confirmed unpaid to completed", models.BookingStatusConfirmed, models.PaymentStatusPending, models.BookingStatusCompleted, apperrors.KindInvalidTransition},
		{"confirmed paid to completed", models.BookingStatusConfirmed, models.PaymentStatusPaid, models.BookingStatusCompleted, apperrors.KindInvalidTransition},
		{"confirmed to no show", models.BookingStatusConfirmed, models.PaymentStatusPaid, models.BookingStatusNoShow, apperrors.KindInvalidTransition},
		{"in progress unpaid to completed", models.BookingStatusInProgress, models.PaymentStatusRefunded, models.BookingStatusCompleted, apperrors.KindPreconditionFailed},
		{"in progress to no show", models.BookingStatusInProgress, models.PaymentStatusPaid, models.BookingStatusNoShow, ""},
		{"confirmed to pending", models.BookingStatusConfirmed, models.PaymentStatusPending, models.BookingStatusPending, apperrors.KindInvalidTransition},
		{"in progress to completed", models.BookingStatusInProgress, models.PaymentStatusPaid, models.BookingStatusCompleted, ""},
		{"in progress to confirmed", models.BookingStatusInProgress, models.PaymentStatusPaid, models.BookingStatusConfirmed, apperrors.KindInvalidTransition},
		{"completed is terminal", models.BookingStatusCompleted, models.PaymentStatusPaid, models.BookingStatusCancelledByPassenger, apperrors.KindInvalidTransition},
		{"cancelled is terminal", models.BookingStatusCancelledByDriver, models.PaymentStatusPending, models.BookingStatusConfirmed, apperrors.KindInvalidTransition},
		{"no show is terminal", models.BookingStatusNoShow, models.PaymentStatusPaid, models.BookingStatusCompleted, apperrors.KindInvalidTransition},
		{"unknown target", models.BookingStatusPending, models.PaymentStatusPending, models.BookingStatus("teleported"), apperrors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &models.Booking{Status: tt.from, PaymentStatus: tt.payment}
			err := CheckStatusTransition(b, tt.to)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertKind(t, err, tt.want)
		})
	}
}

func TestCheckPaymentTransition(t *testing.T) {
	tests := []struct {
		name        string
		status      models.BookingStatus
		from        models.PaymentStatus
		to          models.PaymentStatus
		wantChanged bool
		want        apperrors.Kind
	}{
		{"pending to authorized", models.BookingStatusPending, models.PaymentStatusPending, models.PaymentStatusAuthorized, true, ""},
		{"pending to failed", models.BookingStatusPending, models.PaymentStatusPending, models.PaymentStatusFailed, true, ""},
		{"failed to authorized", models.BookingStatusPending, models.PaymentStatusFailed, models.PaymentStatusAuthorized, true, ""},
		{"authorized to paid when confirmed", models.BookingStatusConfirmed, models.PaymentStatusAuthorized, models.PaymentStatusPaid, true, ""},
		{"paid requires confirmed", models.BookingStatusPending, models.PaymentStatusAuthorized, models.PaymentStatusPaid, false, apperrors.KindPreconditionFailed},
		{"same status is a no-op", models.BookingStatusConfirmed, models.PaymentStatusPaid, models.PaymentStatusPaid, false, ""},
		{"paid cannot fail", models.BookingStatusConfirmed, models.PaymentStatusPaid, models.PaymentStatusFailed, false, apperrors.KindInvalidTransition},
		{"refund requires cancellation", models.BookingStatusConfirmed, models.PaymentStatusPaid, models.PaymentStatusRefunded, false, apperrors.KindPreconditionFailed},
		{"refund of cancelled", models.BookingStatusCancelledByPassenger, models.PaymentStatusPaid, models.PaymentStatusRefunded, true, ""},
		{"terminal rejects non refund", models.BookingStatusCompleted, models.PaymentStatusAuthorized, models.PaymentStatusPaid, false, apperrors.KindInvalidTransition},
		{"refund of unpaid", models.BookingStatusCancelledByDriver, models.PaymentStatusPending, models.PaymentStatusRefunded, false, apperrors.KindInvalidTransition},
		{"unknown status", models.BookingStatusPending, models.PaymentStatusPending, models.PaymentStatus("chargeback"), false, apperrors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &models.Booking{Status: tt.status, PaymentStatus: tt.from}
			changed, err := CheckPaymentTransition(b, tt.to)
			if tt.want != "" {
				assertKind(t, err, tt.want)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
		})
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock(primitive.NewObjectID())
	if k.size() != 1 {
		t.Fatalf("size = %d, want 1", k.size())
	}
	unlock()
	if k.size() != 0 {
		t.Fatalf("size = %d after unlock, want 0", k.size())
	}
}
