package services

import (
	"context"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
	"tripchat/internal/repositories/interfaces"
	"tripchat/pkg/logger"
	"tripchat/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AccessService derives trip chat access from the current booking state.
type AccessService struct {
	trips    interfaces.TripRepository
	bookings interfaces.BookingRepository
	logger   *logger.Logger
}

func NewAccessService(trips interfaces.TripRepository, bookings interfaces.BookingRepository, log *logger.Logger) *AccessService {
	return &AccessService{
		trips:    trips,
		bookings: bookings,
		logger:   log,
	}
}

var errNotTripParty = apperrors.New(apperrors.KindNotAuthorized, "not a party of this trip")

func (a *AccessService) load(ctx context.Context, tripID primitive.ObjectID) (*models.Trip, []*models.Booking, error) {
	trip, err := a.trips.GetByID(ctx, tripID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, nil, errNotTripParty
		}
		return nil, nil, apperrors.Wrap(apperrors.KindUnavailable, "failed to load trip", err)
	}

	bookings, err := a.bookings.GetByTrip(ctx, tripID)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindUnavailable, "failed to load bookings", err)
	}
	return trip, bookings, nil
}

// AuthorizeJoin reports who may currently be in the trip room, provided
// userID is one of them.
func (a *AccessService) AuthorizeJoin(ctx context.Context, tripID, userID primitive.ObjectID) (*websocket.Parties, error) {
	trip, bookings, err := a.load(ctx, tripID)
	if err != nil {
		return nil, err
	}

	parties := &websocket.Parties{DriverID: trip.DriverID}
	seen := make(map[primitive.ObjectID]bool)
	isPassenger := false
	for _, b := range bookings {
		if b.PassengerID == userID {
			isPassenger = true
		}
		if b.ChatEligible() && !seen[b.PassengerID] {
			seen[b.PassengerID] = true
			parties.PassengerIDs = append(parties.PassengerIDs, b.PassengerID)
		}
	}

	switch {
	case userID == trip.DriverID:
		if len(parties.PassengerIDs) == 0 {
			return nil, apperrors.ErrRoomNotEligible
		}
	case seen[userID]:
	case isPassenger:
		return nil, apperrors.ErrRoomNotEligible
	default:
		return nil, errNotTripParty
	}
	return parties, nil
}

// CanReadHistory allows the driver, and passengers whose booking was chat
// eligible at some point.
func (a *AccessService) CanReadHistory(ctx context.Context, tripID, userID primitive.ObjectID) error {
	trip, bookings, err := a.load(ctx, tripID)
	if err != nil {
		return err
	}
	if userID == trip.DriverID {
		return nil
	}
	for _, b := range bookings {
		if b.PassengerID == userID && b.ChatOpenedAt != nil {
			return nil
		}
	}
	return errNotTripParty
}
