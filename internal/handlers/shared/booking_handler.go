package shared

import (
	"context"

	"tripchat/internal/models"
	"tripchat/internal/services"
	"tripchat/internal/utils"
	"tripchat/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingHandler struct {
	bookingService *services.BookingService
}

func NewBookingHandler(bookingService *services.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CreateBooking requests seats on a trip for the caller
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req validators.BookingCreateRequest
	if !bindJSON(c, &req, false) || !checkValid(c, validators.ValidateBookingCreate(&req)) {
		return
	}
	tripID, _ := primitive.ObjectIDFromHex(req.TripID)

	booking, err := h.bookingService.CreateBooking(c.Request.Context(), userID, tripID, req.NumberOfSeats)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Booking requested successfully", booking)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), bookingID, userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Booking retrieved successfully", booking)
}

// GetTripBookings lists the bookings of a trip for its driver
func (h *BookingHandler) GetTripBookings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	tripID, ok := pathID(c, "id")
	if !ok {
		return
	}

	bookings, err := h.bookingService.ListTripBookings(c.Request.Context(), tripID, userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}

	utils.SuccessResponseWithMeta(c, "Bookings retrieved successfully", bookings, &utils.Meta{Count: len(bookings)})
}

type driverAction func(ctx context.Context, id, actorID primitive.ObjectID) (*models.Booking, error)

func (h *BookingHandler) runAction(c *gin.Context, action driverAction, message string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	booking, err := action(c.Request.Context(), bookingID, userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, message, booking)
}

func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	h.runAction(c, h.bookingService.ConfirmBooking, "Booking confirmed successfully")
}

func (h *BookingHandler) StartTrip(c *gin.Context) {
	h.runAction(c, h.bookingService.StartTrip, "Trip started successfully")
}

func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	h.runAction(c, h.bookingService.CompleteBooking, "Booking completed successfully")
}

func (h *BookingHandler) MarkNoShow(c *gin.Context) {
	h.runAction(c, h.bookingService.MarkNoShow, "Booking marked as no-show")
}

func (h *BookingHandler) RejectBooking(c *gin.Context) {
	var req validators.BookingCancelRequest
	if !bindJSON(c, &req, true) || !checkValid(c, validators.ValidateBookingCancel(&req)) {
		return
	}
	h.runAction(c, func(ctx context.Context, id, actorID primitive.ObjectID) (*models.Booking, error) {
		return h.bookingService.RejectBooking(ctx, id, actorID, req.Reason)
	}, "Booking rejected successfully")
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req validators.BookingCancelRequest
	if !bindJSON(c, &req, true) || !checkValid(c, validators.ValidateBookingCancel(&req)) {
		return
	}
	h.runAction(c, func(ctx context.Context, id, actorID primitive.ObjectID) (*models.Booking, error) {
		return h.bookingService.CancelBooking(ctx, id, actorID, req.Reason)
	}, "Booking cancelled successfully")
}

func (h *BookingHandler) RateBooking(c *gin.Context) {
	var req validators.BookingRateRequest
	if !bindJSON(c, &req, false) || !checkValid(c, validators.ValidateBookingRate(&req)) {
		return
	}
	h.runAction(c, func(ctx context.Context, id, actorID primitive.ObjectID) (*models.Booking, error) {
		return h.bookingService.RateBooking(ctx, id, actorID, req.Score, req.Comment)
	}, "Booking rated successfully")
}

// RecordPaymentStatus is the trusted callback of the payment service. It is
// mounted behind the internal API key, not user auth.
func (h *BookingHandler) RecordPaymentStatus(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req validators.PaymentStatusRequest
	if !bindJSON(c, &req, false) || !checkValid(c, validators.ValidatePaymentStatus(&req)) {
		return
	}

	booking, err := h.bookingService.RecordPaymentStatus(c.Request.Context(), bookingID,
		models.PaymentStatus(req.Status), req.Provider, req.Reference)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Payment status recorded", booking)
}
