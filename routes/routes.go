package routes

import (
	"tripchat/internal/handlers/shared"
	"tripchat/internal/middleware"
	"tripchat/pkg/websocket"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Booking   *shared.BookingHandler
	Message   *shared.MessageHandler
	Webhook   *shared.WebhookHandler
	Health    *shared.HealthHandler
	WebSocket *websocket.Handler
}

type Options struct {
	Auth           middleware.ClaimsParser
	InternalAPIKey string
}

// Setup mounts every route on r.
func Setup(r *gin.Engine, h *Handlers, opts Options) {
	r.GET("/health", h.Health.Health)
	r.GET("/ws", h.WebSocket.HandleWebSocket)

	api := r.Group("/api/v1")
	SetupWebhookRoutes(api, h.Webhook)
	SetupInternalRoutes(api, h.Booking, opts.InternalAPIKey)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(opts.Auth))
	SetupBookingRoutes(protected, h.Booking)
	SetupTripRoutes(protected, h.Booking, h.Message)
}

// SetupBookingRoutes sets up routes for the booking lifecycle
func SetupBookingRoutes(r *gin.RouterGroup, bookingHandler *shared.BookingHandler) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", bookingHandler.CreateBooking)
		bookings.GET("/:id", bookingHandler.GetBooking)

		// Driver actions
		bookings.POST("/:id/confirm", bookingHandler.ConfirmBooking)
		bookings.POST("/:id/reject", bookingHandler.RejectBooking)
		bookings.POST("/:id/start", bookingHandler.StartTrip)
		bookings.POST("/:id/complete", bookingHandler.CompleteBooking)
		bookings.POST("/:id/no-show", bookingHandler.MarkNoShow)

		// Either party
		bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
		bookings.POST("/:id/rate", bookingHandler.RateBooking)
	}
}

func SetupTripRoutes(r *gin.RouterGroup, bookingHandler *shared.BookingHandler, messageHandler *shared.MessageHandler) {
	trips := r.Group("/trips")
	{
		trips.GET("/:id/bookings", bookingHandler.GetTripBookings)
		trips.GET("/:id/messages", messageHandler.GetTripMessages)
	}
}

// Public webhook routes, authenticated by gateway signatures
func SetupWebhookRoutes(r *gin.RouterGroup, webhookHandler *shared.WebhookHandler) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/payments/:provider", webhookHandler.HandlePaymentWebhook)
	}
}

func SetupInternalRoutes(r *gin.RouterGroup, bookingHandler *shared.BookingHandler, apiKey string) {
	internal := r.Group("/bookings")
	internal.Use(middleware.InternalKeyRequired(apiKey))
	{
		internal.POST("/:id/payment", bookingHandler.RecordPaymentStatus)
	}
}
