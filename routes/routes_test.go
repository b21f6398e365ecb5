package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tripchat/internal/handlers/shared"
	"tripchat/internal/models"
	"tripchat/internal/repositories/memory"
	"tripchat/internal/services"
	"tripchat/internal/utils"
	"tripchat/pkg/cache"
	"tripchat/pkg/logger"
	"tripchat/pkg/payment"
	"tripchat/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const internalKey = "internal-test-key"

type apiFixture struct {
	t           *testing.T
	engine      *gin.Engine
	trip        *models.Trip
	driverTok   string
	passTok     string
	outsiderTok string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	log := logger.NewNop()
	store := memory.NewStore()

	driverID := primitive.NewObjectID()
	trip := &models.Trip{DriverID: driverID, Origin: "Pune", Destination: "Goa", TotalSeats: 2, AvailableSeats: 2}
	if err := store.Trips.Create(ctx, trip); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	tokens := services.NewTokenService("routes-secret", "tripchat", time.Hour)
	registry := payment.NewRegistry()
	limiter := cache.NewMemoryCache()

	bookings := services.NewBookingService(store.Bookings, store.Trips, registry, log)
	access := services.NewAccessService(store.Trips, store.Bookings, log)
	presence := websocket.NewPresence()
	router := websocket.NewRouter(access, presence, 4, log)
	sessions := websocket.NewSessionManager(tokens, presence, router, websocket.SessionOptions{
		HandshakeTimeout: time.Second,
		SendBufferSize:   16,
	}, log)
	bookings.AddListener(services.NewRealtimeNotifier(router, sessions, log))

	messages := services.NewMessageService(store.Messages, access, router, presence, limiter, nil, nil,
		services.MessageConfig{MaxMessageLength: 500}, log)
	payments := services.NewPaymentService(registry, bookings, limiter, time.Hour, log)
	ws := websocket.NewHandler(sessions, router, messages, websocket.HandlerConfig{
		HandshakeTimeout: time.Second,
		PingInterval:     time.Minute,
		PongTimeout:      time.Minute,
		WriteTimeout:     time.Second,
	}, log)

	engine := gin.New()
	Setup(engine, &Handlers{
		Booking:   shared.NewBookingHandler(bookings),
		Message:   shared.NewMessageHandler(messages),
		Webhook:   shared.NewWebhookHandler(payments),
		Health:    shared.NewHealthHandler(nil, sessions.Count),
		WebSocket: ws,
	}, Options{Auth: tokens, InternalAPIKey: internalKey})

	issue := func(id primitive.ObjectID) string {
		tok, err := tokens.IssueToken(id, "")
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		return tok
	}

	return &apiFixture{
		t:           t,
		engine:      engine,
		trip:        trip,
		driverTok:   issue(driverID),
		passTok:     issue(primitive.NewObjectID()),
		outsiderTok: issue(primitive.NewObjectID()),
	}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *utils.APIError `json:"error"`
	Meta   *utils.Meta     `json:"meta"`
}

func (f *apiFixture) do(method, path, token string, body interface{}, headers map[string]string) (int, *envelope) {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			f.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		f.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, &env
}

func (f *apiFixture) booking(env *envelope) *models.Booking {
	f.t.Helper()
	var b models.Booking
	if err := json.Unmarshal(env.Data, &b); err != nil {
		f.t.Fatalf("decode booking: %v", err)
	}
	return &b
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	tripPath := "/api/v1/trips/" + f.trip.ID.Hex()

	code, env := f.do(http.MethodPost, "/api/v1/bookings", f.passTok,
		map[string]interface{}{"trip_id": f.trip.ID.Hex(), "number_of_seats": 1}, nil)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, error %+v", code, env.Error)
	}
	created := f.booking(env)
	if created.Status != models.BookingStatusPending {
		t.Fatalf("status = %s, want pending", created.Status)
	}
	bookingPath := "/api/v1/bookings/" + created.ID.Hex()

	if code, env = f.do(http.MethodPost, bookingPath+"/confirm", f.passTok, nil, nil); code != http.StatusForbidden {
		t.Fatalf("passenger confirm status = %d, want 403 (%+v)", code, env.Error)
	}
	if code, env = f.do(http.MethodPost, bookingPath+"/confirm", f.driverTok, nil, nil); code != http.StatusOK {
		t.Fatalf("confirm status = %d (%+v)", code, env.Error)
	}
	if got := f.booking(env).Status; got != models.BookingStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got)
	}

	// no chat history before payment
	if code, _ = f.do(http.MethodGet, tripPath+"/messages", f.passTok, nil, nil); code != http.StatusForbidden {
		t.Fatalf("history before payment status = %d, want 403", code)
	}

	paid := map[string]string{"status": "paid", "provider": "stripe", "reference": "pi_123"}
	if code, _ = f.do(http.MethodPost, bookingPath+"/payment", "", paid, nil); code != http.StatusForbidden {
		t.Fatalf("payment without key status = %d, want 403", code)
	}
	code, env = f.do(http.MethodPost, bookingPath+"/payment", "", paid, map[string]string{"X-Internal-API-Key": internalKey})
	if code != http.StatusOK {
		t.Fatalf("payment status = %d (%+v)", code, env.Error)
	}
	if b := f.booking(env); !b.ChatEligible() || b.ChatOpenedAt == nil {
		t.Fatalf("booking not chat eligible after payment: %+v", b)
	}

	code, env = f.do(http.MethodGet, tripPath+"/messages", f.passTok, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("history status = %d (%+v)", code, env.Error)
	}
	if string(env.Data) != "[]" {
		t.Errorf("history = %s, want empty list", env.Data)
	}

	code, env = f.do(http.MethodGet, tripPath+"/bookings", f.driverTok, nil, nil)
	if code != http.StatusOK || env.Meta == nil || env.Meta.Count != 1 {
		t.Fatalf("trip bookings status = %d meta = %+v", code, env.Meta)
	}

	if code, _ = f.do(http.MethodGet, bookingPath, f.outsiderTok, nil, nil); code != http.StatusForbidden {
		t.Fatalf("outsider get status = %d, want 403", code)
	}

	if code, env = f.do(http.MethodPost, bookingPath+"/start", f.driverTok, nil, nil); code != http.StatusOK {
		t.Fatalf("start status = %d (%+v)", code, env.Error)
	}
	if code, env = f.do(http.MethodPost, bookingPath+"/complete", f.driverTok, nil, nil); code != http.StatusOK {
		t.Fatalf("complete status = %d (%+v)", code, env.Error)
	}
	code, env = f.do(http.MethodPost, bookingPath+"/rate", f.passTok, map[string]interface{}{"score": 5, "comment": "smooth"}, nil)
	if code != http.StatusOK {
		t.Fatalf("rate status = %d (%+v)", code, env.Error)
	}
	if r := f.booking(env).Rating; r == nil || r.Score != 5 {
		t.Errorf("rating = %+v", r)
	}

	// completed bookings cannot be cancelled
	if code, env = f.do(http.MethodPost, bookingPath+"/cancel", f.passTok, nil, nil); code != http.StatusConflict {
		t.Fatalf("cancel completed status = %d, want 409 (%+v)", code, env.Error)
	}
}

func TestRequestRejections(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/api/v1/bookings/" + primitive.NewObjectID().Hex(),
			wantCode: http.StatusUnauthorized,
			wantErr:  "authentication_failed",
		},
		{
			name:     "bad booking id",
			method:   http.MethodGet,
			path:     "/api/v1/bookings/nope",
			token:    f.passTok,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_input",
		},
		{
			name:     "zero seats",
			method:   http.MethodPost,
			path:     "/api/v1/bookings",
			token:    f.passTok,
			body:     map[string]interface{}{"trip_id": f.trip.ID.Hex(), "number_of_seats": 0},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_input",
		},
		{
			name:     "unknown trip",
			method:   http.MethodPost,
			path:     "/api/v1/bookings",
			token:    f.passTok,
			body:     map[string]interface{}{"trip_id": primitive.NewObjectID().Hex(), "number_of_seats": 1},
			wantCode: http.StatusNotFound,
			wantErr:  "not_found",
		},
		{
			name:     "non driver lists bookings",
			method:   http.MethodGet,
			path:     "/api/v1/trips/" + f.trip.ID.Hex() + "/bookings",
			token:    f.passTok,
			wantCode: http.StatusForbidden,
			wantErr:  "not_authorized",
		},
		{
			name:     "unknown payment provider",
			method:   http.MethodPost,
			path:     "/api/v1/webhooks/payments/paypal",
			body:     map[string]string{"id": "evt"},
			wantCode: http.StatusNotFound,
			wantErr:  "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(tt.method, tt.path, tt.token, tt.body, nil)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%+v)", code, tt.wantCode, env.Error)
			}
			if env.Error == nil || env.Error.Code != tt.wantErr {
				t.Fatalf("error = %+v, want code %s", env.Error, tt.wantErr)
			}
		})
	}
}

func TestHealthRoute(t *testing.T) {
	f := newAPIFixture(t)
	code, env := f.do(http.MethodGet, "/health", "", nil, nil)
	if code != http.StatusOK || env.Status != utils.StatusSuccess {
		t.Fatalf("health = %d %s", code, env.Status)
	}
}
