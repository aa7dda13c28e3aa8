package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"classbook/internal/auth"
	"classbook/internal/config"
	"classbook/internal/events"
	"classbook/internal/models"
	"classbook/internal/repository"
	"classbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	server *httptest.Server
	jwt    *auth.JWTManager
}

func newTestEnv(t *testing.T, apiCfg config.APIConfig, ready func(context.Context) error) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	bookingSvc := service.NewBookingService(repository.NewMemoryBookingStore(), events.NewEventBus(), false, &logger)

	genCfg := config.GeneratorConfig{
		Rooms:       models.DefaultRooms,
		Hours:       models.DefaultHours,
		HorizonDays: models.DefaultHorizonDays,
		IDPrefix:    models.DefaultGeneratedIDPrefix,
		RetryFactor: models.DefaultRetryFactor,
		Timezone:    "UTC",
	}
	generator, err := service.NewGeneratorService(bookingSvc, genCfg, &logger, service.WithRand(rand.New(rand.NewPCG(7, 7))))
	require.NoError(t, err)

	authCfg := config.AuthConfig{BcryptCost: bcrypt.MinCost, LoginAttempts: 2, LoginWindowSeconds: 60}
	userSvc := service.NewUserService(repository.NewMemoryUserStore(), jwtManager, repository.NewMemoryRateLimiter(), authCfg, &logger)

	h := NewHandler(Deps{
		Bookings:  bookingSvc,
		Generator: generator,
		Users:     userSvc,
		Identity:  jwtManager,
		SheetName: "Bookings",
		Ready:     ready,
		Logger:    &logger,
	})
	ts := httptest.NewServer(NewRouter(h, apiCfg))
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, jwt: jwtManager}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := e.jwt.IssueToken(userID)
	require.NoError(t, err)
	return tok
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func bookingBody(id, tod string, priority int) map[string]any {
	return map[string]any{"id": id, "date": "2025-06-02", "time": tod, "room": "A101", "priority": priority}
}

func TestBookingEndpoints(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)

	resp := env.do(t, http.MethodPost, "/booking-service/bookings", bookingBody("b1", "10:00", 3), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Booking](t, resp)
	assert.Equal(t, models.StatusFree, created.Status)
	assert.Equal(t, "10:00", created.Time.String())
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	t.Run("Conflict", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/booking-service/bookings", bookingBody("b2", "11:30", 2), "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "SLOT_CONFLICT", decode[errorResponse](t, resp).Code)
	})

	t.Run("DuplicateBeatsPriority", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/booking-service/bookings", bookingBody("b1", "18:00", 9), "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "DUPLICATE_ID", decode[errorResponse](t, resp).Code)
	})

	t.Run("InvalidPriority", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/booking-service/bookings", bookingBody("b9", "18:00", 0), "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PRIORITY", decode[errorResponse](t, resp).Code)
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/booking-service/bookings", map[string]any{"id": "x", "date": "02.06.2025", "time": "10:00", "room": "A101"}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorResponse](t, resp)
		assert.Equal(t, "VALIDATION_FAILED", body.Code)
		require.Len(t, body.Details, 1)
		assert.Equal(t, "date", body.Details[0].Field)
	})

	t.Run("GetAndNotFound", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/booking-service/bookings/b1", nil, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "b1", decode[models.Booking](t, resp).ID)

		resp = env.do(t, http.MethodGet, "/booking-service/bookings/nope", nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("ReservationFlow", func(t *testing.T) {
		u1, u2 := env.token(t, "u1"), env.token(t, "u2")

		resp := env.do(t, http.MethodPut, "/booking-service/bookings/make/b1", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = env.do(t, http.MethodPut, "/booking-service/bookings/make/b1", nil, "garbage")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = env.do(t, http.MethodPut, "/booking-service/bookings/make/b1", nil, u1)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "u1", decode[models.Booking](t, resp).Owner)

		resp = env.do(t, http.MethodPut, "/booking-service/bookings/make/b1", nil, u2)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "ALREADY_RESERVED", decode[errorResponse](t, resp).Code)

		resp = env.do(t, http.MethodPut, "/booking-service/bookings/cancel/b1", nil, u2)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = env.do(t, http.MethodGet, "/booking-service/my-reservations", nil, u1)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decode[[]models.Booking](t, resp), 1)

		resp = env.do(t, http.MethodPut, "/booking-service/bookings/cancel/b1", nil, u1)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, models.StatusFree, decode[models.Booking](t, resp).Status)

		resp = env.do(t, http.MethodPut, "/booking-service/bookings/cancel/b1", nil, u1)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "ALREADY_FREE", decode[errorResponse](t, resp).Code)
	})

	t.Run("Export", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/booking-service/bookings/export", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")

		f, err := excelize.OpenReader(resp.Body)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Bookings")
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("DeleteReturnsRemaining", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/booking-service/bookings", bookingBody("b3", "14:00", 1), "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = env.do(t, http.MethodDelete, "/booking-service/bookings/b1", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		remaining := decode[[]models.Booking](t, resp)
		require.Len(t, remaining, 1)
		assert.Equal(t, "b3", remaining[0].ID)

		resp = env.do(t, http.MethodDelete, "/booking-service/bookings/b1", nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGeneratorEndpoints(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)

	resp := env.do(t, http.MethodPost, "/generate-service/generate-exact-bookings?count=12", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 12, decode[generateResponse](t, resp).TotalGenerated)

	resp = env.do(t, http.MethodPost, "/generate-service/generate-bookings?min=2&max=4", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[generateResponse](t, resp).TotalGenerated
	assert.GreaterOrEqual(t, got, 2)
	assert.LessOrEqual(t, got, 4)

	resp = env.do(t, http.MethodPost, "/generate-service/generate-bookings?min=5&max=1", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_RANGE", decode[errorResponse](t, resp).Code)

	resp = env.do(t, http.MethodPost, "/generate-service/generate-exact-bookings?count=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/generate-service/clear-all-bookings", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 12+got, decode[clearResponse](t, resp).TotalRemoved)

	resp = env.do(t, http.MethodGet, "/booking-service/bookings", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.Booking](t, resp))
}

func TestUserEndpoints(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)

	reg := map[string]any{"user_id": "u1", "email": "u1@example.com", "password": "secret1", "password_confirmation": "secret1"}
	resp := env.do(t, http.MethodPost, "/user-service/register", reg, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password")

	resp = env.do(t, http.MethodPost, "/user-service/register", reg, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	mismatch := map[string]any{"user_id": "u2", "email": "u2@example.com", "password": "secret1", "password_confirmation": "other12"}
	resp = env.do(t, http.MethodPost, "/user-service/register", mismatch, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PASSWORD_MISMATCH", decode[errorResponse](t, resp).Code)

	resp = env.do(t, http.MethodPost, "/user-service/login", map[string]any{"user_id": "u1", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[loginResponse](t, resp)
	caller, err := env.jwt.ResolveCaller(context.Background(), login.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", caller)

	resp = env.do(t, http.MethodPost, "/user-service/login", map[string]any{"user_id": "u1", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/user-service/login", map[string]any{"user_id": "u1", "password": "secret1"}, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/user-service/users", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.User](t, resp), 1)

	resp = env.do(t, http.MethodGet, "/user-service/users/u1", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/user-service/users/u1", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/user-service/users/u1", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, func(context.Context) error { return errors.New("db down") })

	resp := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}}, nil)

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodGet, "/booking-service/bookings", nil, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := env.do(t, http.MethodGet, "/booking-service/bookings", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// health checks bypass the limiter
	resp = env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
