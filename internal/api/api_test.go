package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gas-agency/internal/api"
	"github.com/example/gas-agency/internal/auth"
	"github.com/example/gas-agency/internal/clock"
	"github.com/example/gas-agency/internal/domain/account"
	"github.com/example/gas-agency/internal/domain/booking"
	"github.com/example/gas-agency/internal/domain/stock"
	"github.com/example/gas-agency/internal/infrastructure/cache"
	"github.com/example/gas-agency/internal/infrastructure/store/memory"
)

const (
	staffUser = "depot.manager"
	staffPass = "staff-password-1"
)

type server struct {
	handler  http.Handler
	accounts *account.Service
	ledger   *stock.Ledger
}

type options struct {
	stockCache  *cache.StockCache
	idempotency *cache.IdempotencyStore
}

func newServer(t *testing.T, opts options) *server {
	t.Helper()
	db := memory.New()
	events := memory.NewEventLog(db)
	clk := clock.NewFixed(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewJWTService("api-test-secret-key-0123456789abcdef", 30*time.Minute, 24*time.Hour, auth.WithClock(clk))

	accounts := account.NewService(db, memory.NewAccountRepository(db), memory.NewSessionRepository(db), events, tokens, clk, logger)
	ledger := stock.NewLedger(db, memory.NewStockRepository(db), events, clk, logger)
	workflow := booking.NewWorkflow(db, memory.NewBookingRepository(db), ledger, events, clk, logger)

	_, err := accounts.EnsureStaff(context.Background(), staffUser, staffPass)
	require.NoError(t, err)

	h := api.NewHandlers(api.Deps{
		Accounts:    accounts,
		Ledger:      ledger,
		Bookings:    workflow,
		StockCache:  opts.stockCache,
		Idempotency: opts.idempotency,
		Store:       db,
		Logger:      logger,
	})
	return &server{
		handler:  api.NewRouter(h, logger, []string{"https://agency.example"}),
		accounts: accounts,
		ledger:   ledger,
	}
}

func (s *server) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp api.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func (s *server) customer(t *testing.T, username string) (string, *account.Account) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":     username,
		"display_name": username,
		"password":     "customer-pass-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var acc account.Account
	decode(t, rec, &acc)
	return s.login(t, username, "customer-pass-1"), &acc
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decode(t, rec, &body)
	return body.Code
}

// ============================================
// Booking scenario
// ============================================

func TestBookingScenario_CapacityTenAvailableTwo(t *testing.T) {
	s := newServer(t, options{})
	staff := s.login(t, staffUser, staffPass)
	cust, _ := s.customer(t, "ravi")

	rec := s.do(t, http.MethodPost, "/api/agencies", staff, map[string]any{
		"agency_id": "north", "name": "North Depot", "capacity": 10, "available": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var big, small booking.Booking
	rec = s.do(t, http.MethodPost, "/api/bookings", cust, map[string]any{"agency_id": "north", "quantity": 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &big)
	rec = s.do(t, http.MethodPost, "/api/bookings", cust, map[string]any{"agency_id": "north", "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &small)
	assert.Equal(t, booking.StatusRequested, small.Status)

	// Not enough stock: rejected, not an error.
	rec = s.do(t, http.MethodPost, "/api/bookings/"+big.ID+"/approve", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &big)
	assert.Equal(t, booking.StatusRejected, big.Status)
	assert.Equal(t, booking.RejectReasonInsufficientStock, big.Reason)

	rec = s.do(t, http.MethodPost, "/api/bookings/"+small.ID+"/approve", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &small)
	assert.Equal(t, booking.StatusApproved, small.Status)
	assert.NotNil(t, small.DecidedAt)

	var st api.StockResponse
	rec = s.do(t, http.MethodGet, "/api/agencies/north/stock", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &st)
	assert.Equal(t, 0, st.Available)
	assert.Equal(t, 10, st.Capacity)

	rec = s.do(t, http.MethodPost, "/api/bookings/"+small.ID+"/cancel", cust, map[string]string{"reason": "changed plans"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &small)
	assert.Equal(t, booking.StatusCancelled, small.Status)

	rec = s.do(t, http.MethodGet, "/api/agencies/north/stock", "", nil)
	decode(t, rec, &st)
	assert.Equal(t, 2, st.Available)
}

func TestBookings_TransitionErrors(t *testing.T) {
	s := newServer(t, options{})
	staff := s.login(t, staffUser, staffPass)
	cust, _ := s.customer(t, "meera")
	_, err := s.ledger.Provision(context.Background(), stock.ProvisionInput{AgencyID: "south", Name: "South", Capacity: 5, Available: 5})
	require.NoError(t, err)

	var b booking.Booking
	rec := s.do(t, http.MethodPost, "/api/bookings", cust, map[string]any{"agency_id": "south", "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	decode(t, rec, &b)

	// Delivering a requested booking skips approval.
	rec = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/deliver", staff, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/approve", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/approve", staff, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/deliver", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &b)
	assert.Equal(t, booking.StatusDelivered, b.Status)

	rec = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/cancel", cust, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBookings_CreateValidation(t *testing.T) {
	s := newServer(t, options{})
	cust, _ := s.customer(t, "arjun")
	_, err := s.ledger.Provision(context.Background(), stock.ProvisionInput{AgencyID: "east", Name: "East", Capacity: 5, Available: 5})
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"zero quantity", map[string]any{"agency_id": "east", "quantity": 0}, http.StatusBadRequest, "invalid_quantity"},
		{"negative quantity", map[string]any{"agency_id": "east", "quantity": -3}, http.StatusBadRequest, "invalid_quantity"},
		{"quantity beyond storable range", map[string]any{"agency_id": "east", "quantity": math.MaxInt}, http.StatusBadRequest, "invalid_quantity"},
		{"unknown agency", map[string]any{"agency_id": "nowhere", "quantity": 1}, http.StatusNotFound, "agency_not_found"},
		{"missing agency", map[string]any{"quantity": 1}, http.StatusBadRequest, "validation_failed"},
		{"unknown field", map[string]any{"agency_id": "east", "quantity": 1, "price": 3}, http.StatusBadRequest, "invalid_request_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/bookings", cust, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestBookings_AccessControl(t *testing.T) {
	s := newServer(t, options{})
	staff := s.login(t, staffUser, staffPass)
	owner, _ := s.customer(t, "owner")
	other, _ := s.customer(t, "other")
	_, err := s.ledger.Provision(context.Background(), stock.ProvisionInput{AgencyID: "west", Name: "West", Capacity: 5, Available: 5})
	require.NoError(t, err)

	var b booking.Booking
	rec := s.do(t, http.MethodPost, "/api/bookings", owner, map[string]any{"agency_id": "west", "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	decode(t, rec, &b)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/bookings/"+b.ID, owner, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/bookings/"+b.ID, staff, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/bookings/"+b.ID, other, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/cancel", other, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/approve", owner, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/bookings/"+b.ID, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/bookings/does-not-exist", staff, nil).Code)

	var list []booking.Booking
	rec = s.do(t, http.MethodGet, "/api/bookings", other, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Empty(t, list)

	rec = s.do(t, http.MethodGet, "/api/bookings?status=requested", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	rec = s.do(t, http.MethodGet, "/api/bookings?status=lost", owner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", errorCode(t, rec))
}

// ============================================
// Accounts and sessions
// ============================================

func TestAuth_RegisterErrors(t *testing.T) {
	s := newServer(t, options{})
	s.customer(t, "kiran")

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "KIRAN", "display_name": "Other Kiran", "password": "another-pass-1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_identity", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "short.pw", "display_name": "Short", "password": "abc",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "weak_credential", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "mail", "display_name": "Mail", "password": "long-enough-1", "email": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", errorCode(t, rec))
}

func TestAuth_LoginFailuresAreIndistinguishable(t *testing.T) {
	s := newServer(t, options{})
	s.customer(t, "deepa")

	wrong := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "deepa", "password": "wrong-password"})
	unknown := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "nobody", "password": "wrong-password"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
}

func TestAuth_SessionLifecycle(t *testing.T) {
	s := newServer(t, options{})

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "lata", "display_name": "Lata", "password": "first-pass-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "lata", "password": "first-pass-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var sess api.SessionResponse
	decode(t, rec, &sess)
	assert.Equal(t, "lata", sess.Account.Username)

	var cookieNames []string
	for _, c := range rec.Result().Cookies() {
		cookieNames = append(cookieNames, c.Name)
		assert.True(t, c.HttpOnly)
	}
	assert.ElementsMatch(t, []string{"access_token", "refresh_token"}, cookieNames)

	var me account.Account
	rec = s.do(t, http.MethodGet, "/api/auth/me", sess.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &me)
	assert.Equal(t, "lata", me.Username)
	assert.NotContains(t, rec.Body.String(), "password")

	// Refresh rotates: the old refresh token cannot be used twice.
	rec = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": sess.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rotated api.SessionResponse
	decode(t, rec, &rotated)
	rec = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": sess.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/password", rotated.AccessToken, map[string]string{
		"current_password": "wrong-pass", "new_password": "second-pass-2",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credential", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/auth/password", rotated.AccessToken, map[string]string{
		"current_password": "first-pass-1", "new_password": "second-pass-2",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Changing the password ends every session.
	rec = s.do(t, http.MethodGet, "/api/auth/me", rotated.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session_not_found", errorCode(t, rec))

	token := s.login(t, "lata", "second-pass-2")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/auth/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/auth/me", token, nil).Code)
}

func TestAccounts_StaffManagement(t *testing.T) {
	s := newServer(t, options{})
	staff := s.login(t, staffUser, staffPass)
	cust, acc := s.customer(t, "vinod")

	rec := s.do(t, http.MethodPost, "/api/accounts/staff", cust, map[string]string{
		"username": "sneaky", "display_name": "Sneaky", "password": "sneaky-pass-1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/accounts/staff", staff, map[string]string{
		"username": "clerk", "display_name": "Clerk", "password": "clerk-pass-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var clerk account.Account
	decode(t, rec, &clerk)
	assert.Equal(t, account.RoleStaff, clerk.Role)

	rec = s.do(t, http.MethodPost, "/api/accounts/"+acc.ID+"/deactivate", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/auth/me", cust, nil).Code)
	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "vinod", "password": "customer-pass-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_deactivated", errorCode(t, rec))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/accounts/"+acc.ID+"/activate", staff, nil).Code)
	s.login(t, "vinod", "customer-pass-1")

	rec = s.do(t, http.MethodPost, "/api/accounts/00000000-0000-0000-0000-000000000000/deactivate", staff, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================
// Agencies
// ============================================

func TestAgencies_ProvisionAndRestock(t *testing.T) {
	s := newServer(t, options{})
	staff := s.login(t, staffUser, staffPass)

	body := map[string]any{"agency_id": "central", "name": "Central", "capacity": 10, "available": 8}
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/agencies", staff, body).Code)

	rec := s.do(t, http.MethodPost, "/api/agencies", staff, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "agency_exists", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/agencies", staff, map[string]any{"agency_id": "bad", "name": "Bad", "capacity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_capacity", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/agencies/central/restock", staff, map[string]int{"quantity": 3})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "capacity_exceeded", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/agencies/central/restock", staff, map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var got stock.Record
	decode(t, rec, &got)
	assert.Equal(t, 10, got.Available)

	rec = s.do(t, http.MethodPost, "/api/agencies/central/restock", staff, map[string]int{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_stock_quantity", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/agencies/central/restock", staff, map[string]int{"quantity": math.MaxInt})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_stock_quantity", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/agencies", staff, map[string]any{"agency_id": "huge", "name": "Huge", "capacity": math.MaxInt})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_capacity", errorCode(t, rec))

	var list []stock.Record
	rec = s.do(t, http.MethodGet, "/api/agencies", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/agencies/missing/stock", "", nil).Code)
}

func TestAgencies_DailyMovements(t *testing.T) {
	s := newServer(t, options{})
	staff := s.login(t, staffUser, staffPass)
	cust, _ := s.customer(t, "gita")

	rec := s.do(t, http.MethodPost, "/api/agencies", staff, map[string]any{"agency_id": "depot", "name": "Depot", "capacity": 20, "available": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/agencies/depot/restock", staff, map[string]int{"quantity": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var b booking.Booking
	rec = s.do(t, http.MethodPost, "/api/bookings", cust, map[string]any{"agency_id": "depot", "quantity": 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &b)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/approve", staff, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/cancel", cust, nil).Code)

	var report stock.DailyMovements
	rec = s.do(t, http.MethodGet, "/api/agencies/depot/movements?date=2024-03-01", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &report)
	assert.Equal(t, stock.DailyMovements{
		AgencyID:    "depot",
		Date:        "2024-03-01",
		Provisioned: 10,
		Restocked:   5,
		Reserved:    3,
		Released:    3,
		Closing:     15,
		Movements:   4,
	}, report)

	rec = s.do(t, http.MethodGet, "/api/agencies/depot/movements", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &report)
	assert.Equal(t, "2024-03-01", report.Date)

	rec = s.do(t, http.MethodGet, "/api/agencies/depot/movements?date=2024-03-02", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &report)
	assert.Equal(t, 15, report.Opening)
	assert.Equal(t, 15, report.Closing)
	assert.Zero(t, report.Movements)

	rec = s.do(t, http.MethodGet, "/api/agencies/depot/movements?date=01-03-2024", staff, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date", errorCode(t, rec))

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/agencies/missing/movements", staff, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/agencies/depot/movements", cust, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/agencies/depot/movements", "", nil).Code)
}

func TestAgencies_StockReadThroughCache(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := newServer(t, options{stockCache: cache.NewStockCache(client, 5*time.Second)})

	cached := `{"agency_id":"cached","name":"Cached","available":4,"capacity":9,"version":1}`
	mock.ExpectGet("stock:cached").SetVal(cached)

	var st api.StockResponse
	rec := s.do(t, http.MethodGet, "/api/agencies/cached/stock", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &st)
	assert.Equal(t, 4, st.Available)
	assert.Equal(t, 9, st.Capacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelBooking_AlwaysInvalidatesStockCache(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := newServer(t, options{stockCache: cache.NewStockCache(client, 5*time.Second)})
	staff := s.login(t, staffUser, staffPass)
	cust, _ := s.customer(t, "farida")
	_, err := s.ledger.Provision(context.Background(), stock.ProvisionInput{AgencyID: "north", Name: "North", Capacity: 5, Available: 5})
	require.NoError(t, err)

	create := func() booking.Booking {
		var b booking.Booking
		rec := s.do(t, http.MethodPost, "/api/bookings", cust, map[string]any{"agency_id": "north", "quantity": 1})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &b)
		return b
	}

	// A requested booking may be approved by another request after the
	// handler has read it, so its cancel still drops the cached stock.
	requested := create()
	mock.ExpectDel("stock:north").SetVal(1)
	rec := s.do(t, http.MethodPost, "/api/bookings/"+requested.ID+"/cancel", cust, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	approved := create()
	mock.ExpectDel("stock:north").SetVal(1)
	rec = s.do(t, http.MethodPost, "/api/bookings/"+approved.ID+"/approve", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mock.ExpectDel("stock:north").SetVal(0)
	rec = s.do(t, http.MethodPost, "/api/bookings/"+approved.ID+"/cancel", cust, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.NoError(t, mock.ExpectationsWereMet())

	n, err := s.ledger.GetAvailable(context.Background(), "north")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

// ============================================
// Idempotency
// ============================================

func TestCreateBooking_IdempotentReplay(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := newServer(t, options{idempotency: cache.NewIdempotencyStore(client, time.Hour)})
	cust, acc := s.customer(t, "anita")

	stored := `{"id":"b-1","account_id":"` + acc.ID + `","agency_id":"north","quantity":1,"status":"requested"}`
	mock.ExpectSetNX("idempotency:"+acc.ID+":order-1", "pending", 30*time.Second).SetVal(false)
	mock.ExpectGet("idempotency:" + acc.ID + ":order-1").SetVal(stored)

	rec := s.do(t, http.MethodPost, "/api/bookings", cust, map[string]any{"agency_id": "north", "quantity": 1}, "Idempotency-Key", "order-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, stored, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_IdempotencyInProgress(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := newServer(t, options{idempotency: cache.NewIdempotencyStore(client, time.Hour)})
	cust, acc := s.customer(t, "bala")

	mock.ExpectSetNX("idempotency:"+acc.ID+":order-2", "pending", 30*time.Second).SetVal(false)
	mock.ExpectGet("idempotency:" + acc.ID + ":order-2").SetVal("pending")

	rec := s.do(t, http.MethodPost, "/api/bookings", cust, map[string]any{"agency_id": "north", "quantity": 1}, "Idempotency-Key", "order-2")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "idempotency_in_progress", errorCode(t, rec))
}

func TestCreateBooking_IdempotencyKeyReleasedOnFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := newServer(t, options{idempotency: cache.NewIdempotencyStore(client, time.Hour)})
	cust, acc := s.customer(t, "chitra")

	key := "idempotency:" + acc.ID + ":order-3"
	mock.ExpectSetNX(key, "pending", 30*time.Second).SetVal(true)
	mock.ExpectDel(key).SetVal(1)

	rec := s.do(t, http.MethodPost, "/api/bookings", cust, map[string]any{"agency_id": "nowhere", "quantity": 1}, "Idempotency-Key", "order-3")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// Router
// ============================================

func TestRouter_HealthAndNotFound(t *testing.T) {
	s := newServer(t, options{})

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"up"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = s.do(t, http.MethodGet, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}
