package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghuser/campusreserve/pkg/auth"
	"github.com/ghuser/campusreserve/pkg/clock"
	"github.com/ghuser/campusreserve/pkg/logger"
	"github.com/ghuser/campusreserve/services/reservation/application/api"
	"github.com/ghuser/campusreserve/services/reservation/application/handlers"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
	"github.com/ghuser/campusreserve/services/reservation/infrastructure/memory"
)

const secret = "api-test-secret-must-be-32-bytes!"

type server struct {
	t      *testing.T
	srv    *httptest.Server
	tokens *auth.Tokens
	clock  *clock.Manual
	book   *models.Item
	menu   *models.Item
}

func newServer(t *testing.T) *server {
	t.Helper()
	return newLimitedServer(t, 0)
}

// newLimitedServer allows opensPerMinute reservation opens per user; zero
// disables the limit.
func newLimitedServer(t *testing.T, opensPerMinute int) *server {
	t.Helper()
	book, err := models.NewItem("Introduction to Algorithms", models.KindBook, 1, 0)
	require.NoError(t, err)
	menu, err := models.NewItem("Masala Dosa", models.KindMenu, 0, 6000)
	require.NoError(t, err)

	catalog := memory.NewCatalog(book, menu)
	ledger := memory.NewLedger()
	ledger.Track(book, menu)
	store := memory.NewStore()
	clk := clock.NewManual(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	log := logger.NewWriter(io.Discard, "error")

	svcs := &appsvcs.Services{
		Engine: appsvcs.NewEngine(catalog, ledger, store, clk, appsvcs.WithLogger(log)),
		Query:  appsvcs.NewQuery(catalog, ledger, store, nil, log),
		Ledger: ledger,
	}
	tokens := auth.NewTokens(secret, time.Hour)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		mw := api.Middleware{RequireAuth: auth.RequireAuth(tokens, nil, log)}
		if opensPerMinute > 0 {
			mw.LimitOpens = auth.LimitByUser(opensPerMinute, time.Minute)
		}
		api.Mount(r, svcs, mw)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &server{t: t, srv: srv, tokens: tokens, clock: clk, book: book, menu: menu}
}

func (s *server) do(method, path string, userID uuid.UUID, body any, out any, roles ...string) int {
	s.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	require.NoError(s.t, err)
	if userID != uuid.Nil {
		tok, err := s.tokens.Issue(userID, roles...)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close() //nolint:errcheck
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestReservationLifecycle(t *testing.T) {
	s := newServer(t)
	alice, bob := uuid.New(), uuid.New()

	var opened handlers.ReservationResponse
	status := s.do(http.MethodPost, "/api/reservations", alice,
		handlers.OpenReservationRequest{ItemID: s.book.ID.String(), DurationDays: 7}, &opened)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "open", opened.Status)
	assert.Nil(t, opened.Fine)

	var errBody handlers.ErrorResponse
	status = s.do(http.MethodPost, "/api/reservations", bob,
		handlers.OpenReservationRequest{ItemID: s.book.ID.String(), DurationDays: 7}, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, errBody.Error, "out of stock")

	var item handlers.ItemResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/items/"+s.book.ID.String(), alice, nil, &item))
	assert.Equal(t, 0, item.AvailableCapacity)

	var list []handlers.ReservationResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/reservations", alice, nil, &list))
	require.Len(t, list, 1)

	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodGet, "/api/reservations/"+opened.ID.String(), bob, nil, nil))

	s.clock.Advance(10 * 24 * time.Hour)
	var closed handlers.ReservationResponse
	require.Equal(t, http.StatusOK,
		s.do(http.MethodDelete, "/api/items/"+s.book.ID.String()+"/reservation", alice, nil, &closed))
	assert.Equal(t, "closed", closed.Status)
	require.NotNil(t, closed.Fine)
	assert.Equal(t, int64(1500), *closed.Fine)

	assert.Equal(t, http.StatusConflict,
		s.do(http.MethodPost, "/api/reservations/"+opened.ID.String()+"/close", alice, nil, nil))

	var fines handlers.FineSummaryResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/reservations/fines", alice, nil, &fines))
	assert.Equal(t, handlers.FineSummaryResponse{Total: 1500, LateReturns: 1}, fines)
}

func TestPendingOrderCancelAndActivate(t *testing.T) {
	s := newServer(t)
	user := uuid.New()

	var order handlers.ReservationResponse
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/reservations", user,
		handlers.OpenReservationRequest{ItemID: s.menu.ID.String(), DurationDays: 1}, &order))
	assert.Equal(t, "pending", order.Stage)
	assert.Equal(t, int64(6000), order.Price)

	activatePath := "/api/reservations/" + order.ID.String() + "/activate"
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, activatePath, user, nil, nil))

	var active handlers.ReservationResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, activatePath, uuid.New(), nil, &active, auth.RoleStaff))
	assert.Equal(t, "active", active.Stage)

	assert.Equal(t, http.StatusConflict,
		s.do(http.MethodPost, "/api/reservations/"+order.ID.String()+"/cancel", user, nil, nil))
}

func TestRequestValidation(t *testing.T) {
	s := newServer(t)
	user := uuid.New()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		user   uuid.UUID
		want   int
	}{
		{"unauthenticated", http.MethodGet, "/api/reservations", nil, uuid.Nil, http.StatusUnauthorized},
		{"duration too long", http.MethodPost, "/api/reservations",
			handlers.OpenReservationRequest{ItemID: s.book.ID.String(), DurationDays: 31}, user, http.StatusUnprocessableEntity},
		{"missing item id", http.MethodPost, "/api/reservations",
			map[string]int{"duration_days": 3}, user, http.StatusUnprocessableEntity},
		{"unknown item", http.MethodPost, "/api/reservations",
			handlers.OpenReservationRequest{ItemID: uuid.NewString(), DurationDays: 3}, user, http.StatusNotFound},
		{"bad path id", http.MethodGet, "/api/reservations/not-a-uuid", nil, user, http.StatusBadRequest},
		{"unknown reservation", http.MethodPost, "/api/reservations/" + uuid.NewString() + "/close", nil, user, http.StatusNotFound},
		{"bad kind filter", http.MethodGet, "/api/items?kind=spaceship", nil, user, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(tt.method, tt.path, tt.user, tt.body, nil))
		})
	}
}

func TestListItemsByKind(t *testing.T) {
	s := newServer(t)

	var items []handlers.ItemResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/items?kind=menu", uuid.New(), nil, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Masala Dosa", items[0].Name)
	assert.True(t, items[0].Unlimited)
}

func TestOpenRateLimitedPerUser(t *testing.T) {
	s := newLimitedServer(t, 1)
	user := uuid.New()

	req := handlers.OpenReservationRequest{ItemID: s.menu.ID.String(), DurationDays: 1}
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/reservations", user, req, nil))

	var errBody handlers.ErrorResponse
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/reservations", user, req, &errBody))
	assert.NotEmpty(t, errBody.Error)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/reservations", user, nil, nil),
		"reads are not throttled")
}
