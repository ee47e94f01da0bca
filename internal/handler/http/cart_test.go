package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartengine/internal/domain"
	"github.com/utafrali/cartengine/internal/event"
	redisrepo "github.com/utafrali/cartengine/internal/repository/redis"
	"github.com/utafrali/cartengine/internal/session"
	"github.com/utafrali/cartengine/pkg/health"
	pkgkafka "github.com/utafrali/cartengine/pkg/kafka"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

func newTestServer(t *testing.T) (http.Handler, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := redisrepo.NewCartRepository(client, time.Hour)
	events := event.NewProducer(nopPublisher{}, logger)
	sessions := session.NewManager(repo, events, logger, 30*time.Minute)

	return NewRouter(sessions, health.NewHandler(), logger), mr
}

func doJSON(t *testing.T, h http.Handler, method, target, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) domain.State {
	t.Helper()
	var resp struct {
		Data domain.State `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Data
}

func addLineBody(productID, color, size string, price int64, qty int) map[string]any {
	return map[string]any{
		"product_id": productID,
		"color_id":   color,
		"size":       size,
		"unit_price": price,
		"quantity":   qty,
		"name":       "Basic Tee",
	}
}

// --- Session scoping ---

func TestCartAPI_MissingSessionID_Returns400(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartAPI_SessionsAreIsolated(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-a", addLineBody("p1", "", "", 1000, 1))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/cart", "sess-b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeState(t, rec).Lines)
}

// --- GET / POST ---

func TestGetCart_EmptyCart(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/cart", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	assert.Empty(t, st.Lines)
	assert.Equal(t, 0, st.TotalQuantity)
}

func TestAddLine(t *testing.T) {
	h, mr := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1999, 2))
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 2, st.Lines[0].Quantity)
	assert.Equal(t, int64(3998), st.TotalPrice)

	// Write-through to the guest slot happened.
	assert.True(t, mr.Exists("cart:guest"))
}

func TestAddLine_RepeatAdd_KeepsFirstPrice(t *testing.T) {
	h, _ := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1999, 1))
	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 2999, 1))
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 2, st.Lines[0].Quantity)
	assert.Equal(t, int64(1999), st.Lines[0].UnitPrice)
}

func TestAddLine_ValidationFailures(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing product_id", map[string]any{"quantity": 1, "unit_price": 100}},
		{"zero quantity", map[string]any{"product_id": "p1", "quantity": 0, "unit_price": 100}},
		{"negative quantity", map[string]any{"product_id": "p1", "quantity": -1, "unit_price": 100}},
		{"negative price", map[string]any{"product_id": "p1", "quantity": 1, "unit_price": -5}},
		{"quantity above limit", map[string]any{"product_id": "p1", "quantity": MaxQuantityPerItem + 1, "unit_price": 100}},
		{"price above limit", map[string]any{"product_id": "p1", "quantity": 1, "unit_price": MaxPriceCents + 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAddLine_CombinedQuantityAboveLimit_Returns400(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1000, 60))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1000, 60))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/cart", "sess-1", nil)
	st := decodeState(t, rec)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 60, st.Lines[0].Quantity, "rejected add leaves the cart unchanged")
}

func TestAddLine_CartFull_Returns400(t *testing.T) {
	h, _ := newTestServer(t)

	for i := 0; i < MaxItemsPerCart; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1",
			addLineBody(fmt.Sprintf("p%d", i), "", "", 100, 1))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("one-too-many", "", "", 100, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Incrementing an existing line is still allowed on a full cart.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p0", "", "", 100, 1))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddLine_WrongContentType_Returns415(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", bytes.NewBufferString("product_id=p1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Session-ID", "sess-1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// --- PUT quantity ---

func TestSetQuantity(t *testing.T) {
	h, _ := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1000, 1))

	rec := doJSON(t, h, http.MethodPut, "/api/v1/cart/lines/p1?color=black&size=M", "sess-1", map[string]any{"quantity": 4})
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 4, st.Lines[0].Quantity)
}

func TestSetQuantity_ZeroRemovesLine(t *testing.T) {
	h, _ := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1000, 2))

	rec := doJSON(t, h, http.MethodPut, "/api/v1/cart/lines/p1?color=black&size=M", "sess-1", map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeState(t, rec).Lines)
}

func TestSetQuantity_AboveLimit_Returns400(t *testing.T) {
	h, _ := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1000, 2))

	rec := doJSON(t, h, http.MethodPut, "/api/v1/cart/lines/p1?color=black&size=M", "sess-1",
		map[string]any{"quantity": MaxQuantityPerItem + 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetQuantity_IdentityMatchesVariantExactly(t *testing.T) {
	h, _ := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1000, 1))
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "L", 1000, 1))

	rec := doJSON(t, h, http.MethodPut, "/api/v1/cart/lines/p1?color=black&size=L", "sess-1", map[string]any{"quantity": 7})
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	require.Len(t, st.Lines, 2)
	assert.Equal(t, 1, st.Lines[0].Quantity)
	assert.Equal(t, 7, st.Lines[1].Quantity)
}

// --- PATCH variant ---

func TestUpdateVariant(t *testing.T) {
	h, _ := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1000, 2))

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/cart/lines/p1/variant?color=black&size=M", "sess-1",
		map[string]any{"size": "L"})
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "L", st.Lines[0].Size)
	assert.Equal(t, 2, st.Lines[0].Quantity)
}

func TestUpdateVariant_CollisionMergesLines(t *testing.T) {
	h, _ := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1500, 2))
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "L", 2000, 3))

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/cart/lines/p1/variant?color=black&size=L", "sess-1",
		map[string]any{"size": "M"})
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 5, st.Lines[0].Quantity)
	assert.Equal(t, int64(1500), st.Lines[0].UnitPrice)
}

// --- DELETE ---

func TestRemoveLine(t *testing.T) {
	h, _ := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1000, 1))
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p2", "", "", 500, 1))

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/cart/lines/p1?color=black&size=M", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "p2", st.Lines[0].ProductID)
}

func TestRemoveLine_AbsentIdentity_StillOK(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/cart/lines/missing", "sess-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClearCart(t *testing.T) {
	h, mr := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "black", "M", 1000, 3))

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/cart", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, decodeState(t, rec).Lines)
	assert.False(t, mr.Exists("cart:guest"), "clearing the cart deletes the slot")
}

// --- Actor signal ---

func TestSetActor_SignInWithSavedCart(t *testing.T) {
	h, mr := newTestServer(t)

	// A previous session left a saved cart for this user.
	saved, err := json.Marshal(map[string]any{
		"lines": []map[string]any{{"product_id": "saved-item", "unit_price": 2500, "quantity": 2}},
	})
	require.NoError(t, err)
	require.NoError(t, mr.Set("cart:u1", string(saved)))

	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("guest-item", "", "", 1000, 1))

	rec := doJSON(t, h, http.MethodPut, "/api/v1/session/actor", "sess-1", map[string]any{"user_id": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "saved-item", st.Lines[0].ProductID)
	assert.Equal(t, 2, st.TotalQuantity)
}

func TestSetActor_SignInWithoutSavedCart_StartsEmpty(t *testing.T) {
	h, mr := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("guest-item", "", "", 1000, 1))

	rec := doJSON(t, h, http.MethodPut, "/api/v1/session/actor", "sess-1", map[string]any{"user_id": "fresh"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeState(t, rec).Lines)

	// The guest slot survives the sign-in.
	assert.True(t, mr.Exists("cart:guest"))
}

func TestSetActor_SignOutRestoresGuestCart(t *testing.T) {
	h, _ := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("guest-item", "", "", 1000, 1))
	doJSON(t, h, http.MethodPut, "/api/v1/session/actor", "sess-1", map[string]any{"user_id": "u1"})
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("user-item", "", "", 2000, 1))

	// Empty user_id reports the guest.
	rec := doJSON(t, h, http.MethodPut, "/api/v1/session/actor", "sess-1", map[string]any{"user_id": ""})
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "guest-item", st.Lines[0].ProductID)
}

func TestSetActor_UserMutationsLandInUserSlot(t *testing.T) {
	h, mr := newTestServer(t)

	doJSON(t, h, http.MethodPut, "/api/v1/session/actor", "sess-1", map[string]any{"user_id": "u1"})
	doJSON(t, h, http.MethodPost, "/api/v1/cart/lines", "sess-1", addLineBody("p1", "", "", 1000, 1))

	assert.True(t, mr.Exists("cart:u1"))
	assert.False(t, mr.Exists("cart:guest"))
}

// --- Health ---

func TestHealthEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
