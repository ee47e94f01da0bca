package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/cartengine/internal/domain"
	"github.com/utafrali/cartengine/internal/session"
	"github.com/utafrali/cartengine/internal/store"
	apperrors "github.com/utafrali/cartengine/pkg/errors"
	"github.com/utafrali/cartengine/pkg/httputil"
	"github.com/utafrali/cartengine/pkg/validator"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerItem is the maximum quantity allowed for a single cart line.
	MaxQuantityPerItem = 100
	// MaxItemsPerCart is the maximum number of distinct lines allowed in a cart.
	MaxItemsPerCart = 50
	// MaxPriceCents is the maximum unit price in cents (100,000.00) allowed per line.
	MaxPriceCents = 100_000_00
)

// CartHandler handles HTTP requests for cart endpoints. Every route resolves
// the engine for the caller's session; the handlers only parse and validate,
// the store and binding do the rest.
type CartHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(sessions *session.Manager, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---
//
// Price and quantity are parsed into strict numeric types exactly once, here
// at the boundary; the store operates on validated numbers only.

// AddLineRequest is the JSON request body for adding a line to the cart.
type AddLineRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	ColorID    string `json:"color_id"`
	Size       string `json:"size"`
	UnitPrice  int64  `json:"unit_price" validate:"gte=0,lte=10000000"`
	Quantity   int    `json:"quantity" validate:"required,gte=1,lte=100"`
	Name       string `json:"name" validate:"max=500"`
	ColorLabel string `json:"color_label" validate:"max=100"`
	HexCode    string `json:"hex_code" validate:"max=16"`
	ImageURL   string `json:"image_url"`
}

// SetQuantityRequest is the JSON request body for replacing a line quantity.
// A quantity of zero removes the line.
type SetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=100"`
}

// UpdateVariantRequest is the JSON request body for patching a line's variant
// fields. Absent fields are left unchanged.
type UpdateVariantRequest struct {
	ColorID    *string `json:"color_id"`
	ColorLabel *string `json:"color_label"`
	HexCode    *string `json:"hex_code"`
	Size       *string `json:"size"`
}

// ActorRequest is the JSON request body for the actor signal. An empty
// user_id reports the anonymous guest.
type ActorRequest struct {
	UserID string `json:"user_id"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}

	state := eng.Store.State()
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// AddLine handles POST /api/v1/cart/lines
func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req AddLineRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	line := domain.Line{
		ProductID:  req.ProductID,
		ColorID:    req.ColorID,
		Size:       req.Size,
		UnitPrice:  req.UnitPrice,
		Name:       req.Name,
		ColorLabel: req.ColorLabel,
		HexCode:    req.HexCode,
		ImageURL:   req.ImageURL,
	}

	current := eng.Store.State()
	if i := current.FindLine(line.Identity()); i >= 0 {
		if current.Lines[i].Quantity+req.Quantity > MaxQuantityPerItem {
			httputil.WriteError(w, r, apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", MaxQuantityPerItem)), h.logger)
			return
		}
	} else if len(current.Lines) >= MaxItemsPerCart {
		httputil.WriteError(w, r, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d lines", MaxItemsPerCart)), h.logger)
		return
	}

	state := eng.Store.AddLine(line, req.Quantity)

	h.logger.InfoContext(r.Context(), "line added to cart",
		slog.String("product_id", req.ProductID),
		slog.String("color_id", req.ColorID),
		slog.String("size", req.Size),
		slog.Int("quantity", req.Quantity),
	)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// SetQuantity handles PUT /api/v1/cart/lines/{productId}
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}

	id, ok := lineIdentity(w, r)
	if !ok {
		return
	}

	var req SetQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	state := eng.Store.SetQuantity(id, req.Quantity)

	h.logger.InfoContext(r.Context(), "cart line quantity set",
		slog.String("product_id", id.ProductID),
		slog.Int("quantity", req.Quantity),
	)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// UpdateVariant handles PATCH /api/v1/cart/lines/{productId}/variant
func (h *CartHandler) UpdateVariant(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}

	id, ok := lineIdentity(w, r)
	if !ok {
		return
	}

	var req UpdateVariantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	state := eng.Store.UpdateVariant(id, store.VariantUpdate{
		ColorID:    req.ColorID,
		ColorLabel: req.ColorLabel,
		HexCode:    req.HexCode,
		Size:       req.Size,
	})

	h.logger.InfoContext(r.Context(), "cart line variant updated",
		slog.String("product_id", id.ProductID),
	)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// RemoveLine handles DELETE /api/v1/cart/lines/{productId}
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}

	id, ok := lineIdentity(w, r)
	if !ok {
		return
	}

	state := eng.Store.RemoveLine(id)

	h.logger.InfoContext(r.Context(), "line removed from cart",
		slog.String("product_id", id.ProductID),
	)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// ClearCart handles DELETE /api/v1/cart. The checkout collaborator calls this
// once after a successful order placement.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}

	state := eng.Store.Clear()

	h.logger.InfoContext(r.Context(), "cart cleared")

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// SetActor handles PUT /api/v1/session/actor. The hosting authentication
// layer reports the current actor here on login, logout, and session start;
// re-reporting an unchanged actor has no effect.
func (h *CartHandler) SetActor(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	actor := session.Guest()
	if req.UserID != "" {
		actor = session.User(req.UserID)
	}

	eng.Binding.OnActorChanged(r.Context(), actor)

	h.logger.InfoContext(r.Context(), "actor reported",
		slog.String("actor", actor.String()),
	)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: eng.Store.State()})
}

// --- Helpers ---

// engine resolves the session engine for the request, writing a 400 response
// when the session middleware did not run.
func (h *CartHandler) engine(w http.ResponseWriter, r *http.Request) (*session.Engine, bool) {
	sid, ok := sessionIDFromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "X-Session-ID header is required"},
		})
		return nil, false
	}
	return h.sessions.Engine(sid), true
}

// lineIdentity builds the line identity from the productId path parameter and
// the optional color and size query parameters.
func lineIdentity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "productId is required"},
		})
		return domain.Identity{}, false
	}

	return domain.Identity{
		ProductID: productID,
		ColorID:   r.URL.Query().Get("color"),
		Size:      r.URL.Query().Get("size"),
	}, true
}
