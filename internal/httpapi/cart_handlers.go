package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"checkout-core/internal/auth"
	"checkout-core/internal/cart"
	"checkout-core/internal/logger"
	"checkout-core/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type cartResponse struct {
	Lines []lineResponse `json:"lines"`
	Total int64          `json:"total"`
}

type lineResponse struct {
	cart.Line
	Key      string `json:"key"`
	Subtotal int64  `json:"subtotal"`
}

func toCartResponse(st cart.State) cartResponse {
	out := cartResponse{Lines: make([]lineResponse, 0, st.Len()), Total: st.Total()}
	for _, l := range st.Lines {
		out.Lines = append(out.Lines, lineResponse{Line: l, Key: string(l.Key()), Subtotal: l.Subtotal()})
	}
	return out
}

type addLineRequest struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Image     string `json:"image"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

func (req addLineRequest) line() cart.Line {
	l := cart.Line{
		ProductID: req.ProductID,
		Name:      req.Name,
		Price:     req.Price,
		Image:     req.Image,
		Quantity:  req.Quantity,
	}
	if req.Color != "" {
		l.Color = utils.StrPtr(req.Color)
	}
	if req.Size != "" {
		l.Size = utils.StrPtr(req.Size)
	}
	return l
}

// session resolves the signed-in shopper's session.
func (h *Handlers) session(r *http.Request) (*Session, bool) {
	creds, ok := auth.FromContext(r.Context())
	if !ok || creds.Email == "" {
		return nil, false
	}
	return h.deps.Registry.Session(creds.Email, creds.CartID), true
}

func lineKey(r *http.Request) (cart.Key, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return cart.Key(raw), true
}

func (h *Handlers) getCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	st, err := s.Cart.Refresh(r.Context())
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, toCartResponse(st))
}

func (h *Handlers) addLine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	st, err := s.Cart.Add(r.Context(), req.line())
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, toCartResponse(st))
}

func (h *Handlers) setQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	k, ok := lineKey(r)
	if !ok {
		utils.WriteJSONError(w, "line key is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	st, err := s.Cart.SetQuantity(r.Context(), k, req.Quantity)
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, toCartResponse(st))
}

func (h *Handlers) removeLine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	k, ok := lineKey(r)
	if !ok {
		utils.WriteJSONError(w, "line key is required", http.StatusBadRequest)
		return
	}

	st, err := s.Cart.Remove(r.Context(), k)
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, toCartResponse(st))
}

func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidPrice):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cart.ErrLineNotFound), errors.Is(err, cart.ErrCartNotFound):
		utils.WriteJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cart.ErrMutationInFlight):
		utils.WriteJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, cart.ErrMissingOwner):
		utils.WriteJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, cart.ErrMutationFailed), errors.Is(err, cart.ErrRefreshFailed):
		logger.FromCtx(r.Context()).Warn("cart backend rejected change", zap.Error(err))
		utils.WriteJSONError(w, err.Error(), http.StatusBadGateway)
	default:
		logger.FromCtx(r.Context()).Error("cart request failed", zap.Error(err))
		utils.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}
