package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"checkout-core/internal/address"
	"checkout-core/internal/auth"
	"checkout-core/internal/checkout"
	"checkout-core/internal/logger"
	"checkout-core/internal/order"
	"checkout-core/internal/returnurl"
	"checkout-core/internal/shipping"
	"checkout-core/internal/transport"
	"checkout-core/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WebOpener sends the browser of the start request to the gateway.
var WebOpener checkout.Opener = checkout.OpenerFunc(func(ctx context.Context, a *checkout.Attempt) error {
	return transport.Navigate(ctx, a.RedirectURL)
})

// prepareRequest takes the address in one of three shapes: a full address,
// an address-book id, or a pick from the address screen.
type prepareRequest struct {
	Address        *address.Address `json:"address"`
	AddressID      string           `json:"addressId"`
	Picked         *address.Picked  `json:"picked"`
	ShippingOption string           `json:"shippingOption"`
	PaymentMethod  string           `json:"paymentMethod"`
}

type checkoutResponse struct {
	State   checkout.State    `json:"state"`
	Summary *checkout.Summary `json:"summary,omitempty"`
	Attempt *attemptResponse  `json:"attempt,omitempty"`
	Result  *checkout.Result  `json:"result,omitempty"`
}

type attemptResponse struct {
	IntentID    string `json:"intentId"`
	RedirectURL string `json:"redirectUrl"`
	Amount      int64  `json:"amount"`
}

func toAttemptResponse(a *checkout.Attempt) *attemptResponse {
	return &attemptResponse{IntentID: a.IntentID, RedirectURL: a.RedirectURL, Amount: a.Amount}
}

func (h *Handlers) resolveAddress(ctx context.Context, m *checkout.Machine, req prepareRequest) (*address.Address, error) {
	switch {
	case req.Address != nil:
		a := *req.Address
		if a.Country == "" {
			a.Country = address.DefaultCountry
		}
		return &a, nil
	case req.AddressID != "":
		if h.deps.Addresses == nil {
			return nil, address.ErrAddressNotFound
		}
		return h.deps.Addresses.Get(ctx, req.AddressID)
	case req.Picked != nil:
		var current *address.Address
		if sum, ok := m.Summary(); ok {
			current = &sum.Address
		}
		a := address.FromPicked(*req.Picked, current)
		return &a, nil
	}
	return nil, nil
}

func (h *Handlers) prepare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := h.session(r)
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	addr, err := h.resolveAddress(ctx, s.Machine, req)
	if err != nil {
		writeAddressError(w, r, err)
		return
	}

	// Prepare prices the local cart; make sure it reflects the server first.
	if _, err := s.Cart.Refresh(ctx); err != nil {
		logger.FromCtx(ctx).Warn("cart refresh before checkout failed", zap.Error(err))
	}

	sum, err := s.Machine.Prepare(ctx, checkout.Input{
		Address: addr,
		Option:  shipping.ParseOption(req.ShippingOption),
		Method:  checkout.ParsePaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, checkoutResponse{State: checkout.StateAddressReady, Summary: sum})
}

func (h *Handlers) start(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if sum, ok := s.Machine.Summary(); ok && sum.Method == checkout.MethodCash {
		h.placeCashOrder(w, r, s.Machine)
		return
	}

	ctx := transport.WithHTTP(r.Context(), r, w)
	a, err := s.Machine.Start(ctx)
	if err != nil {
		w.Header().Del("Location")
		writeCheckoutError(w, r, err)
		return
	}

	if transport.WantsHTML(ctx) {
		http.Redirect(w, r, a.RedirectURL, http.StatusSeeOther)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, checkoutResponse{
		State:   s.Machine.State(),
		Attempt: toAttemptResponse(a),
	})
}

func (h *Handlers) placeCashOrder(w http.ResponseWriter, r *http.Request, m *checkout.Machine) {
	res, err := m.PlaceCashOrder(r.Context())
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, checkoutResponse{State: m.State(), Result: res})
}

func (h *Handlers) cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := s.Machine.Cancel(r.Context()); err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	h.writeCheckout(w, s.Machine)
}

func (h *Handlers) getCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	h.writeCheckout(w, s.Machine)
}

func (h *Handlers) writeCheckout(w http.ResponseWriter, m *checkout.Machine) {
	resp := checkoutResponse{State: m.State()}
	if sum, ok := m.Summary(); ok {
		resp.Summary = sum
	}
	if a, ok := m.Attempt(); ok {
		resp.Attempt = toAttemptResponse(a)
	}
	if res, ok := m.LastResult(); ok {
		resp.Result = res
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handlers) retryFinalize(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	intentID := strings.TrimSpace(chi.URLParam(r, "intentId"))
	if intentID == "" {
		utils.WriteJSONError(w, "intent id is required", http.StatusBadRequest)
		return
	}

	o, err := s.Machine.RetryFinalize(r.Context(), intentID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *Handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	creds, ok := auth.FromContext(r.Context())
	if !ok {
		utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		utils.WriteJSONError(w, "order id is required", http.StatusBadRequest)
		return
	}

	o, err := h.deps.Orders.GetOrder(r.Context(), creds.Email, orderID)
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		utils.WriteJSONError(w, err.Error(), http.StatusNotFound)
	case err != nil:
		logger.FromCtx(r.Context()).Error("order lookup failed", zap.Error(err))
		utils.WriteJSONError(w, "order lookup failed", http.StatusBadGateway)
	default:
		utils.WriteJSON(w, http.StatusOK, o)
	}
}

// deliverReturn hands a gateway return to the machine holding the attempt,
// or resumes it from the journal when no live machine does.
func (h *Handlers) deliverReturn(ctx context.Context, o returnurl.Outcome) error {
	if o.IntentID == "" {
		return returnurl.ErrUnknownIntent
	}

	s, ok := h.deps.Registry.ByIntent(o.IntentID)
	if !ok {
		rec, err := h.deps.Journal.Get(ctx, o.IntentID)
		if errors.Is(err, checkout.ErrUnknownAttempt) {
			return returnurl.ErrUnknownIntent
		}
		if err != nil {
			return err
		}
		s = h.deps.Registry.Session(rec.Email, rec.CartID)
	}

	res, err := s.Machine.Resume(ctx, o)
	var ferr *checkout.FinalizeError
	switch {
	case errors.Is(err, checkout.ErrAwaitInProgress):
		return nil
	case errors.Is(err, checkout.ErrAttemptInProgress), errors.Is(err, checkout.ErrFinalizePending):
		// a newer attempt owns the machine; the journal keeps this intent
		logger.FromCtx(ctx).Info("payment return deferred, machine busy",
			zap.String("intent_id", o.IntentID), zap.Error(err))
		return nil
	case errors.As(err, &ferr):
		// paid; the journal keeps the intent for retry-finalize
		return nil
	case errors.Is(err, checkout.ErrUnknownAttempt):
		return returnurl.ErrUnknownIntent
	case err != nil:
		return err
	}

	logger.FromCtx(ctx).Info("payment return concluded",
		zap.String("intent_id", res.IntentID),
		zap.String("outcome", string(res.Outcome)),
	)
	return nil
}

func writeAddressError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, address.ErrAddressNotFound):
		utils.WriteJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, address.ErrInvalidID):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.FromCtx(r.Context()).Error("address lookup failed", zap.Error(err))
		utils.WriteJSONError(w, "address lookup failed", http.StatusBadGateway)
	}
}

func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *checkout.ValidationError
	var ferr *checkout.FinalizeError
	switch {
	case errors.As(err, &verr):
		reasons := make([]string, 0, len(verr.Errs))
		for _, e := range verr.Errs {
			reasons = append(reasons, e.Error())
		}
		utils.WriteJSONErrors(w, "checkout validation failed", reasons, http.StatusUnprocessableEntity)
	case errors.As(err, &ferr):
		logger.FromCtx(r.Context()).Error("finalize failed", zap.String("intent_id", ferr.IntentID), zap.Error(err))
		utils.WriteJSONError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, checkout.ErrAttemptInProgress),
		errors.Is(err, checkout.ErrFinalizePending),
		errors.Is(err, checkout.ErrAwaitInProgress),
		errors.Is(err, checkout.ErrNotPrepared),
		errors.Is(err, checkout.ErrMethodMismatch),
		errors.Is(err, checkout.ErrNotFinalizable):
		utils.WriteJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, checkout.ErrNoAttempt), errors.Is(err, checkout.ErrUnknownAttempt):
		utils.WriteJSONError(w, err.Error(), http.StatusNotFound)
	default:
		logger.FromCtx(r.Context()).Error("checkout request failed", zap.Error(err))
		utils.WriteJSONError(w, "payment gateway unavailable", http.StatusBadGateway)
	}
}
