// Package api exposes the market engine over HTTP.
package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/engine"
)

const (
	// UserHeader carries the authenticated caller's id, set by the gateway.
	UserHeader         = "X-User-ID"
	// CollaboratorHeader carries the shared token of the payment and
	// fulfilment services calling the internal routes.
	CollaboratorHeader = "X-Collaborator-Token"
)

// Subscriber streams a listing's committed events until ctx is done.
type Subscriber func(ctx context.Context, listingID string) (<-chan core.Event, error)

// Server routes HTTP requests to the engine.
type Server struct {
	engine    *engine.Engine
	logger    zerolog.Logger
	subscribe Subscriber
	token     string
}

type ServerOption func(*Server)

func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithSubscriber enables the listing event stream.
func WithSubscriber(sub Subscriber) ServerOption {
	return func(s *Server) {
		s.subscribe = sub
	}
}

// WithCollaboratorToken sets the token the internal routes require. Without
// one, every internal request is refused.
func WithCollaboratorToken(token string) ServerOption {
	return func(s *Server) {
		s.token = token
	}
}

func NewServer(e *engine.Engine, opts ...ServerOption) *Server {
	s := &Server{engine: e, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes configures all HTTP routes.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/listings", s.createListing).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id}", s.getListing).Methods(http.MethodGet)
	api.HandleFunc("/listings/{id}/publish", s.publishListing).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id}/cancel", s.cancelListing).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id}/auction", s.auctionState).Methods(http.MethodGet)
	api.HandleFunc("/listings/{id}/price", s.currentPrice).Methods(http.MethodGet)
	api.HandleFunc("/listings/{id}/bids", s.getBids).Methods(http.MethodGet)
	api.HandleFunc("/listings/{id}/bids", s.placeBid).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id}/autobid", s.registerAutoBid).Methods(http.MethodPut)
	api.HandleFunc("/listings/{id}/autobid", s.withdrawAutoBid).Methods(http.MethodDelete)
	api.HandleFunc("/listings/{id}/offers", s.createOffer).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id}/events", s.streamEvents).Methods(http.MethodGet)
	api.HandleFunc("/offers/{id}", s.getOffer).Methods(http.MethodGet)
	api.HandleFunc("/offers/{id}/respond", s.respondToOffer).Methods(http.MethodPost)
	api.HandleFunc("/offers/{id}/counter", s.respondToCounter).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", s.getOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/ship", s.shipOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/deliver", s.confirmDelivery).Methods(http.MethodPost)

	// payment and fulfilment callbacks, not reachable with a user id alone
	internal := router.PathPrefix("/internal/v1").Subrouter()
	internal.Use(s.requireCollaborator)
	internal.HandleFunc("/orders/{id}/paid", s.markPaid).Methods(http.MethodPost)
	internal.HandleFunc("/orders/{id}/complete", s.completeOrder).Methods(http.MethodPost)

	router.Use(s.loggingMiddleware)
	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) createListing(w http.ResponseWriter, r *http.Request) {
	var req CreateListingRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := s.engine.CreateListing(r.Context(), req.listing(caller(r)))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newListingResponse(l))
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.engine.GetListing(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newListingResponse(l))
}

func (s *Server) publishListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.engine.PublishListing(r.Context(), mux.Vars(r)["id"], caller(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newListingResponse(l))
}

func (s *Server) cancelListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.engine.CancelListing(r.Context(), mux.Vars(r)["id"], caller(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newListingResponse(l))
}

func (s *Server) auctionState(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.GetAuctionState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) currentPrice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	price, err := s.engine.GetCurrentPrice(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"listing_id":    id,
		"current_price": price,
	})
}

func (s *Server) getBids(w http.ResponseWriter, r *http.Request) {
	bids, err := s.engine.GetBids(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if bids == nil {
		bids = []core.Bid{}
	}
	respondJSON(w, http.StatusOK, bids)
}

func (s *Server) placeBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.PlaceBid(r.Context(), engine.BidRequest{
		ListingID:    mux.Vars(r)["id"],
		BidderID:     caller(r),
		Amount:       req.Amount,
		ProxyCeiling: req.MaxAmount,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, BidResponse{
		Bid:          res.Bid,
		ProxyBid:     res.ProxyBid,
		CurrentPrice: res.CurrentPrice,
		LeaderID:     res.LeaderID,
		AuctionEnd:   res.AuctionEnd,
		Extended:     res.Extended,
	})
}

func (s *Server) registerAutoBid(w http.ResponseWriter, r *http.Request) {
	var req AutoBidRequest
	if !decode(w, r, &req) {
		return
	}
	inst, err := s.engine.RegisterAutoBid(r.Context(), mux.Vars(r)["id"], caller(r), req.MaxAmount)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

func (s *Server) withdrawAutoBid(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.WithdrawAutoBid(r.Context(), mux.Vars(r)["id"], caller(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createOffer(w http.ResponseWriter, r *http.Request) {
	var req OfferRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := s.engine.CreateOffer(r.Context(), engine.OfferRequest{
		ListingID: mux.Vars(r)["id"],
		BuyerID:   caller(r),
		Amount:    req.Amount,
		Message:   req.Message,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (s *Server) getOffer(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.GetOffer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) respondToOffer(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if !decode(w, r, &req) {
		return
	}
	action := engine.OfferAction(req.Action)
	switch action {
	case engine.ActionAccept, engine.ActionDecline, engine.ActionCounter:
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	out, err := s.engine.RespondToOffer(r.Context(), mux.Vars(r)["id"], caller(r), engine.OfferResponse{
		Action:  action,
		Amount:  req.Amount,
		Message: req.Message,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OfferOutcomeResponse{Offer: out.Offer, Order: newOrderResponse(out.Order)})
}

func (s *Server) respondToCounter(w http.ResponseWriter, r *http.Request) {
	var req CounterResponseRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.engine.RespondToCounter(r.Context(), mux.Vars(r)["id"], caller(r), req.Accept)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OfferOutcomeResponse{Offer: out.Offer, Order: newOrderResponse(out.Order)})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	// only the two parties may see an order
	if user := caller(r); user == "" || (user != o.BuyerID && user != o.SellerID) {
		s.respondError(w, r, core.ErrNotOwner)
		return
	}
	respondJSON(w, http.StatusOK, newOrderResponse(o))
}

func (s *Server) markPaid(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := s.engine.MarkOrderPaid(r.Context(), mux.Vars(r)["id"], engine.Payment{
		Reference:       req.PaymentRef,
		ShippingAddress: req.ShippingAddress,
	})
	s.respondOrder(w, r, o, err)
}

func (s *Server) shipOrder(w http.ResponseWriter, r *http.Request) {
	var req ShipRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := s.engine.ShipOrder(r.Context(), mux.Vars(r)["id"], caller(r), req.TrackingNumber, req.Carrier)
	s.respondOrder(w, r, o, err)
}

func (s *Server) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.ConfirmDelivery(r.Context(), mux.Vars(r)["id"], caller(r))
	s.respondOrder(w, r, o, err)
}

func (s *Server) completeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.CompleteOrder(r.Context(), mux.Vars(r)["id"])
	s.respondOrder(w, r, o, err)
}

func (s *Server) respondOrder(w http.ResponseWriter, r *http.Request, o *core.Order, err error) {
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newOrderResponse(o))
}

func (s *Server) requireCollaborator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(CollaboratorHeader)
		if s.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			respondError(w, http.StatusForbidden, "forbidden", "collaborator token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func caller(r *http.Request) string {
	return r.Header.Get(UserHeader)
}

// decode reads a JSON body, answering 400 on malformed input.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return false
	}
	return true
}

// StatusOf maps an engine error to its HTTP status.
func StatusOf(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindConflict:
		return http.StatusConflict
	case core.KindContention:
		return http.StatusServiceUnavailable
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindForbidden:
		return http.StatusForbidden
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	if core.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, status, ErrorResponse{Error: core.CodeOf(err), Message: msg})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: code, Message: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the event stream upgrade through the logging middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
