/**
 * @description
 * This file contains the HTTP handler functions for the billing-service.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate business logic in the service layer, and writing the HTTP
 * response. The webhook endpoint lives in webhook.go.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/pawsuite/billing-service/internal/app"
	"github.com/pawsuite/billing-service/internal/domain"
	"github.com/pawsuite/billing-service/internal/store"
)

// BillingService is the service surface the HTTP handlers depend on.
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, email, planID string, metadata domain.SignupMetadata) (string, error)
	Plans() []domain.Plan
	PortalURL() string
	BillingStatus(ctx context.Context, tenantID uuid.UUID) (*domain.BillingStatus, error)
}

// Handler holds the application service the handlers interact with.
type Handler struct {
	service BillingService
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service BillingService) *Handler {
	return &Handler{service: service}
}

// checkoutRequest is the body of a checkout-initiation call. The metadata is
// the raw signup form payload, passed to the provider verbatim.
type checkoutRequest struct {
	Email    string                `json:"email"`
	PriceID  string                `json:"priceId"`
	Metadata domain.SignupMetadata `json:"metadata"`
}

// handleCreateCheckout requests a hosted checkout session for the selected
// plan and returns the provider's redirect URL.
func (h *Handler) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PriceID == "" {
		respondWithError(w, http.StatusBadRequest, "Price ID is required")
		return
	}

	url, err := h.service.CreateCheckoutSession(r.Context(), req.Email, req.PriceID, req.Metadata)
	if err != nil {
		if errors.Is(err, app.ErrInvalidPlan) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleListPlans serves the static pricing catalog to the pricing page.
func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.Plans())
}

// handleBillingStatus returns the subscription snapshot for the
// authenticated tenant.
func (h *Handler) handleBillingStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	status, err := h.service.BillingStatus(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			respondWithError(w, http.StatusNotFound, "Tenant not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

// handleBillingPortal returns the customer self-service portal link for the
// authenticated tenant.
func (h *Handler) handleBillingPortal(w http.ResponseWriter, r *http.Request) {
	if _, ok := TenantFromContext(r.Context()); !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	url := h.service.PortalURL()
	if url == "" {
		respondWithError(w, http.StatusNotFound, "Customer portal is not configured")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError writes a structured error body.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
