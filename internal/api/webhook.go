/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from
 * Stripe. It is the entry point for all asynchronous billing notifications.
 *
 * Key features:
 * - Security: Verifies the Stripe-Signature header over the raw body before
 *   anything else touches the payload. An unverified body is never parsed.
 * - Parsing: Decodes verified events into strongly-typed payloads.
 * - Acknowledgment: Every classified event is acknowledged, including no-ops,
 *   so the provider's retry machinery only fires on genuine internal faults.
 */
package api

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/pawsuite/billing-service/internal/domain"
	"github.com/pawsuite/billing-service/pkg/stripeclient"
)

// EventProcessor applies one verified provider event to tenant state.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev domain.ProviderEvent) error
}

// WebhookHandler processes incoming webhooks from Stripe.
type WebhookHandler struct {
	processor EventProcessor
	secret    string
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(processor EventProcessor, secret string) *WebhookHandler {
	return &WebhookHandler{processor: processor, secret: secret}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		respondWithError(w, http.StatusBadRequest, "Cannot read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		respondWithError(w, http.StatusBadRequest, "No signature")
		return
	}

	event, err := stripeclient.ConstructEvent(payload, signature, h.secret)
	if err != nil {
		log.Printf("Webhook signature verification failed: %v", err)
		respondWithError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	providerEvent, err := domain.ProviderEventFromStripe(event)
	if err != nil {
		log.Printf("Error decoding webhook payload for %s: %v", event.Type, err)
		respondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if err := h.processor.ProcessEvent(r.Context(), providerEvent); err != nil {
		log.Printf("Webhook processing failed for %s: %v", event.Type, err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
