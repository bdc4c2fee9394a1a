package stripe

import (
	"fmt"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
)

// IntentInfo is the part of a PaymentIntent the fee flow checks.
type IntentInfo struct {
	ID       string
	Status   string
	Amount   int64
	Currency string
	Metadata map[string]string
}

// StripeProvider collects application fees through Stripe PaymentIntents.
type StripeProvider struct {
	apiKey string
}

// NewStripeProvider creates a new Stripe payment provider.
func NewStripeProvider(apiKey string) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{
		apiKey: apiKey,
	}
}

// CreatePaymentIntent creates a new payment intent in Stripe and returns its
// id and client secret. Card, Apple Pay and Google Pay are enabled through
// automatic payment methods.
func (s *StripeProvider) CreatePaymentIntent(amount int64, currency string, metadata map[string]interface{}) (string, string, error) {
	stripeMetadata := make(map[string]string)
	for k, v := range metadata {
		stripeMetadata[k] = fmt.Sprintf("%v", v)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		Metadata: stripeMetadata,
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create payment intent: %w", err)
	}

	return pi.ID, pi.ClientSecret, nil
}

// GetPaymentStatus retrieves the current status of a payment intent.
func (s *StripeProvider) GetPaymentStatus(paymentIntentID string) (string, error) {
	info, err := s.GetPaymentIntent(paymentIntentID)
	if err != nil {
		return "", err
	}
	return info.Status, nil
}

func (s *StripeProvider) GetPaymentIntent(paymentIntentID string) (*IntentInfo, error) {
	pi, err := paymentintent.Get(paymentIntentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return &IntentInfo{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Metadata: pi.Metadata,
	}, nil
}
