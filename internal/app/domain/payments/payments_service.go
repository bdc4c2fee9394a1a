// Package payments collects the application fee of a loan application.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/observability/metrics"
	"github.com/FACorreiaa/go-loanhub/internal/app/services/stripe"
)

var (
	ErrDisabled          = errors.New("payments are not configured")
	ErrFeeAlreadyPaid    = errors.New("application fee already paid")
	ErrIntentMismatch    = errors.New("payment does not belong to this application")
	ErrPaymentIncomplete = errors.New("payment has not succeeded")
)

// Provider is the payment processor.
type Provider interface {
	CreatePaymentIntent(amount int64, currency string, metadata map[string]interface{}) (string, string, error)
	GetPaymentIntent(paymentIntentID string) (*stripe.IntentInfo, error)
}

// Recorder stores a completed payment with the backend.
type Recorder interface {
	RecordPayment(ctx context.Context, p models.Payment) error
}

type Checkout struct {
	IntentID     string
	ClientSecret string
	Amount       int64
	Currency     string
}

type Service struct {
	provider Provider
	fee      int64
	currency string
	logger   *zap.Logger
}

// NewService returns a fee service. A nil provider disables payments.
func NewService(provider Provider, fee int64, currency string, logger *zap.Logger) *Service {
	return &Service{
		provider: provider,
		fee:      fee,
		currency: strings.ToLower(currency),
		logger:   logger,
	}
}

func (s *Service) Enabled() bool { return s != nil && s.provider != nil }

func owns(app models.LoanApplication, email string) bool {
	return strings.EqualFold(app.BorrowerEmail, email)
}

// StartFee opens a PaymentIntent for the fee of app on behalf of email.
func (s *Service) StartFee(_ context.Context, app models.LoanApplication, email string) (*Checkout, error) {
	l := s.logger.With(zap.String("method", "StartFee"), zap.String("application_id", app.ID))
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if !owns(app, email) {
		return nil, fmt.Errorf("payments: application %s: %w", app.ID, models.ErrForbidden)
	}
	if app.FeeStatus == models.FeePaid {
		return nil, ErrFeeAlreadyPaid
	}

	id, secret, err := s.provider.CreatePaymentIntent(s.fee, s.currency, map[string]interface{}{
		"application_id": app.ID,
		"email":          email,
	})
	if err != nil {
		l.Error("Failed to create payment intent", zap.Error(err))
		return nil, fmt.Errorf("payments: start fee: %w", err)
	}
	l.Info("Payment intent created", zap.String("payment_intent", id))
	return &Checkout{IntentID: id, ClientSecret: secret, Amount: s.fee, Currency: s.currency}, nil
}

// ConfirmFee checks that intentID succeeded for app and records it.
func (s *Service) ConfirmFee(ctx context.Context, rec Recorder, app models.LoanApplication, email, intentID string) (*models.Payment, error) {
	l := s.logger.With(zap.String("method", "ConfirmFee"), zap.String("application_id", app.ID), zap.String("payment_intent", intentID))
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if !owns(app, email) {
		return nil, fmt.Errorf("payments: application %s: %w", app.ID, models.ErrForbidden)
	}
	if app.FeeStatus == models.FeePaid {
		return nil, ErrFeeAlreadyPaid
	}

	info, err := s.provider.GetPaymentIntent(intentID)
	if err != nil {
		return nil, fmt.Errorf("payments: confirm fee: %w", err)
	}
	if info.Metadata["application_id"] != app.ID {
		l.Warn("Payment intent belongs to another application", zap.String("intent_application", info.Metadata["application_id"]))
		return nil, ErrIntentMismatch
	}
	if info.Status != "succeeded" {
		s.count(ctx, "incomplete")
		return nil, fmt.Errorf("%w: status %s", ErrPaymentIncomplete, info.Status)
	}

	p := models.Payment{
		ApplicationID: app.ID,
		Email:         email,
		Amount:        info.Amount,
		Currency:      info.Currency,
		TransactionID: info.ID,
		PaidAt:        time.Now().UTC(),
	}
	if err := rec.RecordPayment(ctx, p); err != nil {
		s.count(ctx, "record_failed")
		return nil, fmt.Errorf("payments: record payment: %w", err)
	}
	s.count(ctx, "paid")
	l.Info("Application fee paid")
	return &p, nil
}

func (s *Service) count(ctx context.Context, result string) {
	metrics.Get().PaymentsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
