package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the OAuth server
type Metrics struct {
	// Flow metrics
	GrantsCreated    metric.Int64Counter
	CodesExchanged   metric.Int64Counter
	ExchangeDuration metric.Float64Histogram
	TokensValidated  metric.Int64Counter
	TokensRefreshed  metric.Int64Counter
	GrantsRevoked    metric.Int64Counter
	TokensRevoked    metric.Int64Counter
	ClientsRegistered metric.Int64Counter

	// Security metrics
	PKCEFailures       metric.Int64Counter
	CodeReplayDetected metric.Int64Counter

	// Storage metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	m.GrantsCreated, err = serverMeter.Int64Counter(
		"oauth.grants.created",
		metric.WithDescription("Number of authorization grants created"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grants.created counter: %w", err)
	}

	m.CodesExchanged, err = serverMeter.Int64Counter(
		"oauth.codes.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create codes.exchanged counter: %w", err)
	}

	m.ExchangeDuration, err = serverMeter.Float64Histogram(
		"oauth.exchange.duration",
		metric.WithDescription("Authorization code exchange duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange.duration histogram: %w", err)
	}

	m.TokensValidated, err = serverMeter.Int64Counter(
		"oauth.tokens.validated",
		metric.WithDescription("Number of successful access token validations"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.validated counter: %w", err)
	}

	m.TokensRefreshed, err = serverMeter.Int64Counter(
		"oauth.tokens.refreshed",
		metric.WithDescription("Number of access tokens refreshed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.refreshed counter: %w", err)
	}

	m.GrantsRevoked, err = serverMeter.Int64Counter(
		"oauth.grants.revoked",
		metric.WithDescription("Number of grants revoked"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grants.revoked counter: %w", err)
	}

	m.TokensRevoked, err = serverMeter.Int64Counter(
		"oauth.tokens.revoked",
		metric.WithDescription("Number of derived tokens deleted during revocation"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.revoked counter: %w", err)
	}

	m.ClientsRegistered, err = serverMeter.Int64Counter(
		"oauth.clients.registered",
		metric.WithDescription("Number of clients registered"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create clients.registered counter: %w", err)
	}

	m.PKCEFailures, err = securityMeter.Int64Counter(
		"oauth.pkce.validation_failed",
		metric.WithDescription("Number of PKCE validation failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pkce.validation_failed counter: %w", err)
	}

	m.CodeReplayDetected, err = securityMeter.Int64Counter(
		"oauth.code.replay_detected",
		metric.WithDescription("Number of authorization code replay attempts detected"),
		metric.WithUnit("{replay}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.replay_detected counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"oauth.storage.operations.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operations.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"oauth.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	return m, nil
}

// RecordGrantCreated records a grant creation.
func (m *Metrics) RecordGrantCreated(ctx context.Context, clientID string) {
	m.GrantsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeExchanged records a successful code exchange and its duration.
func (m *Metrics) RecordCodeExchanged(ctx context.Context, clientID string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("client_id", clientID))
	m.CodesExchanged.Add(ctx, 1, attrs)
	m.ExchangeDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordTokenValidated records a successful token validation.
func (m *Metrics) RecordTokenValidated(ctx context.Context, clientID string) {
	m.TokensValidated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenRefreshed records a token refresh.
func (m *Metrics) RecordTokenRefreshed(ctx context.Context, clientID string, rotated bool) {
	m.TokensRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("rotated", rotated),
	))
}

// RecordGrantRevoked records a grant revocation and the number of derived
// tokens deleted by the fan-out.
func (m *Metrics) RecordGrantRevoked(ctx context.Context, tokensDeleted int) {
	m.GrantsRevoked.Add(ctx, 1)
	m.TokensRevoked.Add(ctx, int64(tokensDeleted))
}

// RecordClientRegistered records a client registration.
func (m *Metrics) RecordClientRegistered(ctx context.Context, clientType string) {
	m.ClientsRegistered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_type", clientType),
	))
}

// RecordPKCEFailure records a PKCE verification failure.
func (m *Metrics) RecordPKCEFailure(ctx context.Context, clientID string) {
	m.PKCEFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeReplay records a detected authorization code replay attempt.
func (m *Metrics) RecordCodeReplay(ctx context.Context, clientID string) {
	m.CodeReplayDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordStorageOperation records a storage operation with its outcome and
// duration.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	)
	m.StorageOperationTotal.Add(ctx, 1, attrs)
	m.StorageOperationDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}
