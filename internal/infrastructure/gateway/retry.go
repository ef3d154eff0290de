package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/config"
)

// RetryGatewayClient wraps a gateway client with exponential backoff. Every
// retried write carries the same idempotency key, so the gateway collapses
// duplicates on its side.
type RetryGatewayClient struct {
	inner      application.GatewayClient
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryGatewayClient(inner application.GatewayClient, cfg config.RetryConfig) application.GatewayClient {
	return &RetryGatewayClient{
		inner:      inner,
		baseDelay:  cfg.BaseDelay,
		maxRetries: cfg.MaxRetries,
	}
}

func (r *RetryGatewayClient) Authorize(ctx context.Context, req application.AuthorizeRequest, idempotencyKey string) (*application.AuthorizeResponse, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*application.AuthorizeResponse, error) {
			return r.inner.Authorize(ctx, req, idempotencyKey)
		},
	)
}

func (r *RetryGatewayClient) Transfer(ctx context.Context, req application.TransferRequest, idempotencyKey string) (*application.TransferResponse, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*application.TransferResponse, error) {
			return r.inner.Transfer(ctx, req, idempotencyKey)
		},
	)
}

func (r *RetryGatewayClient) Refund(ctx context.Context, req application.RefundRequest, idempotencyKey string) (*application.RefundResponse, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*application.RefundResponse, error) {
			return r.inner.Refund(ctx, req, idempotencyKey)
		},
	)
}

func (r *RetryGatewayClient) GetTransfer(ctx context.Context, transferID string) (*application.TransferResponse, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*application.TransferResponse, error) {
			return r.inner.GetTransfer(ctx, transferID)
		},
	)
}

func retry[T any](r *RetryGatewayClient, ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			time.Sleep(r.backoff(attempt))
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func isRetryable(err error) bool {
	var gwErr *application.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.IsRetryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Network errors and timeouts are worth retrying.
	return true
}

func (r *RetryGatewayClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)

	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond

	return base + jitter
}
