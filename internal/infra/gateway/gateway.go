// Package gateway is the PIX payment gateway client (Asaas-style API).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/resilience"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var tracer = otel.Tracer("gateway")

const serviceName = "payment_gateway"

// staticQRCodeRequest is the body of POST /pix/qrCodes/static.
type staticQRCodeRequest struct {
	Value             float64 `json:"value"`
	Description       string  `json:"description,omitempty"`
	Format            string  `json:"format"`
	ExternalReference string  `json:"externalReference,omitempty"`
	AllowsMultiple    bool    `json:"allowsMultiplePayments"`
	ExpirationSeconds int     `json:"expirationSeconds,omitempty"`
}

type errorResponse struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (e errorResponse) String() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Code + ": " + e.Errors[0].Description
}

// Client implements port.PaymentGateway.
type Client struct {
	http    *resty.Client
	cb      *gobreaker.CircuitBreaker
	cfg     resilience.Config
	slots   *resilience.Bulkhead
	expiry  time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

var _ port.PaymentGateway = (*Client)(nil)

// New creates a gateway client. Retries are driven by resilience, not resty.
func New(baseURL string, timeout, chargeExpiry time.Duration, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "listas-backoffice")

	return &Client{
		http:    httpClient,
		cb:      cb,
		cfg:     cfg,
		slots:   resilience.NewBulkhead(cfg.MaxConcurrency),
		expiry:  chargeExpiry,
		metrics: metrics,
		logger:  logger,
	}
}

// CreatePixCharge creates a single-use static PIX QR code for amount.
// token is the access token of the receiving account. Creation is not
// idempotent at the gateway, so it is retried only when the request was
// never delivered or was refused with 429.
func (c *Client) CreatePixCharge(ctx context.Context, amount float64, externalReference, token string) (*domain.PixCharge, error) {
	ctx, span := tracer.Start(ctx, "Gateway.CreatePixCharge")
	defer span.End()
	span.SetAttributes(attribute.String("external_reference", externalReference))

	if token == "" {
		return nil, &domain.ErrValidation{Field: "token", Message: "gateway token is required"}
	}

	body := staticQRCodeRequest{
		Value:             math.Round(amount*100) / 100,
		Description:       "Pagamento " + externalReference,
		Format:            "ALL",
		ExternalReference: externalReference,
		ExpirationSeconds: int(c.expiry.Seconds()),
	}

	if err := c.slots.Acquire(ctx); err != nil {
		return nil, &domain.ErrExternalService{Service: serviceName, Err: err}
	}
	defer c.slots.Release()

	start := time.Now()
	charge, err := resilience.Call(ctx, c.cb, c.cfg, func() (*domain.PixCharge, error) {
		var out domain.PixCharge
		var apiErr errorResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("access_token", token).
			SetBody(body).
			SetResult(&out).
			SetError(&apiErr).
			Post("/pix/qrCodes/static")
		if err != nil {
			if neverSent(err) {
				return nil, err
			}
			return nil, resilience.Permanent(err)
		}
		switch {
		case resp.StatusCode() == http.StatusTooManyRequests:
			return nil, fmt.Errorf("gateway status %d", resp.StatusCode())
		case resp.StatusCode() >= http.StatusInternalServerError:
			// The charge may exist at the gateway; a resend could duplicate it.
			return nil, resilience.Permanent(fmt.Errorf("gateway status %d", resp.StatusCode()))
		case resp.IsError():
			return nil, resilience.Permanent(fmt.Errorf("gateway status %d: %s", resp.StatusCode(), apiErr))
		case out.ID == "":
			return nil, resilience.Permanent(fmt.Errorf("gateway returned no charge id"))
		}
		return &out, nil
	})
	c.metrics.RecordRequestDuration("gateway.create_pix_charge", time.Since(start))

	if err != nil {
		c.metrics.IncrExternalError(serviceName)
		span.RecordError(err)
		c.logger.Error("gateway: create pix charge failed",
			zap.String("external_reference", externalReference),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: serviceName, Err: err}
	}

	c.logger.Info("gateway: pix charge created",
		zap.String("external_reference", externalReference),
		zap.String("charge_id", charge.ID),
	)
	return charge, nil
}

// neverSent reports whether err happened before the request reached the gateway.
func neverSent(err error) bool {
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}
