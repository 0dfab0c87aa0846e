// Package stripe implements the transfer gateway against the Stripe
// Connect REST API using form-encoded requests.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mentorhive/mentorhive/internal/fault"
	"github.com/mentorhive/mentorhive/internal/transfer/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type Config struct {
	SecretKey string
	BaseURL   string
}

type Gateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, domain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Gateway{
		secretKey: cfg.SecretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (g *Gateway) Name() string { return "stripe" }

func (g *Gateway) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("destination", req.AccountID)
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	for key, value := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	var resp stripeTransfer
	if err := g.do(ctx, "/v1/transfers", req.IdempotencyKey, form, &resp); err != nil {
		return nil, err
	}
	return &domain.TransferResult{TransferRef: resp.ID}, nil
}

func (g *Gateway) Refund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	form := url.Values{}
	form.Set("charge", req.ChargeRef)
	if req.Amount > 0 {
		form.Set("amount", strconv.FormatInt(req.Amount, 10))
	}
	if req.Reason != "" {
		form.Set("metadata[reason]", req.Reason)
	}

	var resp stripeRefund
	if err := g.do(ctx, "/v1/refunds", req.IdempotencyKey, form, &resp); err != nil {
		return nil, err
	}
	return &domain.RefundResult{RefundRef: resp.ID}, nil
}

func (g *Gateway) AccountReady(ctx context.Context, accountID string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/accounts/"+url.PathEscape(accountID), nil)
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return false, fault.Transient(fmt.Errorf("stripe account lookup: %w", err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return false, fault.Transient(err)
	}
	if httpResp.StatusCode == http.StatusNotFound {
		return false, fault.Terminal(domain.ErrAccountNotFound)
	}
	if httpResp.StatusCode >= 400 {
		return false, classifyStatus(httpResp.StatusCode, body)
	}

	var account stripeAccount
	if err := json.Unmarshal(body, &account); err != nil {
		return false, fault.Transient(err)
	}
	return account.PayoutsEnabled, nil
}

func (g *Gateway) do(ctx context.Context, path, idempotencyKey string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return fault.Transient(fmt.Errorf("stripe %s: %w", path, err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fault.Transient(err)
	}
	if httpResp.StatusCode >= 400 {
		return classifyStatus(httpResp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

// classifyStatus maps Stripe failures onto the retry taxonomy. 4xx is a
// terminal provider rejection except 429; 5xx is transient.
func classifyStatus(status int, body []byte) error {
	var payload stripeError
	_ = json.Unmarshal(body, &payload)
	message := strings.TrimSpace(payload.Error.Message)
	if message == "" {
		message = http.StatusText(status)
	}

	wrapped := fmt.Errorf("%w: %s (status %d)", domain.ErrProviderRejected, message, status)
	switch {
	case status == http.StatusTooManyRequests:
		return fault.Transient(wrapped)
	case status >= 500:
		return fault.Transient(fmt.Errorf("%w: %s (status %d)", domain.ErrProviderDown, message, status))
	default:
		return fault.Terminal(wrapped)
	}
}

type stripeTransfer struct {
	ID string `json:"id"`
}

type stripeRefund struct {
	ID string `json:"id"`
}

type stripeAccount struct {
	ID             string `json:"id"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
