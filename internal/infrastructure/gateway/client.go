package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/config"
)

type HTTPGatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewGatewayClient(cfg config.GatewayConfig) application.GatewayClient {
	return &HTTPGatewayClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

func (c *HTTPGatewayClient) Authorize(ctx context.Context, req application.AuthorizeRequest, idempotencyKey string) (*application.AuthorizeResponse, error) {
	url := fmt.Sprintf("%s/api/v1/payment_intents", c.baseURL)
	return sendRequest[application.AuthorizeRequest, application.AuthorizeResponse](c, ctx, http.MethodPost, url, &req, idempotencyKey)
}

func (c *HTTPGatewayClient) Transfer(ctx context.Context, req application.TransferRequest, idempotencyKey string) (*application.TransferResponse, error) {
	url := fmt.Sprintf("%s/api/v1/transfers", c.baseURL)
	return sendRequest[application.TransferRequest, application.TransferResponse](c, ctx, http.MethodPost, url, &req, idempotencyKey)
}

func (c *HTTPGatewayClient) Refund(ctx context.Context, req application.RefundRequest, idempotencyKey string) (*application.RefundResponse, error) {
	url := fmt.Sprintf("%s/api/v1/refunds", c.baseURL)
	return sendRequest[application.RefundRequest, application.RefundResponse](c, ctx, http.MethodPost, url, &req, idempotencyKey)
}

func (c *HTTPGatewayClient) GetTransfer(ctx context.Context, transferID string) (*application.TransferResponse, error) {
	url := fmt.Sprintf("%s/api/v1/transfers/%s", c.baseURL, transferID)
	return sendRequest[any, application.TransferResponse](c, ctx, http.MethodGet, url, nil, "")
}

type gatewayErrorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}

func sendRequest[Req any, Resp any](c *HTTPGatewayClient, ctx context.Context, method, url string, reqBody *Req, idempotencyKey string) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		var errResp gatewayErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, &application.GatewayError{
			Code:       errResp.Err,
			Message:    errResp.Message,
			StatusCode: resp.StatusCode,
		}
	}

	var gatewayResp Resp
	if err := json.NewDecoder(resp.Body).Decode(&gatewayResp); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &gatewayResp, nil
}
