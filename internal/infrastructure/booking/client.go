package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/config"
	"github.com/servilink/escrow-engine/internal/domain"
)

// HTTPBookingClient talks to the booking service's internal API.
type HTTPBookingClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBookingClient(cfg config.BookingConfig) application.BookingStore {
	return &HTTPBookingClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

type bookingResponse struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	ProviderID    string    `json:"provider_id"`
	ServiceID     string    `json:"service_id"`
	Status        string    `json:"status"`
	ScheduledDate time.Time `json:"scheduled_date"`
}

func toBooking(br *bookingResponse) (*domain.Booking, error) {
	if br.ID == "" || br.ClientID == "" || br.ProviderID == "" {
		return nil, fmt.Errorf("booking service returned incomplete booking: %+v", br)
	}
	return &domain.Booking{
		ID:            br.ID,
		ClientID:      br.ClientID,
		ProviderID:    br.ProviderID,
		ServiceID:     br.ServiceID,
		Status:        domain.BookingStatus(br.Status),
		ScheduledDate: br.ScheduledDate,
	}, nil
}

func (c *HTTPBookingClient) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	url := fmt.Sprintf("%s/internal/v1/bookings/%s", c.baseURL, id)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("booking", id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("booking service returned status %d: %s", resp.StatusCode, string(body))
	}

	var br bookingResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return toBooking(&br)
}

func (c *HTTPBookingClient) UpdateBookingStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	url := fmt.Sprintf("%s/internal/v1/bookings/%s/status", c.baseURL, id)

	payload, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("error marshalling json: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.NewNotFoundError("booking", id)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("booking service returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
