package bamboo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
)

const defaultBaseURL = "https://api.bamboohr.com/api/gateway.php"

// ErrMirrorRejected возвращается, когда BambooHR отверг отметку.
var ErrMirrorRejected = errors.New("bamboohr отверг отметку")

// Client обращается к Time Tracking API BambooHR.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создаёт клиента с ограниченным таймаутом.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
	}
}

var _ domain.MirrorClient = (*Client)(nil)

// clockEndpoint сопоставляет событие операции Time Tracking API: начало дня и
// возвращение с обеда открывают запись, уход на обед и конец дня — закрывают.
func clockEndpoint(action domain.Action) (string, bool) {
	switch action {
	case domain.ActionDayIn, domain.ActionLunchIn:
		return "clock_in", true
	case domain.ActionLunchOut, domain.ActionDayOut:
		return "clock_out", true
	}
	return "", false
}

// PerformClockAction отражает отметку в BambooHR.
func (c *Client) PerformClockAction(ctx context.Context, cred domain.BambooCredential, action domain.Action) error {
	endpoint, ok := clockEndpoint(action)
	if !ok {
		return fmt.Errorf("неизвестное событие %q", action)
	}
	target := fmt.Sprintf("%s/%s/v1/time_tracking/employees/%s/%s",
		c.baseURL, url.PathEscape(cred.Company), url.PathEscape(cred.EmployeeID), endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(cred.APIKey, "x")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("bamboohr", endpoint, cred.Company, start, err)
	if err != nil {
		return fmt.Errorf("вызов bamboohr: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: статус %d: %s", ErrMirrorRejected, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// RefreshStatus возвращает текущий статус учёта времени сотрудника.
func (c *Client) RefreshStatus(ctx context.Context, cred domain.BambooCredential) (string, error) {
	target := fmt.Sprintf("%s/%s/v1/time_tracking/employees/%s/status",
		c.baseURL, url.PathEscape(cred.Company), url.PathEscape(cred.EmployeeID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(cred.APIKey, "x")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("bamboohr", "status", cred.Company, start, err)
	if err != nil {
		return "", fmt.Errorf("вызов bamboohr: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("статус %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("разбор ответа: %w", err)
	}
	return payload.Status, nil
}
