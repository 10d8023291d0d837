package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
)

// Client пишет ворклоги в Jira Cloud.
type Client struct {
	httpClient *http.Client
}

// NewClient создаёт клиента с ограниченным таймаутом.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

var _ domain.WorklogClient = (*Client)(nil)

// jiraStartedLayout — формат поля started в API ворклогов.
const jiraStartedLayout = "2006-01-02T15:04:05.000-0700"

// AddWorklog добавляет запись отработанного времени к задаче.
func (c *Client) AddWorklog(ctx context.Context, cred domain.JiraCredential, started time.Time, worked time.Duration) error {
	seconds := int64(worked.Seconds())
	if seconds < 60 {
		// Jira не принимает ворклоги короче минуты.
		seconds = 60
	}
	body, err := json.Marshal(map[string]any{
		"started":          started.Format(jiraStartedLayout),
		"timeSpentSeconds": seconds,
		"comment":          "kc-checkin-bot",
	})
	if err != nil {
		return fmt.Errorf("сериализация ворклога: %w", err)
	}

	target := fmt.Sprintf("%s/rest/api/2/issue/%s/worklog",
		strings.TrimRight(cred.BaseURL, "/"), url.PathEscape(cred.IssueKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(cred.Email, cred.APIToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("jira", "add_worklog", cred.IssueKey, start, err)
	if err != nil {
		return fmt.Errorf("вызов jira: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ворклог отвергнут: статус %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}
