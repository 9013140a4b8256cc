// Package collaborators holds thin HTTP clients for the external
// services the engine consumes: step telemetry, payment status,
// attendance check-ins and the gamification ledger. Each implements the
// matching contract in the service package.
package collaborators

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"campus_quest_engine/internal/model"
	"campus_quest_engine/internal/quest"

	"github.com/goccy/go-json"
)

type Config struct {
	StepsURL      string `yaml:"stepsUrl"`
	PaymentsURL   string `yaml:"paymentsUrl"`
	AttendanceURL string `yaml:"attendanceUrl"`
	LedgerURL     string `yaml:"ledgerUrl"`
}

const requestTimeout = 10 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

type StepClient struct {
	baseURL string
	client  *http.Client
}

func NewStepClient(baseURL string) *StepClient {
	return &StepClient{baseURL: baseURL, client: newHTTPClient()}
}

func (c *StepClient) GetCumulativeSteps(ctx context.Context, userID string) (int, error) {
	var out struct {
		CumulativeSteps int `json:"cumulative_steps"`
	}
	err := getJSON(ctx, c.client, fmt.Sprintf("%s/users/%s/steps", c.baseURL, url.PathEscape(userID)), &out)
	if err != nil {
		return 0, err
	}
	return out.CumulativeSteps, nil
}

type PaymentClient struct {
	baseURL string
	client  *http.Client
}

func NewPaymentClient(baseURL string) *PaymentClient {
	return &PaymentClient{baseURL: baseURL, client: newHTTPClient()}
}

func (c *PaymentClient) GetPaymentStatus(ctx context.Context, paymentID string) (*quest.PaymentStatus, error) {
	var out struct {
		Status     string `json:"status"`
		MerchantID string `json:"merchant_id"`
	}
	err := getJSON(ctx, c.client, fmt.Sprintf("%s/payments/%s", c.baseURL, url.PathEscape(paymentID)), &out)
	if err != nil {
		return nil, err
	}
	return &quest.PaymentStatus{State: out.Status, MerchantID: out.MerchantID}, nil
}

type AttendanceClient struct {
	baseURL string
	client  *http.Client
}

func NewAttendanceClient(baseURL string) *AttendanceClient {
	return &AttendanceClient{baseURL: baseURL, client: newHTTPClient()}
}

func (c *AttendanceClient) HasCheckedIn(ctx context.Context, userID, date string) (bool, error) {
	var out struct {
		CheckedIn bool `json:"checked_in"`
	}
	endpoint := fmt.Sprintf("%s/attendance/%s?date=%s", c.baseURL, url.PathEscape(userID), url.QueryEscape(date))
	if err := getJSON(ctx, c.client, endpoint, &out); err != nil {
		return false, err
	}
	return out.CheckedIn, nil
}

type LedgerClient struct {
	baseURL string
	client  *http.Client
}

func NewLedgerClient(baseURL string) *LedgerClient {
	return &LedgerClient{baseURL: baseURL, client: newHTTPClient()}
}

func (c *LedgerClient) CreditExp(ctx context.Context, userID string, amount int, idempotencyKey string) (model.CreditResult, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"user_id":         userID,
		"amount":          amount,
		"idempotency_key": idempotencyKey,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/exp/credits", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return model.CreditOK, nil
	case http.StatusConflict:
		return model.CreditDuplicate, nil
	default:
		return "", fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
