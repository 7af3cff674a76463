// Package api talks to the portfolio backend's REST endpoints that list a
// user's wallets and refresh a single wallet's external data.
package api

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

	apperrors "github.com/alexjbarnes/wallet-sync/internal/errors"
	"github.com/alexjbarnes/wallet-sync/internal/models"
)

const defaultTimeout = 60 * time.Second

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 * 1024 * 1024

// Client talks to the portfolio REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates an API client with the given http.Client.
// If httpClient is nil, a client with a 60s timeout is used.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// apiError is the backend's error envelope.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type walletListResponse struct {
	Wallets []models.Wallet `json:"wallets"`
}

// do sends a request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending request to %s: %w", apperrors.ErrAPIRequest, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response from %s: %w", apperrors.ErrAPIRequest, endpoint, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("API %s: %w", endpoint, apperrors.ErrInvalidToken)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%w: API %s (%d): %s", apperrors.ErrAPIResponse, endpoint, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%w: API %s returned status %d: %s", apperrors.ErrAPIResponse, endpoint, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: decoding response from %s: %w", apperrors.ErrAPIResponse, endpoint, err)
		}
	}

	return nil
}

// ListWallets returns every wallet tracked for the authenticated user.
func (c *Client) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	var resp walletListResponse
	if err := c.do(ctx, http.MethodGet, "/api/wallets", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing wallets: %w", err)
	}

	return resp.Wallets, nil
}

// SyncWallet asks the backend to refresh one wallet's external data. A
// reply with success=false is returned as an error.
func (c *Client) SyncWallet(ctx context.Context, walletID string) (*models.SyncResult, error) {
	if walletID == "" {
		return nil, fmt.Errorf("syncing wallet: %w", apperrors.ErrWalletNotFound)
	}

	var resp models.SyncResult
	endpoint := "/api/wallets/" + url.PathEscape(walletID) + "/sync"
	if err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("syncing wallet %s: %w", walletID, err)
	}

	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, fmt.Errorf("syncing wallet %s: %w: %s", walletID, apperrors.ErrAPIResponse, msg)
	}

	if resp.WalletID == "" {
		resp.WalletID = walletID
	}

	return &resp, nil
}
