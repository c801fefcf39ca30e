package minter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
)

// MintItem is one handle in a mint request.
type MintItem struct {
	SessionID string `json:"session_id"`
	Handle    string `json:"handle"`
	// Recipient receives the minted handle.
	Recipient string `json:"recipient"`
}

// MintRequest is the body sent to the minting service.
type MintRequest struct {
	WalletID    string      `json:"wallet_id"`
	WalletIndex int         `json:"wallet_index"`
	Items       []*MintItem `json:"items"`
}

// MintResponse is what the minting service answers on success.
type MintResponse struct {
	TxID string `json:"tx_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client submits mint batches to the external minting service, which builds, signs
// and broadcasts the transaction.
type Client struct {
	logger  *logger.Logger
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string, logger *logger.Logger) *Client {
	return &Client{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Mint submits one transaction covering every session and returns its id.
func (c *Client) Mint(ctx context.Context, sessions []*models.ActiveSession, wallet *models.MintingWallet) (string, error) {
	if wallet == nil {
		return "", fmt.Errorf("no wallet given")
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("no sessions to mint")
	}
	req := &MintRequest{WalletID: wallet.ID, WalletIndex: wallet.Index}
	for _, session := range sessions {
		req.Items = append(req.Items, &MintItem{
			SessionID: session.ID,
			Handle:    session.Handle,
			Recipient: session.ReturnAddress,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode mint request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mint", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build mint request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debugw("Submitting mint batch", "wallet", wallet.ID, "sessions", len(sessions))
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to submit mint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("minting service returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return "", fmt.Errorf("minting service returned %d: %s", resp.StatusCode, string(raw))
	}

	var mintResp MintResponse
	if err := json.NewDecoder(resp.Body).Decode(&mintResp); err != nil {
		return "", fmt.Errorf("failed to decode mint response: %w", err)
	}
	if mintResp.TxID == "" {
		return "", fmt.Errorf("minting service returned an empty transaction id")
	}
	return mintResp.TxID, nil
}
