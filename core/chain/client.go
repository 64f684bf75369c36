package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Source is the view of a chain server the wallet syncs against
type Source interface {
	Info(ctx context.Context) (*ChainInfo, error)
	Blocks(ctx context.Context, start, end uint64) ([]Block, error)
	Submit(ctx context.Context, tx *Transaction) (string, error)
	Transaction(ctx context.Context, txid string) (*TxStatus, error)
}

// ServerError is a non-2xx reply from the chain server
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to a chain server over its JSON API
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the server at base
func NewClient(base *url.URL) *Client {
	return &Client{
		baseURL: strings.TrimRight(base.String(), "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Info fetches the server's chain name and tip
func (c *Client) Info(ctx context.Context) (*ChainInfo, error) {
	var info ChainInfo
	if err := c.do(ctx, http.MethodGet, "/v1/info", nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get chain info: %w", err)
	}
	return &info, nil
}

// Blocks fetches blocks start..end inclusive. The server may return fewer
// than requested.
func (c *Client) Blocks(ctx context.Context, start, end uint64) ([]Block, error) {
	q := url.Values{}
	q.Set("start", strconv.FormatUint(start, 10))
	q.Set("end", strconv.FormatUint(end, 10))

	var blocks []Block
	if err := c.do(ctx, http.MethodGet, "/v1/blocks?"+q.Encode(), nil, &blocks); err != nil {
		return nil, fmt.Errorf("failed to get blocks %d..%d: %w", start, end, err)
	}
	return blocks, nil
}

// Submit broadcasts a signed transaction and returns its ID
func (c *Client) Submit(ctx context.Context, tx *Transaction) (string, error) {
	var resp struct {
		TxID string `json:"txid"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", tx, &resp); err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}
	return resp.TxID, nil
}

// Transaction looks up a transaction by ID, confirmed or pending
func (c *Client) Transaction(ctx context.Context, txid string) (*TxStatus, error) {
	var status TxStatus
	if err := c.do(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(txid), nil, &status); err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txid, err)
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Tracef("%s %s", method, path)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return &ServerError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var serr *ServerError
	return errors.As(err, &serr) && serr.Status == http.StatusNotFound
}
