package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
)

// Order is an open order as reported by the gateway.
type Order struct {
	OrderID string `json:"orderId"`
	Market  string `json:"market"`
	Side    string `json:"side,omitempty"`
}

type ordersResponse struct {
	Orders []Order `json:"orders"`
}

type cancelRequest struct {
	Chain     string `json:"chain"`
	Network   string `json:"network"`
	Connector string `json:"connector"`
	Address   string `json:"address"`
	Market    string `json:"market"`
	OrderID   string `json:"orderId"`
}

// Client talks to the chain gateway that holds the bots' perp orders.
type Client struct {
	baseURL    string
	chain      string
	network    string
	connector  string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg *config.Config) *Client {
	timeout := cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.Gateway.BaseURL, "/"),
		chain:     cfg.Gateway.Chain,
		network:   cfg.Gateway.Network,
		connector: cfg.Gateway.Connector,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
		log: logger.Component("gateway"),
	}
}

func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// OpenOrders lists the wallet's open orders on the configured connector.
func (c *Client) OpenOrders(ctx context.Context, address string) ([]Order, error) {
	q := url.Values{}
	q.Set("chain", c.chain)
	q.Set("network", c.network)
	q.Set("connector", c.connector)
	q.Set("address", address)

	var resp ordersResponse
	if err := c.do(ctx, http.MethodGet, "/clob/perp/orders?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// CancelAllOrders cancels every open order of address and returns how many were cancelled.
// Without a configured gateway it is a no-op.
func (c *Client) CancelAllOrders(ctx context.Context, address string) (int, error) {
	if !c.Enabled() {
		c.log.Warn("gateway not configured, skipping order cancellation", "address", address)
		return 0, nil
	}
	orders, err := c.OpenOrders(ctx, address)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, o := range orders {
		req := cancelRequest{
			Chain:     c.chain,
			Network:   c.network,
			Connector: c.connector,
			Address:   address,
			Market:    o.Market,
			OrderID:   o.OrderID,
		}
		if err := c.do(ctx, http.MethodDelete, "/clob/perp/orders", req, nil); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	c.log.Info("orders cancelled", "address", address, "count", cancelled)
	return cancelled, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperrors.New(apperrors.ErrInternal, "failed to encode gateway request", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "failed to build gateway request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.New(apperrors.ErrUpstream, "gateway unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.New(apperrors.ErrUpstream, "failed to read gateway response", err)
	}
	if resp.StatusCode >= 300 {
		return apperrors.New(apperrors.ErrUpstream,
			fmt.Sprintf("gateway %s %s returned %d", method, strings.SplitN(path, "?", 2)[0], resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(data))))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.New(apperrors.ErrUpstream, "malformed gateway response", err)
	}
	return nil
}
