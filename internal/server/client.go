package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/config"
	"github.com/aristath/twstock/internal/domain"
)

// Client pushes stock-master mutations to the sibling service. The peer
// serves a self-issued certificate, so the client carries its own CA
// bundle and pins the expected server name instead of trusting the
// system roots.
type Client struct {
	cfg  config.RPCClient
	http *http.Client
	log  zerolog.Logger
}

// NewClient builds the outbound RPC client. An empty target disables it.
func NewClient(cfg config.RPCClient, log zerolog.Logger) (*Client, error) {
	c := &Client{
		cfg: cfg,
		log: log.With().Str("component", "rpc_client").Logger(),
	}
	if cfg.Target == "" {
		return c, nil
	}

	tlsCfg := &tls.Config{ServerName: cfg.DomainName}
	if cfg.CertFile != "" {
		pem, err := os.ReadFile(cfg.CertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read rpc ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse rpc ca bundle %s", cfg.CertFile)
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err == nil {
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
	}

	c.http = &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}
	return c, nil
}

// stockInfoRequest mirrors the sibling service's update payload.
type stockInfoRequest struct {
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Exchange       int    `json:"exchange"`
	Market         int    `json:"market"`
	Industry       string `json:"industry"`
	SuspendListing bool   `json:"suspend_listing"`
}

// PushStockInfo mirrors one stock-master row to the sibling service.
// Callers treat failures as advisory; the sibling catches up on its own.
func (c *Client) PushStockInfo(ctx context.Context, stock *domain.Stock) error {
	if c.http == nil {
		return nil
	}

	payload := stockInfoRequest{
		Symbol:         stock.Symbol,
		Name:           stock.Name,
		Exchange:       int(stock.Market.Exchange()),
		Market:         int(stock.Market),
		Industry:       domain.IndustryName(stock.Industry),
		SuspendListing: stock.SuspendListing,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode stock info: %w", err)
	}

	url := fmt.Sprintf("https://%s/rpc/stock/update-stock-info", c.cfg.Target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build stock info request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push stock info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stock info push returned status %d", resp.StatusCode)
	}

	c.log.Debug().Str("symbol", stock.Symbol).Msg("stock info pushed")
	return nil
}
