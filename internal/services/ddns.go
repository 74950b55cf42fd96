package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/config"
	"github.com/aristath/twstock/internal/httpx"
)

// DDNSService refreshes the dynamic-DNS records with every configured
// provider. Runs every minute; providers with empty credentials are
// skipped.
type DDNSService struct {
	http *httpx.Client
	cfg  config.DDNS
	log  zerolog.Logger
}

// NewDDNSService creates the DDNS refresher.
func NewDDNSService(http *httpx.Client, cfg config.DDNS, log zerolog.Logger) *DDNSService {
	return &DDNSService{
		http: http,
		cfg:  cfg,
		log:  log.With().Str("service", "ddns").Logger(),
	}
}

// Refresh updates every configured provider. Provider failures are logged
// and do not stop the others.
func (s *DDNSService) Refresh(ctx context.Context) error {
	if s.cfg.AfraidToken != "" {
		s.refreshAfraid(ctx)
	}
	if s.cfg.DynuUsername != "" {
		s.refreshDynu(ctx)
	}
	if s.cfg.NoIPUsername != "" {
		s.refreshNoIP(ctx)
	}
	return nil
}

func (s *DDNSService) refreshAfraid(ctx context.Context) {
	url := "https://freedns.afraid.org/dynamic/update.php?" + s.cfg.AfraidToken
	body, status, err := s.http.Get(ctx, url, nil)
	if err != nil || status != 200 {
		s.log.Warn().Err(err).Int("status", status).Msg("afraid refresh failed")
		return
	}
	s.log.Debug().Str("response", strings.TrimSpace(string(body))).Msg("afraid refreshed")
}

func (s *DDNSService) refreshDynu(ctx context.Context) {
	url := fmt.Sprintf("https://api.dynu.com/nic/update?username=%s&password=%s",
		s.cfg.DynuUsername, s.cfg.DynuPassword)
	body, status, err := s.http.Get(ctx, url, nil)
	if err != nil || status != 200 {
		s.log.Warn().Err(err).Int("status", status).Msg("dynu refresh failed")
		return
	}
	s.log.Debug().Str("response", strings.TrimSpace(string(body))).Msg("dynu refreshed")
}

func (s *DDNSService) refreshNoIP(ctx context.Context) {
	if len(s.cfg.NoIPHostnames) == 0 {
		return
	}
	url := fmt.Sprintf("https://%s:%s@dynupdate.no-ip.com/nic/update?hostname=%s",
		s.cfg.NoIPUsername, s.cfg.NoIPPassword,
		strings.Join(s.cfg.NoIPHostnames, ","))
	body, status, err := s.http.Get(ctx, url, nil)
	if err != nil || status != 200 {
		s.log.Warn().Err(err).Int("status", status).Msg("no-ip refresh failed")
		return
	}
	s.log.Debug().Str("response", strings.TrimSpace(string(body))).Msg("no-ip refreshed")
}
