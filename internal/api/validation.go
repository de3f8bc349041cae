package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

func validateTrackScreen(req TrackScreenRequest) error {
	if strings.TrimSpace(req.ScreenName) == "" {
		return fmt.Errorf("screen_name is required")
	}
	return nil
}

func validateConsent(req ConsentRequest) (domain.ConsentState, error) {
	if req.State == "" {
		return "", fmt.Errorf("state is required")
	}
	state, err := domain.ParseConsentState(req.State)
	if err != nil {
		return "", fmt.Errorf("invalid state: %w", err)
	}
	return state, nil
}

func validateSettings(req SettingsRequest) error {
	if req.AppID == "" {
		return fmt.Errorf("app_id is required")
	}
	if req.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if err := validateEndpointURL(req.Endpoint); err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	return nil
}

func validateEndpointURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
