package ice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioTokenService fetches ephemeral ICE servers from Twilio's network
// traversal token endpoint. It only exercises the token contract; media
// never flows through this process.
type TwilioTokenService struct {
	accountSID string
	keySID     string
	authToken  string
	baseURL    string
	client     *http.Client
}

// NewTwilioTokenService builds a token service from account credentials.
func NewTwilioTokenService(accountSID, keySID, authToken string) *TwilioTokenService {
	return &TwilioTokenService{
		accountSID: accountSID,
		keySID:     keySID,
		authToken:  authToken,
		baseURL:    twilioBaseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// twilioIceServer matches Twilio's token response, which uses the singular
// "url" field alongside the standard "urls".
type twilioIceServer struct {
	URL        string `json:"url,omitempty"`
	URLs       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// IceServers requests a new token and returns the servers it carries.
func (t *TwilioTokenService) IceServers(ctx context.Context) ([]Server, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Tokens.json", t.baseURL, url.PathEscape(t.accountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(""))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.SetBasicAuth(t.keySID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var token struct {
		IceServers []twilioIceServer `json:"ice_servers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	servers := make([]Server, 0, len(token.IceServers))
	for _, s := range token.IceServers {
		urls := s.URLs
		if urls == "" {
			urls = s.URL
		}
		if urls == "" {
			continue
		}
		servers = append(servers, Server{
			URLs:       []string{urls},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers, nil
}
