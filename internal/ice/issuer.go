// Package ice issues ICE server descriptors for clients negotiating a peer
// connection: a static STUN entry, short-lived TURN credentials and any
// descriptors obtained from an external token service.
package ice

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"
)

// DefaultCredentialTTL is how long derived TURN credentials stay valid.
const DefaultCredentialTTL = 6 * time.Hour

// Server describes a single ICE server entry as understood by browsers.
type Server struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// TokenService fetches ICE servers from an external provider. Failures are
// tolerated; the issuer falls back to its own descriptors.
type TokenService interface {
	IceServers(ctx context.Context) ([]Server, error)
}

// Config holds the static STUN/TURN settings for the issuer.
type Config struct {
	StunHost string
	StunPort int

	TurnHost string
	TurnPort int
	// TurnSecret is the shared secret used to derive time-limited TURN
	// credentials (coturn's static-auth-secret mechanism).
	TurnSecret string

	// CredentialTTL overrides DefaultCredentialTTL when non-zero.
	CredentialTTL time.Duration
}

// Issuer derives ICE server lists for individual clients.
type Issuer struct {
	cfg    Config
	tokens TokenService
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTokenService attaches an external token service whose descriptors are
// appended to the issued list.
func WithTokenService(ts TokenService) Option {
	return func(i *Issuer) { i.tokens = ts }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(i *Issuer) { i.clock = clock }
}

// NewIssuer creates an Issuer from static configuration.
func NewIssuer(cfg Config, opts ...Option) *Issuer {
	if cfg.CredentialTTL == 0 {
		cfg.CredentialTTL = DefaultCredentialTTL
	}
	i := &Issuer{
		cfg:    cfg,
		clock:  time.Now,
		logger: slog.Default().With("service", "ice"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IceServers returns the ordered ICE server list for a client. The STUN
// entry always comes first, followed by a TURN entry when configured and
// finally anything the external token service contributed.
func (i *Issuer) IceServers(ctx context.Context, clientID string) []Server {
	servers := []Server{{
		URLs: []string{fmt.Sprintf("stun:%s:%d", i.cfg.StunHost, i.cfg.StunPort)},
	}}

	if i.cfg.TurnHost != "" && i.cfg.TurnPort != 0 && i.cfg.TurnSecret != "" {
		expiry := i.clock().Add(i.cfg.CredentialTTL)
		username, credential := turnCredentials(i.cfg.TurnSecret, clientID, expiry)
		servers = append(servers, Server{
			URLs:       []string{fmt.Sprintf("turn:%s:%d", i.cfg.TurnHost, i.cfg.TurnPort)},
			Username:   username,
			Credential: credential,
		})
	}

	if i.tokens != nil {
		external, err := i.tokens.IceServers(ctx)
		if err != nil {
			i.logger.Warn("external ICE token service failed", "error", err)
		} else {
			servers = append(servers, external...)
		}
	}

	return servers
}

// turnCredentials derives time-limited TURN credentials. The username is
// "<unix expiry>:<client id>" and the credential is the base64 HMAC-SHA1 of
// the username under the shared secret.
func turnCredentials(secret, clientID string, expiry time.Time) (string, string) {
	username := fmt.Sprintf("%d:%s", expiry.Unix(), clientID)
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	credential := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return username, credential
}
