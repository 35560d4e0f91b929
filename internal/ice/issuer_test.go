package ice

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	servers []Server
	err     error
}

func (s staticTokens) IceServers(ctx context.Context) ([]Server, error) {
	return s.servers, s.err
}

func TestIssuer_StunOnly(t *testing.T) {
	issuer := NewIssuer(Config{StunHost: "stun.example.com", StunPort: 3478})

	servers := issuer.IceServers(context.Background(), "client-1")
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)
	assert.Empty(t, servers[0].Credential)
}

func TestIssuer_TurnCredentials(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer(Config{
		StunHost:   "stun.example.com",
		StunPort:   3478,
		TurnHost:   "turn.example.com",
		TurnPort:   3478,
		TurnSecret: "shhh",
	}, WithClock(func() time.Time { return now }))

	servers := issuer.IceServers(context.Background(), "client-1")
	require.Len(t, servers, 2)

	turn := servers[1]
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, turn.URLs)

	expiry := now.Add(DefaultCredentialTTL).Unix()
	wantUser := fmt.Sprintf("%d:client-1", expiry)
	assert.Equal(t, wantUser, turn.Username)

	mac := hmac.New(sha1.New, []byte("shhh"))
	mac.Write([]byte(wantUser))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), turn.Credential)
}

func TestIssuer_AppendsExternalServers(t *testing.T) {
	external := Server{URLs: []string{"turn:global.twilio.com:3478"}, Username: "u", Credential: "c"}
	issuer := NewIssuer(
		Config{StunHost: "stun.example.com", StunPort: 3478},
		WithTokenService(staticTokens{servers: []Server{external}}),
	)

	servers := issuer.IceServers(context.Background(), "client-1")
	require.Len(t, servers, 2)
	assert.Equal(t, external, servers[1])
}

func TestIssuer_ExternalFailureIsSwallowed(t *testing.T) {
	issuer := NewIssuer(
		Config{StunHost: "stun.example.com", StunPort: 3478},
		WithTokenService(staticTokens{err: errors.New("rate limited")}),
	)

	servers := issuer.IceServers(context.Background(), "client-1")
	require.Len(t, servers, 1)
}

func TestTwilioTokenService_ParsesTokenResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Accounts/AC123/Tokens.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "SK456", user)
		assert.Equal(t, "token", pass)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ice_servers":[
			{"url":"stun:global.stun.twilio.com:3478"},
			{"urls":"turn:global.turn.twilio.com:3478","username":"u","credential":"c"}
		]}`)
	}))
	defer srv.Close()

	ts := NewTwilioTokenService("AC123", "SK456", "token")
	ts.baseURL = srv.URL

	servers, err := ts.IceServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:global.stun.twilio.com:3478"}, servers[0].URLs)
	assert.Equal(t, "u", servers[1].Username)
	assert.Equal(t, "c", servers[1].Credential)
}

func TestTwilioTokenService_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ts := NewTwilioTokenService("AC123", "SK456", "bad")
	ts.baseURL = srv.URL

	_, err := ts.IceServers(context.Background())
	assert.Error(t, err)
}
