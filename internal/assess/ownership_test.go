package assess

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOwnershipProbeForServer(srv *httptest.Server) *OwnershipProbe {
	p := NewOwnershipProbe(ResolverTimeouts{
		DNS:     time.Second,
		Connect: time.Second,
		TLS:     time.Second,
		Idle:    time.Second,
	}, zap.NewNop())

	addr := srv.Listener.Addr().String()
	dialer := &net.Dialer{}
	p.transport.DialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	p.transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return p
}

func infoServer(t *testing.T, wallet string) *httptest.Server {
	t.Helper()
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ar-io/info", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"wallet": wallet})
	}))
}

func Test_OwnershipProbe_PassesWhenWalletIsExpected(t *testing.T) {
	srv := infoServer(t, "wallet-b")
	defer srv.Close()

	result := newOwnershipProbeForServer(srv).AssessOwnership(context.Background(), "gateway.test", []string{"wallet-a", "wallet-b"})
	require.True(t, result.Pass)
	require.Equal(t, "wallet-b", result.ObservedWallet)
	require.Empty(t, result.FailureReason)
}

func Test_OwnershipProbe_FailsOnWalletMismatch(t *testing.T) {
	srv := infoServer(t, "wallet-unexpected")
	defer srv.Close()

	result := newOwnershipProbeForServer(srv).AssessOwnership(context.Background(), "gateway.test", []string{"wallet-a", "wallet-b"})
	require.False(t, result.Pass)
	require.Equal(t, "wallet-unexpected", result.ObservedWallet)
	require.Contains(t, result.FailureReason, "Wallet mismatch")
}

func Test_OwnershipProbe_FailsWhenWalletFieldMissing(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"otherField": "x"})
	}))
	defer srv.Close()

	result := newOwnershipProbeForServer(srv).AssessOwnership(context.Background(), "gateway.test", []string{"wallet-a"})
	require.False(t, result.Pass)
	require.Equal(t, "No wallet found", result.FailureReason)
}

func Test_OwnershipProbe_FailsOnMalformedJSON(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	result := newOwnershipProbeForServer(srv).AssessOwnership(context.Background(), "gateway.test", []string{"wallet-a"})
	require.False(t, result.Pass)
	require.NotEmpty(t, result.FailureReason)
}
