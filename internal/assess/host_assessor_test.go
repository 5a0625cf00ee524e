package assess

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ar-io/observer-core/internal/assess/refcache"
)

func uniqueNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("name%d", i)
	}
	return names
}

func resultsWithPassCount(names []string, passCount int) map[string]ArnsNameAssessment {
	results := make(map[string]ArnsNameAssessment, len(names))
	for i, n := range names {
		results[n] = ArnsNameAssessment{Pass: i < passCount}
	}
	return results
}

func Test_ComputeNamesPass_EightOfTenMeetsThreshold(t *testing.T) {
	h := &HostAssessor{}
	names := uniqueNames(10)
	results := resultsWithPassCount(names, 8)

	require.True(t, h.computeNamesPass(names, nil, results, nil))
}

func Test_ComputeNamesPass_SevenOfTenMissesThreshold(t *testing.T) {
	h := &HostAssessor{}
	names := uniqueNames(10)
	results := resultsWithPassCount(names, 7)

	require.False(t, h.computeNamesPass(names, nil, results, nil))
}

func Test_ComputeNamesPass_EmptyNameSetPasses(t *testing.T) {
	h := &HostAssessor{}
	require.True(t, h.computeNamesPass(nil, nil, nil, nil))
}

func Test_ComputeNamesPass_DoubleCountsNameInBothLists(t *testing.T) {
	h := &HostAssessor{}
	// "shared" appears in both lists and passes in each, "other" fails.
	// Two unique names need 1.6 passes: counting "shared" once (1 pass)
	// would miss the threshold, counting it in both lists (2 passes)
	// clears it.
	prescribed := []string{"shared", "other"}
	chosen := []string{"shared"}
	prescribedResults := map[string]ArnsNameAssessment{"shared": {Pass: true}, "other": {Pass: false}}
	chosenResults := map[string]ArnsNameAssessment{"shared": {Pass: true}}

	require.True(t, h.computeNamesPass(prescribed, chosen, prescribedResults, chosenResults))
}

// fakeGatewayServer serves /ar-io/info and per-name probe responses,
// branching on whether the request's Host is under refHost or targetHost
// so a single listener can stand in for both gateways.
func fakeGatewayServer(t *testing.T, refHost, targetHost string, wallet string, mismatchNames map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ar-io/info" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"wallet": wallet})
			return
		}

		host := r.Host
		var name string
		switch {
		case strings.HasSuffix(host, refHost):
			name = strings.TrimSuffix(host, "."+refHost)
		case strings.HasSuffix(host, targetHost):
			name = strings.TrimSuffix(host, "."+targetHost)
		}

		w.Header().Set("x-arns-resolved-id", "tx-"+name)
		if mismatchNames[name] {
			// Target gateway for this name diverges only when this is the
			// target host; the reference side always serves the canonical
			// value so the mismatch is attributable to the target alone.
			if strings.HasSuffix(host, targetHost) {
				w.Header().Set("x-arns-resolved-id", "tx-WRONG-"+name)
			}
		}
		_, _ = w.Write([]byte("payload-" + name))
	}))
}

func newHostAssessorForServer(srv *httptest.Server, refHost, targetHost string) *HostAssessor {
	timeouts := ResolverTimeouts{DNS: time.Second, Connect: time.Second, TLS: time.Second, Idle: time.Second}
	resolver := NewResolver(timeouts, zap.NewNop(), nil)

	addr := srv.Listener.Addr().String()
	dialer := &net.Dialer{}
	resolver.transport.DialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	resolver.transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	ownership := NewOwnershipProbe(timeouts, zap.NewNop())
	ownership.transport.DialContext = resolver.transport.DialContext
	ownership.transport.TLSClientConfig = resolver.transport.TLSClientConfig

	return NewHostAssessor(ownership, resolver, refcache.NewMemBackend(64), refHost, 4, zap.NewNop(), nil)
}

func Test_HostAssessor_AssessHost_AllNamesMatchAndWalletMatches(t *testing.T) {
	const refHost = "ref.test"
	const targetHost = "target.test"
	srv := fakeGatewayServer(t, refHost, targetHost, "wallet-a", nil)
	defer srv.Close()

	h := newHostAssessorForServer(srv, refHost, targetHost)
	assessment := h.AssessHost(context.Background(), targetHost, uniqueNames(5), nil, []string{"wallet-a"})

	require.True(t, assessment.OwnershipAssessment.Pass)
	require.True(t, assessment.ArnsAssessments.Pass)
	require.True(t, assessment.Pass)
	require.Len(t, assessment.ArnsAssessments.PrescribedNames, 5)
}

func Test_HostAssessor_AssessHost_BelowThresholdFailsArnsButOwnershipStillPasses(t *testing.T) {
	const refHost = "ref.test"
	const targetHost = "target.test"
	names := uniqueNames(10)
	mismatch := map[string]bool{}
	for i := 0; i < 5; i++ {
		mismatch[names[i]] = true
	}
	srv := fakeGatewayServer(t, refHost, targetHost, "wallet-a", mismatch)
	defer srv.Close()

	h := newHostAssessorForServer(srv, refHost, targetHost)
	assessment := h.AssessHost(context.Background(), targetHost, names, nil, []string{"wallet-a"})

	require.True(t, assessment.OwnershipAssessment.Pass)
	require.False(t, assessment.ArnsAssessments.Pass)
	require.False(t, assessment.Pass)
}

func Test_HostAssessor_AssessHost_WalletMismatchFailsOverall(t *testing.T) {
	const refHost = "ref.test"
	const targetHost = "target.test"
	srv := fakeGatewayServer(t, refHost, targetHost, "wallet-unexpected", nil)
	defer srv.Close()

	h := newHostAssessorForServer(srv, refHost, targetHost)
	assessment := h.AssessHost(context.Background(), targetHost, uniqueNames(3), nil, []string{"wallet-a"})

	require.False(t, assessment.OwnershipAssessment.Pass)
	require.False(t, assessment.Pass)
}
