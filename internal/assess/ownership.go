package assess

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// OwnershipProbe checks a gateway's claimed wallet identity against the
// set of wallets expected to own its FQDN.
type OwnershipProbe struct {
	timeouts  ResolverTimeouts
	transport *http.Transport
	logger    *zap.Logger
}

// NewOwnershipProbe builds an OwnershipProbe with the same per-phase
// timeout profile as Resolver.
func NewOwnershipProbe(timeouts ResolverTimeouts, logger *zap.Logger) *OwnershipProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OwnershipProbe{
		timeouts: timeouts,
		logger:   logger,
		transport: &http.Transport{
			DialContext:           idleDialContext(timeouts),
			TLSHandshakeTimeout:   timeouts.TLS,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			ResponseHeaderTimeout: timeouts.DNS + timeouts.Connect + timeouts.TLS,
		},
	}
}

// AssessOwnership GETs https://{host}/ar-io/info and compares the
// reported wallet against expectedWallets, which the caller must have
// pre-sorted ascending (so FailureReason is deterministic).
func (p *OwnershipProbe) AssessOwnership(ctx context.Context, host string, expectedWallets []string) OwnershipAssessment {
	result := OwnershipAssessment{ExpectedWallets: expectedWallets}

	u := fmt.Sprintf("https://%s/ar-io/info", host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		result.FailureReason = err.Error()
		return result
	}

	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		result.FailureReason = (&TransportError{Op: "ownership", Host: host, Cause: err}).Error()
		return result
	}
	defer resp.Body.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		result.FailureReason = (&ProtocolError{Op: "ownership", Host: host, Cause: err}).Error()
		return result
	}

	walletField, present := raw["wallet"]
	if !present {
		result.FailureReason = "No wallet found"
		return result
	}
	wallet, _ := walletField.(string)

	result.ObservedWallet = wallet
	idx := sort.SearchStrings(expectedWallets, wallet)
	if idx < len(expectedWallets) && expectedWallets[idx] == wallet {
		result.Pass = true
		return result
	}

	result.FailureReason = fmt.Sprintf("Wallet mismatch: expected one of %s but found %s",
		strings.Join(expectedWallets, ", "), wallet)
	return result
}
