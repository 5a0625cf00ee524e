package assess

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_GroupByFQDN_DuplicateEntriesUnionWalletsSorted(t *testing.T) {
	entries := []GatewayHostEntry{
		{FQDN: "gw.test", Wallet: "wallet-z"},
		{FQDN: "gw.test", Wallet: "wallet-a"},
		{FQDN: "gw.test", Wallet: "wallet-a"}, // exact duplicate
		{FQDN: "other.test", Wallet: "wallet-b"},
	}

	grouped := groupByFQDN(entries)
	require.Len(t, grouped, 2)
	require.Equal(t, []string{"wallet-a", "wallet-z"}, grouped["gw.test"])
	require.Equal(t, []string{"wallet-b"}, grouped["other.test"])
}

func Test_GroupByFQDN_EmptyInput(t *testing.T) {
	require.Empty(t, groupByFQDN(nil))
}

func Test_NormalizeAll_AppliesIDNAToEveryName(t *testing.T) {
	out := normalizeAll([]string{"ardrive", "xn--already-ascii"})
	require.Len(t, out, 2)
	require.Equal(t, []string{NormalizeName("ardrive"), NormalizeName("xn--already-ascii")}, out)
}

type erroringEpochSource struct{ err error }

func (e erroringEpochSource) GetEpochStartHeight(context.Context) (int, error) { return 0, e.err }
func (e erroringEpochSource) GetEpochEndHeight(context.Context) (int, error)   { return 0, e.err }

func Test_GenerateReport_WrapsEpochSourceFailureAsSourceError(t *testing.T) {
	wantErr := errors.New("chain unreachable")
	builder := NewReportBuilder(ReportBuilderConfig{
		EpochHeights: erroringEpochSource{err: wantErr},
	})

	_, err := builder.GenerateReport(context.Background())
	require.Error(t, err)
	var sourceErr *SourceError
	require.ErrorAs(t, err, &sourceErr)
	require.Equal(t, "EpochHeightSource.GetEpochStartHeight", sourceErr.Source)
	require.ErrorIs(t, err, wantErr)
}

type erroringNamesSource struct{ err error }

func (e erroringNamesSource) GetNames(context.Context, int) ([]string, error) { return nil, e.err }

func Test_GenerateReport_WrapsNamesSourceFailureAsSourceError(t *testing.T) {
	wantErr := errors.New("names unavailable")
	builder := NewReportBuilder(ReportBuilderConfig{
		EpochHeights:    StaticEpochHeightSource{StartHeight: 1, EndHeight: 2},
		PrescribedNames: erroringNamesSource{err: wantErr},
	})

	_, err := builder.GenerateReport(context.Background())
	require.Error(t, err)
	var sourceErr *SourceError
	require.ErrorAs(t, err, &sourceErr)
	require.Equal(t, "ArnsNamesSource.GetNames(prescribed)", sourceErr.Source)
}

type erroringHostsSource struct{ err error }

func (e erroringHostsSource) GetHosts(context.Context) ([]GatewayHostEntry, error) {
	return nil, e.err
}

func Test_GenerateReport_WrapsHostsSourceFailureAsSourceError(t *testing.T) {
	wantErr := errors.New("host list fetch failed")
	builder := NewReportBuilder(ReportBuilderConfig{
		EpochHeights:    StaticEpochHeightSource{StartHeight: 1, EndHeight: 2},
		PrescribedNames: StaticArnsNamesSource{},
		ChosenNames:     StaticArnsNamesSource{},
		GatewayHosts:    erroringHostsSource{err: wantErr},
	})

	_, err := builder.GenerateReport(context.Background())
	require.Error(t, err)
	var sourceErr *SourceError
	require.ErrorAs(t, err, &sourceErr)
	require.Equal(t, "GatewayHostsSource.GetHosts", sourceErr.Source)
}

func Test_AssessAll_VisitsEveryDistinctFQDNAndJoinsBeforeReturning(t *testing.T) {
	hosts := map[string][]string{
		"a.test": {"wallet-a"},
		"b.test": {"wallet-b"},
		"c.test": {"wallet-c"},
	}

	// 1ms timeouts force every lookup and dial to fail fast, so assessAll's
	// join behavior can be observed without relying on external
	// connectivity.
	fastFailTimeouts := ResolverTimeouts{DNS: time.Millisecond, Connect: time.Millisecond, TLS: time.Millisecond, Idle: time.Millisecond}
	builder := &ReportBuilder{
		gatewayConcurrency: 2,
		hostAssessor: NewHostAssessor(
			NewOwnershipProbe(fastFailTimeouts, nil),
			NewResolver(fastFailTimeouts, nil, nil),
			nil, "ref.test", 1, nil, nil,
		),
	}

	// Every call will fail fast (no reachable network), but assessAll's
	// contract is that every FQDN gets a result and the call blocks until
	// all of them do, regardless of individual failures.
	results := builder.assessAll(context.Background(), hosts, nil, nil)

	gotFQDNs := make([]string, 0, len(results))
	for fqdn := range results {
		gotFQDNs = append(gotFQDNs, fqdn)
	}
	sort.Strings(gotFQDNs)
	require.Equal(t, []string{"a.test", "b.test", "c.test"}, gotFQDNs)
}
