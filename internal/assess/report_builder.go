package assess

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ReportBuilder is the top-level orchestrator: it fetches epoch bounds
// and name lists from the Source interfaces, fans out HostAssessor over
// every gateway with bounded parallelism, and assembles the resulting
// ObserverReport.
type ReportBuilder struct {
	observerAddress string

	epochHeights    EpochHeightSource
	prescribedNames ArnsNamesSource
	chosenNames     ArnsNamesSource
	gatewayHosts    GatewayHostsSource

	hostAssessor *HostAssessor

	gatewayConcurrency int64

	logger  *zap.Logger
	metrics *Metrics
}

// ReportBuilderConfig bundles ReportBuilder's dependencies.
type ReportBuilderConfig struct {
	ObserverAddress    string
	EpochHeights       EpochHeightSource
	PrescribedNames    ArnsNamesSource
	ChosenNames        ArnsNamesSource
	GatewayHosts       GatewayHostsSource
	HostAssessor       *HostAssessor
	GatewayConcurrency int
	Logger             *zap.Logger
	Metrics            *Metrics
}

func NewReportBuilder(cfg ReportBuilderConfig) *ReportBuilder {
	if cfg.GatewayConcurrency < 1 {
		cfg.GatewayConcurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ReportBuilder{
		observerAddress:    cfg.ObserverAddress,
		epochHeights:       cfg.EpochHeights,
		prescribedNames:    cfg.PrescribedNames,
		chosenNames:        cfg.ChosenNames,
		gatewayHosts:       cfg.GatewayHosts,
		hostAssessor:       cfg.HostAssessor,
		gatewayConcurrency: int64(cfg.GatewayConcurrency),
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
	}
}

// GenerateReport assembles one full ObserverReport. The only error it
// returns is a SourceError naming whichever Source (height, names, or hosts) failed —
// every other failure surfaces as pass=false data inside the report
// itself.
func (b *ReportBuilder) GenerateReport(ctx context.Context) (ObserverReport, error) {
	start := time.Now()
	defer func() { b.metrics.observeReportDuration(time.Since(start).Seconds()) }()

	startHeight, err := b.epochHeights.GetEpochStartHeight(ctx)
	if err != nil {
		return ObserverReport{}, &SourceError{Source: "EpochHeightSource.GetEpochStartHeight", Cause: err}
	}
	endHeight, err := b.epochHeights.GetEpochEndHeight(ctx)
	if err != nil {
		return ObserverReport{}, &SourceError{Source: "EpochHeightSource.GetEpochEndHeight", Cause: err}
	}

	prescribed, err := b.prescribedNames.GetNames(ctx, startHeight)
	if err != nil {
		return ObserverReport{}, &SourceError{Source: "ArnsNamesSource.GetNames(prescribed)", Cause: err}
	}
	chosen, err := b.chosenNames.GetNames(ctx, startHeight)
	if err != nil {
		return ObserverReport{}, &SourceError{Source: "ArnsNamesSource.GetNames(chosen)", Cause: err}
	}

	rawHosts, err := b.gatewayHosts.GetHosts(ctx)
	if err != nil {
		return ObserverReport{}, &SourceError{Source: "GatewayHostsSource.GetHosts", Cause: err}
	}

	hosts := groupByFQDN(rawHosts)

	prescribed = normalizeAll(prescribed)
	chosen = normalizeAll(chosen)

	assessments := b.assessAll(ctx, hosts, prescribed, chosen)

	return ObserverReport{
		FormatVersion:      ReportFormatVersion,
		ObserverAddress:    b.observerAddress,
		EpochStartHeight:   startHeight,
		EpochEndHeight:     endHeight,
		GeneratedAt:        time.Now().Unix(),
		GatewayAssessments: assessments,
	}, nil
}

// groupByFQDN collapses duplicate host-list entries: a single FQDN claimed by multiple wallets
// collapses to one assessment keyed by FQDN, with expectedWallets the
// sorted union of every claiming wallet.
func groupByFQDN(entries []GatewayHostEntry) map[string][]string {
	wallets := make(map[string]map[string]struct{})
	for _, e := range entries {
		set, ok := wallets[e.FQDN]
		if !ok {
			set = make(map[string]struct{})
			wallets[e.FQDN] = set
		}
		set[e.Wallet] = struct{}{}
	}

	result := make(map[string][]string, len(wallets))
	for fqdn, set := range wallets {
		list := make([]string, 0, len(set))
		for w := range set {
			list = append(list, w)
		}
		sort.Strings(list)
		result[fqdn] = list
	}
	return result
}

func normalizeAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = NormalizeName(n)
	}
	return out
}

// assessAll fans out over distinct gateway entries (already deduplicated
// by groupByFQDN) bounded by gatewayConcurrency. Every entry is assessed;
// a single host's failure never aborts the others.
func (b *ReportBuilder) assessAll(ctx context.Context, hosts map[string][]string, prescribed, chosen []string) map[string]GatewayAssessment {
	results := make(map[string]GatewayAssessment, len(hosts))
	if len(hosts) == 0 {
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(b.gatewayConcurrency)

	for fqdn, wallets := range hosts {
		fqdn, wallets := fqdn, wallets
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			results[fqdn] = GatewayAssessment{
				OwnershipAssessment: OwnershipAssessment{
					ExpectedWallets: wallets,
					FailureReason:   fmt.Sprintf("assessment canceled: %s", err),
				},
			}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			assessment := b.hostAssessor.AssessHost(ctx, fqdn, prescribed, chosen, wallets)
			mu.Lock()
			results[fqdn] = assessment
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}
