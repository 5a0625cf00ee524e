package assess

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ar-io/observer-core/internal/assess/refcache"
)

// namePassThreshold is the fraction of unique names a host must pass to
// have arnsAssessments.pass == true.
const namePassThreshold = 0.8

// HostAssessor assesses a single gateway: its ownership claim plus its
// resolution of the prescribed and chosen name lists.
type HostAssessor struct {
	ownership       *OwnershipProbe
	resolver        *Resolver
	refCache        refcache.Backend
	referenceHost   string
	nameConcurrency int64
	logger          *zap.Logger
	metrics         *Metrics
}

// NewHostAssessor wires a HostAssessor from its leaf probes.
func NewHostAssessor(ownership *OwnershipProbe, resolver *Resolver, refCache refcache.Backend, referenceHost string, nameConcurrency int, logger *zap.Logger, metrics *Metrics) *HostAssessor {
	if nameConcurrency < 1 {
		nameConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostAssessor{
		ownership:       ownership,
		resolver:        resolver,
		refCache:        refCache,
		referenceHost:   referenceHost,
		nameConcurrency: int64(nameConcurrency),
		logger:          logger,
		metrics:         metrics,
	}
}

// AssessHost runs the ownership check and the per-name comparisons for one
// gateway. Ownership, the prescribed-name pool, and the chosen-name pool
// are independent and run concurrently; within each pool, name-level
// fan-out is itself bounded by a semaphore of weight nameConcurrency, so
// the two pools may interleave rather than running as a strict
// ownership-then-prescribed-then-chosen pipeline. Individual name
// failures never short-circuit the host's assessment.
func (h *HostAssessor) AssessHost(ctx context.Context, host string, prescribedNames, chosenNames []string, expectedWallets []string) GatewayAssessment {
	var ownershipAssessment OwnershipAssessment
	var prescribedResults, chosenResults map[string]ArnsNameAssessment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ownershipAssessment = h.ownership.AssessOwnership(gctx, host, expectedWallets)
		h.metrics.observeOwnership(ownershipAssessment.Pass)
		return nil
	})
	g.Go(func() error {
		prescribedResults = h.assessNames(gctx, host, prescribedNames)
		return nil
	})
	g.Go(func() error {
		chosenResults = h.assessNames(gctx, host, chosenNames)
		return nil
	})
	_ = g.Wait() // each goroutine above always returns nil; errgroup is used only to join

	namesPass := h.computeNamesPass(prescribedNames, chosenNames, prescribedResults, chosenResults)

	arns := ArnsAssessments{
		PrescribedNames: prescribedResults,
		ChosenNames:     chosenResults,
		Pass:            namesPass,
	}

	return GatewayAssessment{
		OwnershipAssessment: ownershipAssessment,
		ArnsAssessments:     arns,
		Pass:                ownershipAssessment.Pass && namesPass,
	}
}

// assessNames fans out over names with a bounded pool of size
// h.nameConcurrency, joining before returning (structured concurrency:
// no result is observed by the caller until every task in this call has
// finished).
func (h *HostAssessor) assessNames(ctx context.Context, host string, names []string) map[string]ArnsNameAssessment {
	results := make(map[string]ArnsNameAssessment, len(names))
	if len(names) == 0 {
		return results
	}

	sem := semaphore.NewWeighted(h.nameConcurrency)
	assessor := NewNameAssessor(h.referenceHost, h.resolveReference, h.resolver.Resolve)

	type namedResult struct {
		name   string
		result ArnsNameAssessment
	}
	out := make(chan namedResult, len(names))

	for _, name := range names {
		name := name
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context canceled: stop scheduling new probes but still
			// drain what's already in flight below.
			out <- namedResult{name: name, result: ArnsNameAssessment{
				FailureReason: err.Error(),
			}}
			continue
		}
		go func() {
			defer sem.Release(1)
			res := assessor.Assess(ctx, host, name)
			h.metrics.observeNameAssessment(res.Pass)
			out <- namedResult{name: name, result: res}
		}()
	}

	for range names {
		nr := <-out
		results[nr.name] = nr.result
	}
	return results
}

// resolveReference consults the ReferenceCache before issuing a real
// probe, so the reference gateway isn't hit once per target host for the
// same name within a single generateReport call.
func (h *HostAssessor) resolveReference(ctx context.Context, referenceHost, name string) (ArnsResolution, error) {
	if h.refCache != nil {
		if cached, ok := h.refCache.Get(name); ok {
			h.metrics.observeCacheHit(true)
			return entryToResolution(cached), nil
		}
		h.metrics.observeCacheHit(false)
	}

	res, err := h.resolver.Resolve(ctx, referenceHost, name)
	if err != nil {
		return ArnsResolution{}, err
	}
	if h.refCache != nil {
		h.refCache.Store(name, resolutionToEntry(res))
	}
	return res, nil
}

func resolutionToEntry(res ArnsResolution) refcache.Entry {
	e := refcache.Entry{
		ResolvedID:    res.ResolvedID,
		TTLSeconds:    res.TTLSeconds,
		ContentType:   res.ContentType,
		ContentLength: res.ContentLength,
		StatusCode:    res.StatusCode,
		DataHash:      res.DataHash,
	}
	if res.Timings != nil {
		e.Timings = map[string]int64{
			"dnsMillis":       res.Timings.DNSMillis,
			"tcpMillis":       res.Timings.TCPMillis,
			"tlsMillis":       res.Timings.TLSMillis,
			"requestMillis":   res.Timings.RequestMillis,
			"firstByteMillis": res.Timings.FirstByteMillis,
			"totalMillis":     res.Timings.TotalMillis,
		}
	}
	return e
}

func entryToResolution(e refcache.Entry) ArnsResolution {
	res := ArnsResolution{
		ResolvedID:    e.ResolvedID,
		TTLSeconds:    e.TTLSeconds,
		ContentType:   e.ContentType,
		ContentLength: e.ContentLength,
		StatusCode:    e.StatusCode,
		DataHash:      e.DataHash,
	}
	if e.Timings != nil {
		res.Timings = &ProbeTimings{
			DNSMillis:       e.Timings["dnsMillis"],
			TCPMillis:       e.Timings["tcpMillis"],
			TLSMillis:       e.Timings["tlsMillis"],
			RequestMillis:   e.Timings["requestMillis"],
			FirstByteMillis: e.Timings["firstByteMillis"],
			TotalMillis:     e.Timings["totalMillis"],
		}
	}
	return res
}

// computeNamesPass: U is the unique name set across both lists, P
// double-counts passes across both lists — a name present in both the
// prescribed and chosen lists can contribute two passes toward the same
// unique-name denominator. This is intentional: a name's weight in the
// score matches how many ways it was asked for.
func (h *HostAssessor) computeNamesPass(prescribedNames, chosenNames []string, prescribedResults, chosenResults map[string]ArnsNameAssessment) bool {
	unique := make(map[string]struct{}, len(prescribedNames)+len(chosenNames))
	for _, n := range prescribedNames {
		unique[n] = struct{}{}
	}
	for _, n := range chosenNames {
		unique[n] = struct{}{}
	}

	passes := 0
	for _, r := range prescribedResults {
		if r.Pass {
			passes++
		}
	}
	for _, r := range chosenResults {
		if r.Pass {
			passes++
		}
	}

	if len(unique) == 0 {
		return true
	}
	return float64(passes) >= namePassThreshold*float64(len(unique))
}
