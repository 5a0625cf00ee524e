package assess

import (
	"context"
	"strings"
	"time"
)

const failureReasonMaxLen = 512

// resolveFunc is the shape of a single-probe lookup: the reference probe
// goes through a ReferenceCache, the target probe always hits the wire.
// Abstracting it this way lets NameAssessor stay oblivious to caching.
type resolveFunc func(ctx context.Context, host, name string) (ArnsResolution, error)

// NameAssessor compares a name's resolution on a target gateway against
// the reference gateway's resolution for the same name.
type NameAssessor struct {
	referenceHost string
	resolveRef    resolveFunc
	resolveTarget resolveFunc
}

// NewNameAssessor builds a NameAssessor. resolveRef is expected to consult
// a ReferenceCache before falling back to a real Resolver.Resolve call;
// resolveTarget always performs a real probe.
func NewNameAssessor(referenceHost string, resolveRef, resolveTarget resolveFunc) *NameAssessor {
	return &NameAssessor{referenceHost: referenceHost, resolveRef: resolveRef, resolveTarget: resolveTarget}
}

// Assess performs the reference probe, then the target probe (in that
// fixed order), and produces the comparison.
func (a *NameAssessor) Assess(ctx context.Context, host, name string) ArnsNameAssessment {
	refRes, refErr := a.resolveRef(ctx, a.referenceHost, name)
	targetRes, targetErr := a.resolveTarget(ctx, host, name)
	assessedAt := time.Now().Unix()

	if refErr != nil || targetErr != nil {
		reason := firstError(refErr, targetErr).Error()
		if len(reason) > failureReasonMaxLen {
			reason = reason[:failureReasonMaxLen]
		}
		return ArnsNameAssessment{
			AssessedAt:    assessedAt,
			FailureReason: reason,
			Pass:          false,
		}
	}

	var mismatches []string
	if refRes.ResolvedID != targetRes.ResolvedID {
		mismatches = append(mismatches, "resolvedId mismatch")
	}
	if refRes.TTLSeconds != targetRes.TTLSeconds {
		mismatches = append(mismatches, "ttlSeconds mismatch")
	}
	if refRes.ContentType != targetRes.ContentType {
		mismatches = append(mismatches, "contentType mismatch")
	}
	if refRes.DataHash != targetRes.DataHash {
		mismatches = append(mismatches, "dataHashDigest mismatch")
	}

	result := ArnsNameAssessment{
		AssessedAt:         assessedAt,
		ExpectedStatusCode: intPtr(refRes.StatusCode),
		ResolvedStatusCode: intPtr(targetRes.StatusCode),
		ExpectedID:         refRes.ResolvedID,
		ResolvedID:         targetRes.ResolvedID,
		ExpectedDataHash:   refRes.DataHash,
		ResolvedDataHash:   targetRes.DataHash,
		Pass:               len(mismatches) == 0,
	}
	if len(mismatches) > 0 {
		result.FailureReason = strings.Join(mismatches, ", ")
	}
	if targetRes.Timings != nil {
		result.Timings = targetRes.Timings
	} else if refRes.Timings != nil {
		result.Timings = refRes.Timings
	}
	return result
}

func firstError(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

func intPtr(v int) *int {
	return &v
}
