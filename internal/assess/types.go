// Package assess implements the assessment engine: it streams HTTP
// resolutions against a fleet of ArNS gateways, cross-checks each one
// against a reference gateway, verifies gateway ownership, and rolls the
// results up into a signed-report-ready ObserverReport.
package assess

// ArnsResolution is the result of probing https://{name}.{host}/.
//
// Invariant: if StatusCode == 404 via the synthetic-404 path, every
// other field is zero-valued/absent.
type ArnsResolution struct {
	StatusCode    int           `json:"statusCode"`
	ResolvedID    string        `json:"resolvedId,omitempty"`
	TTLSeconds    string        `json:"ttlSeconds,omitempty"`
	ContentType   string        `json:"contentType,omitempty"`
	ContentLength string        `json:"contentLength,omitempty"`
	DataHash      string        `json:"dataHashDigest,omitempty"`
	Timings       *ProbeTimings `json:"timings,omitempty"`
}

// ProbeTimings records per-phase latencies of a single HTTP probe, as
// observed via net/http/httptrace. Zero means the phase was not reached
// (e.g. TLS is absent on a failed TCP connect).
type ProbeTimings struct {
	DNSMillis       int64 `json:"dnsMillis,omitempty"`
	TCPMillis       int64 `json:"tcpMillis,omitempty"`
	TLSMillis       int64 `json:"tlsMillis,omitempty"`
	RequestMillis   int64 `json:"requestMillis,omitempty"`
	FirstByteMillis int64 `json:"firstByteMillis,omitempty"`
	TotalMillis     int64 `json:"totalMillis,omitempty"`
}

// OwnershipAssessment records the result of checking a gateway's claimed
// wallet identity against the set of wallets expected to own its FQDN.
type OwnershipAssessment struct {
	ExpectedWallets []string `json:"expectedWallets"`
	ObservedWallet  string   `json:"observedWallet,omitempty"`
	FailureReason   string   `json:"failureReason,omitempty"`
	Pass            bool     `json:"pass"`
}

// ArnsNameAssessment is the outcome of comparing one name's resolution on
// a target gateway against the reference gateway's resolution.
type ArnsNameAssessment struct {
	AssessedAt         int64         `json:"assessedAt"`
	ExpectedStatusCode *int          `json:"expectedStatusCode,omitempty"`
	ResolvedStatusCode *int          `json:"resolvedStatusCode,omitempty"`
	ExpectedID         string        `json:"expectedId,omitempty"`
	ResolvedID         string        `json:"resolvedId,omitempty"`
	ExpectedDataHash   string        `json:"expectedDataHash,omitempty"`
	ResolvedDataHash   string        `json:"resolvedDataHash,omitempty"`
	FailureReason      string        `json:"failureReason,omitempty"`
	Pass               bool          `json:"pass"`
	Timings            *ProbeTimings `json:"timings,omitempty"`
}

// ArnsAssessments groups a gateway's prescribed- and chosen-name results
// plus the derived pass verdict for the host's name coverage.
type ArnsAssessments struct {
	PrescribedNames map[string]ArnsNameAssessment `json:"prescribedNames"`
	ChosenNames     map[string]ArnsNameAssessment `json:"chosenNames"`
	Pass            bool                          `json:"pass"`
}

// GatewayAssessment is the full verdict for a single gateway FQDN.
type GatewayAssessment struct {
	OwnershipAssessment OwnershipAssessment `json:"ownershipAssessment"`
	ArnsAssessments     ArnsAssessments     `json:"arnsAssessments"`
	Pass                bool                `json:"pass"`
}

// ObserverReport is the sole durable output of a generateReport run.
type ObserverReport struct {
	FormatVersion      int                          `json:"formatVersion"`
	ObserverAddress    string                        `json:"observerAddress"`
	EpochStartHeight   int                           `json:"epochStartHeight"`
	EpochEndHeight     int                           `json:"epochEndHeight"`
	GeneratedAt        int64                         `json:"generatedAt"`
	GatewayAssessments map[string]GatewayAssessment `json:"gatewayAssessments"`
}

// ReportFormatVersion is the formatVersion stamped on every ObserverReport.
const ReportFormatVersion = 1
