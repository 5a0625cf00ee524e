// Package refcache memoizes reference-gateway resolutions for the
// lifetime of a single report generation. It is intentionally scoped to
// one GenerateReport call: nothing here persists across epochs, and
// nothing here is shared between concurrent report runs.
package refcache

// Backend is the pluggable store behind the in-run reference cache. An
// implementation backs either an in-process sharded LRU or a Redis
// instance; both are keyed purely by ArNS name, since every entry within
// one run refers to the same reference gateway host.
type Backend interface {
	Get(name string) (Entry, bool)
	Store(name string, entry Entry)
	Close() error
}

// Entry is the cached shape: the caller (HostAssessor) marshals its own
// ArnsResolution into this to avoid an import cycle between refcache and
// the assess package that owns ArnsResolution.
type Entry struct {
	ResolvedID    string           `json:"resolvedId"`
	TTLSeconds    string           `json:"ttlSeconds,omitempty"`
	ContentType   string           `json:"contentType,omitempty"`
	ContentLength string           `json:"contentLength,omitempty"`
	StatusCode    int              `json:"statusCode"`
	DataHash      string           `json:"dataHashDigest,omitempty"`
	Timings       map[string]int64 `json:"timings,omitempty"`
}
