package assess

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ar-io/observer-core/pkg/pool"
)

// MaxHashedBytes is the byte cap on the response body fed into the
// streaming content-hash: bytes beyond this are neither hashed nor
// required to be received.
const MaxHashedBytes = 1 << 20 // 1 MiB

// ResolverTimeouts bounds each phase of a single probe. The zero value
// is invalid; use DefaultResolverTimeouts.
type ResolverTimeouts struct {
	DNS     time.Duration
	Connect time.Duration
	TLS     time.Duration
	Idle    time.Duration
}

// DefaultResolverTimeouts bounds DNS to 5s, TCP connect to 2s, TLS to 2s,
// and socket-idle gaps to 1s.
var DefaultResolverTimeouts = ResolverTimeouts{
	DNS:     5 * time.Second,
	Connect: 2 * time.Second,
	TLS:     2 * time.Second,
	Idle:    time.Second,
}

// idleDeadlineConn resets its read deadline before every Read, turning
// the connection-level timeout into a per-chunk "socket idle" timeout
// instead of an overall one, enforced without spinning up a goroutine per
// read.
type idleDeadlineConn struct {
	net.Conn
	idle time.Duration
}

func (c *idleDeadlineConn) Read(p []byte) (int, error) {
	if c.idle > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.idle))
	}
	return c.Conn.Read(p)
}

// idleDialContext returns a DialContext that resolves the host under the
// DNS timeout, dials each resolved address under the Connect timeout, and
// wraps the connection in an idleDeadlineConn. It is shared by Resolver
// and OwnershipProbe since both probes use the identical per-phase
// timeout profile.
func idleDialContext(timeouts ResolverTimeouts) func(context.Context, string, string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeouts.Connect}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		dnsCtx, cancel := context.WithTimeout(ctx, timeouts.DNS)
		ips, err := net.DefaultResolver.LookupHost(dnsCtx, host)
		cancel()
		if err != nil {
			return nil, err
		}
		var conn net.Conn
		err = &net.AddrError{Err: "no addresses", Addr: host}
		for _, ip := range ips {
			if conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port)); err == nil {
				break
			}
		}
		if err != nil {
			return nil, err
		}
		return &idleDeadlineConn{Conn: conn, idle: timeouts.Idle}, nil
	}
}

// Resolver issues one-shot streaming HTTPS probes of ArNS names against
// a gateway host.
type Resolver struct {
	timeouts  ResolverTimeouts
	transport *http.Transport
	logger    *zap.Logger
	metrics   *Metrics
}

// NewResolver builds a Resolver with its own dedicated transport so its
// connection pool, and therefore its timeout behavior, is never shared
// with unrelated callers.
func NewResolver(timeouts ResolverTimeouts, logger *zap.Logger, metrics *Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		timeouts: timeouts,
		logger:   logger,
		metrics:  metrics,
		transport: &http.Transport{
			DialContext:         idleDialContext(timeouts),
			TLSHandshakeTimeout: timeouts.TLS,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			ForceAttemptHTTP2:   true,
			DisableCompression:  true,
			// ResponseHeaderTimeout bounds the wait for response headers
			// once the request is written, using the sum of the DNS,
			// connect and TLS budgets; body streaming past that point is
			// governed by the idle deadline on the connection itself.
			ResponseHeaderTimeout: timeouts.DNS + timeouts.Connect + timeouts.TLS,
		},
	}
}

// Resolve issues GET https://{name}.{host}/ and returns the resulting
// ArnsResolution. name must already be IDNA-normalized and host must not
// carry a port (Resolve does not check this); the scheme is always HTTPS.
func (r *Resolver) Resolve(ctx context.Context, host, name string) (ArnsResolution, error) {
	u := &url.URL{Scheme: "https", Host: host, Path: "/"}
	if name != "" {
		u.Host = name + "." + host
	}

	trace, timings, start := newTraceCollector()
	ctx = httptrace.WithClientTrace(ctx, trace)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		r.metrics.observeProbeDuration(time.Since(start).Seconds())
		return ArnsResolution{}, &TransportError{Op: "resolve", Host: host, Cause: err}
	}

	resp, err := r.transport.RoundTrip(req)
	if err != nil {
		r.metrics.observeProbeDuration(time.Since(start).Seconds())
		return ArnsResolution{}, &TransportError{Op: "resolve", Host: host, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Synthetic 404: a first-class "name unresolved" signal. The
		// status must be inspected before any body bytes are consumed
		// so a 404-with-payload never gets hashed.
		r.metrics.observeProbeDuration(time.Since(start).Seconds())
		return ArnsResolution{StatusCode: http.StatusNotFound}, nil
	}

	digest, err := hashCapped(resp.Body)
	if err != nil {
		r.metrics.observeProbeDuration(time.Since(start).Seconds())
		return ArnsResolution{}, &TransportError{Op: "resolve", Host: host, Cause: err}
	}

	timings.TotalMillis = time.Since(start).Milliseconds()
	r.metrics.observeProbeDuration(time.Since(start).Seconds())

	res := ArnsResolution{
		StatusCode:    resp.StatusCode,
		ResolvedID:    resp.Header.Get("x-arns-resolved-id"),
		TTLSeconds:    resp.Header.Get("x-arns-ttl-seconds"),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.Header.Get("Content-Length"),
		DataHash:      digest,
		Timings:       timings,
	}
	return res, nil
}

// hashCapped streams body through SHA-256, capping the number of bytes
// hashed at MaxHashedBytes. Once the cap is reached it stops reading
// immediately — the deferred resp.Body.Close() in Resolve then aborts the
// transfer rather than draining the remainder. The digest reflects exactly
// the first min(body length, MaxHashedBytes) bytes; bytes past the cap that
// arrive in the last read are discarded unhashed.
func hashCapped(body io.Reader) (string, error) {
	h := sha256.New()
	chunk := pool.GetChunk()
	defer pool.ReleaseChunk(chunk)

	var total int64
	var sawAnyByte bool
	for total < MaxHashedBytes {
		n, err := body.Read(chunk)
		if n > 0 {
			sawAnyByte = true
			remaining := MaxHashedBytes - total
			take := int64(n)
			if take > remaining {
				take = remaining
			}
			h.Write(chunk[:take])
			total += take
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
	}

	if !sawAnyByte {
		return "", nil
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

type traceCollector struct {
	mu           sync.Mutex
	dnsStart     time.Time
	connectStart time.Time
	tlsStart     time.Time
}

// newTraceCollector wires an httptrace.ClientTrace that fills in
// ProbeTimings as the request progresses through DNS, TCP connect, TLS
// handshake, request write, and first response byte.
func newTraceCollector() (*httptrace.ClientTrace, *ProbeTimings, time.Time) {
	start := time.Now()
	timings := &ProbeTimings{}
	c := &traceCollector{}

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			c.mu.Lock()
			c.dnsStart = time.Now()
			c.mu.Unlock()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			c.mu.Lock()
			if !c.dnsStart.IsZero() {
				timings.DNSMillis = time.Since(c.dnsStart).Milliseconds()
			}
			c.mu.Unlock()
		},
		ConnectStart: func(string, string) {
			c.mu.Lock()
			c.connectStart = time.Now()
			c.mu.Unlock()
		},
		ConnectDone: func(string, string, error) {
			c.mu.Lock()
			if !c.connectStart.IsZero() {
				timings.TCPMillis = time.Since(c.connectStart).Milliseconds()
			}
			c.mu.Unlock()
		},
		TLSHandshakeStart: func() {
			c.mu.Lock()
			c.tlsStart = time.Now()
			c.mu.Unlock()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			c.mu.Lock()
			if !c.tlsStart.IsZero() {
				timings.TLSMillis = time.Since(c.tlsStart).Milliseconds()
			}
			c.mu.Unlock()
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			c.mu.Lock()
			timings.RequestMillis = time.Since(start).Milliseconds()
			c.mu.Unlock()
		},
		GotFirstResponseByte: func() {
			c.mu.Lock()
			timings.FirstByteMillis = time.Since(start).Milliseconds()
			c.mu.Unlock()
		},
	}
	return trace, timings, start
}
