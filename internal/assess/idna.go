package assess

import "golang.org/x/net/idna"

var nameProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
)

// NormalizeName converts an ArNS name to its ASCII (punycode) label so it
// can be safely prefixed onto a gateway host to form a DNS-valid FQDN.
// Valid lower-case ASCII names pass through unchanged (upper-case ASCII is
// lower-cased by the lookup mapping); names
// that fail IDNA validation are returned as-is so the probe can still be
// attempted and fail naturally at the transport layer rather than being
// silently dropped here.
func NormalizeName(name string) string {
	ascii, err := nameProfile.ToASCII(name)
	if err != nil {
		return name
	}
	return ascii
}
