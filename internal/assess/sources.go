package assess

import "context"

// EpochHeightSource resolves the block-height bounds of the epoch being
// audited. Concrete implementations (HTTP/GraphQL clients against chain
// state) live outside this package; the engine depends only on this
// contract.
type EpochHeightSource interface {
	GetEpochStartHeight(ctx context.Context) (int, error)
	GetEpochEndHeight(ctx context.Context) (int, error)
}

// ArnsNamesSource returns the name list to assess. height is advisory:
// a static implementation is free to ignore it and return a fixed list.
type ArnsNamesSource interface {
	GetNames(ctx context.Context, height int) ([]string, error)
}

// GatewayHostEntry is one row of the raw gateway-host list: a claimed
// FQDN and the wallet claiming it. Multiple entries may share an fqdn.
type GatewayHostEntry struct {
	FQDN   string
	Wallet string
}

// GatewayHostsSource returns the raw (possibly FQDN-duplicated) gateway
// entries for the epoch.
type GatewayHostsSource interface {
	GetHosts(ctx context.Context) ([]GatewayHostEntry, error)
}

// StaticEpochHeightSource is a fixed-bounds stand-in used by the report
// and run CLI subcommands until a real chain-backed source is wired in,
// and by tests that don't care about epoch bookkeeping.
type StaticEpochHeightSource struct {
	StartHeight int
	EndHeight   int
}

func (s StaticEpochHeightSource) GetEpochStartHeight(context.Context) (int, error) {
	return s.StartHeight, nil
}

func (s StaticEpochHeightSource) GetEpochEndHeight(context.Context) (int, error) {
	return s.EndHeight, nil
}

// StaticArnsNamesSource always returns the same name list, ignoring
// height.
type StaticArnsNamesSource struct {
	Names []string
}

func (s StaticArnsNamesSource) GetNames(context.Context, int) ([]string, error) {
	return s.Names, nil
}

// StaticGatewayHostsSource always returns the same fixed entry list.
type StaticGatewayHostsSource struct {
	Entries []GatewayHostEntry
}

func (s StaticGatewayHostsSource) GetHosts(context.Context) ([]GatewayHostEntry, error) {
	return s.Entries, nil
}
