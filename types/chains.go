package types

// Well-known chain identifiers. The routing core treats chains as opaque
// strings; these constants only name the networks the stock configuration
// and the EVM execution backend know about.
const (
	ChainREI     = "REI"
	ChainPolygon = "Polygon"
	ChainBase    = "Base"
	ChainSolana  = "Solana"
)

// IsEVMChain reports whether a chain identifier names an EVM-compatible
// network the EVM backend can broadcast to.
func IsEVMChain(chain string) bool {
	switch chain {
	case ChainREI, ChainPolygon, ChainBase:
		return true
	default:
		return false
	}
}
