// Package chains holds the static chain-ID reference tables used by the API
// and the dashboard: network names, block-explorer URL templates, and the
// account-address predicate. Pure lookups, total over all inputs.
package chains

import (
	"fmt"
	"regexp"
)

var names = map[uint64]string{
	1:        "Ethereum Mainnet",
	5:        "Goerli Testnet",
	11155111: "Sepolia Testnet",
	137:      "Polygon",
	80001:    "Mumbai Testnet",
	56:       "BSC",
	97:       "BSC Testnet",
}

var explorers = map[uint64]string{
	1:        "https://etherscan.io",
	5:        "https://goerli.etherscan.io",
	11155111: "https://sepolia.etherscan.io",
	137:      "https://polygonscan.com",
	80001:    "https://mumbai.polygonscan.com",
	56:       "https://bscscan.com",
	97:       "https://testnet.bscscan.com",
}

// Name returns the human-readable network name, "Chain <id>" for unknown IDs.
func Name(id uint64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("Chain %d", id)
}

// ExplorerTxURL returns the block-explorer link for a transaction, "#" when
// no explorer is registered for the chain.
func ExplorerTxURL(id uint64, txHash string) string {
	base, ok := explorers[id]
	if !ok {
		return "#"
	}
	return base + "/tx/" + txHash
}

// ExplorerAddressURL returns the block-explorer link for an account or
// contract, "#" when no explorer is registered for the chain.
func ExplorerAddressURL(id uint64, addr string) string {
	base, ok := explorers[id]
	if !ok {
		return "#"
	}
	return base + "/address/" + addr
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s is exactly "0x" followed by 40 hex
// digits. Used for user-entered contract configuration and manual account
// lookups.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}
