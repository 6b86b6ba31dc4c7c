package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	assert.Equal(t, "Ethereum Mainnet", Name(1))
	assert.Equal(t, "Sepolia Testnet", Name(11155111))
	assert.Equal(t, "Polygon", Name(137))
	assert.Equal(t, "BSC Testnet", Name(97))

	// unknown chains fall back to a generated label
	assert.Equal(t, "Chain 999999", Name(999999))
	assert.Equal(t, "Chain 0", Name(0))
}

func TestExplorerTxURL(t *testing.T) {
	assert.Equal(t,
		"https://sepolia.etherscan.io/tx/0xabc",
		ExplorerTxURL(11155111, "0xabc"))
	assert.Equal(t,
		"https://bscscan.com/tx/0xdef",
		ExplorerTxURL(56, "0xdef"))

	// no registered explorer yields a dead link, not an error
	assert.Equal(t, "#", ExplorerTxURL(424242, "0xabc"))
}

func TestExplorerAddressURL(t *testing.T) {
	assert.Equal(t,
		"https://etherscan.io/address/0x1111111111111111111111111111111111111111",
		ExplorerAddressURL(1, "0x1111111111111111111111111111111111111111"))
	assert.Equal(t, "#", ExplorerAddressURL(424242, "0x1111111111111111111111111111111111111111"))
}

func TestIsValidAddress(t *testing.T) {
	valid := []string{
		"0x0000000000000000000000000000000000000000",
		"0x1234567890abcdefABCDEF1234567890abcdefAB",
		"0xffffffffffffffffffffffffffffffffffffffff",
	}
	for _, s := range valid {
		assert.True(t, IsValidAddress(s), s)
	}

	invalid := []string{
		"",
		"#",
		"0x",
		"0xAbC1",
		"1234567890abcdef1234567890abcdef12345678",                // missing prefix
		"0x1234567890abcdef1234567890abcdef1234567",               // 39 digits
		"0x1234567890abcdef1234567890abcdef123456789",             // 41 digits
		"0xg234567890abcdef1234567890abcdef12345678",              // non-hex
		" 0x1234567890abcdef1234567890abcdef12345678",             // leading space
		"0x1234567890abcdef1234567890abcdef12345678\n",            // trailing newline
		"0x1234567890abcdef1234567890abcdef12345678extra",         // suffix
		"0X1234567890abcdef1234567890abcdef12345678",              // uppercase prefix
	}
	for _, s := range invalid {
		assert.False(t, IsValidAddress(s), s)
	}
}
