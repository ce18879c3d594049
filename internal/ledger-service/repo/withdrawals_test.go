package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidDestination(t *testing.T) {
	cases := []struct {
		name string
		addr string
		want bool
	}{
		{"legacy L", "LWalletDestination0000000000000000", true},
		{"legacy M", "MScriptDestination0000000000000000", true},
		{"bech32", "ltc1qdepositaddress00000000000000", true},
		{"empty", "", false},
		{"too short", "Lshort", false},
		{"wrong prefix", "1BitcoinStyleAddress0000000000", false},
		{"prefix only counts at start", "xxLWalletDestination000000000000", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidDestination(tc.addr))
		})
	}
}
