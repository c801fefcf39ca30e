package blockchain

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals int
		want     int64
	}{
		{"nil", nil, 12, 0},
		{"exact", new(big.Int).Mul(big.NewInt(50), big.NewInt(1e12)), 12, 50},
		{"truncates dust", big.NewInt(1_999_999_999_999), 12, 1},
		{"no decimals", big.NewInt(42), 0, 42},
		{"saturates", new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil), 0, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToMinorUnits(tt.amount, tt.decimals))
		})
	}
}

func TestDepth(t *testing.T) {
	assert.Equal(t, uint64(1), Depth(100, 100))
	assert.Equal(t, uint64(5), Depth(104, 100))
	assert.Equal(t, uint64(0), Depth(99, 100))
}

func TestChainLoad(t *testing.T) {
	assert.Equal(t, 0.5, ChainLoad(2500, 5000))
	assert.Equal(t, 1.0, ChainLoad(9000, 5000))
	assert.Equal(t, 0.0, ChainLoad(10, 0))
}
