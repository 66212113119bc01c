package idgen

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{"nil", nil, ErrConfigNil},
		{"defaults", &Config{}, nil},
		{"min block", &Config{BlockSize: 1}, nil},
		{"max block", &Config{BlockSize: MaxBlockSize}, nil},
		{"block too large", &Config{BlockSize: MaxBlockSize + 1}, ErrInvalidInput},
		{"negative block", &Config{BlockSize: -1}, ErrInvalidInput},
		{"bad encoding", &Config{Encoding: "base32"}, ErrInvalidInput},
		{"bad width", &Config{Encoding: EncodingDecimal, Width: 21}, ErrInvalidInput},
		{"bad policy", &Config{ReusePolicy: "overwrite"}, ErrInvalidInput},
		{"reject policy", &Config{ReusePolicy: ReusePolicyReject}, nil},
		{"negative max namespaces", &Config{MaxNamespaces: -1}, ErrInvalidInput},
		{"max namespaces", &Config{MaxNamespaces: 100}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBlockSize, cfg.BlockSize)
	assert.Equal(t, EncodingHex, cfg.Encoding)
	assert.Equal(t, ReusePolicyContinue, cfg.ReusePolicy)
}

func TestStoreConfig_Validate(t *testing.T) {
	cfg := &StoreConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, "nsid:counter", cfg.KeyPrefix)
	assert.Equal(t, "nsid_counters", cfg.Table)
	assert.Equal(t, int64(math.MaxInt64), cfg.MaxValue)

	assert.ErrorIs(t, (&StoreConfig{Driver: "mongo"}).Validate(), ErrInvalidInput)
	assert.ErrorIs(t, (&StoreConfig{Table: "x; DROP TABLE y"}).Validate(), ErrInvalidInput)
	assert.ErrorIs(t, (&StoreConfig{MaxValue: -1}).Validate(), ErrInvalidInput)
	assert.ErrorIs(t, (*StoreConfig)(nil).Validate(), ErrConfigNil)
}

func TestFits(t *testing.T) {
	assert.True(t, fits(0, 10, 10))
	assert.False(t, fits(1, 10, 10))
	assert.False(t, fits(0, 11, 10))
	assert.True(t, fits(math.MaxInt64-1, 1, math.MaxInt64))
	assert.False(t, fits(math.MaxInt64, 1, math.MaxInt64))
	assert.False(t, fits(-1, 1, 10))
}
