package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgsDecodesBlockAssemblySurface(t *testing.T) {
	opts, err := ParseArgs([]string{
		"--blockmaxweight=1000000",
		"--blockmintxfee=2000",
		"--coinbaseflags=miner:theholyroger",
		"--coinbaseflags=version:1",
		"--gen",
		"--genproclimit=4",
	})
	assert.NoError(t, err)
	assert.EqualValues(t, 1000000, opts.BlockMaxWeight)
	assert.EqualValues(t, 2000, opts.BlockMinTxFee)
	assert.True(t, opts.Gen)
	assert.Equal(t, 4, opts.GenProcLimit)
	assert.Equal(t, "miner:theholyroger,version:1", opts.CoinbaseTags())
}

func TestParseArgsDefaultsGenProcLimitToMinusOne(t *testing.T) {
	opts, err := ParseArgs(nil)
	assert.NoError(t, err)
	assert.Equal(t, -1, opts.GenProcLimit)
	assert.False(t, opts.Gen)
}

func TestNewOverridesFallsBackToDefaultsWithoutAConfigFile(t *testing.T) {
	o := NewOverrides("")
	assert.Equal(t, "ancestorfeerate", o.SortStrategy())
	assert.Equal(t, 1000, o.MaxConsecutiveFailures())
	assert.EqualValues(t, 4000, o.WeightSlack())
}
