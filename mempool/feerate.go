package mempool

import "fmt"

// FeeRate expresses a fee rate in satoshis per kilobyte, mirroring the
// teacher's utils.FeeRate but over the btcsuite btcutil.Amount scale.
type FeeRate struct {
	SatoshisPerKB int64
}

func NewFeeRate(satoshisPerKB int64) FeeRate {
	return FeeRate{SatoshisPerKB: satoshisPerKB}
}

// NewFeeRateWithSize derives a rate from a fee paid for a given size in bytes.
func NewFeeRateWithSize(feePaid int64, size int64) FeeRate {
	if size <= 0 {
		return FeeRate{}
	}
	return FeeRate{SatoshisPerKB: feePaid * 1000 / size}
}

// Fee returns the fee, in satoshis, for the given size in bytes.
func (f FeeRate) Fee(size int64) int64 {
	fee := f.SatoshisPerKB * size / 1000
	if fee == 0 && size != 0 {
		if f.SatoshisPerKB > 0 {
			fee = 1
		} else if f.SatoshisPerKB < 0 {
			fee = -1
		}
	}
	return fee
}

func (f FeeRate) Less(than FeeRate) bool {
	return f.SatoshisPerKB < than.SatoshisPerKB
}

func (f FeeRate) String() string {
	return fmt.Sprintf("%d.%08d BTC/kB", f.SatoshisPerKB/1e8, f.SatoshisPerKB%1e8)
}
