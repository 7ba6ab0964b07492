package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Decompose a target output frequency and duty cycle into the
 *		integer prescaler/high-count/low-count triple the RMT-style
 *		peripheral actually accepts, and size the buffer it will need.
 *
 * Description:	F_APB is the ~80MHz reference clock the peripheral divides.
 *		We search for P*N close to F_APB/Fout, preferring an exact
 *		factorization and, among those, the largest P (smallest N),
 *		since that both minimizes the item count and maximizes how
 *		many times the period can be replicated into the buffer.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"math"
)

// FAPB is the fixed reference clock the hardware prescaler divides.
const FAPB float64 = 80_000_000

// MaxPrescaler is the largest value the 8-bit prescaler register holds.
const MaxPrescaler = 255

// MaxBlocks is the number of 64-item blocks a single channel chain may span.
const MaxBlocks = 8

// Plan is the pure numeric result of solving (Fout, D): it owns no hardware
// resources and is safe to share.
type Plan struct {
	FreqActual float64 // Hz the hardware will actually produce
	DutyActual float64 // NH / (NH+NL), in (0, 1)

	Prescaler int // 1..255
	N         int // NH + NL
	NH        int // high ticks per period
	NL        int // low ticks per period

	OnItems int // items in one non-replicated period
	NRep    int // replication factor (>=1)
	NItems  int // OnItems*NRep + 1 terminator

	MemBlocks int // 64-item blocks consumed, 1..8

	JitterSeconds float64 // one prescaled tick, the loop-restart delay
}

// Info runs the solver and sizing arithmetic for (fout, duty) and returns
// the resulting Plan. It touches no hardware or shared allocator state.
func Info(fout, duty float64) (Plan, error) {
	if fout <= 0 || duty <= 0 || duty >= 1 {
		return Plan{}, fmt.Errorf("%w: fout=%g duty=%g", ErrInvalidArg, fout, duty)
	}

	prescaler, n, err := solve(fout)
	if err != nil {
		return Plan{}, err
	}

	dNHigh := float64(n) * duty
	dNLow := float64(n) - dNHigh
	if (dNHigh < 1 || dNLow < 1) && prescaler > 1 {
		// Too few ticks per period for this duty at the preferred
		// prescaler: fall back to P=1, which splits the same period
		// (whole = P*N) into the most ticks.
		n *= prescaler
		prescaler = 1
		dNHigh = float64(n) * duty
		dNLow = float64(n) - dNHigh
	}
	if dNHigh < 1 || dNLow < 1 {
		return Plan{}, fmt.Errorf("%w: duty %g too extreme for period count %d", ErrSize, duty, n)
	}

	nh := int(math.Round(dNHigh))
	nl := int(math.Round(dNLow))
	if nh < 1 || nl < 1 {
		return Plan{}, fmt.Errorf("%w: rounded high/low count below 1", ErrSize)
	}
	if nh > math.MaxUint32 || nl > math.MaxUint32 {
		return Plan{}, fmt.Errorf("%w: high/low count %d/%d exceeds the 32-bit tick counter", ErrSize, nh, nl)
	}
	n = nh + nl // may grow by one due to rounding; preserves the duty ratio

	onItems := countItems(uint32(nh), uint32(nl))
	memBlocks := 1 + onItems/itemsPerBlock
	if memBlocks > MaxBlocks {
		return Plan{}, fmt.Errorf("%w: %d items need %d blocks, max is %d", ErrSize, onItems, memBlocks, MaxBlocks)
	}

	nrep := (memBlocks * 63) / onItems // floor((mem_blocks*63)/onitems)
	if nrep < 1 {
		nrep = 1
	}
	if nrep == errataReplication {
		// Firmware defect: a replication count of exactly 63 corrupts the
		// last period on some RMT hardware revisions. Drop to 62 instead.
		// See the vendor errata referenced from the original C driver.
		nrep = errataReplicationFix
	}

	return Plan{
		FreqActual:    FAPB / (float64(prescaler) * float64(n)),
		DutyActual:    float64(nh) / float64(n),
		Prescaler:     prescaler,
		N:             n,
		NH:            nh,
		NL:            nl,
		OnItems:       onItems,
		NRep:          nrep,
		NItems:        onItems*nrep + 1,
		MemBlocks:     memBlocks,
		JitterSeconds: float64(prescaler) / FAPB,
	}, nil
}

const (
	errataReplication    = 63
	errataReplicationFix = 62
)

// solve finds P in [1,255] and N>1 such that P*N is the closest integer
// approximation to F_APB/Fout, preferring an exact factorization and, among
// exact options, the largest P.
func solve(fout float64) (prescaler, n int, err error) {
	whole := int64(math.Round(FAPB / fout))
	if whole < 2 {
		return 0, 0, fmt.Errorf("%w: requested frequency %g exceeds what the reference clock can divide", ErrSize, fout)
	}

	for p := int64(MaxPrescaler); p >= 2; p-- {
		trial := whole / p
		if whole%p == 0 && trial > 1 {
			return int(p), int(trial), nil
		}
	}

	// No exact factorization with P in [2,255]: P=1 is always exact since
	// any integer divides itself, trivially satisfying whole = 1*whole.
	return 1, int(whole), nil
}
