package mining

import "fmt"

// The five typed error kinds of SPEC_FULL.md §7. Each is a small exported
// struct rather than a sentinel value, following the typed-error idiom
// _examples/kaspanet-kaspad leans on throughout its consensus code, since
// the teacher's own mining package returns bare errors or panics at the
// equivalent call sites (a gap, not a pattern worth imitating here).

// ErrNoCoinbaseScript is returned when the wallet collaborator has no
// reserve script available.
type ErrNoCoinbaseScript struct{}

func (e *ErrNoCoinbaseScript) Error() string { return "no coinbase script available from wallet" }

// ErrStaleTip is returned when the chain tip moved during assembly.
type ErrStaleTip struct {
	Expected, Actual string
}

func (e *ErrStaleTip) Error() string {
	return fmt.Sprintf("stale tip: expected %s, chain is now at %s", e.Expected, e.Actual)
}

// ErrInvalidTemplate is returned when a freshly built template fails the
// external validity check.
type ErrInvalidTemplate struct {
	Reason string
}

func (e *ErrInvalidTemplate) Error() string {
	return fmt.Sprintf("invalid block template: %s", e.Reason)
}

// ErrHashMismatch is returned when the precise hash of a candidate nonce
// differs from the block's own recomputed hash, indicating header mutation
// during search.
type ErrHashMismatch struct {
	Searched, Recomputed string
}

func (e *ErrHashMismatch) Error() string {
	return fmt.Sprintf("proof-of-work hash mismatch: searcher found %s, block reports %s", e.Searched, e.Recomputed)
}

// ErrInterrupted is the sentinel cancellation error; it is the one kind of
// the five that is compared with == rather than errors.As, and is never
// logged as an error.
var ErrInterrupted = &interruptedErr{}

type interruptedErr struct{}

func (e *interruptedErr) Error() string { return "interrupted" }
