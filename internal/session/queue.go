package session

import (
	"context"
	"errors"

	"github.com/valpere/epubtran/internal"
)

// ExtractionQueue is the persisted remainder of an ordered unit list.
// It is always replaced wholesale.
type ExtractionQueue struct {
	RemainingUnits    []internal.Unit `json:"remaining_units"`
	TotalUnitsAtStart int             `json:"total_units_at_start"`
}

func NewQueue(units []internal.Unit) *ExtractionQueue {
	return &ExtractionQueue{
		RemainingUnits:    append([]internal.Unit(nil), units...),
		TotalUnitsAtStart: len(units),
	}
}

// Done reports whether nothing is left to process.
func (q *ExtractionQueue) Done() bool {
	return len(q.RemainingUnits) == 0
}

// Remainder returns the suffix of units starting at the first one, by
// position, that processed does not report. Later processed units are kept:
// processing is strictly ordered, so anything after the gap is redone.
func Remainder(units []internal.Unit, processed func(index int) bool) []internal.Unit {
	for i, u := range units {
		if !processed(u.Index) {
			return append([]internal.Unit(nil), units[i:]...)
		}
	}
	return nil
}

// RunQueue calls fn for each remaining unit in order. On an error or
// cancellation the unprocessed suffix, starting with the unit that failed,
// is stored in q and passed to save. When every unit succeeds q is emptied
// and saved once more.
func RunQueue(ctx context.Context, q *ExtractionQueue, fn func(context.Context, internal.Unit) error, save func(*ExtractionQueue) error) error {
	for i, u := range q.RemainingUnits {
		err := ctx.Err()
		if err == nil {
			err = fn(ctx, u)
		}
		if err != nil {
			q.RemainingUnits = append([]internal.Unit(nil), q.RemainingUnits[i:]...)
			if save != nil {
				if serr := save(q); serr != nil {
					return errors.Join(err, serr)
				}
			}
			return err
		}
	}
	q.RemainingUnits = nil
	if save != nil {
		return save(q)
	}
	return nil
}
