package erchmm

import (
	"gonum.org/v1/gonum/floats"
)

// cascade accumulates non-negative values into a fixed number of cells.
// Each cell has one slot per level.  Values are added at level 0; when the
// running total in a slot is at least maxphi times the incoming value, the
// total is carried to the next level and the slot restarts from the
// incoming value.  The last level absorbs everything it is given.  Small
// values therefore accumulate among values of similar size before they
// meet the large totals.
type cascade struct {
	maxphi float64

	// slot[level][cell]
	slot [][]float64
}

func newCascade(nlevel, ncell int, maxphi float64) *cascade {
	return &cascade{
		maxphi: maxphi,
		slot:   makeFloatArray(nlevel, ncell),
	}
}

// reset zeroes every slot.
func (c *cascade) reset() {
	for _, s := range c.slot {
		zero(s)
	}
}

// add adds value to the given cell.
func (c *cascade) add(cell int, value float64) {

	if value == 0 {
		return
	}

	last := len(c.slot) - 1
	for lev := 0; ; lev++ {
		cur := c.slot[lev][cell]
		if lev == last || cur/value < c.maxphi {
			c.slot[lev][cell] = cur + value
			return
		}

		// Carry the old total upward and restart this slot.
		c.slot[lev][cell] = value
		value = cur
	}
}

// total folds levels 1 and higher into level 0, in increasing level
// order, and returns level 0.  The returned slice is owned by c and is
// overwritten by the next reset.
func (c *cascade) total() []float64 {

	s0 := c.slot[0]
	for _, s := range c.slot[1:] {
		floats.Add(s0, s)
	}

	return s0
}
