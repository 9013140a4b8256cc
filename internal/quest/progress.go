package quest

import "fmt"

// ApplyProgress adds a non-negative delta to an attempt's counter,
// clamping at target, and reports whether the target was reached. A
// negative delta is a programming error upstream (strategies never
// produce one) and aborts the operation before anything is written.
func ApplyProgress(current, target, delta int) (int, bool, error) {
	if delta < 0 {
		return 0, false, fmt.Errorf("negative progress delta %d", delta)
	}
	next := current + delta
	if next > target {
		next = target
	}
	return next, next >= target, nil
}
