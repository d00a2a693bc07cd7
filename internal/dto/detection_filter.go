// DetectionFilters describe user-provided filters to narrow the detection list.
package dto

import "time"

// DefaultLimit caps a detection listing when the caller gives no limit.
const DefaultLimit = 200

type DetectionFilters struct {
	Label  string
	Source string
	Start  time.Time // inclusive, zero means unbounded
	End    time.Time // inclusive, zero means unbounded
	Limit  int       // zero yields no rows
}
