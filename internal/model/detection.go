package model

import (
	"encoding/json"
	"time"
)

// DefaultSource is stored when neither the record nor its batch names a source.
const DefaultSource = "unknown"

// TimestampLayout is the wire format of Detection.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.999999Z07:00"

// BBox holds the x1, y1, x2, y2 corners of a bounding box. Each corner may be nil.
type BBox [4]*float64

// NewBBox builds a fully populated bounding box.
func NewBBox(x1, y1, x2, y2 float64) BBox {
	return BBox{&x1, &y1, &x2, &y2}
}

// Detection represents one classified bounding-box observation from a video frame.
type Detection struct {
	ID         int64     `json:"id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	BBox       BBox      `json:"bbox"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// MarshalJSON renders the timestamp in UTC with at most microsecond precision.
func (d Detection) MarshalJSON() ([]byte, error) {
	type Alias Detection
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		Alias
	}{
		Timestamp: d.Timestamp.UTC().Format(TimestampLayout),
		Alias:     (Alias)(d),
	})
}
