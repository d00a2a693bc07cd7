package model

// InsertResult is the outcome of one element of a batch.
type InsertResult struct {
	Index int   // position in the submitted batch
	ID    int64 // assigned id, zero unless the row was committed
	Err   error
}

// OK reports whether the element was committed.
func (r InsertResult) OK() bool {
	return r.Err == nil
}

// Reason returns the failure message, or "" for committed elements.
func (r InsertResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// BatchReport collects per-element results of a batch ingestion.
type BatchReport struct {
	Source  string
	Results []InsertResult
}

// Inserted counts committed elements.
func (b BatchReport) Inserted() int {
	n := 0
	for _, r := range b.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// Failed returns the elements that were skipped.
func (b BatchReport) Failed() []InsertResult {
	var failed []InsertResult
	for _, r := range b.Results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}
