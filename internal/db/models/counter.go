package models

import "time"

// CounterUpdates is the counter bumped by every mutation that changes
// graph-relevant state. The graph refresher uses it as a checkpoint.
const CounterUpdates = "updates"

// Counter represents a named monotonic counter
type Counter struct {
	Name         string
	Count        int64
	LastModified time.Time
}
