package model

// Subscription is a named set of reads refreshed every ClockCount ticks.
type Subscription struct {
	Name       string     `json:"name"`
	Calls      []CallSpec `json:"functions"`
	ClockCount int        `json:"clock_count"`
	NextClock  uint64     `json:"next_clock"`
}

// Due reports whether the subscription fires at the given clock value.
func (s Subscription) Due(clock uint64) bool {
	return s.NextClock <= clock
}
