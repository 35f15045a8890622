package sensors

// Batch is the result of one decode cycle: a single decoded reading
// summarizing the raw entries drained from the sensor's internal queue,
// plus the metadata describing that cycle.
type Batch struct {
	XG, YG, ZG float64 // decoded reading, g
	Valid      bool    // false when the sensor reported an error for this cycle

	ItemsDrained  int     // raw queue entries consumed this cycle
	FifoRemaining int     // entries still queued inside the sensor after the drain
	RateHz        float64 // nominal output data rate currently configured
	SpanUS        float64 // wall-clock span the drained items notionally cover
}

// Decoder converts one hardware transaction into a decoded reading. The
// acquisition loop pulls one Batch per cycle; everything below this
// interface (register maps, FIFO layout, framing) stays inside the
// concrete sources.
type Decoder interface {
	ReadBatch() (Batch, error)

	// ConfiguredRate and Watermark are immutable after initialization and
	// are exposed for diagnostics and for deriving the loop period.
	ConfiguredRate() float64
	Watermark() int
}
