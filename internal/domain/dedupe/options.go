package dedupe

// Option applies a configuration option to the Deduper.
type Option func(*lruDeduper)

// WithMaxSize sets how many keys are remembered. Values below one fall back
// to DefaultMaxSize.
func WithMaxSize(maxSize int) Option {
	return func(d *lruDeduper) {
		if maxSize > 0 {
			d.maxSize = maxSize
		}
	}
}
