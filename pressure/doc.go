// Package pressure watches process memory and sheds cached state when usage
// crosses a threshold.
//
// A Controller samples usage every Interval and derives a Severity from the
// usage/threshold ratio:
//
//	ratio <= 1.0        none
//	1.0 < ratio <= 1.2  low       expire cache entries, trim pools
//	1.2 < ratio <= 1.5  medium    + shrink caches, clear history buffers
//	ratio > 1.5         critical  + clear caches and pools, reset breakers
//
// Cleanup targets come from an Index, normally the lifecycle.Manager every
// resource registers with. Each entry's Value is checked for the Expirer,
// Trimmer, Shrinker, HistoryClearer, Clearer and Resetter interfaces, so a
// resource opts into a tier by implementing the matching method. A step that
// panics is logged and recorded on the Event; the rest still run.
//
//	c, err := pressure.New(pressure.Config{
//	    ThresholdMB: 500,
//	    Sampler:     pressure.NewProcSampler(),
//	    Index:       manager,
//	    Events:      bus,
//	})
//	if err != nil {
//	    return err
//	}
//	_ = c.Start(ctx)
//	defer c.Stop()
package pressure
