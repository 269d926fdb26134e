package readiness

import "context"

// StaticSource applies fixed inputs once. It stands in for platforms where the
// inputs are configured rather than observed.
type StaticSource struct {
	State State
	// KeepAdapter leaves the adapter input untouched, for use next to a live adapter source.
	KeepAdapter bool
}

func (s StaticSource) Run(ctx context.Context, agg *Aggregator) error {
	agg.SetPermissionsGranted(s.State.PermissionsGranted)
	agg.SetLocationEnabled(s.State.LocationEnabled)
	if !s.KeepAdapter {
		agg.SetAdapterPowered(s.State.AdapterPowered)
	}
	return nil
}
