package syncer

// window is one fixed-width slice of the backfill interval, [StartMs, EndMs].
type window struct {
	StartMs int64
	EndMs   int64
}

// planWindows splits [startMs, endMs] into consecutive windows of at most
// widthMs. Boundary fills may appear in two adjacent windows; ledger dedup
// absorbs that.
func planWindows(startMs, endMs, widthMs int64) []window {
	if startMs >= endMs || widthMs <= 0 {
		return nil
	}

	var windows []window
	for cur := startMs; cur < endMs; cur += widthMs {
		end := cur + widthMs
		if end > endMs {
			end = endMs
		}
		windows = append(windows, window{StartMs: cur, EndMs: end})
	}
	return windows
}
