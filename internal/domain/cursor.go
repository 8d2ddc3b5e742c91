package domain

// SyncCursor is the per-symbol resume point for the synchronizer. Mutated
// only by the synchronizer; the watermark only ever moves to the end of a
// fully committed window, so a killed run resumes without skipping fills.
type SyncCursor struct {
	Symbol string
	// WatermarkMs is the end of the last fully processed window (unix ms).
	WatermarkMs int64
	// LastFillID tie-breaks fills that share the watermark timestamp.
	LastFillID string
	// WindowStartMs/WindowEndMs record the in-flight window bounds; equal to
	// zero when no window is in flight.
	WindowStartMs int64
	WindowEndMs   int64
	UpdatedAt     int64 // unix ms
}
