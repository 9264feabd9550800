package audio

import "fmt"

// Silence trimming policy: only spans strictly longer than GapSeconds of
// audio below NoiseThreshold are collapsed. Shorter pauses stay untouched.
// The threshold is a small non-zero amplitude so encoder noise still counts
// as silence.
type SilencePolicy struct {
	GapSeconds     int    // minimum removable span, default 5
	NoiseThreshold string // ffmpeg amplitude threshold, e.g. "-50dB"
}

// DefaultSilencePolicy 返回默认静音裁剪策略
func DefaultSilencePolicy() SilencePolicy {
	return SilencePolicy{GapSeconds: 5, NoiseThreshold: "-50dB"}
}

// FilterExpr returns the ffmpeg silenceremove expression for this policy.
// stop_periods=-1 removes every qualifying span, wherever it occurs in the
// file, while keeping everything else in order.
func (sp SilencePolicy) FilterExpr() string {
	gap := sp.GapSeconds
	if gap <= 0 {
		gap = 5
	}
	noise := sp.NoiseThreshold
	if noise == "" {
		noise = "-50dB"
	}
	return fmt.Sprintf("silenceremove=stop_periods=-1:stop_duration=%d:stop_threshold=%s", gap, noise)
}
