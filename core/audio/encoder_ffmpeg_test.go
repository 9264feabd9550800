package audio

import (
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// 本文件的测试用真实的ffmpeg合成输入并执行完整编码，
// 没有安装ffmpeg/ffprobe的环境会跳过。

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed, skipping", bin)
		}
	}
}

// synth renders a lavfi source expression to a PCM wav file.
func synth(t *testing.T, path, expr string) {
	t.Helper()
	out, err := exec.Command("ffmpeg",
		"-f", "lavfi", "-i", expr,
		"-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2",
		"-y", path).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to synthesize %s: %v\n%s", path, err, out)
	}
}

func probeDuration(t *testing.T, path string) float64 {
	t.Helper()
	d, err := NewProber("ffmpeg").GetAudioDuration(path)
	if err != nil {
		t.Fatalf("failed to probe %s: %v", path, err)
	}
	return d
}

func TestEncodeRemovesSilenceAboveThreshold(t *testing.T) {
	requireFFmpeg(t)
	dir := t.TempDir()

	tone := filepath.Join(dir, "tone.wav")
	longGap := filepath.Join(dir, "long_gap.wav")
	synth(t, tone, "sine=frequency=440:duration=1")
	synth(t, longGap, "anullsrc=r=44100:cl=stereo:d=6")

	var reports []int
	enc := NewConcatEncoder("ffmpeg", "192k", DefaultSilencePolicy())
	out := filepath.Join(dir, "out.wav")
	err := enc.Encode(context.Background(), EncodeRequest{
		Inputs:        []string{tone, longGap, tone},
		OutputPath:    out,
		Format:        "wav",
		RemoveSilence: true,
		OnProgress:    func(p int) { reports = append(reports, p) },
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// 6秒的整段静音超过5秒阈值，应被裁掉，只剩两段1秒的音
	dur := probeDuration(t, out)
	if dur < 1.5 || dur > 2.8 {
		t.Errorf("expected ~2s after trimming the 6s silence, got %.2fs", dur)
	}

	// 进度必须单调并到达100
	last := -1
	for _, p := range reports {
		if p <= last {
			t.Fatalf("progress not strictly increasing: %v", reports)
		}
		last = p
	}
	if last != 100 {
		t.Errorf("progress should end at 100, got %d", last)
	}
}

func TestEncodeKeepsSilenceBelowThreshold(t *testing.T) {
	requireFFmpeg(t)
	dir := t.TempDir()

	tone := filepath.Join(dir, "tone.wav")
	shortGap := filepath.Join(dir, "short_gap.wav")
	synth(t, tone, "sine=frequency=440:duration=1")
	synth(t, shortGap, "anullsrc=r=44100:cl=stereo:d=3")

	enc := NewConcatEncoder("ffmpeg", "192k", DefaultSilencePolicy())
	out := filepath.Join(dir, "out.wav")
	err := enc.Encode(context.Background(), EncodeRequest{
		Inputs:        []string{tone, shortGap, tone},
		OutputPath:    out,
		Format:        "wav",
		RemoveSilence: true,
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// 3秒静音低于5秒阈值，必须原样保留
	dur := probeDuration(t, out)
	if dur < 4.5 || dur > 5.5 {
		t.Errorf("expected ~5s with the 3s silence preserved, got %.2fs", dur)
	}
}

func TestEncodePreservesInputOrder(t *testing.T) {
	requireFFmpeg(t)
	dir := t.TempDir()

	tone := filepath.Join(dir, "tone.wav")
	gap := filepath.Join(dir, "gap.wav")
	synth(t, tone, "sine=frequency=440:duration=2")
	synth(t, gap, "anullsrc=r=44100:cl=stereo:d=3")

	enc := NewConcatEncoder("ffmpeg", "192k", DefaultSilencePolicy())

	encode := func(name string, inputs []string) string {
		out := filepath.Join(dir, name)
		err := enc.Encode(context.Background(), EncodeRequest{
			Inputs:     inputs,
			OutputPath: out,
			Format:     "wav",
		})
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		return out
	}

	toneFirst := encode("tone_first.wav", []string{tone, gap})
	gapFirst := encode("gap_first.wav", []string{gap, tone})

	// 音先静音后：静音段应从约2秒处开始；反过来则从0秒开始
	if start := firstSilenceStart(t, toneFirst); start < 1.5 {
		t.Errorf("tone-first output: silence starts at %.2fs, expected ~2s", start)
	}
	if start := firstSilenceStart(t, gapFirst); start > 0.5 {
		t.Errorf("gap-first output: silence starts at %.2fs, expected ~0s", start)
	}
}

// firstSilenceStart runs ffmpeg silencedetect and returns where the first
// silence span begins.
func firstSilenceStart(t *testing.T, path string) float64 {
	t.Helper()
	out, err := exec.Command("ffmpeg",
		"-i", path,
		"-af", "silencedetect=n=-50dB:d=1",
		"-f", "null", "-").CombinedOutput()
	if err != nil {
		t.Fatalf("silencedetect failed for %s: %v\n%s", path, err, out)
	}

	const marker = "silence_start: "
	idx := strings.Index(string(out), marker)
	if idx < 0 {
		t.Fatalf("no silence detected in %s:\n%s", path, out)
	}
	rest := string(out)[idx+len(marker):]
	if end := strings.IndexAny(rest, " \r\n"); end >= 0 {
		rest = rest[:end]
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		t.Fatalf("failed to parse silence_start from %q: %v", rest, err)
	}
	return start
}
