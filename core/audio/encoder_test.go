package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutputArgs(t *testing.T) {
	t.Run("mp3 carries bitrate", func(t *testing.T) {
		args := strings.Join(outputArgs("mp3", "192k"), " ")
		if !strings.Contains(args, "libmp3lame") {
			t.Errorf("mp3 args missing libmp3lame: %s", args)
		}
		if !strings.Contains(args, "-b:a 192k") {
			t.Errorf("mp3 args missing bitrate: %s", args)
		}
	})

	t.Run("wav is pcm without bitrate", func(t *testing.T) {
		args := strings.Join(outputArgs("wav", "192k"), " ")
		if !strings.Contains(args, "pcm_s16le") {
			t.Errorf("wav args missing pcm codec: %s", args)
		}
		if strings.Contains(args, "-b:a") {
			t.Errorf("wav args should not carry a bitrate: %s", args)
		}
	})
}

func TestValidOutputFormat(t *testing.T) {
	for _, format := range []string{"mp3", "wav"} {
		if !validOutputFormat(format) {
			t.Errorf("expected %q to be valid", format)
		}
	}
	for _, format := range []string{"", "flac", "MP3", "ogg"} {
		if validOutputFormat(format) {
			t.Errorf("expected %q to be invalid", format)
		}
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "concat_list.txt")

	files := []string{
		filepath.Join(dir, "part_000.wav"),
		filepath.Join(dir, "part_001.wav"),
	}
	if err := writeConcatList(listPath, files); err != nil {
		t.Fatalf("writeConcatList failed: %v", err)
	}

	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("failed to read list file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d: %q", len(lines), string(data))
	}

	// 顺序必须与输入一致
	if !strings.Contains(lines[0], "part_000.wav") || !strings.Contains(lines[1], "part_001.wav") {
		t.Errorf("concat list out of order: %q", lines)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "file '") || !strings.HasSuffix(line, "'") {
			t.Errorf("malformed concat entry: %q", line)
		}
	}
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "concat_list.txt")

	if err := writeConcatList(listPath, []string{filepath.Join(dir, "it's here.wav")}); err != nil {
		t.Fatalf("writeConcatList failed: %v", err)
	}

	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("failed to read list file: %v", err)
	}
	if !strings.Contains(string(data), `it'\''s here.wav`) {
		t.Errorf("single quote not escaped for ffmpeg: %q", string(data))
	}
}

func TestScanProgress(t *testing.T) {
	t.Run("reports percentages from out_time_ms", func(t *testing.T) {
		input := strings.NewReader(
			"frame=1\nout_time_ms=5000000\nprogress=continue\n" +
				"out_time_ms=10000000\nprogress=end\n")

		var got []float64
		scanProgress(input, 20, func(pct float64) { got = append(got, pct) })

		if len(got) != 2 {
			t.Fatalf("expected 2 reports, got %d: %v", len(got), got)
		}
		if got[0] != 25 || got[1] != 50 {
			t.Errorf("expected [25 50], got %v", got)
		}
	})

	t.Run("clamps to 100", func(t *testing.T) {
		input := strings.NewReader("out_time_ms=99000000\n")
		var got []float64
		scanProgress(input, 10, func(pct float64) { got = append(got, pct) })
		if len(got) != 1 || got[0] != 100 {
			t.Errorf("expected clamp to 100, got %v", got)
		}
	})

	t.Run("skips reports when total unknown", func(t *testing.T) {
		input := strings.NewReader("out_time_ms=5000000\n")
		called := false
		scanProgress(input, 0, func(float64) { called = true })
		if called {
			t.Error("should not report when total duration is unknown")
		}
	})

	t.Run("ignores malformed lines", func(t *testing.T) {
		input := strings.NewReader("out_time_ms=abc\nspeed=2x\nout_time_ms=1000000\n")
		var got []float64
		scanProgress(input, 10, func(pct float64) { got = append(got, pct) })
		if len(got) != 1 {
			t.Errorf("expected 1 report, got %v", got)
		}
	})
}

func TestMonotonic(t *testing.T) {
	var got []int
	report := monotonic(func(p int) { got = append(got, p) })

	for _, p := range []int{0, 10, 5, 10, 30, 25, 100, 100, 120} {
		report(p)
	}

	want := []int{0, 10, 30, 100}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMonotonicNilCallback(t *testing.T) {
	report := monotonic(nil)
	// 不应panic
	report(50)
}

func TestEncodeRejectsBadRequests(t *testing.T) {
	enc := NewConcatEncoder("ffmpeg", "192k", DefaultSilencePolicy())

	t.Run("no inputs", func(t *testing.T) {
		err := enc.Encode(context.Background(), EncodeRequest{Format: "mp3", OutputPath: "out.mp3"})
		var encErr *EncodingError
		if !asEncodingError(err, &encErr) || encErr.Stage != "prepare" {
			t.Errorf("expected prepare-stage EncodingError, got %v", err)
		}
	})

	t.Run("bad format", func(t *testing.T) {
		err := enc.Encode(context.Background(), EncodeRequest{
			Inputs:     []string{"a.mp3", "b.mp3"},
			OutputPath: "out.ogg",
			Format:     "ogg",
		})
		var encErr *EncodingError
		if !asEncodingError(err, &encErr) || encErr.Stage != "prepare" {
			t.Errorf("expected prepare-stage EncodingError, got %v", err)
		}
	})
}

func asEncodingError(err error, target **EncodingError) bool {
	e, ok := err.(*EncodingError)
	if ok {
		*target = e
	}
	return ok
}
