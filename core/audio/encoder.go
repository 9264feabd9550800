package audio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"MixMerge/logger"
)

// ProgressFunc receives merge progress as an integer percentage, 0-100.
// The encoder guarantees calls are monotonically non-decreasing.
type ProgressFunc func(percent int)

// EncodeRequest describes one merge encode.
type EncodeRequest struct {
	Inputs        []string // ordered source file paths
	OutputPath    string
	Format        string // "mp3" or "wav"
	RemoveSilence bool
	OnProgress    ProgressFunc
}

// ConcatEncoder decodes an ordered list of inputs, optionally trims long
// silences, concatenates them in input order and encodes to the requested
// format.
//
// The silence filter runs per source file before concatenation, so a silence
// span wholly inside one input is always detected and a span never straddles
// a file boundary.
type ConcatEncoder struct {
	ffmpegPath string
	bitrate    string
	prober     *Prober
	silence    SilencePolicy
}

// NewConcatEncoder creates a ConcatEncoder.
func NewConcatEncoder(ffmpegPath, bitrate string, policy SilencePolicy) *ConcatEncoder {
	return &ConcatEncoder{
		ffmpegPath: ffmpegPath,
		bitrate:    bitrate,
		prober:     NewProber(ffmpegPath),
		silence:    policy,
	}
}

// prepShare is the portion of total progress spent decoding/filtering the
// individual inputs; the remainder tracks the final concat encode.
const prepShare = 50

// Encode runs the merge. On any failure the partial output file is removed
// and an *EncodingError is returned.
func (e *ConcatEncoder) Encode(ctx context.Context, req EncodeRequest) error {
	if len(req.Inputs) == 0 {
		return &EncodingError{Stage: "prepare", Err: fmt.Errorf("no input files")}
	}
	if !validOutputFormat(req.Format) {
		return &EncodingError{Stage: "prepare", Err: fmt.Errorf("unsupported output format %q", req.Format)}
	}

	report := monotonic(req.OnProgress)

	tempDir, err := os.MkdirTemp("", "mixmerge_")
	if err != nil {
		return &EncodingError{Stage: "prepare", Err: fmt.Errorf("failed to create temp directory: %w", err)}
	}
	defer os.RemoveAll(tempDir)

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return &EncodingError{Stage: "prepare", Err: fmt.Errorf("failed to create output directory: %w", err)}
	}

	// 阶段一：逐个解码输入，按需做静音裁剪，统一为 PCM 中间文件
	intermediates := make([]string, 0, len(req.Inputs))
	for i, input := range req.Inputs {
		part := filepath.Join(tempDir, fmt.Sprintf("part_%03d.wav", i))
		if err := e.prepareInput(ctx, input, part, req.RemoveSilence); err != nil {
			cleanupOutput(req.OutputPath)
			return err
		}
		intermediates = append(intermediates, part)
		report(prepShare * (i + 1) / len(req.Inputs))
	}

	// 阶段二：concat demuxer 拼接并编码为目标格式
	total := 0.0
	for _, part := range intermediates {
		meta, err := e.prober.Probe(part)
		if err != nil {
			// 整段静音被裁掉后中间文件可能近乎为空，不视为错误
			logger.Warn("无法探测中间文件时长，进度估算可能不准",
				logger.String("part", part),
				logger.ErrorField(err))
			continue
		}
		total += meta.Duration
	}

	listPath := filepath.Join(tempDir, "concat_list.txt")
	if err := writeConcatList(listPath, intermediates); err != nil {
		cleanupOutput(req.OutputPath)
		return &EncodingError{Stage: "concat", Err: err}
	}

	args := []string{
		"-progress", "pipe:1",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
	}
	args = append(args, outputArgs(req.Format, e.bitrate)...)
	args = append(args, "-y", req.OutputPath)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanupOutput(req.OutputPath)
		return &EncodingError{Stage: "concat", Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		cleanupOutput(req.OutputPath)
		return &EncodingError{Stage: "concat", Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}

	scanProgress(stdout, total, func(pct float64) {
		report(prepShare + int(pct)*(100-prepShare)/100)
	})

	if err := cmd.Wait(); err != nil {
		cleanupOutput(req.OutputPath)
		return &EncodingError{Stage: "concat", Err: fmt.Errorf("ffmpeg execution failed: %w\nFFmpeg Error: %s", err, stderr.String())}
	}

	report(100)
	logger.Info("合并编码完成",
		logger.String("output", req.OutputPath),
		logger.Int("inputs", len(req.Inputs)),
		logger.Bool("removeSilence", req.RemoveSilence),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// prepareInput decodes one source file to a PCM intermediate, applying the
// silence filter when requested.
func (e *ConcatEncoder) prepareInput(ctx context.Context, input, output string, removeSilence bool) error {
	args := []string{"-i", input}
	if removeSilence {
		args = append(args, "-af", e.silence.FilterExpr())
	}
	args = append(args,
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-ac", "2",
		"-y", output,
	)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stage := "prepare"
		if removeSilence {
			stage = "filter"
		}
		return &EncodingError{Stage: stage, Err: fmt.Errorf("failed to decode %s: %w\nFFmpeg Error: %s", input, err, stderr.String())}
	}
	return nil
}

// outputArgs returns the codec arguments for the target format.
func outputArgs(format, bitrate string) []string {
	switch format {
	case "wav":
		return []string{"-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2"}
	default: // mp3
		return []string{"-acodec", "libmp3lame", "-ar", "44100", "-ac", "2", "-b:a", bitrate}
	}
}

func validOutputFormat(format string) bool {
	return format == "mp3" || format == "wav"
}

// writeConcatList writes an ffmpeg concat demuxer list file. Order of the
// entries defines concatenation order.
func writeConcatList(listPath string, files []string) error {
	var sb strings.Builder
	for _, f := range files {
		absPath, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("failed to resolve path %s: %w", f, err)
		}
		safePath := strings.ReplaceAll(absPath, "'", "'\\''")
		sb.WriteString(fmt.Sprintf("file '%s'\n", safePath))
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	return nil
}

// scanProgress parses ffmpeg -progress pipe:1 output and reports percent of
// totalSeconds. Reported values are clamped to [0,100].
func scanProgress(r io.Reader, totalSeconds float64, report func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "out_time_ms=") {
			continue
		}
		var ms int64
		if _, err := fmt.Sscanf(line, "out_time_ms=%d", &ms); err != nil {
			continue
		}
		if totalSeconds <= 0 {
			continue
		}
		pct := float64(ms) / 1000000.0 / totalSeconds * 100
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
		report(pct)
	}
}

// monotonic wraps a ProgressFunc so observed values never decrease.
func monotonic(fn ProgressFunc) ProgressFunc {
	last := -1
	return func(percent int) {
		if fn == nil {
			return
		}
		if percent > 100 {
			percent = 100
		}
		if percent <= last {
			return
		}
		last = percent
		fn(percent)
	}
}

func cleanupOutput(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("清理失败的输出文件出错",
			logger.String("path", path),
			logger.ErrorField(err))
	}
}
