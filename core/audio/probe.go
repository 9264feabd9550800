package audio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata holds the decodable properties of an audio file.
type Metadata struct {
	Duration   float64 // seconds
	CodecName  string
	FormatName string
	BitRate    int64 // bits per second, 0 if unknown
}

// Prober extracts audio metadata using ffprobe.
type Prober struct {
	ffmpegPath string
}

// NewProber creates a Prober. ffprobe is resolved from the configured
// ffmpeg path, same directory and naming convention.
func NewProber(ffmpegPath string) *Prober {
	return &Prober{ffmpegPath: ffmpegPath}
}

func (p *Prober) ffprobePath() string {
	return strings.Replace(p.ffmpegPath, "ffmpeg", "ffprobe", 1)
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// Probe reads duration and basic properties of an audio file.
// Read-only; returns *MetadataError if the file cannot be decoded.
func (p *Prober) Probe(inputFile string) (*Metadata, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-show_entries", "format=duration,format_name,bit_rate",
		"-of", "json",
		inputFile,
	}

	cmd := exec.Command(p.ffprobePath(), args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &MetadataError{Path: inputFile, Err: fmt.Errorf("ffprobe execution failed: %w\nFFprobe Error: %s", err, stderr.String())}
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return nil, &MetadataError{Path: inputFile, Err: fmt.Errorf("failed to unmarshal ffprobe output: %w", err)}
	}

	if len(probeData.Streams) == 0 {
		return nil, &MetadataError{Path: inputFile, Err: fmt.Errorf("no audio streams found in file")}
	}
	if probeData.Format.Duration == "" {
		return nil, &MetadataError{Path: inputFile, Err: fmt.Errorf("duration not found in ffprobe output")}
	}

	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return nil, &MetadataError{Path: inputFile, Err: fmt.Errorf("failed to parse duration %q: %w", probeData.Format.Duration, err)}
	}

	meta := &Metadata{
		Duration:   duration,
		CodecName:  probeData.Streams[0].CodecName,
		FormatName: probeData.Format.FormatName,
	}
	if probeData.Format.BitRate != "" {
		if br, err := strconv.ParseInt(probeData.Format.BitRate, 10, 64); err == nil {
			meta.BitRate = br
		}
	}
	return meta, nil
}

// GetAudioDuration returns the duration of an audio file in seconds.
func (p *Prober) GetAudioDuration(inputFile string) (float64, error) {
	meta, err := p.Probe(inputFile)
	if err != nil {
		return 0, err
	}
	return meta.Duration, nil
}
