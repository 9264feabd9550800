package audio

import "fmt"

// MetadataError indicates a file could not be probed (corrupt, unsupported
// codec, zero-length). Returned by the upload-time metadata probe.
type MetadataError struct {
	Path string
	Err  error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("cannot read audio metadata from %s: %v", e.Path, e.Err)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// EncodingError indicates the merge encode failed: an input could not be
// decoded, the output path was not writable, or the requested format is
// unsupported. No partial output file is left on disk.
type EncodingError struct {
	Stage string // "prepare", "filter", "concat"
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding failed during %s: %v", e.Stage, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
