// Package compress implements the compression stage of the credential
// pipeline.
//
// The credential specification mandates zlib; "none", "adaptive", zstd and
// lz4 are non-standard extensions that other implementations may not
// understand. The format is always detectable from the byte stream itself:
// raw pipeline payloads begin with a COSE tag byte (0xD0 or 0xD2), which
// never collides with the zlib, zstd or lz4 frame markers.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Mode identifies a compression algorithm.
type Mode int

const (
	// ModeZlib is the specification-mandated algorithm and the only one
	// every implementation must support.
	ModeZlib Mode = iota

	// ModeNone stores the payload uncompressed.
	ModeNone

	// ModeAdaptive compresses with zlib and keeps whichever of the
	// compressed and raw forms is smaller.
	ModeAdaptive

	// ModeZstd compresses with zstd. Non-standard.
	ModeZstd

	// ModeLZ4 compresses with the lz4 frame format. Non-standard.
	ModeLZ4
)

func (m Mode) String() string {
	switch m {
	case ModeZlib:
		return "zlib"
	case ModeNone:
		return "none"
	case ModeAdaptive:
		return "adaptive"
	case ModeZstd:
		return "zstd"
	case ModeLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// DefaultLimit is the default ceiling on decompressed output.
const DefaultLimit = 65536

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var lz4Magic = []byte{0x04, 0x22, 0x4d, 0x18}

// LimitExceededError reports decompressed output exceeding the configured
// ceiling.
type LimitExceededError struct {
	Limit int64
}

func (e LimitExceededError) Error() string {
	return fmt.Sprintf("compress: decompressed size exceeds limit of %d bytes", e.Limit)
}

// UnexpectedFormatError is returned in strict mode when the detected format
// is not the mandated one.
type UnexpectedFormatError struct {
	Detected Mode
}

func (e UnexpectedFormatError) Error() string {
	return fmt.Sprintf("compress: strict mode rejects %s input", e.Detected)
}

// zstdEncoder is reused across calls; it is safe for concurrent use via
// EncodeAll. Decoders are per-call so the output limit applies while
// streaming.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
}

// Compress applies the given mode to data. For ModeAdaptive the returned
// mode reports which representation was actually kept.
func Compress(data []byte, mode Mode) ([]byte, Mode, error) {
	switch mode {
	case ModeNone:
		return data, ModeNone, nil

	case ModeZlib:
		out, err := compressZlib(data)
		if err != nil {
			return nil, 0, err
		}
		return out, ModeZlib, nil

	case ModeAdaptive:
		out, err := compressZlib(data)
		if err != nil {
			return nil, 0, err
		}
		if len(out) >= len(data) {
			return data, ModeNone, nil
		}
		return out, ModeZlib, nil

	case ModeZstd:
		return zstdEncoder.EncodeAll(data, nil), ModeZstd, nil

	case ModeLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, 0, fmt.Errorf("compress: lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, 0, fmt.Errorf("compress: lz4 close: %w", err)
		}
		return buf.Bytes(), ModeLZ4, nil

	default:
		return nil, 0, fmt.Errorf("compress: unsupported mode %d", int(mode))
	}
}

func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compress: zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

// Detect identifies the compression format from the leading bytes of data.
func Detect(data []byte) Mode {
	if len(data) >= 4 && bytes.Equal(data[:4], zstdMagic) {
		return ModeZstd
	}
	if len(data) >= 4 && bytes.Equal(data[:4], lz4Magic) {
		return ModeLZ4
	}
	if len(data) >= 2 {
		// RFC 1950: CM 8, any window size, header checksum divisible
		// by 31.
		cmf, flg := data[0], data[1]
		if cmf&0x0f == 8 && (uint(cmf)<<8|uint(flg))%31 == 0 {
			return ModeZlib
		}
	}
	return ModeNone
}

// Decompress auto-detects the format of data and inflates it, bounding the
// output at limit bytes (fail closed). In strict mode only the mandated
// zlib format is accepted. The detected mode is returned alongside the
// output so callers can surface a non-standard-compression warning.
func Decompress(data []byte, limit int64, strict bool) ([]byte, Mode, error) {
	mode := Detect(data)
	if strict && mode != ModeZlib {
		return nil, mode, UnexpectedFormatError{Detected: mode}
	}

	switch mode {
	case ModeNone:
		if int64(len(data)) > limit {
			return nil, mode, LimitExceededError{Limit: limit}
		}
		return data, mode, nil

	case ModeZlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, mode, fmt.Errorf("compress: zlib: %w", err)
		}
		defer r.Close()
		out, err := readLimited(r, limit)
		if err != nil {
			return nil, mode, err
		}
		return out, mode, nil

	case ModeZstd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, mode, fmt.Errorf("compress: zstd: %w", err)
		}
		defer r.Close()
		out, err := readLimited(r.IOReadCloser(), limit)
		if err != nil {
			return nil, mode, err
		}
		return out, mode, nil

	case ModeLZ4:
		out, err := readLimited(lz4.NewReader(bytes.NewReader(data)), limit)
		if err != nil {
			return nil, mode, err
		}
		return out, mode, nil

	default:
		return nil, mode, fmt.Errorf("compress: unsupported mode %d", int(mode))
	}
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("compress: decompress: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, LimitExceededError{Limit: limit}
	}
	return out, nil
}
