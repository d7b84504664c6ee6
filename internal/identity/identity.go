// Package identity computes stable content identities for media files.
//
// The identity is a sha256 over the file size, the container duration in
// milliseconds, and a bounded sample of the decoded audio stream. Hashing
// the demuxed audio instead of raw container bytes keeps the identity
// stable across remuxes and metadata tag edits, while the duration and
// size still catch trims and re-encodes.
package identity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"reel/internal/media/ffprobe"
	"reel/internal/services"
)

// commandContext builds the sampler process; tests substitute it.
var commandContext = exec.CommandContext

// sampleSeconds bounds how much decoded audio contributes to the identity.
const sampleSeconds = 120

// Prober reports the container duration of a media file.
type Prober interface {
	DurationMillis(ctx context.Context, path string) (int64, error)
}

// Sampler extracts a bounded, container-independent audio sample.
type Sampler interface {
	SampleAudio(ctx context.Context, path string) ([]byte, error)
}

// FFprobeProber probes durations with ffprobe.
type FFprobeProber struct {
	Binary string
}

// DurationMillis runs ffprobe and returns the container duration.
func (p FFprobeProber) DurationMillis(ctx context.Context, path string) (int64, error) {
	result, err := ffprobe.Inspect(ctx, p.Binary, path)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "fingerprint", "probe duration",
			"ffprobe failed", err)
	}
	millis := result.DurationMillis()
	if millis <= 0 {
		return 0, services.Wrap(services.ErrExternalTool, "fingerprint", "probe duration",
			"container reports no duration", nil)
	}
	return millis, nil
}

// FFmpegSampler demuxes the first audio stream to raw mono PCM. Decoding
// normalizes away container framing, so identical audio in different
// containers yields identical samples.
type FFmpegSampler struct {
	Binary string
}

// SampleAudio returns up to sampleSeconds of decoded audio.
func (s FFmpegSampler) SampleAudio(ctx context.Context, path string) ([]byte, error) {
	cmd := commandContext(ctx, s.Binary,
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-map", "0:a:0",
		"-vn",
		"-t", fmt.Sprintf("%d", sampleSeconds),
		"-f", "s16le",
		"-ac", "1",
		"-ar", "16000",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, services.Wrap(services.ErrExternalTool, "fingerprint", "sample audio",
			detail, err)
	}
	if stdout.Len() == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "fingerprint", "sample audio",
			"no audio stream data", nil)
	}
	return stdout.Bytes(), nil
}

// Compute derives the media identity for the file at path.
func Compute(ctx context.Context, path string, prober Prober, sampler Sampler) (string, error) {
	if prober == nil || sampler == nil {
		return "", errors.New("prober and sampler are required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrInputNotFound, "fingerprint", "compute identity",
				"media file missing", err)
		}
		return "", fmt.Errorf("stat media: %w", err)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrInputNotFound, "fingerprint", "compute identity",
			"media file is empty", nil)
	}

	millis, err := prober.DurationMillis(ctx, path)
	if err != nil {
		return "", err
	}

	sample, err := sampler.SampleAudio(ctx, path)
	if err != nil {
		return "", err
	}
	sampleDigest := sha256.Sum256(sample)

	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s", info.Size(), millis, hex.EncodeToString(sampleDigest[:]))
	return hex.EncodeToString(h.Sum(nil)), nil
}
