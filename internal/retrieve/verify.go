package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"aerial/internal/media"
)

// Verifier inspects an in-flight or completed transfer to confirm it is the
// kind of content the series expects. A definitive mismatch returns an
// error; (false, nil) means the file could not be judged yet, typically
// because too little of it has arrived.
type Verifier interface {
	Verify(ctx context.Context, path string, quality media.Quality) (bool, error)
}

// FFProbeVerifier validates transfers by probing them with ffprobe.
type FFProbeVerifier struct {
	// Binary overrides the ffprobe executable name.
	Binary string
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Verify probes the file. Containers ffprobe cannot parse yet are reported
// inconclusive; a parseable file without a video stream, or with a frame
// size below the series quality tier, fails outright.
func (v *FFProbeVerifier) Verify(ctx context.Context, path string, quality media.Quality) (bool, error) {
	binary := strings.TrimSpace(v.Binary)
	if binary == "" {
		binary = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Partial files often cannot be probed; inconclusive, not fatal.
		return false, nil
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return false, nil
	}

	var video *probeStream
	for i := range result.Streams {
		if strings.EqualFold(result.Streams[i].CodecType, "video") {
			video = &result.Streams[i]
			break
		}
	}
	if video == nil {
		return false, Wrap(ErrAbortSoft, "", "verify", "no video stream in "+path, nil)
	}
	if minHeight := qualityMinHeight(quality); video.Height > 0 && video.Height < minHeight {
		return false, Wrap(ErrAbortSoft, "", "verify",
			fmt.Sprintf("frame height %d below %s tier", video.Height, quality), nil)
	}
	return true, nil
}

func qualityMinHeight(q media.Quality) int {
	switch q {
	case media.QualityUHD:
		return 1500
	case media.QualityHD:
		return 600
	default:
		return 0
	}
}
