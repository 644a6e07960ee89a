package durations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/silencesuzuka/playerd/internal/types"
	"github.com/silencesuzuka/playerd/internal/util"
)

// DefaultProbeTimeout bounds a single duration probe.
const DefaultProbeTimeout = 30 * time.Second

// ErrToolMissing indicates the helper binary is not installed.
var ErrToolMissing = errors.New("probe tool not found")

// Prober resolves one item's duration in seconds.
type Prober interface {
	Probe(ctx context.Context, item types.PlaylistItem) (seconds int, source string, err error)
}

// ExecProber probes local files with ffprobe and remote videos with
// yt-dlp. Tool paths are resolved once at construction.
type ExecProber struct {
	ffprobe string
	ytdlp   string
	timeout time.Duration
}

// NewExecProber resolves the helper binaries, honoring explicit paths
// when given. Missing tools surface as ErrToolMissing per probe, not at
// construction, so the player keeps running without them.
func NewExecProber(ffprobePath, ytdlpPath string) *ExecProber {
	return &ExecProber{
		ffprobe: util.ResolveTool("ffprobe", ffprobePath),
		ytdlp:   util.ResolveTool("yt-dlp", ytdlpPath),
		timeout: DefaultProbeTimeout,
	}
}

// Probe dispatches on the item kind.
func (p *ExecProber) Probe(ctx context.Context, item types.PlaylistItem) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	switch item.Kind {
	case types.KindLocal:
		return p.probeLocal(ctx, item.URL)
	case types.KindYouTube, types.KindBilibili:
		return p.probeRemote(ctx, item.URL)
	default:
		return 0, "", fmt.Errorf("unsupported item kind %q", item.Kind)
	}
}

func (p *ExecProber) probeLocal(ctx context.Context, rawURL string) (int, string, error) {
	if p.ffprobe == "" {
		return 0, "ffprobe", ErrToolMissing
	}
	path := localPath(rawURL)

	cmd := exec.CommandContext(ctx, p.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if reason := util.LastErrorLine(stderr.String()); reason != "" {
			return 0, "ffprobe", fmt.Errorf("ffprobe: %s", reason)
		}
		return 0, "ffprobe", util.WrapError("run ffprobe", err)
	}
	seconds, err := parseSeconds(stdout.String())
	if err != nil {
		return 0, "ffprobe", err
	}
	return seconds, "ffprobe", nil
}

func (p *ExecProber) probeRemote(ctx context.Context, rawURL string) (int, string, error) {
	if p.ytdlp == "" {
		return 0, "yt-dlp", ErrToolMissing
	}

	cmd := exec.CommandContext(ctx, p.ytdlp,
		"--quiet",
		"--no-warnings",
		"--skip-download",
		"--print", "duration",
		rawURL)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if reason := util.LastErrorLine(stderr.String()); reason != "" {
			return 0, "yt-dlp", fmt.Errorf("yt-dlp: %s", reason)
		}
		return 0, "yt-dlp", util.WrapError("run yt-dlp", err)
	}
	seconds, err := parseSeconds(stdout.String())
	if err != nil {
		return 0, "yt-dlp", err
	}
	return seconds, "yt-dlp", nil
}

// parseSeconds reads a duration printed as a float by either tool.
func parseSeconds(output string) (int, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" || trimmed == "NA" {
		return 0, errors.New("no duration reported")
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable duration %q", trimmed)
	}
	if f <= 0 {
		return 0, errors.New("no duration reported")
	}
	return int(f), nil
}

// localPath converts a file:// URL to a filesystem path.
func localPath(rawURL string) string {
	if !strings.HasPrefix(rawURL, "file://") {
		return rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Path
}
