package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"video-thumbnail/internal/logging"
)

var errNoSource = errors.New("no source set")

// FFmpegConfig names the binaries used by FFmpegElement.
type FFmpegConfig struct {
	FFmpegPath  string
	FFprobePath string
}

func (c FFmpegConfig) withDefaults() FFmpegConfig {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	return c
}

// NewFFmpegFactory returns an ElementFactory producing FFmpegElements.
func NewFFmpegFactory(cfg FFmpegConfig) ElementFactory {
	cfg = cfg.withDefaults()
	return func() Element {
		return NewFFmpegElement(cfg)
	}
}

// FFmpegElement is an Element backed by ffprobe and ffmpeg subprocesses.
// Every subprocess is bound to the current source, so clearing or replacing
// the source kills them.
type FFmpegElement struct {
	cfg    FFmpegConfig
	events chan Event

	mu       sync.Mutex
	gen      uint64
	url      string
	ctx      context.Context
	cancel   context.CancelFunc
	duration float64
	width    int
	height   int
	frame    image.Image
	playing  bool
}

// NewFFmpegElement creates an element with no source.
func NewFFmpegElement(cfg FFmpegConfig) *FFmpegElement {
	return &FFmpegElement{
		cfg:    cfg.withDefaults(),
		events: make(chan Event, 8),
	}
}

// SetSource implements Element.
func (e *FFmpegElement) SetSource(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.url = url
	e.ctx = nil
	e.duration = 0
	e.width, e.height = 0, 0
	e.frame = nil
	e.playing = false

	if url == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.ctx, e.cancel = ctx, cancel
	go e.load(ctx, e.gen, url)
}

// Events implements Element.
func (e *FFmpegElement) Events() <-chan Event {
	return e.events
}

// Duration implements Element.
func (e *FFmpegElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// NaturalSize implements Element.
func (e *FFmpegElement) NaturalSize() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// Play implements Element. Nothing is decoded; ffmpeg needs no warm-up, so
// only the state transition is recorded.
func (e *FFmpegElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.url == "" {
		return errNoSource
	}
	e.playing = true
	return nil
}

// Pause implements Element.
func (e *FFmpegElement) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}

// Seek implements Element.
func (e *FFmpegElement) Seek(t float64) {
	e.mu.Lock()
	ctx, gen, url := e.ctx, e.gen, e.url
	e.mu.Unlock()

	if ctx == nil {
		go func() {
			select {
			case e.events <- Event{Type: EventError, Err: errNoSource}:
			default:
			}
		}()
		return
	}
	go e.decodeFrame(ctx, gen, url, t)
}

// Frame implements Element.
func (e *FFmpegElement) Frame() (image.Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frame == nil {
		return nil, errors.New("no frame decoded")
	}
	return e.frame, nil
}

func (e *FFmpegElement) load(ctx context.Context, gen uint64, url string) {
	cmd := exec.CommandContext(ctx, e.cfg.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		url,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		e.emit(ctx, gen, Event{Type: EventError, Err: fmt.Errorf("ffprobe error: %w - %s", err, strings.TrimSpace(stderr.String()))})
		return
	}

	info, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		e.emit(ctx, gen, Event{Type: EventError, Err: err})
		return
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.duration = info.Duration
	e.width, e.height = info.Width, info.Height
	e.mu.Unlock()

	logging.Debug("ffprobe %s: duration=%.3fs size=%dx%d", url, info.Duration, info.Width, info.Height)
	e.emit(ctx, gen, Event{Type: EventReady})
}

// endWindow is how far before the end of the media a seek may land and
// still produce no frame, since the container duration often runs past the
// last frame's timestamp.
const endWindow = 0.5

func (e *FFmpegElement) decodeFrame(ctx context.Context, gen uint64, url string, t float64) {
	// -ss before -i seeks on the demuxer, which is fast on long files.
	out, err := e.runFFmpeg(ctx,
		"-v", "error",
		"-ss", strconv.FormatFloat(t, 'f', 3, 64),
		"-i", url,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		e.emit(ctx, gen, Event{Type: EventError, Err: err})
		return
	}

	var frame image.Image
	switch {
	case out.Len() > 0:
		frame, err = imaging.Decode(out)
		if err != nil {
			err = fmt.Errorf("failed to decode ffmpeg output: %w", err)
		}
	case e.nearEnd(t):
		frame, err = e.decodeLastFrame(ctx, url)
	default:
		err = fmt.Errorf("ffmpeg produced no frame at %.3fs", t)
	}
	if err != nil {
		e.emit(ctx, gen, Event{Type: EventError, Err: err})
		return
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.frame = frame
	e.mu.Unlock()

	e.emit(ctx, gen, Event{Type: EventSeeked})
}

// nearEnd reports whether t is within endWindow of a known duration.
func (e *FFmpegElement) nearEnd(t float64) bool {
	e.mu.Lock()
	d := e.duration
	e.mu.Unlock()
	return d > 0 && !math.IsInf(d, 1) && t >= d-endWindow
}

// decodeLastFrame decodes the final endWindow seconds and keeps the last
// frame, which is what a player shows when seeked to the end.
func (e *FFmpegElement) decodeLastFrame(ctx context.Context, url string) (image.Image, error) {
	out, err := e.runFFmpeg(ctx,
		"-v", "error",
		"-sseof", strconv.FormatFloat(-endWindow, 'f', 3, 64),
		"-i", url,
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, err
	}

	var last image.Image
	r := bytes.NewReader(out.Bytes())
	for r.Len() > 0 {
		frame, err := png.Decode(r)
		if err != nil {
			if last != nil {
				break
			}
			return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
		}
		last = frame
	}
	if last == nil {
		return nil, errors.New("ffmpeg produced no frame at the end of the media")
	}
	logging.Debug("ffmpeg %s: seek past the last frame, using the final frame", url)
	return last, nil
}

func (e *FFmpegElement) runFFmpeg(ctx context.Context, args ...string) (*bytes.Buffer, error) {
	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return &stdout, nil
}

// emit delivers ev unless the source it belongs to has been replaced.
func (e *FFmpegElement) emit(ctx context.Context, gen uint64, ev Event) {
	e.mu.Lock()
	current := gen == e.gen
	e.mu.Unlock()
	if !current {
		return
	}

	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

// probeInfo is the subset of ffprobe output needed for seeking.
type probeInfo struct {
	Duration float64
	Width    int
	Height   int
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string            `json:"codec_type"`
		Width        int               `json:"width"`
		Height       int               `json:"height"`
		Duration     string            `json:"duration"`
		Tags         map[string]string `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseProbeOutput extracts duration and display size from ffprobe JSON.
// Rotated streams report their display size, matching what ffmpeg decodes.
func parseProbeOutput(data []byte) (probeInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return probeInfo{}, fmt.Errorf("invalid ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			continue
		}

		info := probeInfo{Width: s.Width, Height: s.Height}

		rotation := 0.0
		if r, ok := s.Tags["rotate"]; ok {
			rotation, _ = strconv.ParseFloat(r, 64)
		}
		for _, sd := range s.SideDataList {
			if sd.Rotation != 0 {
				rotation = sd.Rotation
			}
		}
		if quarter := int(math.Round(rotation/90)) % 2; quarter != 0 {
			info.Width, info.Height = info.Height, info.Width
		}

		info.Duration = parseDuration(out.Format.Duration)
		if info.Duration == 0 {
			info.Duration = parseDuration(s.Duration)
		}
		if info.Duration == 0 {
			info.Duration = math.Inf(1)
		}
		return info, nil
	}

	return probeInfo{}, errors.New("no video stream found")
}

func parseDuration(s string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || d <= 0 || math.IsNaN(d) {
		return 0
	}
	return d
}
