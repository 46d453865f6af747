package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"video-thumbnail/internal/batch"
	"video-thumbnail/internal/cache"
	"video-thumbnail/internal/capability"
	"video-thumbnail/internal/encoder"
	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/media"
	"video-thumbnail/internal/startup"
	"video-thumbnail/internal/thumbnail"
)

// defaultTimeout bounds cache operations of the clear command.
const defaultTimeout = 30 * time.Second

var errUsage = errors.New("usage")

// service is the engine and the resources it holds open.
type service struct {
	engine  *thumbnail.Engine
	backend cache.Backend
	resizer *encoder.VipsResizer
}

func (s *service) Close() {
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			logging.Warn("Failed to close cache: %v", err)
		}
	}
	encoder.ShutdownVips()
}

// app holds the command's I/O so tests can drive it.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// isTerminal reports whether stdout is an interactive terminal.
	isTerminal bool
	// open builds the service from configuration.
	open func(ctx context.Context, cfg *startup.Config) (*service, error)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		isTerminal: term.IsTerminal(int(os.Stdout.Fd())),
		open:       openService,
	}
	os.Exit(a.run(ctx, os.Args[1:]))
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		a.printUsage()
		return 2
	}

	var err error
	switch args[0] {
	case "extract":
		err = a.extract(ctx, args[1:])
	case "clear":
		err = a.clear(ctx, args[1:])
	case "probe":
		err = a.probe(ctx, args[1:])
	case "help", "-h", "--help":
		a.printUsage()
		return 0
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n", sanitizeCommand(args[0]))
		a.printUsage()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
}

// sanitizeCommand replaces every character outside [a-zA-Z0-9_-] with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (a *app) printUsage() {
	fmt.Fprintln(a.stderr, "Video thumbnail extraction")
	fmt.Fprintln(a.stderr, "")
	fmt.Fprintln(a.stderr, "Usage: thumbctl <command> [flags] [args]")
	fmt.Fprintln(a.stderr, "")
	fmt.Fprintln(a.stderr, "Commands:")
	fmt.Fprintln(a.stderr, "  extract [url ...]  - Extract thumbnails (urls from stdin when none given)")
	fmt.Fprintln(a.stderr, "  clear [namespace]  - Remove cached thumbnails of a namespace")
	fmt.Fprintln(a.stderr, "  probe              - Report runtime capabilities")
	fmt.Fprintln(a.stderr, "")
	fmt.Fprintln(a.stderr, "Configuration is read from the same environment as the server")
	fmt.Fprintln(a.stderr, "(CACHE_BACKEND, CACHE_DIR, FFMPEG_PATH, LOG_LEVEL, ...).")
}

// loadConfig reads the server configuration quietly. verbose enables
// debug logging unless LOG_LEVEL says otherwise.
func loadConfig(verbose bool) (*startup.Config, error) {
	logging.SetLevel(logging.LevelWarn)
	v, err := startup.NewViper()
	if err != nil {
		return nil, err
	}
	switch {
	case verbose:
		v.Set(startup.KeyLogLevel, "debug")
	case v.GetString(startup.KeyLogLevel) == "":
		v.Set(startup.KeyLogLevel, "warn")
	}
	return startup.FromViper(v)
}

func openService(ctx context.Context, cfg *startup.Config) (*service, error) {
	var backend cache.Backend
	if cfg.CacheDirWritable {
		b, err := cache.Open(ctx, cfg.CacheConfig())
		if err != nil {
			logging.Warn("Cache unavailable, continuing without it: %v", err)
		} else {
			backend = b
		}
	}

	probeConfig := cfg.CapabilityConfig()
	probeConfig.Backend = backend
	probe := capability.NewProbe(probeConfig)
	support := probe.Support()

	resizer := encoder.NewVipsResizer(cfg.VipsEnabled)
	engine := thumbnail.NewEngine(thumbnail.Config{
		Probe: probe,
		Cache: cache.New(backend, support.CanCache),
		Loader: media.NewLoader(media.NewFFmpegFactory(media.FFmpegConfig{
			FFmpegPath:  cfg.FFmpegPath,
			FFprobePath: cfg.FFprobePath,
		})),
		Encoder:   encoder.New(resizer, nil),
		Namespace: cfg.DefaultNamespace,
	})
	return &service{engine: engine, backend: backend, resizer: resizer}, nil
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// offsetList is a comma separated list of offsets in seconds.
type offsetList []float64

func (o *offsetList) String() string {
	parts := make([]string, len(*o))
	for i, v := range *o {
		parts[i] = cache.FormatOffset(v)
	}
	return strings.Join(parts, ",")
}

func (o *offsetList) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return fmt.Errorf("invalid offset %q", part)
		}
		*o = append(*o, v)
	}
	return nil
}

type extractFlags struct {
	opts    thumbnail.Options
	outDir  string
	workers int
	verbose bool
}

func parseExtractFlags(args []string, stderr io.Writer) (*extractFlags, []string, error) {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		f          extractFlags
		offsets    offsetList
		timeFlag   = fs.Float64("time", thumbnail.DefaultTime, "single offset in seconds, or a fraction of the duration when between 0 and 1")
		mimeType   = fs.String("mime", "", "output mime type (image/png, image/jpeg, image/webp)")
		quality    = fs.Float64("quality", 0, "lossy quality in (0, 1]")
		timeoutMS  = fs.Int("timeout", 0, fmt.Sprintf("load timeout in milliseconds, at most %d", thumbnail.MaxTimeoutMillis))
		useCache   = fs.Bool("cache", false, "read and write the thumbnail cache")
		prefix     = fs.String("prefix", "", "cache namespace")
		size       = fs.Int("size", thumbnail.DefaultSize, "maximum thumbnail width in pixels")
		timeWasSet bool
	)
	fs.Var(&offsets, "timestamps", "comma separated offsets; overrides -time")
	fs.StringVar(&f.outDir, "out", "", "write decoded images to this directory")
	fs.IntVar(&f.workers, "workers", 0, "sources processed in parallel (default from THUMBNAIL_WORKERS)")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")

	if err := parseFlags(fs, args); err != nil {
		return nil, nil, err
	}
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "time" {
			timeWasSet = true
		}
	})

	if *timeoutMS > thumbnail.MaxTimeoutMillis {
		return nil, nil, fmt.Errorf("%w: -timeout %d exceeds %dms", errUsage, *timeoutMS, thumbnail.MaxTimeoutMillis)
	}
	if *prefix != "" && !cache.ValidNamespace(*prefix) {
		return nil, nil, fmt.Errorf("%w: invalid -prefix %q", errUsage, *prefix)
	}

	if timeWasSet {
		f.opts.Time = timeFlag
	}
	f.opts.Timestamps = offsets
	f.opts.Size = *size
	f.opts.Timeout = *timeoutMS
	f.opts.Cache = *useCache
	f.opts.CacheKeyPrefix = *prefix
	if *mimeType != "" {
		f.opts.Mime = &encoder.Format{MimeType: *mimeType, Quality: *quality}
	}
	return &f, fs.Args(), nil
}

// readURLs returns one url per non-blank, non-comment line.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

type extractOutput struct {
	Results []batch.SourceResult `json:"results"`
	Summary batch.Summary        `json:"summary"`
}

func (a *app) extract(ctx context.Context, args []string) error {
	f, urls, err := parseExtractFlags(args, a.stderr)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		if urls, err = readURLs(a.stdin); err != nil {
			return fmt.Errorf("reading urls: %w", err)
		}
	}
	if len(urls) == 0 {
		fmt.Fprintln(a.stderr, "extract: no urls given")
		return errUsage
	}

	cfg, err := loadConfig(f.verbose)
	if err != nil {
		return err
	}
	svc, err := a.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if !svc.engine.Support().CanCapture {
		return capability.ErrUnsupportedRuntime
	}

	runner := batch.NewRunner(batch.Config{Extractor: svc.engine, Workers: f.workers})
	results, summary := runner.Run(ctx, urls, f.opts)

	if f.outDir != "" {
		if err := writeImages(f.outDir, results); err != nil {
			return err
		}
	}

	if err := a.writeJSON(extractOutput{Results: results, Summary: summary}); err != nil {
		return err
	}
	if summary.Failed == len(results) {
		return fmt.Errorf("all %d sources failed", summary.Failed)
	}
	return nil
}

// writeImages decodes every data URI payload into dir. Files are named
// after the source index and the offset so repeated runs overwrite.
func writeImages(dir string, results []batch.SourceResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for i, res := range results {
		for _, th := range res.Thumbnails {
			mimeType, data, err := encoder.DecodeDataURI(th.Payload)
			if err != nil {
				logging.Warn("Skipping %s at %v: %v", res.URL, th.Offset, err)
				continue
			}
			path := filepath.Join(dir, imageFileName(i, th.Offset, mimeType))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
		}
	}
	return nil
}

func imageFileName(index int, offset float64, mimeType string) string {
	return fmt.Sprintf("%03d_%s.%s", index, cache.FormatOffset(offset), extensionFor(mimeType))
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case encoder.MimeJPEG:
		return "jpg"
	case encoder.MimeTIFF:
		return "tif"
	default:
		if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" {
			return sub
		}
		return "bin"
	}
}

func (a *app) clear(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	verbose := fs.Bool("v", false, "verbose logging")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(a.stderr, "clear: at most one namespace")
		return errUsage
	}

	cfg, err := loadConfig(*verbose)
	if err != nil {
		return err
	}
	svc, err := a.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if !svc.engine.Support().CanCache {
		return errors.New("cache is unavailable")
	}

	namespace := fs.Arg(0)
	if namespace == "" {
		namespace = svc.engine.Namespace()
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	removed := svc.engine.ClearCache(ctx, namespace)
	fmt.Fprintf(a.stdout, "Removed %d cached thumbnails from %s\n", removed, namespace)
	return nil
}

type probeOutput struct {
	capability.Support
	DirectResize bool   `json:"directResize"`
	CacheBackend string `json:"cacheBackend"`
	Namespace    string `json:"namespace"`
}

func (a *app) probe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	verbose := fs.Bool("v", false, "verbose logging")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := loadConfig(*verbose)
	if err != nil {
		return err
	}
	svc, err := a.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := probeOutput{
		Support:      svc.engine.Support(),
		CacheBackend: cache.New(svc.backend, true).Backend(),
		Namespace:    svc.engine.Namespace(),
	}
	if svc.resizer != nil {
		out.DirectResize = svc.resizer.Available()
	}
	return a.writeJSON(out)
}

// writeJSON indents for terminals and emits compact lines otherwise.
func (a *app) writeJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	if a.isTerminal {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
