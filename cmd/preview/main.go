// Command preview renders one page of a PDF to a JPEG, either locally with a
// PDF engine or through a running docpreview server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/drummonds/docpreview/engine/pdfrenderer"
	"github.com/drummonds/docpreview/engine/preview"
	"github.com/drummonds/docpreview/engine/previewclient"
)

// newEngine is swapped out by tests
var newEngine = func(name string) (pdfrenderer.Engine, error) {
	return pdfrenderer.NewEngine(name, 1)
}

// options are the parsed command line flags
type options struct {
	file    string
	page    int
	out     string
	engine  string
	server  string
	info    bool
	verbose bool
	config  preview.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "preview:", err)
		return 2
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	data, err := os.ReadFile(opts.file)
	if err != nil {
		fmt.Fprintln(stderr, "preview:", err)
		return 1
	}
	file := preview.NewSourceFile(filepath.Base(opts.file), mediaTypeOf(opts.file, data), data)

	if opts.info {
		return printInfo(file, stdout, stderr)
	}

	result, err := renderPage(ctx, opts, file, logger)
	if err != nil {
		kind := preview.KindOf(err)
		if kind == "" {
			kind = preview.KindRenderFailure
		}
		fmt.Fprintf(stderr, "preview: %s: %v\n", kind, err)
		return 1
	}

	if err := os.WriteFile(opts.out, result.Image, 0o644); err != nil {
		fmt.Fprintln(stderr, "preview:", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote page %d of %d to %s (%dx%d)\n",
		result.PageNumber, result.PageCount, opts.out, result.Width, result.Height)
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	opts := options{config: preview.DefaultConfig()}

	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.file, "file", "", "PDF file to render (required)")
	fs.IntVar(&opts.page, "page", 1, "1-based page number")
	fs.StringVar(&opts.out, "out", "", "output JPEG path (default <file>-page<N>.jpg)")
	fs.StringVar(&opts.engine, "engine", pdfrenderer.EnginePDFium, "PDF engine: pdfium or fitz")
	fs.StringVar(&opts.server, "server", "", "render through the docpreview API at this URL instead of locally")
	fs.BoolVar(&opts.info, "info", false, "print the document structure instead of rendering")
	fs.BoolVar(&opts.verbose, "v", false, "log every attempt")
	fs.Float64Var(&opts.config.PixelRatio, "ratio", opts.config.PixelRatio, "device pixel ratio")
	fs.Float64Var(&opts.config.Scale, "scale", opts.config.Scale, "viewport scale relative to PDF points")
	fs.IntVar(&opts.config.JPEGQuality, "quality", opts.config.JPEGQuality, "JPEG quality (1-100)")
	fs.IntVar(&opts.config.MaxWidth, "max-width", 0, "cap the output width in pixels, 0 for none")
	fs.IntVar(&opts.config.MaxRetries, "retries", opts.config.MaxRetries, "automatic retries after the first attempt")
	fs.DurationVar(&opts.config.RetryDelay, "retry-delay", opts.config.RetryDelay, "delay between attempts")
	fs.DurationVar(&opts.config.Timeout, "timeout", 30*time.Second, "deadline for each attempt")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.file == "" {
		fs.Usage()
		return opts, errors.New("-file is required")
	}
	if opts.out == "" {
		base := strings.TrimSuffix(filepath.Base(opts.file), filepath.Ext(opts.file))
		opts.out = fmt.Sprintf("%s-page%d.jpg", base, opts.page)
	}
	return opts, nil
}

// renderPage runs the load under the retry controller
func renderPage(ctx context.Context, opts options, file *preview.SourceFile, logger *slog.Logger) (*preview.Result, error) {
	var load preview.LoadFunc
	if opts.server != "" {
		client := previewclient.New(opts.server)
		load = func(ctx context.Context) (*preview.Result, error) {
			if opts.config.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.config.Timeout)
				defer cancel()
			}
			return client.Preview(ctx, file, opts.page)
		}
	} else {
		eng, err := newEngine(opts.engine)
		if err != nil {
			return nil, err
		}
		defer eng.Close()
		renderer := preview.NewRenderer(eng, opts.config, logger)
		load = func(ctx context.Context) (*preview.Result, error) {
			return renderer.Request(ctx, file, opts.page)
		}
	}

	controller := preview.NewController(opts.config.Policy(), nil, logger)
	controller.OnChange(func(status preview.Status) {
		logger.Debug("Preview state", "state", status.State, "attempt", status.Attempt, "retries", status.Retries)
	})
	return controller.Load(ctx, load)
}

func printInfo(file *preview.SourceFile, stdout, stderr io.Writer) int {
	if err := preview.Validate(file); err != nil {
		fmt.Fprintf(stderr, "preview: %s: %v\n", preview.KindOf(err), err)
		return 1
	}
	info, err := pdfrenderer.Inspect(file.Data)
	if err != nil {
		fmt.Fprintf(stderr, "preview: %s: %v\n", preview.KindDecodeFailure, err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		fmt.Fprintln(stderr, "preview:", err)
		return 1
	}
	return 0
}

// mediaTypeOf guesses the media type from the extension, then the content
func mediaTypeOf(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".pdf" {
		return preview.PDFMediaType
	}
	if ext != "" {
		if mediaType, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}
