package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"openair/internal/display"
	appLog "openair/internal/log"
)

// Default capture parameters for a signage panel. They should match the
// layout used by the /overview page.
const (
	DefaultWidth      = 800
	DefaultHeight     = 480
	DefaultTimeoutSec = 30
)

// ReadySelector is the element the overview page marks once rendered.
const ReadySelector = `[data-ready="true"]`

// CaptureOptions defines parameters for a Chromium-based screenshot capture.
type CaptureOptions struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/overview".
	URL string

	// OutputPath is where the PNG screenshot will be written, e.g.
	// "./var/openair/preview.png".
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation. If zero, a sane default
	// (DefaultTimeoutSec) is used.
	Timeout time.Duration
}

func (o *CaptureOptions) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// CaptureOverviewPNG launches a headless Chromium instance via chromedp,
// navigates to opts.URL, waits until the page exposes data-ready="true"
// and writes a PNG screenshot of the requested viewport to opts.OutputPath.
// The file is replaced atomically so readers never see a partial image.
func CaptureOverviewPNG(parentCtx context.Context, opts CaptureOptions) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := writePNG(opts.OutputPath, png); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	appLog.Debug("capture completed", "output", opts.OutputPath, "bytes", len(png))
	return nil
}

func writePNG(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".preview-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Renderer adapts CaptureOverviewPNG to the signage render hook.
type Renderer struct {
	Options CaptureOptions
	// Capture performs the screenshot; nil means CaptureOverviewPNG.
	Capture func(context.Context, CaptureOptions) error
}

// Render captures the overview page, which serves the same snapshot.
func (r *Renderer) Render(ctx context.Context, snap *display.OverviewSnapshot) error {
	capture := r.Capture
	if capture == nil {
		capture = CaptureOverviewPNG
	}
	if err := capture(ctx, r.Options); err != nil {
		return err
	}
	appLog.Info("signage frame captured", "output", r.Options.OutputPath, "items", len(snap.Items))
	return nil
}
