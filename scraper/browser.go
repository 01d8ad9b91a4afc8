// backend/scraper/browser.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"github.com/shokudo/rbetl/backend/models"
)

// Config holds the browser driver settings, passed in from the loaded
// application config.
type Config struct {
	BaseURL         string
	LoginURL        string
	Headless        bool
	StepTimeout     time.Duration // per waited-for element
	DownloadTimeout time.Duration // wait for the CSV to materialize
	DownloadDir     string        // parent for per-session temp dirs
}

func (c Config) withDefaults() Config {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 30 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 60 * time.Second
	}
	return c
}

// Driver owns one exclusive headless-browser session. Not safe for
// concurrent use: one driver per in-flight store, per the resource model.
type Driver struct {
	cfg Config

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	downloadDir string
}

func NewDriver(cfg Config) *Driver {
	return &Driver{cfg: cfg.withDefaults()}
}

// Open starts the browser process and routes downloads into a fresh temp
// directory. Every exit path of the caller must pair this with Close.
func (d *Driver) Open(ctx context.Context) error {
	if d.ctx != nil {
		return fmt.Errorf("browser session already open")
	}

	dir, err := os.MkdirTemp(d.cfg.DownloadDir, "rbdl_")
	if err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}
	d.downloadDir = dir

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("lang", "ja"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
	); err != nil {
		cancel()
		allocCancel()
		os.RemoveAll(dir)
		d.downloadDir = ""
		return fmt.Errorf("failed to start browser session: %w", err)
	}

	d.allocCancel = allocCancel
	d.ctx = browserCtx
	d.cancel = cancel
	return nil
}

// Close releases the browser session and its download dir. Idempotent and
// safe on a driver that was never opened.
func (d *Driver) Close() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	if d.downloadDir != "" {
		if err := os.RemoveAll(d.downloadDir); err != nil {
			log.Printf("WARN Scraper: failed to remove download dir %s: %v", d.downloadDir, err)
		}
		d.downloadDir = ""
	}
	d.ctx = nil
}

// Extract logs in as the store's account, filters the reservation list to the
// window and drives the portal's CSV export, returning the raw bytes.
// The CSV on disk lives in the session's temp dir and is removed by Close.
func (d *Driver) Extract(ctx context.Context, store models.StoreConfig, window models.DateWindow) ([]byte, error) {
	if d.ctx == nil {
		return nil, fmt.Errorf("browser session is not open")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Printf("Scraper: extracting store %s window %s", store.StoreID, window)

	if err := d.login(store); err != nil {
		return nil, err
	}
	if err := d.openReservationList(); err != nil {
		return nil, err
	}
	if err := d.applyWindow(window); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := d.clickAny("download", downloadSelectors); err != nil {
		return nil, err
	}
	path, err := d.waitForDownload(start)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded CSV %s: %w", path, err)
	}
	log.Printf("Scraper: store %s downloaded %d bytes", store.StoreID, len(raw))
	return raw, nil
}

func (d *Driver) login(store models.StoreConfig) error {
	if err := d.step("login-page", chromedp.Navigate(d.cfg.LoginURL)); err != nil {
		return err
	}
	userSel, err := d.waitAny("login-user", loginUserSelectors)
	if err != nil {
		return err
	}
	passSel, err := d.waitAny("login-pass", loginPassSelectors)
	if err != nil {
		return err
	}
	if err := d.step("login-fill",
		chromedp.SetValue(userSel, store.Username, chromedp.ByQuery),
		chromedp.SetValue(passSel, store.Password, chromedp.ByQuery),
	); err != nil {
		return err
	}
	if err := d.clickAny("login-submit", loginSubmitSelectors); err != nil {
		return err
	}

	// Inspect wherever login landed us before trusting the session. A
	// second-factor screen here is terminal for this store.
	var html string
	if err := d.step("post-login",
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return err
	}
	if detectAuthWall(html) {
		log.Printf("ERROR Scraper: store %s hit the second-factor wall, not retriable", store.StoreID)
		return Permanent(ErrAuthStepRequired)
	}
	return nil
}

func (d *Driver) openReservationList() error {
	listSel, err := d.waitAny("reserve-menu", reserveListSelectors)
	if err != nil {
		return err
	}
	return d.step("reserve-list", chromedp.Click(listSel, chromedp.ByQuery))
}

func (d *Driver) applyWindow(window models.DateWindow) error {
	fromSel, err := d.waitAny("date-from", dateFromSelectors)
	if err != nil {
		return err
	}
	toSel, err := d.waitAny("date-to", dateToSelectors)
	if err != nil {
		return err
	}
	if err := d.step("date-fill",
		chromedp.SetValue(fromSel, window.From, chromedp.ByQuery),
		chromedp.SetValue(toSel, window.To, chromedp.ByQuery),
	); err != nil {
		return err
	}
	return d.clickAny("search", searchSubmitSelectors)
}

// step runs actions under the per-step deadline, mapping a blown deadline to
// the retriable NavigationTimeoutError.
func (d *Driver) step(name string, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.StepTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &NavigationTimeoutError{Step: name, Timeout: d.cfg.StepTimeout}
		}
		return fmt.Errorf("step %s: %w", name, err)
	}
	return nil
}

// waitAny waits for the first candidate selector to become visible, splitting
// the step deadline across candidates.
func (d *Driver) waitAny(stepName string, candidates []string) (string, error) {
	perCandidate := d.cfg.StepTimeout / time.Duration(len(candidates))
	sel, err := firstMatch(candidates, func(sel string) error {
		ctx, cancel := context.WithTimeout(d.ctx, perCandidate)
		defer cancel()
		return chromedp.Run(ctx, chromedp.WaitVisible(sel, chromedp.ByQuery))
	})
	if err != nil {
		return "", &NavigationTimeoutError{Step: stepName, Timeout: d.cfg.StepTimeout}
	}
	return sel, nil
}

func (d *Driver) clickAny(stepName string, candidates []string) error {
	sel, err := d.waitAny(stepName, candidates)
	if err != nil {
		return err
	}
	return d.step(stepName, chromedp.Click(sel, chromedp.ByQuery))
}

// ExtractOnce runs a complete extraction in a fresh browser session: open,
// extract, close. One attempt from the retry loop's point of view, so a
// wedged browser never leaks into the next attempt.
func ExtractOnce(ctx context.Context, cfg Config, store models.StoreConfig, window models.DateWindow) ([]byte, error) {
	d := NewDriver(cfg)
	if err := d.Open(ctx); err != nil {
		return nil, err
	}
	defer d.Close()
	return d.Extract(ctx, store, window)
}

// waitForDownload polls the session download dir for a settled CSV newer
// than the trigger time. Chrome keeps in-flight files as *.crdownload.
func (d *Driver) waitForDownload(since time.Time) (string, error) {
	deadline := time.Now().Add(d.cfg.DownloadTimeout)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(d.downloadDir)
		if err != nil {
			return "", fmt.Errorf("failed to read download dir: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasSuffix(name, ".crdownload") {
				continue
			}
			if !strings.HasSuffix(strings.ToLower(name), ".csv") {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().Before(since) {
				continue
			}
			return filepath.Join(d.downloadDir, name), nil
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-d.ctx.Done():
			return "", d.ctx.Err()
		}
	}
	return "", &DownloadNotFoundError{Dir: d.downloadDir, Timeout: d.cfg.DownloadTimeout}
}
