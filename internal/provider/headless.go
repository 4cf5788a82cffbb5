package provider

import (
	"context"
	"fmt"
	"time"

	"competitor-radar/internal/logger"

	"github.com/chromedp/chromedp"
)

// HeadlessConfig configures the Chrome renderer
type HeadlessConfig struct {
	ChromePath string
	UserAgent  string
	Timeout    time.Duration
	// Settle is how long scripts may run after the body is visible
	Settle time.Duration
}

// HeadlessFetcher renders pages with headless Chrome for sites that build their JSON-LD client-side
type HeadlessFetcher struct {
	cfg HeadlessConfig
	log logger.Logger
}

// NewHeadlessFetcher creates a renderer
func NewHeadlessFetcher(cfg HeadlessConfig, log logger.Logger) *HeadlessFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &HeadlessFetcher{cfg: cfg, log: log}
}

// FetchHTML implements PageFetcher
func (f *HeadlessFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if f.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ChromePath))
	}
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, f.cfg.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Sleep(f.cfg.Settle),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp error: %w", err)
	}

	f.log.Debug("HeadlessFetcher: page rendered", map[string]interface{}{
		"url":   pageURL,
		"bytes": len(html),
	})
	return html, nil
}
