// Package rodriver implements driver.Driver with a headless Chromium
// controlled through go-rod.
package rodriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pevans/newscrawl/driver"
)

// Driver launches one browser per session.
type Driver struct{}

// New creates a rod driver.
func New() *Driver {
	return &Driver{}
}

// Open launches a browser, loads url in a fresh tab and waits for the load
// event.
func (d *Driver) Open(ctx context.Context, url string, opts driver.Options) (driver.Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox).
		Set("disable-extensions").
		Set("disable-gpu").
		Set("disable-web-security").
		Set("start-maximized")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, &driver.SessionError{URL: url, Err: fmt.Errorf("failed to launch browser: %w", err)}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, &driver.SessionError{URL: url, Err: fmt.Errorf("failed to connect to browser: %w", err)}
	}

	s := &Session{launcher: l, browser: browser, timeout: opts.Timeout}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, &driver.SessionError{URL: url, Err: fmt.Errorf("failed to open tab: %w", err)}
	}
	s.page = page

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			s.Close()
			return nil, &driver.SessionError{URL: url, Err: err}
		}
	}

	if err := s.Navigate(ctx, url); err != nil {
		s.Close()
		return nil, &driver.SessionError{URL: url, Err: err}
	}

	return s, nil
}

// Session is a single browser tab.
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
}

// bounded returns the page bound to ctx and, when configured, the session
// timeout.
func (s *Session) bounded(ctx context.Context, timeout time.Duration) *rod.Page {
	p := s.page.Context(ctx)
	if timeout > 0 {
		p = p.Timeout(timeout)
	}
	return p
}

func (s *Session) FindElement(ctx context.Context, selector string) (driver.Element, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	if !has {
		return nil, driver.NotFound(selector)
	}
	return &Element{el: el}, nil
}

func (s *Session) FindElements(ctx context.Context, selector string) ([]driver.Element, error) {
	found, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return wrapAll(found), nil
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (driver.Element, error) {
	if timeout <= 0 {
		timeout = s.timeout
	}
	p := s.bounded(ctx, timeout)

	el, err := p.Element(selector)
	if err != nil {
		return nil, waitError(selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, waitError(selector, err)
	}
	return &Element{el: el.CancelTimeout()}, nil
}

func waitError(selector string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", driver.ErrTimeout, selector)
	}
	return fmt.Errorf("failed waiting for %s: %w", selector, err)
}

func (s *Session) Refresh(ctx context.Context) error {
	p := s.bounded(ctx, s.timeout)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for reload: %w", err)
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.bounded(ctx, s.timeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for %s: %w", url, err)
	}
	return nil
}

func (s *Session) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close shuts the browser down and removes its profile directory.
func (s *Session) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	return err
}
