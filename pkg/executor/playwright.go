package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/scheduler"
)

const defaultNavigationTimeout = 30 * time.Second

var browserArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-dev-shm-usage",
	"--no-sandbox",
	"--disable-features=IsolateOrigins,site-per-process",
	"--no-first-run",
	"--disable-gpu",
	"--window-size=1920,1080",
}

type browserSession struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

// PlaywrightDriver drives Instagram and X through headless Chromium.
// Each account gets its own browser so proxies and fingerprints never
// leak between sessions.
type PlaywrightDriver struct {
	mu       sync.Mutex
	pw       *playwright.Playwright
	sessions map[string]*browserSession

	headless bool
	log      logger.Logger
}

func NewPlaywrightDriver(headless bool, log logger.Logger) *PlaywrightDriver {
	if log == nil {
		log = logger.Nop()
	}
	return &PlaywrightDriver{
		sessions: make(map[string]*browserSession),
		headless: headless,
		log:      log,
	}
}

// Start boots the playwright runtime. Call once before any session.
func (d *PlaywrightDriver) Start() error {
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	d.mu.Lock()
	d.pw = pw
	d.mu.Unlock()
	return nil
}

// Stop closes every session and shuts the runtime down.
func (d *PlaywrightDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for accountID, session := range d.sessions {
		if err := session.browser.Close(); err != nil {
			d.log.Warn("Failed to close browser",
				logger.Field{Key: "account_id", Value: accountID},
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
		delete(d.sessions, accountID)
	}
	if d.pw != nil {
		return d.pw.Stop()
	}
	return nil
}

func (d *PlaywrightDriver) Open(_ context.Context, execCtx *ExecutionContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw == nil {
		return fmt.Errorf("playwright runtime not started")
	}
	if _, ok := d.sessions[execCtx.AccountID]; ok {
		return nil
	}

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.headless),
		Args:     browserArgs,
	}
	if execCtx.Proxy != nil {
		launchOptions.Proxy = execCtx.Proxy.PlaywrightProxy()
	}

	browser, err := d.pw.Chromium.Launch(launchOptions)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:  &playwright.Size{Width: 1920, Height: 1080},
		UserAgent: playwright.String("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"),
		Locale:    playwright.String("en-US"),
	})
	if err != nil {
		browser.Close()
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browser.Close()
		return fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultNavigationTimeout.Milliseconds()))

	d.sessions[execCtx.AccountID] = &browserSession{
		browser: browser,
		context: browserCtx,
		page:    page,
	}
	return nil
}

func (d *PlaywrightDriver) Close(_ context.Context, execCtx *ExecutionContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions[execCtx.AccountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, execCtx.AccountID)
	}
	delete(d.sessions, execCtx.AccountID)
	return session.browser.Close()
}

func (d *PlaywrightDriver) session(accountID string) (*browserSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, accountID)
	}
	return session, nil
}

func profileURL(platform scheduler.Platform, username string) string {
	if platform == scheduler.PlatformX {
		return "https://x.com/" + username
	}
	return "https://www.instagram.com/" + username + "/"
}

func (d *PlaywrightDriver) openProfile(session *browserSession, execCtx *ExecutionContext, target string) error {
	if _, err := session.page.Goto(profileURL(execCtx.Platform, target), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("failed to open profile %s: %w", target, err)
	}

	missing := session.page.Locator("text=/page isn't available|account doesn’t exist/i")
	if count, err := missing.Count(); err == nil && count > 0 {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}
	return nil
}

func (d *PlaywrightDriver) Follow(ctx context.Context, execCtx *ExecutionContext, target string) error {
	session, err := d.session(execCtx.AccountID)
	if err != nil {
		return err
	}
	if err := d.openProfile(session, execCtx, target); err != nil {
		return err
	}

	page := session.page

	// Already following or a pending request.
	state := page.Locator("button:has-text('Following'), button:has-text('Requested'), [data-testid$='-unfollow']")
	if count, err := state.Count(); err == nil && count > 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyFollows, target)
	}

	followButton := page.Locator("button:has-text('Follow'), [data-testid$='-follow']").First()
	if err := followButton.Click(); err != nil {
		return fmt.Errorf("failed to click follow for %s: %w", target, err)
	}

	// Private accounts flip the button to Requested.
	requested := page.Locator("button:has-text('Requested')")
	if count, err := requested.Count(); err == nil && count > 0 {
		return fmt.Errorf("%w: %s", ErrPrivateAccount, target)
	}
	return nil
}

func (d *PlaywrightDriver) Unfollow(ctx context.Context, execCtx *ExecutionContext, target string) error {
	session, err := d.session(execCtx.AccountID)
	if err != nil {
		return err
	}
	if err := d.openProfile(session, execCtx, target); err != nil {
		return err
	}

	page := session.page
	following := page.Locator("button:has-text('Following'), [data-testid$='-unfollow']").First()
	if err := following.Click(); err != nil {
		return fmt.Errorf("failed to open unfollow menu for %s: %w", target, err)
	}

	confirm := page.Locator("button:has-text('Unfollow'), [data-testid='confirmationSheetConfirm']").First()
	if err := confirm.Click(); err != nil {
		return fmt.Errorf("failed to confirm unfollow for %s: %w", target, err)
	}
	return nil
}

func (d *PlaywrightDriver) SendDM(ctx context.Context, execCtx *ExecutionContext, target, message string) error {
	session, err := d.session(execCtx.AccountID)
	if err != nil {
		return err
	}
	if err := d.openProfile(session, execCtx, target); err != nil {
		return err
	}

	page := session.page
	messageButton := page.Locator("div[role='button']:has-text('Message'), [data-testid='sendDMFromProfile']").First()
	if err := messageButton.Click(); err != nil {
		return fmt.Errorf("failed to open DM dialog for %s: %w", target, err)
	}

	input := page.Locator("textarea, div[contenteditable='true'][role='textbox'], [data-testid='dmComposerTextInput']").First()
	if err := input.Type(message, playwright.LocatorTypeOptions{
		Delay: playwright.Float(55),
	}); err != nil {
		return fmt.Errorf("failed to type DM to %s: %w", target, err)
	}

	if err := input.Press("Enter"); err != nil {
		return fmt.Errorf("failed to send DM to %s: %w", target, err)
	}
	return nil
}

func (d *PlaywrightDriver) Like(ctx context.Context, execCtx *ExecutionContext, postID string) error {
	session, err := d.session(execCtx.AccountID)
	if err != nil {
		return err
	}

	url := "https://www.instagram.com/p/" + postID + "/"
	if execCtx.Platform == scheduler.PlatformX {
		url = "https://x.com/i/status/" + postID
	}
	if _, err := session.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("failed to open post %s: %w", postID, err)
	}

	like := session.page.Locator("svg[aria-label='Like'], [data-testid='like']").First()
	if err := like.Click(); err != nil {
		return fmt.Errorf("failed to like post %s: %w", postID, err)
	}
	return nil
}

func (d *PlaywrightDriver) ViewProfile(ctx context.Context, execCtx *ExecutionContext, target string) error {
	session, err := d.session(execCtx.AccountID)
	if err != nil {
		return err
	}
	return d.openProfile(session, execCtx, target)
}

func (d *PlaywrightDriver) ScrollFeed(ctx context.Context, execCtx *ExecutionContext) error {
	session, err := d.session(execCtx.AccountID)
	if err != nil {
		return err
	}

	base := "https://www.instagram.com/"
	if execCtx.Platform == scheduler.PlatformX {
		base = "https://x.com/home"
	}
	if !strings.HasPrefix(session.page.URL(), base) {
		if _, err := session.page.Goto(base, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		}); err != nil {
			return fmt.Errorf("failed to open feed: %w", err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := session.page.Mouse().Wheel(0, 600); err != nil {
			return fmt.Errorf("failed to scroll feed: %w", err)
		}
		time.Sleep(time.Second)
	}
	return nil
}

func (d *PlaywrightDriver) IsFollowingBack(ctx context.Context, execCtx *ExecutionContext, target string) (bool, error) {
	session, err := d.session(execCtx.AccountID)
	if err != nil {
		return false, err
	}
	if err := d.openProfile(session, execCtx, target); err != nil {
		return false, err
	}

	badge := session.page.Locator("text=/follows you/i")
	count, err := badge.Count()
	if err != nil {
		return false, fmt.Errorf("failed to check follow-back badge for %s: %w", target, err)
	}
	return count > 0, nil
}
