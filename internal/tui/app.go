package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jfmyers9/nada/internal/hover"
	"github.com/jfmyers9/nada/internal/media"
	"github.com/jfmyers9/nada/internal/notify"
	"github.com/jfmyers9/nada/internal/prefs"
	"github.com/jfmyers9/nada/internal/storefront"
	"github.com/rivo/tview"
)

const maxToasts = 4

// Config holds TUI configuration options
type Config struct {
	RefreshRate time.Duration // How often to refresh the display
	SeekStep    time.Duration // How far the arrow keys seek
	VolumeStep  float64       // How much +/- change the volume
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: 250 * time.Millisecond,
		SeekStep:    10 * time.Second,
		VolumeStep:  0.05,
	}
}

// ConsentStore persists the cookie banner decision.
type ConsentStore interface {
	Consent(ctx context.Context) (prefs.Consent, error)
	SetConsent(ctx context.Context, c prefs.Consent) error
}

// App is the terminal storefront. Moving the selection acts as the
// pointer: the highlighted card is hovered and previews after the delay.
type App struct {
	app        *tview.Application
	cards      *tview.List
	nowPlaying *tview.TextView
	progress   *tview.TextView
	toasts     *tview.TextView
	status     *tview.TextView

	config   Config
	grid     *storefront.Grid
	consent  ConsentStore
	toastLog *notify.Recorder

	ctx context.Context

	// Mutex protects the fields below; key handlers and the refresh ticker
	// both touch them.
	mu      sync.Mutex
	ids     []string
	hovered string
	cookies prefs.Consent

	// Last-rendered content for change detection
	lastCards      string
	lastNowPlaying string
	lastProgress   string
	lastToasts     string
	lastStatus     string

	// Cached progress bar width to stabilize change detection.
	lastBarWidth int

	cancelFunc context.CancelFunc
}

// New creates the TUI for grid. toasts receives the grid's notifications
// and may be nil.
func New(grid *storefront.Grid, consent ConsentStore, toasts *notify.Recorder, cfg Config) *App {
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = DefaultConfig().RefreshRate
	}
	if cfg.SeekStep <= 0 {
		cfg.SeekStep = DefaultConfig().SeekStep
	}
	if cfg.VolumeStep <= 0 {
		cfg.VolumeStep = DefaultConfig().VolumeStep
	}
	a := &App{
		app:      tview.NewApplication(),
		config:   cfg,
		grid:     grid,
		consent:  consent,
		toastLog: toasts,
		ctx:      context.Background(),
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	// Card list
	a.cards = tview.NewList().
		ShowSecondaryText(true).
		SetHighlightFullLine(true)
	a.cards.SetBorder(true).
		SetTitle(" Tracks ").
		SetTitleAlign(tview.AlignLeft)
	a.cards.SetChangedFunc(func(index int, _ string, _ string, _ rune) {
		a.hoverIndex(index)
	})
	a.cards.SetSelectedFunc(func(index int, _ string, _ string, _ rune) {
		a.toggleIndex(index)
	})

	// Mini player
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	// Progress bar
	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	// Notifications
	a.toasts = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.toasts.SetBorder(true).
		SetTitle(" Notifications ").
		SetTitleAlign(tview.AlignLeft)

	// Status bar
	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.nowPlaying, 0, 3, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(a.toasts, maxToasts+2, 1, false)

	body := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.cards, 0, 1, true).
		AddItem(right, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.status, 1, 1, false)

	// Handle keyboard input
	a.app.SetInputCapture(a.handleKeyEvent)

	a.app.SetRoot(flex, true)
}

// handleKeyEvent processes keyboard input. Up/down and enter fall through
// to the list.
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyLeft:
		a.seekSelected(-a.config.SeekStep)
		return nil
	case tcell.KeyRight:
		a.seekSelected(a.config.SeekStep)
		return nil
	}

	switch event.Rune() {
	case 'q', 'Q':
		a.Stop()
		return nil
	case ' ':
		a.toggleIndex(a.cards.GetCurrentItem())
		return nil
	case '+', '=':
		a.changeVolume(a.config.VolumeStep)
		return nil
	case '-', '_':
		a.changeVolume(-a.config.VolumeStep)
		return nil
	case 'c', 'C':
		a.cycleConsent()
		return nil
	}
	return event
}

// Run shows the grid and blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	// Create cancellable context
	ctx, a.cancelFunc = context.WithCancel(ctx)
	a.ctx = ctx

	if a.consent != nil {
		if c, err := a.consent.Consent(ctx); err == nil {
			a.cookies = c
		}
	}

	a.populate()
	if a.toastLog != nil {
		a.toastLog.OnChange(func() { go a.refresh() })
	}

	// Start update goroutine
	go a.handleUpdates(ctx)

	// Run application
	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}

// populate fills the list from the grid's display order.
func (a *App) populate() {
	views := a.grid.Views()

	a.mu.Lock()
	a.ids = a.ids[:0]
	for _, v := range views {
		a.ids = append(a.ids, v.TrackID)
	}
	a.mu.Unlock()

	a.cards.Clear()
	for _, v := range views {
		a.cards.AddItem(cardLabel(v), cardDetail(v), 0, nil)
	}
	if len(views) > 0 {
		a.hoverIndex(0)
	}
}

// handleUpdates drives every redraw from a single ticker so queued
// redraws never pile up.
func (a *App) handleUpdates(ctx context.Context) {
	ticker := time.NewTicker(a.config.RefreshRate)
	defer ticker.Stop()

	a.refresh()
	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

func (a *App) card(index int) (*storefront.Card, bool) {
	a.mu.Lock()
	if index < 0 || index >= len(a.ids) {
		a.mu.Unlock()
		return nil, false
	}
	id := a.ids[index]
	a.mu.Unlock()
	return a.grid.Card(id)
}

// hoverIndex moves the pointer onto the card at index, leaving the
// previously hovered card first.
func (a *App) hoverIndex(index int) {
	next, ok := a.card(index)
	if !ok {
		return
	}

	a.mu.Lock()
	prevID := a.hovered
	a.hovered = next.ID()
	a.mu.Unlock()

	if prevID == next.ID() {
		return
	}
	if prev, ok := a.grid.Card(prevID); ok {
		prev.PointerLeave()
	}
	next.PointerEnter(a.ctx)
}

func (a *App) toggleIndex(index int) {
	c, ok := a.card(index)
	if !ok {
		return
	}
	// failures surface as toasts
	_ = c.TogglePlay(a.ctx)
}

func (a *App) seekSelected(delta time.Duration) {
	c, ok := a.card(a.cards.GetCurrentItem())
	if !ok {
		return
	}
	c.Seek(c.View().Position + delta)
}

func (a *App) changeVolume(delta float64) {
	a.grid.SetVolume(currentVolume(a.grid.Views()) + delta)
}

func (a *App) cycleConsent() {
	a.mu.Lock()
	next := nextConsent(a.cookies)
	a.cookies = next
	a.mu.Unlock()

	if a.consent != nil {
		_ = a.consent.SetConsent(a.ctx, next)
	}
}

// refresh updates all UI components
func (a *App) refresh() {
	views := a.grid.Views()
	current, playing := a.grid.NowPlaying()
	var toasts []notify.Toast
	if a.toastLog != nil {
		toasts = a.toastLog.Toasts()
	}

	a.app.QueueUpdateDraw(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		a.updateCards(views)
		a.updateNowPlaying(current, playing)
		a.updateProgress(current, playing)
		a.updateToasts(toasts)
		a.updateStatus(views)
	})
}

// updateCards rewrites list items in place so the selection is kept.
func (a *App) updateCards(views []storefront.View) {
	var sb strings.Builder
	for _, v := range views {
		sb.WriteString(cardLabel(v))
		sb.WriteString(cardDetail(v))
	}
	text := sb.String()
	if text == a.lastCards {
		return
	}
	a.lastCards = text

	for i, v := range views {
		if i >= a.cards.GetItemCount() {
			break
		}
		a.cards.SetItemText(i, cardLabel(v), cardDetail(v))
	}
}

// updateNowPlaying updates the mini player panel
func (a *App) updateNowPlaying(v storefront.View, ok bool) {
	text := nowPlayingText(v, ok)
	if text != a.lastNowPlaying {
		a.lastNowPlaying = text
		a.nowPlaying.SetText(text)
	}
}

// updateProgress updates the progress bar
func (a *App) updateProgress(v storefront.View, ok bool) {
	var text string

	if ok {
		_, _, width, _ := a.progress.GetInnerRect()
		barWidth := width - 14 // Account for time display
		// Only update cached width when GetInnerRect returns a positive value,
		// avoiding flicker from transient zero-width during layout.
		if barWidth > 0 {
			a.lastBarWidth = barWidth
		}
		if a.lastBarWidth < 10 {
			a.lastBarWidth = 10
		}

		progressBar := buildProgressBar(v.Position, v.Duration, a.lastBarWidth)
		text = fmt.Sprintf("%s %s %s", formatDuration(v.Position), progressBar, formatDuration(v.Duration))
	}

	if text != a.lastProgress {
		a.lastProgress = text
		a.progress.SetText(text)
	}
}

// updateToasts shows the newest notifications, newest last
func (a *App) updateToasts(toasts []notify.Toast) {
	if len(toasts) > maxToasts {
		toasts = toasts[len(toasts)-maxToasts:]
	}

	var sb strings.Builder
	if len(toasts) == 0 {
		sb.WriteString("[gray]Nothing yet[-]")
	}
	for i, t := range toasts {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(formatToast(t))
	}

	text := sb.String()
	if text != a.lastToasts {
		a.lastToasts = text
		a.toasts.SetText(text)
	}
}

func (a *App) updateStatus(views []storefront.View) {
	text := fmt.Sprintf("[gray]q:quit  space:play/pause  ←/→:seek  +/-:volume %d%%  c:cookies (%s)[-]",
		int(currentVolume(views)*100+0.5), a.cookies)
	if text != a.lastStatus {
		a.lastStatus = text
		a.status.SetText(text)
	}
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

func cardLabel(v storefront.View) string {
	return fmt.Sprintf("%s %s", statusIcon(v), tview.Escape(v.Title))
}

func cardDetail(v storefront.View) string {
	detail := v.Artist
	if v.Duration > 0 {
		detail += "  " + formatDuration(v.Duration)
	}
	if v.Error != "" {
		detail += "  [red]" + tview.Escape(v.Error) + "[-]"
	}
	return detail
}

// statusIcon marks what a card is doing: previewing, playing, paused,
// loading or idle.
func statusIcon(v storefront.View) string {
	switch {
	case v.Hover.State == hover.StatePreviewing:
		return "[blue]◉[-]"
	case v.Hover.State == hover.StatePending:
		return "[gray]○[-]"
	case v.Status == media.StatusPlaying:
		return "[green]▶[-]"
	case v.Status == media.StatusPaused:
		return "[yellow]⏸[-]"
	case v.Status == media.StatusLoading:
		return "[gray]…[-]"
	case v.Status == media.StatusErrored:
		return "[red]✗[-]"
	default:
		return " "
	}
}

func nowPlayingText(v storefront.View, ok bool) string {
	if !ok {
		return "\n\n[gray]Nothing playing[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(v.Title)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]", tview.Escape(v.Artist)))
	if v.Hover.State == hover.StatePreviewing {
		sb.WriteString("\n[blue]preview[-]")
	}
	sb.WriteString(fmt.Sprintf("\n\n%s", statusIcon(v)))
	return sb.String()
}

func formatToast(t notify.Toast) string {
	color := "white"
	if t.Level == notify.LevelError {
		color = "red"
	}
	return fmt.Sprintf("[gray]%s[-] [%s]%s[-]", t.At.Format("15:04:05"), color, tview.Escape(t.Message))
}

// nextConsent cycles unset -> all -> necessary-only -> unset.
func nextConsent(c prefs.Consent) prefs.Consent {
	switch c {
	case prefs.ConsentUnset:
		return prefs.ConsentAll
	case prefs.ConsentAll:
		return prefs.ConsentNecessaryOnly
	default:
		return prefs.ConsentUnset
	}
}

// currentVolume reads the user volume off any mounted card.
func currentVolume(views []storefront.View) float64 {
	if len(views) == 0 {
		return prefs.DefaultVolume
	}
	return views[0].Volume
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration time.Duration, width int) string {
	if duration == 0 || width <= 0 {
		return strings.Repeat("-", max(width, 0))
	}

	progress := float64(position) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	filled := int(progress * float64(width))
	empty := width - filled

	bar := "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"

	return bar
}

// formatDuration formats a duration as MM:SS or HH:MM:SS for longer durations
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
