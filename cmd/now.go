package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/jfmyers9/nada/internal/config"
	"github.com/jfmyers9/nada/internal/daemon"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display what the storefront is playing",
	Long: `Ask a running 'nada serve' what is playing and print it.

When the server cannot be reached, the state file it keeps in the data
directory is used instead.

The output format can be customized in ~/.config/nada/config.yaml
using a Go template. Available fields: .Title, .Artist, .Status,
.Position, .Duration, .Remaining, .Preview

Exit codes:
  0 - A track or preview is playing
  1 - Nothing playing, paused, or no server running`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	// Add format flag to override config
	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	// Add width flag to set fixed output width
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	// Add marquee flag to enable scrolling
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
	// Add addr flag to pick the server
	nowCmd.Flags().String("addr", "", "Server address (default from config listen)")
}

func runNow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Check for format flag override
	formatFlag, _ := cmd.Flags().GetString("format")
	if formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Listen
	}

	np, ok, err := fetchNowPlaying(ctx, http.DefaultClient, serverURL(addr))
	if err != nil {
		// Server not running; fall back to its last snapshot
		snap, readErr := daemon.ReadState(cfg.StateFile())
		if readErr != nil {
			os.Exit(1)
			return nil
		}
		np, ok = snap, true
	}

	// If not playing, exit with code 1
	if !ok || !np.Playing() {
		os.Exit(1)
		return nil
	}

	// Format and print output
	output, err := formatTrack(np, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	// Apply width padding/marquee if requested
	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	marquee, _ := cmd.Flags().GetBool("marquee")
	if !marquee && !cmd.Flags().Changed("marquee") {
		// Flag not set, use config default
		marquee = cfg.MarqueeEnabled
	}

	if width > 0 {
		if marquee {
			output = marqueeText(output, width, cfg.MarqueeSpeed, cfg.MarqueeSeparator)
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// serverURL turns a listen address such as ":8080" into a base URL.
func serverURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// nowPlayingResponse is the card view served by /api/now-playing.
type nowPlayingResponse struct {
	TrackID  string  `json:"track_id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Status   string  `json:"status"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Hover    struct {
		State string `json:"state"`
	} `json:"hover"`
}

// fetchNowPlaying asks the server for the mini player. ok is false when
// nothing owns playback.
func fetchNowPlaying(ctx context.Context, client *http.Client, baseURL string) (daemon.NowPlaying, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/now-playing", nil)
	if err != nil {
		return daemon.NowPlaying{}, false, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return daemon.NowPlaying{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return daemon.NowPlaying{}, false, nil
	case http.StatusOK:
	default:
		return daemon.NowPlaying{}, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body nowPlayingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return daemon.NowPlaying{}, false, fmt.Errorf("failed to decode now playing: %w", err)
	}

	return daemon.NowPlaying{
		TrackID:   body.TrackID,
		Title:     body.Title,
		Artist:    body.Artist,
		Status:    body.Status,
		Position:  time.Duration(body.Position * float64(time.Second)),
		Duration:  time.Duration(body.Duration * float64(time.Second)),
		Preview:   body.Hover.State == "previewing",
		UpdatedAt: time.Now(),
	}, true, nil
}

// formatTrack applies the template to the track data
func formatTrack(np daemon.NowPlaying, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, np); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to exactly width display columns.
// Truncated text ends in "...". A width <= 0 leaves text unchanged.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)
	switch {
	case currentWidth < width:
		return text + strings.Repeat(" ", width-currentWidth)
	case currentWidth == width:
		return text
	}

	const ellipsis = "..."
	ellipsisWidth := runewidth.StringWidth(ellipsis)
	if width <= ellipsisWidth {
		return runewidth.Truncate(ellipsis, width, "")
	}

	result := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
	// a wide rune at the cut can leave one column short
	if resultWidth := runewidth.StringWidth(result); resultWidth < width {
		result += strings.Repeat(" ", width-resultWidth)
	}
	return result
}

// extractWindow returns exactly width display columns of text starting at
// column startPos, padding with spaces when text runs out. Wide runes
// (emoji, CJK) count as two columns.
func extractWindow(text string, startPos int, width int) string {
	if width <= 0 {
		return ""
	}

	var sb strings.Builder
	pos, got := 0, 0
	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if pos < startPos {
			pos += rw
			continue
		}
		if got+rw > width {
			break
		}
		sb.WriteRune(r)
		got += rw
	}

	if got < width {
		sb.WriteString(strings.Repeat(" ", width-got))
	}
	return sb.String()
}

// marqueeText scrolls text wider than width through a fixed window.
// Text that fits is padded instead. The scroll position is derived from
// the clock, so repeated calls (a tmux status line refreshing every few
// seconds) step through the text without keeping state.
func marqueeText(text string, width int, speed int, separator string) string {
	return marqueeAt(text, width, speed, separator, time.Now())
}

func marqueeAt(text string, width int, speed int, separator string, now time.Time) string {
	if width <= 0 {
		return text
	}

	// If text fits, just pad normally (no scrolling needed)
	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}

	// "text{sep}" repeats forever; one extra copy covers the window wrap
	loop := text + separator
	loopWidth := runewidth.StringWidth(loop)
	position := int(now.Unix()*int64(speed)) % loopWidth
	if position < 0 {
		position += loopWidth
	}

	return extractWindow(loop+text, position, width)
}
