// Package runner holds process-level plumbing: configuration, logging
// setup, the run-mode dispatch and the startup banner. The actual scrape
// worker lives in runner/scrapeworker.
package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const (
	RunModeWorker = iota + 1
	RunModeInstallPlaywright
)

var ErrInvalidRunMode = errors.New("invalid run mode")

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

type Config struct {
	Dsn                 string
	DryRun              bool
	Debug               bool
	Headful             bool
	CycleInterval       time.Duration
	AnalysisEveryCycles int
	RetryAttempts       int
	RetryDelay          time.Duration
	PostHogKey          string
	PostHogEndpoint     string
	WebhookURL          string
	RunMode             int
}

// ParseConfig reads flags and the environment. A .env file in the
// working directory is loaded first so local runs need no exported
// variables.
func ParseConfig() *Config {
	_ = godotenv.Load()

	cfg := Config{}

	if os.Getenv("PLAYWRIGHT_INSTALL_ONLY") == "1" {
		cfg.RunMode = RunModeInstallPlaywright

		return &cfg
	}

	flag.StringVar(&cfg.Dsn, "dsn", "", "database connection string [default: $DATABASE_URL]")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "scrape without writing to the database")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flag.BoolVar(&cfg.Headful, "headful", false, "open a visible browser window")
	flag.DurationVar(&cfg.CycleInterval, "interval", 10*time.Minute, "pause between scrape cycles")
	flag.IntVar(&cfg.AnalysisEveryCycles, "analysis-every", 5, "run the resource analysis every N cycles")
	flag.IntVar(&cfg.RetryAttempts, "retry-attempts", 3, "attempts per product visit and per persistence write")
	flag.DurationVar(&cfg.RetryDelay, "retry-delay", 2*time.Second, "fixed delay between retry attempts")

	flag.Parse()

	if cfg.Dsn == "" {
		cfg.Dsn = os.Getenv("DATABASE_URL")
	}

	cfg.PostHogKey = os.Getenv("POSTHOG_API_KEY")
	cfg.PostHogEndpoint = os.Getenv("POSTHOG_ENDPOINT")
	cfg.WebhookURL = os.Getenv("NOTIFY_WEBHOOK_URL")

	if cfg.Dsn == "" && !cfg.DryRun {
		panic("DATABASE_URL must be provided unless running with -dry-run")
	}

	if cfg.CycleInterval <= 0 {
		panic("interval must be greater than 0")
	}

	if cfg.RetryAttempts < 1 {
		panic("retry-attempts must be greater than 0")
	}

	cfg.RunMode = RunModeWorker

	return &cfg
}

// SetupLogging configures the global zerolog logger. Debug switches the
// level and a console writer replaces JSON when stderr is a terminal.
func SetupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func wrapText(text string, width int) []string {
	var lines []string

	currentLine := ""
	currentWidth := 0

	for _, r := range text {
		runeWidth := runewidth.RuneWidth(r)
		if currentWidth+runeWidth > width {
			lines = append(lines, currentLine)
			currentLine = string(r)
			currentWidth = runeWidth
		} else {
			currentLine += string(r)
			currentWidth += runeWidth
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}

func banner(messages []string, width int) string {
	if width <= 0 {
		var err error

		width, _, err = term.GetSize(0)
		if err != nil {
			width = 80
		}
	}

	if width < 20 {
		width = 20
	}

	contentWidth := width - 4

	var wrappedLines []string
	for _, message := range messages {
		wrappedLines = append(wrappedLines, wrapText(message, contentWidth)...)
	}

	var builder strings.Builder

	builder.WriteString("╔" + strings.Repeat("═", width-2) + "╗\n")

	for _, line := range wrappedLines {
		lineWidth := runewidth.StringWidth(line)
		paddingRight := contentWidth - lineWidth

		if paddingRight < 0 {
			paddingRight = 0
		}

		builder.WriteString(fmt.Sprintf("║ %s%s ║\n", line, strings.Repeat(" ", paddingRight)))
	}

	builder.WriteString("╚" + strings.Repeat("═", width-2) + "╝\n")

	return builder.String()
}

func Banner() {
	message1 := "🥇 Bullionwatch Price Scraper"
	message2 := "Tracks live bullion listings across dealers with a single long-lived browser session"

	fmt.Fprintln(os.Stderr, banner([]string{message1, message2}, 0))
}
