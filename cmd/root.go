package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pagepack/pagepack/internal/config"
	"github.com/pagepack/pagepack/internal/download"
	"github.com/pagepack/pagepack/internal/engine/events"
	"github.com/pagepack/pagepack/internal/history"
	"github.com/pagepack/pagepack/internal/logger"
	"github.com/pagepack/pagepack/internal/tui"
	"github.com/pagepack/pagepack/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var errNoIDs = errors.New("no gallery ids given (pass ids or URLs, --batch or --clipboard)")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagepack [id|url]...",
	Short: "Batch downloader for gallery pages",
	Long: `pagepack fetches every page of one or more galleries, retrying flaky
requests with backoff, and packs the results into a single archive per run.`,
	Version:      Version,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runRoot,
}

func runRoot(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if err := applyFlagOverrides(cmd, settings); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	batchFile, _ := cmd.Flags().GetString("batch")
	fromClipboard, _ := cmd.Flags().GetBool("clipboard")
	ids, err := collectIDs(args, batchFile, fromClipboard)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errNoIDs
	}

	if err := initializeGlobalState(settings); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	isMaster, err := AcquireLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !isMaster {
		return errors.New("pagepack is already running")
	}
	defer ReleaseLock()

	store, err := history.Open(config.GetHistoryDBPath())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = store.Close() }()

	force, _ := cmd.Flags().GetBool("force")
	headless, _ := cmd.Flags().GetBool("headless")
	jsonOut, _ := cmd.Flags().GetBool("json")

	run := downloadRun{
		ids:      ids,
		settings: settings,
		force:    force,
		jsonOut:  jsonOut,
		out:      cmd.OutOrStdout(),
		history:  store,
	}

	if headless || jsonOut {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		_, err := runHeadless(cmd.Context(), run, sigCh)
		return err
	}
	return runTUI(cmd.Context(), run)
}

// historyStore is the part of the download history a run needs.
// *history.Store satisfies it.
type historyStore interface {
	download.Recorder
	KnownIDs(ctx context.Context, ids []string) (map[string]bool, error)
}

// downloadRun is everything one invocation needs to build its pipeline.
type downloadRun struct {
	ids      []string
	settings *config.Settings
	force    bool
	jsonOut  bool
	out      io.Writer
	history  historyStore

	configure func(*download.PipelineOptions) // Tests point the pipeline at a mock server
}

func (r downloadRun) pipelineOptions() download.PipelineOptions {
	opts := download.PipelineOptions{Settings: r.settings}
	if r.history != nil {
		opts.History = r.history
	}
	if r.configure != nil {
		r.configure(&opts)
	}
	return opts
}

// partition splits the ids into those to download and those already in the
// history. Nothing is skipped with --force or skip_downloaded off, and a
// failed lookup downloads everything.
func (r downloadRun) partition(ctx context.Context) (fresh, known []string) {
	if r.history == nil || r.force || !r.settings.General.SkipDownloaded {
		return r.ids, nil
	}
	set, err := r.history.KnownIDs(ctx, r.ids)
	if err != nil {
		logger.L().Warnw("History lookup failed", "error", err)
		return r.ids, nil
	}
	for _, id := range r.ids {
		if set[id] {
			known = append(known, id)
		} else {
			fresh = append(fresh, id)
		}
	}
	return fresh, known
}

func skippedMsg(id string) events.ItemSkippedMsg {
	return events.ItemSkippedMsg{ItemID: id, Reason: "already downloaded"}
}

// runHeadless drives one run without the TUI. The first signal asks the run
// to stop at the next boundary, the second aborts in-flight requests.
func runHeadless(ctx context.Context, r downloadRun, signals <-chan os.Signal) (download.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := download.NewPipeline(ctx, r.pipelineOptions())
	if err != nil {
		return download.Summary{}, err
	}

	printer := newEventPrinter(r.out, r.jsonOut)
	done := StartHeadlessConsumer(p.Events, printer)

	go func() {
		interrupts := 0
		for {
			select {
			case <-signals:
				interrupts++
				if interrupts == 1 {
					printer.notice("Interrupt received, stopping after the current window (press again to abort)")
					p.Runner.Cancel()
					continue
				}
				p.Runner.Abort()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	fresh, known := r.partition(ctx)
	for _, id := range known {
		printer.print(skippedMsg(id))
	}
	added := p.Enqueue(fresh)
	utils.Debug("Queued %d galleries, skipped %d", added, len(known))
	if added > 0 && p.Runner.Start() {
		p.Runner.Wait()
	}

	sum, closeErr := p.Close()
	close(p.Events)
	<-done

	printer.summary(sum, len(known), p.Archive.Path())
	if closeErr != nil {
		return sum, fmt.Errorf("finalize archive: %w", closeErr)
	}
	return sum, nil
}

// StartHeadlessConsumer prints every event until events is closed. The
// returned channel is closed once the last event was printed.
func StartHeadlessConsumer(events <-chan any, printer *eventPrinter) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range events {
			printer.print(msg)
		}
	}()
	return done
}

// runTUI runs the dashboard. Items are queued from a goroutine because the
// event channel is only drained once the program is running.
func runTUI(ctx context.Context, r downloadRun) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := download.NewPipeline(ctx, r.pipelineOptions())
	if err != nil {
		return err
	}

	tui.ApplyColorProfile(false)
	m := tui.NewModel(tui.Options{
		Queue:    p.Queue,
		Runner:   p.Runner,
		Events:   p.Events,
		Settings: r.settings,
	})
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	fresh, known := r.partition(ctx)
	queued := make(chan struct{})
	go func() {
		defer close(queued)
		for _, id := range known {
			p.Send(skippedMsg(id))
		}
		if p.Enqueue(fresh) > 0 {
			p.Runner.Start()
		}
	}()

	_, runErr := prog.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) || errors.Is(runErr, tea.ErrInterrupted) {
		runErr = nil
	}

	// Nobody reads events once the program is gone.
	drained := StartHeadlessConsumer(p.Events, newEventPrinter(io.Discard, false))
	<-queued
	sum, closeErr := p.Close()
	close(p.Events)
	<-drained

	printer := newEventPrinter(r.out, false)
	printer.summary(sum, len(known), p.Archive.Path())

	if runErr != nil {
		return fmt.Errorf("run TUI: %w", runErr)
	}
	return closeErr
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addRootFlags(rootCmd)
	rootCmd.SetVersionTemplate("pagepack version {{.Version}}\n")
	rootCmd.AddCommand(historyCmd, settingsCmd, versionCmd)
}

func addRootFlags(c *cobra.Command) {
	c.Flags().StringP("batch", "b", "", "File containing gallery ids or URLs (one per line)")
	c.Flags().StringP("output", "o", "", "Output directory")
	c.Flags().String("format", "", "Archive format: zip or dir")
	c.Flags().IntP("concurrency", "c", 0, "Pages fetched in parallel (1-32)")
	c.Flags().Int("max-retries", -1, "Retries per request")
	c.Flags().Duration("base-delay", 0, "First backoff delay, doubled per attempt")
	c.Flags().IntSlice("retry-status", nil, "HTTP statuses that are retried")
	c.Flags().Bool("headless", false, "Print progress lines instead of the TUI")
	c.Flags().Bool("json", false, "Print events as JSON lines (implies --headless)")
	c.Flags().Bool("clipboard", false, "Read gallery ids from the clipboard")
	c.Flags().BoolP("force", "f", false, "Download galleries that are already in the history")
}

// initializeGlobalState creates the state directories and points the logger
// at the log file; the terminal belongs to the TUI or the progress printer.
func initializeGlobalState(settings *config.Settings) error {
	if err := config.EnsureDirs(); err != nil {
		return fmt.Errorf("create state dirs: %w", err)
	}
	if err := logger.InitWithOptions(logger.Options{
		Level:  settings.General.LogLevel,
		Format: settings.General.LogFormat,
		Paths:  []string{config.GetLogPath()},
	}); err != nil {
		return err
	}
	utils.Debug("pagepack %s starting at %s", Version, time.Now().Format(time.RFC3339))
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pagepack %s (built %s)\n", Version, BuildTime)
	},
}
