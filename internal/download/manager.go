package download

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pagepack/pagepack/internal/archive"
	"github.com/pagepack/pagepack/internal/config"
	"github.com/pagepack/pagepack/internal/engine"
	"github.com/pagepack/pagepack/internal/engine/batch"
	"github.com/pagepack/pagepack/internal/engine/events"
	"github.com/pagepack/pagepack/internal/engine/retry"
	"github.com/pagepack/pagepack/internal/engine/types"
	"github.com/pagepack/pagepack/internal/gallery"
	"github.com/pagepack/pagepack/internal/queue"
)

// PipelineOptions are the inputs needed to build a Pipeline.
type PipelineOptions struct {
	Settings *config.Settings
	Runtime  *types.RuntimeConfig // Per-run overrides; derived from Settings when nil
	History  Recorder             // Optional
	Now      time.Time            // Archive timestamp, defaults to time.Now

	Client         *http.Client    // Defaults to engine.NewHTTPClient
	GalleryOptions []gallery.Option // Extra options for the metadata client
	FetcherOptions []retry.Option   // Extra options for the resilient fetcher
}

// Pipeline is everything a run needs: the queue, the worker and the sink.
// Events carries events.* messages; it must be drained.
type Pipeline struct {
	Queue        *queue.DownloadQueue
	Runner       *Runner
	Orchestrator *Orchestrator
	Archive      archive.Archive
	Events       chan any

	ctx         context.Context
	unsubscribe func()
}

// NewPipeline builds the fetch chain, opens the archive and starts the worker.
func NewPipeline(ctx context.Context, opts PipelineOptions) (*Pipeline, error) {
	settings := opts.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}
	rc := opts.Runtime
	if rc == nil {
		rc = types.ConvertRuntimeConfig(settings.ToRuntimeConfig())
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	client := opts.Client
	if client == nil {
		client = engine.NewHTTPClient(rc)
	}

	arc, err := archive.Open(archive.Format(settings.General.OutputFormat), settings.General.OutputDir, now)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	p := &Pipeline{
		Queue:  queue.New(),
		Events: make(chan any, types.ProgressChannelBuffer),
		ctx:    ctx,
	}

	// The orchestrator is created after the fetcher, so the retry hook
	// resolves it lazily.
	var orch *Orchestrator
	fetcherOpts := []retry.Option{
		retry.WithUserAgent(rc.GetUserAgent()),
		retry.WithCookie(rc.Cookie),
		retry.WithOnRetry(func(ev retry.RetryEvent) {
			if orch != nil {
				orch.NotifyRetry(ev)
			}
		}),
	}
	fetcher := retry.NewFetcher(client, append(fetcherOpts, opts.FetcherOptions...)...)

	orch = NewOrchestrator(
		gallery.NewClient(fetcher, rc, opts.GalleryOptions...),
		batch.New(fetcher, retry.PolicyFromConfig(rc), nil),
		arc,
		WithLayout(archive.Layout{
			Template:   settings.General.FilenameTemplate,
			Subfolders: settings.General.CreateSubfolders,
		}),
		WithHistory(opts.History),
		WithConcurrency(rc.GetConcurrency()),
		WithReporter(p.Send),
	)
	p.Orchestrator = orch
	p.Archive = arc
	p.unsubscribe = p.Queue.Subscribe(func(ev queue.Event) {
		if ev.Type == queue.EventAdd && ev.Item != nil {
			p.Send(events.ItemQueuedMsg{ItemID: ev.Item.ID, Title: ev.Item.Title})
		}
	})
	p.Runner = NewRunner(ctx, orch, p.Queue)
	return p, nil
}

// Enqueue adds one pending item per id and returns how many were new.
func (p *Pipeline) Enqueue(ids []string) int {
	items := make([]queue.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, queue.Item{ID: id, Title: "Gallery " + id})
	}
	return p.Queue.AddBatch(items)
}

// Send delivers msg to Events unless the pipeline context has ended.
func (p *Pipeline) Send(msg any) {
	select {
	case p.Events <- msg:
	case <-p.ctx.Done():
	}
}

// Close stops the worker and finalizes the archive. The archive is
// discarded when nothing completed.
func (p *Pipeline) Close() (Summary, error) {
	sum := p.Runner.GracefulShutdown()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	if p.Queue.Stats().Completed == 0 {
		return sum, p.Archive.Abort()
	}
	return sum, p.Archive.Close()
}
