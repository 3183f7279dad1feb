// Package poller implements the intake scan: fetch the recent mention
// feed, drop everything already handled or already queued, and push
// genuinely new mentions into the intake queue.
package poller

import (
	"context"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/dispatch"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/metrics"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/proto"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/scraper"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/state"
)

// Poller filters the mention feed against durable and in-memory state.
// A mention is enqueued at most once per queue residency; everything
// else is either skipped silently (in flight) or marked processed
// (terminal job found without a recorded reply, e.g. after a crash).
type Poller struct {
	store    *state.Store
	agent    scraper.Agent
	intake   *dispatch.Queue[proto.MentionEvent]
	recorder *metrics.Recorder
	logger   *logx.Logger

	// skipBacklog marks every mention visible on the first scan as
	// processed instead of enqueueing it. Used on first deployment so
	// the bot does not chew through months of old mentions.
	skipBacklog bool
	firstScan   bool
}

func New(store *state.Store, agent scraper.Agent, intake *dispatch.Queue[proto.MentionEvent], recorder *metrics.Recorder, skipBacklog bool) *Poller {
	return &Poller{
		store:       store,
		agent:       agent,
		intake:      intake,
		recorder:    recorder,
		logger:      logx.NewLogger("poller"),
		skipBacklog: skipBacklog,
		firstScan:   true,
	}
}

// Poll runs one intake scan. Scrape failures are logged and swallowed;
// the next interval retries from scratch.
func (p *Poller) Poll(ctx context.Context) {
	mentions, err := p.agent.ScrapeMentions(ctx)
	if err != nil {
		p.logger.Error("mention scan failed: %v", err)
		return
	}

	backlogScan := p.firstScan && p.skipBacklog
	p.firstScan = false

	seen := make(map[string]struct{}, len(mentions))
	enqueued := 0
	for _, m := range mentions {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}

		if p.recorder != nil {
			p.recorder.ObserveMentionDiscovered()
		}

		if p.store.IsProcessed(m.ID) {
			continue
		}
		if p.intake.Contains(m.ID) {
			continue
		}

		if backlogScan {
			if err := p.store.MarkProcessed(m.ID); err != nil {
				p.logger.Error("failed to mark backlog mention %s: %v", m.ID, err)
			}
			continue
		}

		if job := p.store.FindJobByMention(m.ID); job != nil {
			if job.Status.IsTerminal() {
				// Job finished but the reply was never recorded,
				// likely a crash between completion and reply. There
				// is no outcome to re-derive, so close the mention out
				// rather than resubmit work that already ran.
				p.logger.Warn("mention %s has terminal job %s (%s) but was never marked, closing out", m.ID, job.IdempotencyKey, job.Status)
				if err := p.store.MarkProcessed(m.ID); err != nil {
					p.logger.Error("failed to mark mention %s: %v", m.ID, err)
				}
			}
			// Non-terminal: a worker owns this mention. Leave it alone
			// and let the owning flow finish or fail.
			continue
		}

		if p.intake.Push(m) {
			enqueued++
			if p.recorder != nil {
				p.recorder.ObserveMentionEnqueued()
			}
		}
	}

	if backlogScan {
		p.logger.Info("backlog scan: %d mentions marked processed without enqueueing", len(seen))
		return
	}
	if enqueued > 0 {
		p.logger.Info("scan complete: %d seen, %d enqueued", len(seen), enqueued)
	} else {
		p.logger.Debug("scan complete: %d seen, nothing new", len(seen))
	}
}
