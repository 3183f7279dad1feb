// Command spacesbot runs the Twitter Spaces mention pipeline: poll for
// mentions, acquire audio through the interactive scraper session,
// drive dubbing or summarization jobs through the SpeechLab backend,
// and reply once per mention.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/config"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/dispatch"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/eventlog"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/metrics"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/orchestrator"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/persistence"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/poller"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/scraper"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/speechlab"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/state"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/storage"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/summarize"
	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/worker"
)

func main() {
	var configPath string
	var skipBacklog bool
	var replyTransport string
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.BoolVar(&skipBacklog, "skip-backlog", false, "Mark all currently visible mentions processed without enqueueing")
	flag.StringVar(&replyTransport, "reply-transport", "", "Reply transport: agent or api (overrides config)")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if skipBacklog {
		cfg.SkipBacklog = true
	}
	if replyTransport != "" {
		cfg.ReplyTransport = config.ReplyTransport(replyTransport)
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid flags: %v", err)
		}
	}

	logger := logx.NewLogger("spacesbot")
	logger.Info("starting in %s mode", cfg.Mode)

	if err := os.MkdirAll(filepath.Dir(cfg.StateFile), 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := state.NewStore(cfg.StateFile)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	ledger, err := eventlog.NewLedger(cfg.ErrorLedgerFile)
	if err != nil {
		log.Fatalf("Failed to open error ledger: %v", err)
	}

	var archiver *persistence.Archiver
	if cfg.ArchiveDB != "" {
		archiver, err = persistence.Open(cfg.ArchiveDB)
		if err != nil {
			log.Fatalf("Failed to open job archive: %v", err)
		}
		defer func() {
			if err := archiver.Close(); err != nil {
				logger.Error("archive close failed: %v", err)
			}
		}()
	}

	var recorder *metrics.Recorder
	if cfg.MetricsAddr != "" {
		recorder = metrics.NewRecorder()
		go metrics.Serve(cfg.MetricsAddr)
		logger.Info("metrics listening on %s", cfg.MetricsAddr)
	}

	var agent scraper.Agent = scraper.NewHTTPAgent(cfg.Scraper.BaseURL, cfg.Scraper.APIKey)
	if cfg.ReplyTransport == config.ReplyTransportAPI {
		agent = scraper.NewAPIReplyAgent(agent, cfg.Scraper.BaseURL+"/replies", cfg.Scraper.APIKey)
	}

	backend := speechlab.NewHTTPClient(cfg.SpeechLab.BaseURL, cfg.SpeechLab.APIKey)
	objects := storage.NewHTTPStore(cfg.Storage.BaseURL, cfg.Storage.Bucket, cfg.Storage.PublicURL)
	summarizer, err := summarize.New(cfg.Summarizer)
	if err != nil {
		log.Fatalf("Failed to build summarizer: %v", err)
	}

	orch := orchestrator.New(store, backend, objects, summarizer, recorder, cfg.Timing)
	initiation := worker.NewInitiationWorker(agent, store, ledger, recorder, cfg.SourceLang, cfg.TargetLang)

	var jobArchiver worker.JobArchiver
	if archiver != nil {
		jobArchiver = archiver
	}
	reply := worker.NewReplyWorker(agent, store, ledger, recorder, jobArchiver)

	scheduler := dispatch.NewScheduler(nil, initiation, orch, reply, cfg.Timing.PollInterval, cfg.Timing.SchedulerTick)
	intake := poller.New(store, agent, scheduler.IntakeQueue(), recorder, cfg.SkipBacklog)
	scheduler.SetSource(intake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Jobs a previous run left non-terminal get an owner again before
	// the poll loop starts, so their mentions are neither resubmitted
	// nor stranded.
	scheduler.ResumeInFlight(ctx, store.Jobs(), orch)

	go scheduler.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal %v, shutting down", sig)

	// Timers stop first so no new work is dispatched; in-flight backend
	// jobs resume from persisted state on next startup.
	scheduler.Stop()
	cancel()
	logger.Info("shutdown complete")
}
