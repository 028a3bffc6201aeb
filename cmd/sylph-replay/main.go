package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"

	"sylph/internal/guidance"
	"sylph/internal/landmark"
	"sylph/internal/perf"
	"sylph/internal/platform/config"
	"sylph/internal/provider"
	"sylph/internal/session"
	"sylph/internal/tier"
	"sylph/internal/vision"
)

// report is printed to stdout once the replay ends. Summary matches what
// the server's summary endpoint returns for a live session.
type report struct {
	Script      string           `json:"script"`
	Frames      int              `json:"frames"`
	Ingested    int              `json:"ingested"`
	Skipped     int              `json:"skipped"`
	Summary     *session.Summary `json:"summary"`
	Performance perf.Metrics     `json:"performance"`
}

func main() {
	var (
		tierF     = flag.String("tier", "", "Tier to replay under (basic, standard or premium)")
		fpsF      = flag.Float64("fps", 0, "Pace frames at a fixed rate instead of replaying flat out")
		realtimeF = flag.Bool("realtime", false, "Pace frames by their recorded timestamps")
		snapsF    = flag.String("snapshots", "", "Write per-tick snapshots to this file as JSON lines")
		quietF    = flag.Bool("q", false, "Suppress engine logs and the progress bar")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] script.jsonl\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Replays a recorded landmark script through the processing pipeline")
		fmt.Fprintln(os.Stderr, "and prints the session summary. Use - to read from stdin.")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	logger := log.New(os.Stderr, "[sylph] ", log.Ltime)
	if *quietF {
		logger = log.New(io.Discard, "", 0)
	}

	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			config.Exitf("open script: %v", err)
		}
		defer f.Close()
		in = f
	}
	frames, err := provider.ReadScript(in)
	if err != nil {
		config.Exitf("read script: %v", err)
	}
	if len(frames) == 0 {
		config.Exitf("script %s holds no frames", path)
	}

	// Pacing happens in this loop, so the engine's own limiter is set out
	// of the way.
	opts := vision.DefaultOptions()
	opts.TargetFPS = 1000
	if *tierF != "" {
		t, err := tier.Parse(*tierF)
		if err != nil {
			config.Exitf("Error: %v", err)
		}
		opts.Tier = t
	}

	coach, err := guidance.NewCoach("en")
	if err != nil {
		config.Exitf("load guidance catalogs: %v", err)
	}

	// Scripted pose landmarks stand in for a live pose runtime: the premium
	// tier is reachable exactly when the recording carries pose data.
	scriptHasPose := false
	for _, f := range frames {
		if f.HasPose() {
			scriptHasPose = true
			break
		}
	}

	deps := vision.Deps{
		Coach:         coach,
		PoseAvailable: scriptHasPose,
		Logger:        logger,
	}
	limits := session.Limits{MaxConcurrent: 1, IdleTimeout: time.Hour, MaxAge: 24 * time.Hour}
	registry := session.NewRegistry(opts, deps, limits, logger)
	defer registry.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := registry.Start(ctx, nil)
	if err != nil {
		config.Exitf("start session: %v", err)
	}

	var snaps *json.Encoder
	if *snapsF != "" {
		out, err := os.Create(*snapsF)
		if err != nil {
			config.Exitf("create snapshot file: %v", err)
		}
		defer out.Close()
		snaps = json.NewEncoder(out)
	}

	var bar *pb.ProgressBar
	if !*quietF {
		bar = pb.StartNew(len(frames)).SetWriter(os.Stderr)
	}

	var gap time.Duration
	if *fpsF > 0 {
		gap = time.Duration(float64(time.Second) / *fpsF)
	}

	rep := report{Script: path, Frames: len(frames)}
	var prev time.Time
	for i, f := range frames {
		if wait := pause(f, prev, gap, *realtimeF); wait > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
		if ctx.Err() != nil {
			logger.Printf("interrupted after %d frames", rep.Ingested+rep.Skipped)
			break
		}
		prev = f.Timestamp

		snap, err := sess.Ingest(ctx, f)
		switch {
		case err == nil:
			rep.Ingested++
			if snaps != nil {
				if err := snaps.Encode(snap); err != nil {
					config.Exitf("write snapshot: %v", err)
				}
			}
		case errors.Is(err, vision.ErrThrottled), errors.Is(err, vision.ErrBusy):
			rep.Skipped++
		case ctx.Err() != nil:
			continue
		default:
			config.Exitf("frame %d: %v", i+1, err)
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}

	// Read performance before the stop tears the engine down.
	rep.Performance = sess.Engine().PerformanceReport()
	sum, err := registry.Stop(sess.ID())
	if err != nil {
		config.Exitf("stop session: %v", err)
	}
	rep.Summary = sum

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		config.Exitf("write report: %v", err)
	}
}

// pause computes the delay before the next frame goes in. Recorded gaps
// longer than a second replay as a single second so pauses in the source
// recording do not stall the run.
func pause(f *landmark.Frame, prev time.Time, gap time.Duration, realtime bool) time.Duration {
	if !realtime {
		return gap
	}
	if prev.IsZero() || f.Timestamp.IsZero() {
		return 0
	}
	d := f.Timestamp.Sub(prev)
	if d < 0 {
		return 0
	}
	if d > time.Second {
		return time.Second
	}
	return d
}
