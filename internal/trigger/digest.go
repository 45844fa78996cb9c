// Package trigger posts scheduled pipeline digests to a chat channel.
package trigger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// digestTimeout bounds one digest run, ATS calls included.
const digestTimeout = 5 * time.Minute

// maxDigestItems caps how many applications one digest names.
const maxDigestItems = 10

// PipelineReader is the slice of the ATS client the digest needs.
type PipelineReader interface {
	PipelineSummary(ctx context.Context) (map[string]map[string]int, error)
	StaleApplications(ctx context.Context, now time.Time) ([]map[string]any, error)
	NeedsDecision(ctx context.Context) ([]map[string]any, error)
}

// Poster posts a chat message and returns its timestamp.
type Poster interface {
	PostMessage(ctx context.Context, channel, threadTS, text string) (string, error)
}

// Scheduler runs the pipeline digest on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	ats     PipelineReader
	poster  Poster
	channel string
	nowFn   func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Scheduler) { s.nowFn = fn }
}

// NewScheduler creates a digest scheduler. Cron expressions use the
// standard 5-field format: minute hour day-of-month month day-of-week
// (e.g. "0 9 * * 1-5" for 09:00 on weekdays).
func NewScheduler(ats PipelineReader, poster Poster, channel string, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(),
		ats:     ats,
		poster:  poster,
		channel: channel,
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the digest cron entry. An empty expression registers
// nothing, which disables the digest.
func (s *Scheduler) Register(cronExpr string) error {
	if cronExpr == "" {
		return nil
	}
	_, err := s.cron.AddFunc(cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
		defer cancel()

		log.Info().Str("channel", s.channel).Msg("digest_trigger_fired")
		if err := s.PostDigest(ctx); err != nil {
			log.Error().Err(err).Str("channel", s.channel).Msg("digest_failed")
		}
	})
	if err != nil {
		return fmt.Errorf("registering digest cron %q: %w", cronExpr, err)
	}
	return nil
}

// Start begins executing registered cron entries.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running digest to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// PostDigest builds and posts one digest immediately.
func (s *Scheduler) PostDigest(ctx context.Context) error {
	text, err := s.buildDigest(ctx)
	if err != nil {
		return err
	}
	if _, err := s.poster.PostMessage(ctx, s.channel, "", text); err != nil {
		return fmt.Errorf("posting digest: %w", err)
	}
	return nil
}

func (s *Scheduler) buildDigest(ctx context.Context) (string, error) {
	summary, err := s.ats.PipelineSummary(ctx)
	if err != nil {
		return "", fmt.Errorf("building digest: %w", err)
	}
	stale, err := s.ats.StaleApplications(ctx, s.nowFn())
	if err != nil {
		return "", fmt.Errorf("building digest: %w", err)
	}
	needsDecision, err := s.ats.NeedsDecision(ctx)
	if err != nil {
		return "", fmt.Errorf("building digest: %w", err)
	}

	var b strings.Builder
	b.WriteString("*Pipeline digest*\n")

	jobs := make([]string, 0, len(summary))
	total := 0
	for job, stages := range summary {
		jobs = append(jobs, job)
		for _, n := range stages {
			total += n
		}
	}
	sort.Strings(jobs)
	fmt.Fprintf(&b, "%d active applications across %d jobs\n", total, len(jobs))

	if len(stale) > 0 {
		fmt.Fprintf(&b, "\n*Stuck >2 weeks (%d):*\n", len(stale))
		writeAppLines(&b, stale)
	}
	if len(needsDecision) > 0 {
		fmt.Fprintf(&b, "\n*Waiting on a decision (%d):*\n", len(needsDecision))
		writeAppLines(&b, needsDecision)
	}
	if len(stale) == 0 && len(needsDecision) == 0 {
		b.WriteString("\nNothing stuck and nothing waiting on a decision.")
	}
	return b.String(), nil
}

func writeAppLines(b *strings.Builder, apps []map[string]any) {
	for i, app := range apps {
		if i == maxDigestItems {
			fmt.Fprintf(b, "…and %d more\n", len(apps)-maxDigestItems)
			return
		}
		fmt.Fprintf(b, "• %s, %s (%s)\n",
			nestedStr(app, "candidate", "name"),
			nestedStr(app, "job", "title"),
			nestedStr(app, "currentInterviewStage", "title"))
	}
}

// nestedStr reads obj[key].field from a raw application object.
func nestedStr(m map[string]any, key, field string) string {
	if inner, ok := m[key].(map[string]any); ok {
		if v, ok := inner[field].(string); ok && v != "" {
			return v
		}
	}
	return "unknown"
}
