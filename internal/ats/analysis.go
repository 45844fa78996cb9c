package ats

import (
	"context"
	"sort"
	"strings"
	"time"
)

// StaleAfter is how long an application may sit in one stage before the
// digest calls it stale.
const StaleAfter = 14 * 24 * time.Hour

// needsDecisionMarkers are stage-title substrings that mean a human has to
// act: the candidate is waiting on us, not the other way around.
var needsDecisionMarkers = []string{"offer", "final", "decision", "debrief", "reference"}

// PipelineSummary aggregates active applications per job and stage.
func (c *Client) PipelineSummary(ctx context.Context) (map[string]map[string]int, error) {
	apps, err := c.ListApplications(ctx, "", "Active")
	if err != nil {
		return nil, err
	}

	summary := make(map[string]map[string]int)
	for _, app := range apps {
		jobTitle := str(obj(app, "job"), "title")
		if jobTitle == "" {
			jobTitle = "(no job)"
		}
		stage := stageTitle(app)
		if stage == "" {
			stage = "(no stage)"
		}
		if summary[jobTitle] == nil {
			summary[jobTitle] = make(map[string]int)
		}
		summary[jobTitle][stage]++
	}
	return summary, nil
}

// StaleApplications returns active applications that have sat in their
// current stage beyond StaleAfter. Applications still in initial review
// are excluded: a backlog of unscreened applications is a different
// problem than a candidate stuck mid-process. Sorted oldest first.
func (c *Client) StaleApplications(ctx context.Context, now time.Time) ([]map[string]any, error) {
	apps, err := c.ListApplications(ctx, "", "Active")
	if err != nil {
		return nil, err
	}

	var stale []map[string]any
	for _, app := range apps {
		if strings.EqualFold(stageTitle(app), "Application Review") {
			continue
		}
		entered := parseAPITime(str(app, "currentInterviewStageEnteredAt"))
		if entered.IsZero() {
			entered = parseAPITime(str(app, "updatedAt"))
		}
		if entered.IsZero() {
			continue
		}
		if now.Sub(entered) > StaleAfter {
			stale = append(stale, app)
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		ti := parseAPITime(str(stale[i], "currentInterviewStageEnteredAt"))
		tj := parseAPITime(str(stale[j], "currentInterviewStageEnteredAt"))
		return ti.Before(tj)
	})
	return stale, nil
}

// ApplicationsInStage returns active applications whose stage title
// contains stage, case-insensitively. Stage names vary per deployment, so
// substring matching beats exact IDs for chat queries.
func (c *Client) ApplicationsInStage(ctx context.Context, stage string) ([]map[string]any, error) {
	apps, err := c.ListApplications(ctx, "", "Active")
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(stage)
	var out []map[string]any
	for _, app := range apps {
		if strings.Contains(strings.ToLower(stageTitle(app)), needle) {
			out = append(out, app)
		}
	}
	return out, nil
}

// NeedsDecision returns active applications whose stage title names a
// decision point (offer, final, decision, debrief, reference).
func (c *Client) NeedsDecision(ctx context.Context) ([]map[string]any, error) {
	apps, err := c.ListApplications(ctx, "", "Active")
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for _, app := range apps {
		title := strings.ToLower(stageTitle(app))
		for _, marker := range needsDecisionMarkers {
			if strings.Contains(title, marker) {
				out = append(out, app)
				break
			}
		}
	}
	return out, nil
}
