package ats

import (
	"context"
	"strings"
	"time"
)

// ListJobs returns all open jobs. Cached.
func (c *Client) ListJobs(ctx context.Context) ([]map[string]any, error) {
	return c.cachedList(ctx, "job.list", map[string]any{"status": "Open"})
}

// ListStages returns all interview stages. Cached.
func (c *Client) ListStages(ctx context.Context) ([]map[string]any, error) {
	return c.cachedList(ctx, "interviewStage.list", nil)
}

// ListSources returns all candidate sources. Cached.
func (c *Client) ListSources(ctx context.Context) ([]map[string]any, error) {
	return c.cachedList(ctx, "source.list", nil)
}

// GetJob returns one job's full record.
func (c *Client) GetJob(ctx context.Context, jobID string) (map[string]any, error) {
	return c.postObject(ctx, "job.info", map[string]any{"id": jobID})
}

// SearchCandidates searches candidates by name or email.
func (c *Client) SearchCandidates(ctx context.Context, query string) ([]map[string]any, error) {
	return c.postList(ctx, "candidate.search", map[string]any{"name": query})
}

// GetCandidate returns one candidate's full record.
func (c *Client) GetCandidate(ctx context.Context, candidateID string) (map[string]any, error) {
	return c.postObject(ctx, "candidate.info", map[string]any{"id": candidateID})
}

// ListApplications returns applications, optionally filtered by job and
// status. Paginated.
func (c *Client) ListApplications(ctx context.Context, jobID, status string) ([]map[string]any, error) {
	params := map[string]any{}
	if jobID != "" {
		params["jobId"] = jobID
	}
	if status != "" {
		params["status"] = status
	}
	return c.postList(ctx, "application.list", params)
}

// GetApplication returns one application.
func (c *Client) GetApplication(ctx context.Context, applicationID string) (map[string]any, error) {
	return c.postObject(ctx, "application.info", map[string]any{"applicationId": applicationID})
}

// ListNotes returns a candidate's notes.
func (c *Client) ListNotes(ctx context.Context, candidateID string) ([]map[string]any, error) {
	return c.postList(ctx, "candidate.listNotes", map[string]any{"candidateId": candidateID})
}

// ListOffers returns offers, optionally for one application.
func (c *Client) ListOffers(ctx context.Context, applicationID string) ([]map[string]any, error) {
	params := map[string]any{}
	if applicationID != "" {
		params["applicationId"] = applicationID
	}
	return c.postList(ctx, "offer.list", params)
}

// ListUpcomingInterviews returns interview schedules that have not
// happened yet.
func (c *Client) ListUpcomingInterviews(ctx context.Context) ([]map[string]any, error) {
	return c.postList(ctx, "interviewSchedule.list", map[string]any{"status": "Scheduled"})
}

// str reads a string field from a decoded JSON object, "" when absent.
func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// obj reads a nested object field.
func obj(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// stageTitle extracts the current stage title from an application record.
func stageTitle(app map[string]any) string {
	return str(obj(app, "currentInterviewStage"), "title")
}

// parseAPITime parses the RFC3339 timestamps the ATS emits. Zero time on
// failure; callers treat unparseable as "not stale".
func parseAPITime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsHired reports whether a candidate record is in a hired state, either
// by profile status or by any application sitting in a hired stage.
// Sub-admin viewers may not read hired candidates' records.
func IsHired(candidate map[string]any) bool {
	if strings.EqualFold(str(candidate, "status"), "hired") {
		return true
	}
	apps, _ := candidate["applications"].([]any)
	for _, a := range apps {
		app, ok := a.(map[string]any)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(stageTitle(app)), "hired") {
			return true
		}
	}
	return false
}
