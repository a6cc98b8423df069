package feeds

import (
	"context"
	"time"

	"encore.dev/cron"
	"encore.dev/rlog"

	"github.com/wikifeed/feedengine/warming"
)

// Encore cron jobs for warming

// WarmHotTopics warms the topics readers requested most recently.
var _ = cron.NewJob("warm-hot-topics", cron.JobConfig{
	Title:    "Warm hot topic feeds",
	Every:    10 * cron.Minute,
	Endpoint: WarmHotTopics,
})

//encore:api private
func WarmHotTopics(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	res, err := svc.warmer.TriggerPredictive(ctx, warming.TriggerCron)
	if err != nil {
		return err
	}
	rlog.Info("hot topic warm run", "job_id", res.JobID, "queued", res.Queued)
	return nil
}

// PruneAccessHistory drops access history of topics nobody asked for in a
// day, bounding the predictor's memory.
var _ = cron.NewJob("prune-access-history", cron.JobConfig{
	Title:    "Prune topic access history",
	Every:    1 * cron.Hour,
	Endpoint: PruneAccessHistory,
})

//encore:api private
func PruneAccessHistory(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	removed := svc.warmer.Predictor().Cleanup(24 * time.Hour)
	rlog.Info("access history pruned", "removed", removed)
	return nil
}

// EvaluateAlerts checks the engine's counters against the alert rules once a
// minute.
var _ = cron.NewJob("evaluate-alerts", cron.JobConfig{
	Title:    "Evaluate engine alerts",
	Every:    1 * cron.Minute,
	Endpoint: EvaluateAlerts,
})

//encore:api private
func EvaluateAlerts(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	svc.evaluateAlerts()
	return nil
}
