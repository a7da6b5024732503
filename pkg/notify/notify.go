// Package notify delivers cascade and job lifecycle events to Slack (spec
// §6 LowCredit, JobCompleted; JobProgress is only logged). It is grounded on the teacher's
// Slack notifier: a thin wrapper around goslack.Client that degrades to a
// logging-only noop when no bot token is configured, posting Block Kit
// messages to one configured channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	goslack "github.com/slack-go/slack"

	"github.com/captely/core/internal/db"
)

// Notifier posts Captely lifecycle events to a single Slack channel. It
// implements both pkg/cascade.Notifier and pkg/job.Notifier.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken is empty, the notifier is a noop that
// only logs — deployments without Slack configured still get visibility via
// structured logs.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a live Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// LowCredit notifies that a user's balance has dropped below the configured
// threshold (spec §6). Fired by the Cascade Coordinator, which is the only
// component that observes a balance immediately after consumption.
func (n *Notifier) LowCredit(ctx context.Context, userID uuid.UUID, remaining float64) {
	text := fmt.Sprintf("⚠️ *Low credit balance*\nUser `%s` has %.2f credits remaining.", userID, remaining)
	n.post(ctx, lowCreditBlocks(userID, remaining), text, "low_credit", "user_id", userID, "remaining", remaining)
}

// JobProgress records that a job's completion count has advanced. The Job
// Manager calls it after every contact; it is never posted to Slack.
func (n *Notifier) JobProgress(ctx context.Context, jobID uuid.UUID, completed, total int32) {
	// Progress updates are logged, not posted to Slack — JobCompleted is the
	// Slack-visible event; a message per contact would flood the channel.
	n.logger.Debug("job progress", "job_id", jobID, "completed", completed, "total", total)
}

// JobCompleted notifies that a job reached a terminal state.
func (n *Notifier) JobCompleted(ctx context.Context, jobID uuid.UUID, state db.JobState) {
	text := fmt.Sprintf("%s Job `%s` finished: *%s*.", stateEmoji(state), jobID, state)
	n.post(ctx, jobCompletedBlocks(jobID, state), text, "job_completed", "job_id", jobID, "state", state)
}

func (n *Notifier) post(ctx context.Context, blocks []goslack.Block, fallbackText, event string, logArgs ...any) {
	if !n.IsEnabled() {
		n.logger.Info("notification ("+event+") suppressed, slack disabled", logArgs...)
		return
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(fallbackText, false),
	)
	if err != nil {
		n.logger.Error("posting slack notification", append(logArgs, "error", err, "event", event)...)
	}
}

func stateEmoji(state db.JobState) string {
	switch state {
	case db.JobCompleted:
		return "✅"
	case db.JobPartial:
		return "🟡"
	case db.JobFailed:
		return "🔴"
	default:
		return "⚪"
	}
}
