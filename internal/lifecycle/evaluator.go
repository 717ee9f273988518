// Package lifecycle contains the pure subscription evaluator. Given a tenant
// snapshot and a reference time it decides which status transition and which
// notification intents apply. It performs no I/O; the scheduler owns all
// persistence and queueing side effects.
package lifecycle

import (
	"strconv"
	"time"

	"pawdesk/internal/types"
)

// DefaultReminderWindow is how far ahead of trial expiry the expiring-trial
// reminder fires.
const DefaultReminderWindow = 72 * time.Hour

// Outcome is the evaluator's decision for one tenant at one reference time.
type Outcome struct {
	// Transition is the status change to apply, nil when none.
	Transition *types.StatusTransition

	// Intents are the notifications to enqueue, in order.
	Intents []types.NotificationIntent

	// StampTrialReminder is true when a trial reminder intent is present and
	// the tenant's trial_reminder_sent_at watermark must be advanced after
	// the intent is accepted by the queue.
	StampTrialReminder bool
}

// Evaluator applies the subscription lifecycle rules. The zero value is not
// usable; construct with NewEvaluator.
type Evaluator struct {
	reminderWindow time.Duration
}

// NewEvaluator creates an evaluator with the given look-ahead window for
// expiring-trial reminders. windowDays <= 0 falls back to the default 3 days.
func NewEvaluator(windowDays int) *Evaluator {
	window := DefaultReminderWindow
	if windowDays > 0 {
		window = time.Duration(windowDays) * 24 * time.Hour
	}
	return &Evaluator{reminderWindow: window}
}

// Evaluate inspects one tenant against the reference time and returns the
// actions to take. Rules, in precedence order:
//
//   - trial with trialEnd <= now: transition trial -> expired. No reminder;
//     the expiry itself supersedes it.
//   - trial with trialEnd in (now, now+window]: emit a subscription_expiring
//     reminder, at most once per UTC calendar day (watermark
//     trial_reminder_sent_at). days counts as ceil((trialEnd-now)/24h), so a
//     trial ending in 2h reads "1 day".
//   - past_due: emit a payment_reminder on every run. Dunning repeats by
//     design and carries no watermark.
//   - all other statuses: nothing.
//
// A trial tenant with no trialEnd set is skipped entirely; that row is
// malformed and flagged by the scheduler, not here.
func (e *Evaluator) Evaluate(tenant types.Tenant, now time.Time) Outcome {
	now = now.UTC()

	switch tenant.Status {
	case types.SubStatusTrial:
		if !tenant.OnTrial() {
			return Outcome{}
		}
		trialEnd := tenant.TrialEnd.UTC()

		if !trialEnd.After(now) {
			return Outcome{
				Transition: &types.StatusTransition{
					From: types.SubStatusTrial,
					To:   types.SubStatusExpired,
					At:   now,
				},
			}
		}

		if trialEnd.Sub(now) <= e.reminderWindow && !reminderSentToday(tenant.TrialReminderSentAt, now) {
			days := int((trialEnd.Sub(now) + 24*time.Hour - 1) / (24 * time.Hour))
			return Outcome{
				Intents: []types.NotificationIntent{
					reminderIntent(tenant, types.TemplateSubscriptionExpiring, map[string]string{
						"name": tenant.Name,
						"days": strconv.Itoa(days),
					}, types.PriorityHigh),
				},
				StampTrialReminder: true,
			}
		}
		return Outcome{}

	case types.SubStatusPastDue:
		return Outcome{
			Intents: []types.NotificationIntent{
				reminderIntent(tenant, types.TemplatePaymentReminder, map[string]string{
					"name": tenant.Name,
				}, types.PriorityHigh),
			},
		}

	default:
		return Outcome{}
	}
}

// reminderSentToday reports whether the watermark falls on the same UTC
// calendar day as now.
func reminderSentToday(sentAt *time.Time, now time.Time) bool {
	if sentAt == nil {
		return false
	}
	y1, m1, d1 := sentAt.UTC().Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// reminderIntent assembles a lifecycle notification for the tenant's contact.
// Billing reminders go out on chat only: it is the channel every tenant has,
// and the one shop owners actually read for account matters.
func reminderIntent(tenant types.Tenant, key types.TemplateKey, vars map[string]string, priority types.Priority) types.NotificationIntent {
	return types.NotificationIntent{
		TenantID:    tenant.ID,
		TemplateKey: key,
		Variables:   vars,
		Channels:    []types.ChannelType{types.ChannelChat},
		Recipient: types.Recipient{
			Phone:  tenant.ContactPhone,
			UserID: tenant.PushUserID,
			Email:  tenant.ContactEmail,
		},
		Priority: priority,
	}
}
