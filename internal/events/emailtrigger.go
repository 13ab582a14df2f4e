package events

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"sentinel/internal/config"
	"sentinel/internal/logging"
	"sentinel/internal/roles"
	"sentinel/internal/session"
)

// SensitiveRule maps player keywords to a delayed character email.
type SensitiveRule struct {
	ID          string
	Role        roles.Role
	Keywords    []string
	TemplateID  string
	ContextHint string
}

var sensitiveRules = []SensitiveRule{
	{
		ID:          "corp_surveillance",
		Role:        roles.Corporate,
		Keywords:    []string{"监听", "审计", "合规", "监控"},
		TemplateID:  "corporate_warning",
		ContextHint: "敏感话题：监听与合规",
	},
	{
		ID:          "res_contact",
		Role:        roles.Resistance,
		Keywords:    []string{"抵抗", "反抗", "地下", "渗透"},
		TemplateID:  "resistance_push",
		ContextHint: "敏感话题：抵抗网络",
	},
	{
		ID:          "mystery_echo",
		Role:        roles.Mystery,
		Keywords:    []string{"真相", "幽灵", "共振", "第四方"},
		TemplateID:  "mystery_signal",
		ContextHint: "敏感话题：未知信号",
	},
}

// CanTriggerEmailForRole checks the per-role round cooldown and the
// one-email-per-round guard shared across roles.
func CanTriggerEmailForRole(st *session.State, role roles.Role, cfg *config.GameConfig) bool {
	et := st.EmailTrigger()
	return canTrigger(&et, role, st.Round(), cfg)
}

func canTrigger(et *session.EmailTriggerState, role roles.Role, round int, cfg *config.GameConfig) bool {
	if et.LastAnyRound == round {
		return false
	}
	cooldown := cfg.EmailCooldownRounds[string(role)]
	if last, ok := et.LastRoundByRole[role]; ok && cooldown > 0 && round-last < cooldown {
		return false
	}
	return true
}

// MarkEmailTriggered records that a role sent an email this round, starting
// its cooldown and closing the round for every other role.
func MarkEmailTriggered(st *session.State, role roles.Role) {
	round := st.Round()
	st.UpdateEmailTrigger(func(et *session.EmailTriggerState) {
		et.LastAnyRound = round
		et.LastRoundByRole[role] = round
	})
	logging.Events("email marked: role=%s round=%d", role, round)
}

// ScheduleSensitiveTopicEmails scans player input against the sensitive
// keyword rules. Matches do not fire immediately: each becomes a pending
// event due one or two rounds later. At most one pending event per rule.
// Returns the newly scheduled events.
func ScheduleSensitiveTopicEmails(st *session.State, text string, round int, rng *rand.Rand) []session.ScheduledEmail {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var scheduled []session.ScheduledEmail
	st.UpdateEmailTrigger(func(et *session.EmailTriggerState) {
		for _, rule := range sensitiveRules {
			keyword := matchKeyword(lower, rule.Keywords)
			if keyword == "" {
				continue
			}
			if hasPending(et.Pending, rule.ID) {
				continue
			}
			ev := session.ScheduledEmail{
				ID:             uuid.NewString(),
				RuleID:         rule.ID,
				Role:           rule.Role,
				TemplateID:     rule.TemplateID,
				ContextHint:    rule.ContextHint,
				DueRound:       round + 1 + rng.Intn(2),
				CreatedAtRound: round,
				SourceKeyword:  keyword,
			}
			et.Pending = append(et.Pending, ev)
			scheduled = append(scheduled, ev)
			logging.Events("sensitive email scheduled: rule=%s role=%s due=%d", rule.ID, rule.Role, ev.DueRound)
		}
	})
	return scheduled
}

// ConsumeDueSensitiveTopicEmails returns the pending events that are due
// this round and pass the cooldown guards, marking each returned role's
// trigger. Due events blocked by a guard are re-queued for the next round
// with their retry count bumped.
func ConsumeDueSensitiveTopicEmails(st *session.State, cfg *config.GameConfig) []session.ScheduledEmail {
	round := st.Round()

	var due []session.ScheduledEmail
	st.UpdateEmailTrigger(func(et *session.EmailTriggerState) {
		var keep []session.ScheduledEmail
		for _, ev := range et.Pending {
			if round < ev.DueRound {
				keep = append(keep, ev)
				continue
			}
			if !canTrigger(et, ev.Role, round, cfg) {
				ev.RetryCount++
				ev.DueRound = round + 1
				keep = append(keep, ev)
				logging.Events("sensitive email re-queued: rule=%s retry=%d", ev.RuleID, ev.RetryCount)
				continue
			}
			et.LastAnyRound = round
			et.LastRoundByRole[ev.Role] = round
			due = append(due, ev)
			logging.Events("sensitive email due: rule=%s role=%s", ev.RuleID, ev.Role)
		}
		et.Pending = keep
	})
	return due
}

// BuildScheduledEmailEvent renders a consumed scheduled email into a
// deliverable event. Returns nil for an unknown template.
func BuildScheduledEmailEvent(ev session.ScheduledEmail) *Event {
	return buildUrgentEmail(ev.TemplateID, urgentEmailOptions{ContextHint: ev.ContextHint})
}

func matchKeyword(lowerText string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			return kw
		}
	}
	return ""
}

func hasPending(pending []session.ScheduledEmail, ruleID string) bool {
	for _, ev := range pending {
		if ev.RuleID == ruleID {
			return true
		}
	}
	return false
}
