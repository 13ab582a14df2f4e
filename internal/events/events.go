// Package events produces the narrative events that punctuate a session:
// the fixed round schedule, deviation-gated character events, mission
// bootstrap emails, and the delayed sensitive-topic email pipeline.
package events

import (
	"math/rand"

	"sentinel/internal/logging"
	"sentinel/internal/mission"
	"sentinel/internal/roles"
	"sentinel/internal/session"
)

// Type classifies an event for the presentation layer.
type Type string

const (
	TypeUrgentEmail      Type = "urgent_email"
	TypeGlitch           Type = "glitch"
	TypeSystemMessage    Type = "system_message"
	TypeAlarmFlash       Type = "ALARM_FLASH"
	TypeReverseIntrusion Type = "REVERSE_INTRUSION"
	TypeTimeHalve        Type = "TIME_HALVE"
)

// Event is one narrative interruption.
type Event struct {
	Type         Type
	ID           string
	Message      string
	VisualEffect string
	ContextHint  string

	// Email payload, set for urgent_email events.
	EmailID    string
	Email      *Email
	SourceRole roles.Role
	TimeEffect int
	Dynamic    bool
}

// fixedEvent is a one-shot event pinned to a round.
type fixedEvent struct {
	ID      string
	Round   int
	Type    Type
	EmailID string
}

var fixedSchedule = []fixedEvent{
	{ID: "ALARM_FLASH", Round: 7, Type: TypeAlarmFlash},
	{ID: "REVERSE_INTRUSION", Round: 10, Type: TypeReverseIntrusion},
	{ID: "TIME_HALVE", Round: 10, Type: TypeTimeHalve},
	{ID: "URGENT_EMAIL", Round: 12, Type: TypeUrgentEmail, EmailID: "dynamic"},
}

// TriggerScheduled fires any fixed-schedule events due at the session's
// current round. Each fires at most once per session; flag side effects are
// applied here, value side effects belong to the event handler.
func TriggerScheduled(st *session.State) []Event {
	round := st.Round()
	var out []Event
	for _, fe := range fixedSchedule {
		if fe.Round != round {
			continue
		}
		if !st.MarkEventTriggered(fe.ID) {
			continue
		}
		switch fe.ID {
		case "ALARM_FLASH":
			st.SetFlag("alarmTriggered", true)
		case "REVERSE_INTRUSION":
			st.SetFlag("reverseIntrusion", true)
		}
		ev := Event{Type: fe.Type, ID: fe.ID, EmailID: fe.EmailID, Dynamic: fe.EmailID == "dynamic"}
		out = append(out, ev)
		logging.Events("fixed event fired: %s (round %d)", fe.ID, round)
	}
	return out
}

// CheckMissionEvents returns the mission bootstrap email at round 2, or the
// 75% milestone notice, or nil.
func CheckMissionEvents(st *session.State, tracker *mission.Tracker) *Event {
	round := st.Round()
	route := tracker.Route()

	if round == 2 {
		switch route {
		case mission.RouteCorporate:
			if !st.Flag("mail_corp_1") {
				st.SetFlag("mail_corp_1", true)
				return buildUrgentEmail("corporate_mission_1", urgentEmailOptions{Message: "[MISSION] 审计任务已更新"})
			}
		case mission.RouteResistance:
			if !st.Flag("mail_res_1") {
				st.SetFlag("mail_res_1", true)
				return buildUrgentEmail("resistance_mission_1", urgentEmailOptions{Message: "[MISSION] 渗透任务已更新"})
			}
		case mission.RouteHidden:
			if !st.Flag("mail_obs_1") {
				st.SetFlag("mail_obs_1", true)
				return buildUrgentEmail("hidden_mission_1", urgentEmailOptions{Message: "[MISSION] 观察路线已建立"})
			}
		}
	}

	progress := tracker.Progress()
	if progress.Total > 0 && progress.Rate >= 0.75 && !st.Flag("missionMilestoneNotified") {
		st.SetFlag("missionMilestoneNotified", true)
		return &Event{
			Type:         TypeSystemMessage,
			Message:      "[MISSION] 任务完成度达到 75%，路线锁定趋势增强。",
			VisualEffect: "milestone_notice",
		}
	}

	return nil
}

// CheckRandomEvents rolls the deviation- and pressure-gated character
// events and returns the highest-priority hit, or nil.
func CheckRandomEvents(st *session.State, mysteryThreshold int, rng *rand.Rand) *Event {
	trust, suspicion := st.Values()
	sync := st.SyncRate()

	type candidate struct {
		priority int
		event    *Event
	}
	var candidates []candidate

	if st.Deviation(roles.Corporate) >= 72 &&
		roles.CanPerform(roles.Corporate, roles.ActionSendEmail) &&
		rng.Float64() < 0.35 {
		candidates = append(candidates, candidate{90, buildUrgentEmail("corporate_warning", urgentEmailOptions{
			ContextHint: "公司偏差高位触发",
		})})
	}

	if st.Deviation(roles.Resistance) >= 68 &&
		roles.CanPerform(roles.Resistance, roles.ActionSendEmail) &&
		rng.Float64() < 0.3 {
		candidates = append(candidates, candidate{80, buildUrgentEmail("resistance_push", urgentEmailOptions{
			ContextHint: "抵抗路线高压触发",
		})})
	}

	if sync >= mysteryThreshold &&
		st.Deviation(roles.Mystery) >= 60 &&
		roles.CanPerform(roles.Mystery, roles.ActionSendEmail) &&
		rng.Float64() < 0.25 {
		effect := (sync - 50) / 2
		if effect > 60 {
			effect = 60
		}
		if effect < -60 {
			effect = -60
		}
		candidates = append(candidates, candidate{85, buildUrgentEmail("mystery_signal", urgentEmailOptions{
			ContextHint: "神秘人同步阈值触发",
			TimeEffect:  &effect,
		})})
	}

	if suspicion >= 75 && rng.Float64() < 0.28 {
		candidates = append(candidates, candidate{70, &Event{
			Type:         TypeGlitch,
			Message:      "[SYSTEM] 检测到高压干扰，信号不稳定。",
			VisualEffect: "permission_glitch_high",
		}})
	}

	if trust >= 70 && sync >= 65 && rng.Float64() < 0.22 {
		candidates = append(candidates, candidate{60, &Event{
			Type:         TypeSystemMessage,
			Message:      "[SYNC] 共振深度提升，额外轮次已计算。",
			VisualEffect: "sync_resonance",
		}})
	}

	best := -1
	var pick *Event
	for _, c := range candidates {
		if c.event == nil {
			continue
		}
		if c.priority > best {
			best = c.priority
			pick = c.event
		}
	}
	return pick
}
