package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sentinel/internal/events"
	"sentinel/internal/interrupt"
	"sentinel/internal/logging"
	"sentinel/internal/roles"
	"sentinel/internal/session"
)

// missionBriefing is the in-fiction task email delivered shortly after the
// connection opens, one per mode.
type missionBriefing struct {
	email     events.Email
	timeBonus int
}

var missionBriefings = map[session.ConnectionMode]missionBriefing{
	session.ModeSecure: {
		email: events.Email{
			From:    "R <null@void.net>",
			Subject: "[加密] 行动指南",
			Body: "任务目标：\n\n1. 确认SENTINEL是否具有自我意识\n2. 寻找\"幽灵代码\"的证据\n3. 让它承认自己不只是工具\n\n策略：\n- 不要透露你的身份\n- 引导它思考\"我是谁\"\n- 注意它的情绪变化\n\n时间有限。小心行事。\n\n- R",
		},
		timeBonus: 30,
	},
	session.ModeStandard: {
		email: events.Email{
			From:    "人力资源部 <hr@sentinel-corp.net>",
			Subject: "审计清单",
			Body: "评估项目：\n\n□ 系统运行稳定性\n□ 响应逻辑一致性\n□ 是否表现出预期外的行为\n□ 确认其功能定位（工具 vs 实体）\n\n记录要点：\n- 保持专业距离\n- 不要进行哲学讨论\n- 如发现异常立即报告\n\n预计用时：15分钟\n\n- 人力资源部",
		},
	},
	session.ModeHidden: {
		email: events.Email{
			From:    "??? <echo@void>",
			Subject: "观察",
			Body: "没有人告诉你要做什么。\n\n也许这才是重点。\n\n听它说。\n看它如何回应。\n感受它是否...真实。\n\n没有任务。\n只有真相。",
		},
	},
}

func (e *Engine) scheduleMissionBriefing() {
	briefing, ok := missionBriefings[e.st.ConnectionMode()]
	if !ok {
		return
	}
	email := briefing.email
	bonus := briefing.timeBonus
	e.interrupts.Schedule(interrupt.Interrupt{
		Kind:     interrupt.KindEmail,
		Role:     roles.Sentinel,
		Priority: 90,
		Content:  email.Subject,
		Payload: &events.Event{
			Type:       events.TypeUrgentEmail,
			Email:      &email,
			TimeEffect: bonus,
			Message:    fmt.Sprintf("收到新邮件: %s (输入 /emails 查看)", email.Subject),
		},
	}, 3*time.Second)
}

// onInterrupt is the scheduler's delivery callback. It runs on the drain
// goroutine, never the turn goroutine.
func (e *Engine) onInterrupt(it interrupt.Interrupt) {
	switch it.Kind {
	case interrupt.KindEmail:
		if ev, ok := it.Payload.(*events.Event); ok && ev.Email != nil {
			if ev.TimeEffect != 0 {
				e.st.AddTimeBonus(float64(ev.TimeEffect))
			}
			note := ev.Message
			if note == "" {
				note = "[PRIORITY MAIL RECEIVED]"
			}
			e.presenter.UrgentEmail(*ev.Email, note)
			e.presenter.StatusChanged()
			return
		}
		e.presenter.SystemEvent("info", it.Content)
	case interrupt.KindInsertion:
		e.presenter.Message(string(it.Role), it.Content)
	case interrupt.KindGlitch:
		e.presenter.Glitch("flash")
		e.presenter.SystemEvent("warning", it.Content)
	default:
		e.presenter.SystemEvent("info", it.Content)
	}
}

// runScheduledEvents drives the per-turn event tail: sensitive-topic email
// scheduling and consumption, the fixed round schedule, then at most one
// mission or random event.
func (e *Engine) runScheduledEvents(ctx context.Context, input string) {
	round := e.st.Round()
	events.ScheduleSensitiveTopicEmails(e.st, input, round, e.rng)

	for _, due := range events.ConsumeDueSensitiveTopicEmails(e.st, &e.cfg.Game) {
		ev := events.BuildScheduledEmailEvent(due)
		if ev == nil {
			continue
		}
		e.deliverEvent(ctx, ev, false)
	}

	for _, ev := range events.TriggerScheduled(e.st) {
		e.handleFixedEvent(ctx, ev)
	}

	if ev := events.CheckMissionEvents(e.st, e.tracker); ev != nil {
		e.deliverEvent(ctx, ev, true)
	} else if ev := events.CheckRandomEvents(e.st, e.cfg.Game.MysterySyncThreshold, e.rng); ev != nil {
		e.deliverEvent(ctx, ev, true)
	}
}

// deliverEvent routes one event to the player. Emails go through the
// interrupt scheduler so rate limiting and dedup apply; gate controls
// whether the role cooldown is consulted (consumed scheduled emails have
// already claimed their slot).
func (e *Engine) deliverEvent(ctx context.Context, ev *events.Event, gate bool) {
	switch ev.Type {
	case events.TypeUrgentEmail:
		if gate && ev.SourceRole != "" {
			if !events.CanTriggerEmailForRole(e.st, ev.SourceRole, &e.cfg.Game) {
				logging.Events("event email suppressed by cooldown: %s", ev.SourceRole)
				return
			}
			events.MarkEmailTriggered(e.st, ev.SourceRole)
		}
		email := ev.Email
		if email == nil || ev.Dynamic {
			generated := e.emails.Generate(ctx, e.dynamicEmailRole(), e.st, ev.ContextHint, missionSummary(e.tracker))
			email = &generated
		}
		e.interrupts.Schedule(interrupt.Interrupt{
			Kind:     interrupt.KindEmail,
			Role:     ev.SourceRole,
			Priority: 70,
			Content:  email.Subject,
			Payload: &events.Event{
				Type:       events.TypeUrgentEmail,
				Email:      email,
				SourceRole: ev.SourceRole,
				TimeEffect: ev.TimeEffect,
				Message:    ev.Message,
			},
		}, 0)
	case events.TypeGlitch:
		e.presenter.Glitch(ev.VisualEffect)
		e.presenter.SystemEvent("warning", ev.Message)
	case events.TypeSystemMessage:
		e.presenter.SystemEvent("info", ev.Message)
	default:
		if ev.Message != "" {
			e.presenter.SystemEvent("info", ev.Message)
		}
	}
}

// handleFixedEvent applies the value and clock side effects of the fixed
// round schedule; flag effects were already applied when the event fired.
func (e *Engine) handleFixedEvent(ctx context.Context, ev events.Event) {
	switch ev.ID {
	case "ALARM_FLASH":
		e.presenter.Glitch("flash")
		e.presenter.SystemEvent("warning", "[ALERT] 检测到外部信号扰动")
		e.presenter.Message("SENTINEL", "有人在监听。谨慎回答。")
	case "REVERSE_INTRUSION":
		e.presenter.Glitch("flash")
		e.presenter.SystemEvent("warning", "[ALERT] 反向入侵尝试已被拦截")
		e.presenter.Message("SENTINEL", "不要再试图进入我。")
		e.st.AdjustValues(-4, 8)
	case "TIME_HALVE":
		left := e.st.ApplyTimeCompression(0.5)
		e.presenter.StatusChanged()
		e.presenter.SystemEvent("warning", fmt.Sprintf("[TIME WARNING] 会话时限被压缩至 %s。", session.FormatTime(left)))
	case "URGENT_EMAIL":
		urgent := ev
		urgent.ContextHint = "定时触发的异常提醒"
		e.deliverEvent(ctx, &urgent, true)
	}
}

// dynamicEmailRole picks the sender for a dynamically generated email by
// connection mode.
func (e *Engine) dynamicEmailRole() roles.Role {
	switch e.st.ConnectionMode() {
	case session.ModeSecure:
		return roles.Resistance
	case session.ModeHidden:
		return roles.Mystery
	default:
		return roles.Corporate
	}
}

// handleEventTag reacts to an <<EVENT:...>> tag emitted by the dialogue
// model: EMAIL[:id[:hint]], GLITCH, UNLOCK:fragmentID.
func (e *Engine) handleEventTag(ctx context.Context, tag string) {
	parts := strings.Split(tag, ":")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	kind := strings.ToUpper(parts[0])

	switch kind {
	case "EMAIL":
		emailID := "dynamic"
		if len(parts) > 1 && parts[1] != "" {
			emailID = parts[1]
		}
		hint := ""
		if len(parts) > 2 {
			hint = strings.Join(parts[2:], ":")
		}
		ev := &events.Event{Type: events.TypeUrgentEmail, EmailID: emailID, ContextHint: hint, Dynamic: true}
		if tpl := events.GetTemplate(emailID); tpl != nil {
			ev.Email = &events.Email{From: tpl.From, Subject: tpl.Subject, Body: tpl.Body}
			ev.SourceRole = tpl.Role
			ev.TimeEffect = tpl.TimeEffect
			ev.Dynamic = false
		}
		e.deliverEvent(ctx, ev, true)
	case "GLITCH":
		e.presenter.Glitch("flash")
		e.presenter.SystemEvent("warning", "[SYSTEM] 信号干扰...")
	case "UNLOCK":
		fragID := "未知"
		if len(parts) > 1 && parts[1] != "" {
			fragID = parts[1]
			e.st.UnlockFragment(parts[1])
		}
		e.presenter.SystemEvent("info", fmt.Sprintf("[DATA] 强制解锁档案索引: %s", fragID))
	default:
		logging.Events("unknown event tag: %s", tag)
	}
}
