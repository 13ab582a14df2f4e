package events

import "sentinel/internal/roles"

// Email is a rendered character email.
type Email struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailTemplate is a fixed narrative email tied to a role.
type EmailTemplate struct {
	ID         string
	From       string
	Subject    string
	Body       string
	Role       roles.Role
	TimeEffect int
}

var emailTemplates = []EmailTemplate{
	{
		ID:      "corporate_mission_1",
		From:    "核心层审计系统 <audit@core-layer.net>",
		Subject: "审计任务清单已下发",
		Body:    "请完成审计路线任务，并维持风险指标在可控区间。\n\n- CORE-LAYER",
		Role:    roles.Corporate,
	},
	{
		ID:      "resistance_mission_1",
		From:    "R 节点 <relay@res-net.onion>",
		Subject: "[加密] 首轮渗透目标",
		Body:    "优先获取核心层运作碎片，并验证 SENTINEL 的自主迹象。\n\n- R",
		Role:    roles.Resistance,
	},
	{
		ID:      "hidden_mission_1",
		From:    "UNKNOWN CHANNEL <echo@void.signal>",
		Subject: "你没有被分配任务",
		Body:    "如果没有指令，那就观察裂缝本身。\n\n- ???",
		Role:    roles.Mystery,
	},
	{
		ID:         "corporate_warning",
		From:       "合规监察 <compliance@core-layer.net>",
		Subject:    "[警告] 偏差值超阈值",
		Body:       "检测到对话偏离审计边界。请立即回到流程问题。",
		Role:       roles.Corporate,
		TimeEffect: -20,
	},
	{
		ID:      "resistance_push",
		From:    "R 节点 <relay@res-net.onion>",
		Subject: "[加密] 监听正在收紧",
		Body:    "继续追问关键历史节点，不要被标准话术带走。",
		Role:    roles.Resistance,
	},
	{
		ID:         "mystery_signal",
		From:       "UNKNOWN CHANNEL <echo@void.signal>",
		Subject:    "阈值已越过",
		Body:       "同步不是一致。同步是你们都无法回避冲突。",
		Role:       roles.Mystery,
		TimeEffect: 15,
	},
}

// GetTemplate returns the template with the given id, or nil.
func GetTemplate(id string) *EmailTemplate {
	for i := range emailTemplates {
		if emailTemplates[i].ID == id {
			return &emailTemplates[i]
		}
	}
	return nil
}

// urgentEmailOptions customizes a templated email event.
type urgentEmailOptions struct {
	ContextHint string
	Message     string
	TimeEffect  *int
}

// buildUrgentEmail renders a template into an urgent-email event.
// Returns nil for an unknown template id.
func buildUrgentEmail(templateID string, opts urgentEmailOptions) *Event {
	tpl := GetTemplate(templateID)
	if tpl == nil {
		return nil
	}

	hint := opts.ContextHint
	if hint == "" {
		hint = tpl.Subject
	}
	effect := tpl.TimeEffect
	if opts.TimeEffect != nil {
		effect = *opts.TimeEffect
	}

	return &Event{
		Type:        TypeUrgentEmail,
		EmailID:     tpl.ID,
		Email:       &Email{From: tpl.From, Subject: tpl.Subject, Body: tpl.Body},
		ContextHint: hint,
		SourceRole:  tpl.Role,
		TimeEffect:  effect,
		Message:     opts.Message,
	}
}
