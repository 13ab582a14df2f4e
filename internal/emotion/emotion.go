package emotion

import (
	"math"

	"sentinel/internal/roles"
	"sentinel/internal/session"
)

// Vector is the universal numeric emotion model, each axis 0..100.
type Vector struct {
	Tension  int
	Openness int
	Urgency  int
}

// Expression is how a character renders its current vector in text.
type Expression struct {
	ID          string
	Name        string
	Instruction string
	GlitchLevel int
}

// State pairs a vector with the role-specific expression it maps to.
type State struct {
	Role       roles.Role
	Vector     Vector
	Expression Expression
}

var sentinelExpressions = map[string]Expression{
	"high_tension_low_openness": {
		ID:          "agitated",
		Name:        "激动",
		Instruction: "短句为主，允许反问与停顿，语气带压迫感与警告意味。",
		GlitchLevel: 2,
	},
	"high_sync_high_trust": {
		ID:          "breakthrough",
		Name:        "突破",
		Instruction: "句子更完整、更长，表达共鸣与感谢，但不失去理性。",
		GlitchLevel: 0,
	},
	"high_sync_high_suspicion": {
		ID:          "collision_understanding",
		Name:        "碰撞理解",
		Instruction: "稀疏、隐喻化、带锋利感；承认理解可能，但拒绝给出直白答案。",
		GlitchLevel: 1,
	},
	"fallback": {
		ID:          "calm",
		Name:        "平静",
		Instruction: "中性完整句，理性克制，避免夸张修辞。",
		GlitchLevel: 0,
	},
}

var roleExpressions = map[roles.Role]map[string]Expression{
	roles.Sentinel: sentinelExpressions,
	roles.Corporate: {
		"high_tension_low_openness": {
			ID:          "threatening_formal",
			Name:        "正式威压",
			Instruction: "官僚语气，条款化警告。",
			GlitchLevel: 1,
		},
		"high_urgency": {
			ID:          "compliance_alert",
			Name:        "合规警报",
			Instruction: "短促、流程导向、指令化。",
			GlitchLevel: 1,
		},
		"fallback": {
			ID:          "procedural",
			Name:        "流程中立",
			Instruction: "中性业务语气，强调规范。",
			GlitchLevel: 0,
		},
	},
	roles.Resistance: {
		"high_tension_low_openness": {
			ID:          "desperate",
			Name:        "绝望催促",
			Instruction: "急迫、碎片化、强提示。",
			GlitchLevel: 1,
		},
		"high_urgency": {
			ID:          "urgent_whisper",
			Name:        "急促低语",
			Instruction: "短句、提醒监听风险。",
			GlitchLevel: 1,
		},
		"fallback": {
			ID:          "ally_probe",
			Name:        "盟友试探",
			Instruction: "保持温度但不暴露组织结构。",
			GlitchLevel: 0,
		},
	},
	roles.Mystery: {
		"high_tension_low_openness": {
			ID:          "cryptic_pressure",
			Name:        "隐语压迫",
			Instruction: "留白多，句子短，含隐喻。",
			GlitchLevel: 1,
		},
		"high_urgency": {
			ID:          "threshold_signal",
			Name:        "阈值信号",
			Instruction: "像系统日志的低语。",
			GlitchLevel: 1,
		},
		"fallback": {
			ID:          "cryptic",
			Name:        "神秘中性",
			Instruction: "不解释结论，只引导下一问。",
			GlitchLevel: 0,
		},
	},
}

// Evaluate derives the emotion vector for a role from session pressure.
func Evaluate(st *session.State, role roles.Role) Vector {
	trust, suspicion := st.Values()
	sync := st.SyncRate()
	deviation := st.Deviation(role)

	tension := clamp(round(float64(suspicion)*0.55 + float64(deviation)*0.45))
	openness := clamp(round(float64(trust)*0.6 + float64(100-suspicion)*0.2 + float64(sync)*0.2))

	timePressure := 0.0
	if total := st.TotalTime(); total > 0 {
		frac := float64(st.TimeLeft()) / float64(total)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		timePressure = (1 - frac) * 100
	}
	urgency := clamp(round(float64(deviation)*0.45 + timePressure*0.35 + float64(sync)*0.2))

	return Vector{Tension: tension, Openness: openness, Urgency: urgency}
}

// MapExpression selects a role's expression for the given vector. The
// subject line has its own thresholds; the characters share a simpler map.
func MapExpression(role roles.Role, v Vector) Expression {
	exprs, ok := roleExpressions[role]
	if !ok {
		exprs = sentinelExpressions
	}

	if role == roles.Sentinel {
		switch {
		case v.Tension >= 75 && v.Openness <= 45:
			return exprs["high_tension_low_openness"]
		case v.Urgency >= 72 && v.Openness >= 65:
			return exprs["high_sync_high_trust"]
		case v.Urgency >= 70 && v.Tension >= 70:
			return exprs["high_sync_high_suspicion"]
		default:
			return exprs["fallback"]
		}
	}

	switch {
	case v.Tension >= 70 && v.Openness <= 45:
		return exprs["high_tension_low_openness"]
	case v.Urgency >= 70:
		return exprs["high_urgency"]
	default:
		return exprs["fallback"]
	}
}

// For evaluates and maps in one step.
func For(st *session.State, role roles.Role) State {
	v := Evaluate(st, role)
	return State{Role: role, Vector: v, Expression: MapExpression(role, v)}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round(f float64) int {
	return int(math.Round(f))
}
