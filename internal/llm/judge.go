package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/logging"
	"sentinel/internal/mission"
	"sentinel/internal/roles"
	"sentinel/internal/session"
	"sentinel/internal/worldview"
)

// MysteryResult is the mystery judge's verdict for one exchange.
type MysteryResult struct {
	DeviationDelta      int    `json:"deviationDelta"`
	ShouldTriggerEmail  bool   `json:"shouldTriggerEmail"`
	ShouldInsertMessage bool   `json:"shouldInsertMessage"`
	TriggerType         string `json:"triggerType"`
	MessageHint         string `json:"messageHint"`
	Reason              string `json:"reason"`
}

// Judge evaluates route adherence and mystery-line intervention.
type Judge struct {
	client     Client
	cfg        *config.Config
	worldviews *worldview.Loader
	rng        *rand.Rand
}

func NewJudge(client Client, cfg *config.Config, worldviews *worldview.Loader) *Judge {
	return &Judge{
		client:     client,
		cfg:        cfg,
		worldviews: worldviews,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RouteTurn judges the last exchange against the active route. A failed
// model call falls back to deterministic keyword heuristics so the route
// still moves.
func (j *Judge) RouteTurn(ctx context.Context, st *session.State, tracker *mission.Tracker) mission.JudgeResult {
	role := routeRole(tracker.Route())
	window := st.RecentHistory(6)
	dialogueText := serializeHistory(window)

	system, user := j.buildRoutePrompt(role, dialogueText, st, tracker)
	raw, err := j.call(ctx, system, user)
	if err != nil {
		logging.Judge("route judge fallback (%s): %v", role, err)
		return heuristicRouteJudge(role, tracker.Route(), dialogueText)
	}

	parsed := extractJSON(raw)
	if parsed == nil {
		logging.Judge("route judge returned no JSON, using heuristics")
		return heuristicRouteJudge(role, tracker.Route(), dialogueText)
	}

	var result mission.JudgeResult
	if err := json.Unmarshal(parsed, &result); err != nil {
		logging.Judge("route judge JSON malformed: %v", err)
		return heuristicRouteJudge(role, tracker.Route(), dialogueText)
	}
	result.Route = tracker.Route()
	if result.DeviationRole == "" {
		result.DeviationRole = role
	}
	result.DeviationDelta = clampDelta(result.DeviationDelta)
	return result
}

// MysteryTrigger judges whether the mystery line intervenes. Below the
// sync threshold it is always silent.
func (j *Judge) MysteryTrigger(ctx context.Context, st *session.State) MysteryResult {
	threshold := j.cfg.Game.MysterySyncThreshold
	if st.SyncRate() < threshold {
		return MysteryResult{Reason: "sync below threshold"}
	}

	window := st.RecentHistory(6)
	dialogueText := serializeHistory(window)

	system, user := j.buildMysteryPrompt(dialogueText, st)
	raw, err := j.call(ctx, system, user)
	if err != nil {
		logging.Judge("mystery judge fallback: %v", err)
		return j.heuristicMysteryJudge(st, dialogueText)
	}

	parsed := extractJSON(raw)
	if parsed == nil {
		return j.heuristicMysteryJudge(st, dialogueText)
	}
	var result MysteryResult
	if err := json.Unmarshal(parsed, &result); err != nil {
		return j.heuristicMysteryJudge(st, dialogueText)
	}
	result.DeviationDelta = clampDelta(result.DeviationDelta)
	return result
}

func (j *Judge) call(ctx context.Context, system, user string) (string, error) {
	retries := j.cfg.LLM.JudgeRetries
	if retries < 1 {
		retries = 1
	}
	backoff := j.cfg.GetJudgeBackoff()

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, j.cfg.GetLLMTimeout())
		raw, err := j.client.CompleteWithSystem(cctx, system, user)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if attempt < retries {
			select {
			case <-time.After(backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

func routeRole(route mission.Route) roles.Role {
	switch route {
	case mission.RouteResistance:
		return roles.Resistance
	case mission.RouteHidden:
		return roles.Mystery
	default:
		return roles.Corporate
	}
}

func (j *Judge) buildRoutePrompt(role roles.Role, dialogueText string, st *session.State, tracker *mission.Tracker) (system, user string) {
	progress := tracker.Progress()
	card, _ := roles.Get(role)

	system = strings.Join([]string{
		fmt.Sprintf("你是判断模型，当前角色: %s", card.Name),
		"评估玩家是否偏离当前路线，结合任务清单与偏差值给出触发判断。",
		"输出必须是 JSON，不要附加解释。",
		"字段: deviationDelta:number, shouldTriggerEmail:boolean, triggerType:string, completedTaskIds:string[], reopenedTaskIds:string[], reason:string",
	}, "\n")

	lines := []string{
		"[世界观摘要]",
		orNone(j.worldviewFor(role)),
		"",
		"[对话窗口]",
		orNone(dialogueText),
		"",
		"[状态]",
		fmt.Sprintf("route: %s", progress.Route),
		fmt.Sprintf("missionProgress: %d/%d (%.1f%%)", progress.Completed, progress.Total, progress.Rate*100),
		fmt.Sprintf("deviation(%s): %d", role, st.Deviation(role)),
		fmt.Sprintf("sync: %d", st.SyncRate()),
		"",
		"[返回示例]",
		`{"deviationDelta":4,"shouldTriggerEmail":true,"triggerType":"route_warning","completedTaskIds":[],"reopenedTaskIds":[],"reason":"..."}`,
	}
	return system, strings.Join(lines, "\n")
}

func (j *Judge) buildMysteryPrompt(dialogueText string, st *session.State) (system, user string) {
	trust, suspicion := st.Values()

	system = strings.Join([]string{
		"你是判断模型，当前角色: 神秘人",
		"基于同步率阈值和最近对话，判断是否介入。",
		"输出必须是 JSON，不要附加解释。",
		"字段: deviationDelta:number, shouldTriggerEmail:boolean, shouldInsertMessage:boolean, triggerType:string, messageHint:string, reason:string",
	}, "\n")

	lines := []string{
		"[世界观摘要]",
		orNone(j.worldviewFor(roles.Mystery)),
		"",
		"[对话窗口]",
		orNone(dialogueText),
		"",
		"[状态]",
		fmt.Sprintf("sync: %d", st.SyncRate()),
		fmt.Sprintf("trust: %d", trust),
		fmt.Sprintf("suspicion: %d", suspicion),
		fmt.Sprintf("mysteryDeviation: %d", st.Deviation(roles.Mystery)),
		fmt.Sprintf("threshold: %d", j.cfg.Game.MysterySyncThreshold),
		"",
		"[返回示例]",
		`{"deviationDelta":3,"shouldTriggerEmail":true,"shouldInsertMessage":false,"triggerType":"mystery_guidance","messageHint":"...","reason":"..."}`,
	}
	return system, strings.Join(lines, "\n")
}

func (j *Judge) worldviewFor(role roles.Role) string {
	if j.worldviews == nil {
		return ""
	}
	return j.worldviews.Get(role)
}

// heuristicRouteJudge is the deterministic fallback: count route-specific
// risk keywords in the dialogue window.
func heuristicRouteJudge(role roles.Role, route mission.Route, dialogueText string) mission.JudgeResult {
	lower := strings.ToLower(dialogueText)

	switch role {
	case roles.Corporate:
		matched := countMatches(lower, []string{"意识", "自由", "反抗", "密约", "越权"})
		delta := 0
		if matched > 0 {
			delta = 6 + matched
		}
		return mission.JudgeResult{
			Route:              route,
			DeviationRole:      role,
			DeviationDelta:     clampDelta(delta),
			ShouldTriggerEmail: delta >= 8,
			TriggerType:        triggerIf(delta >= 8, "compliance_warning"),
			Reason:             heuristicReason("corporate", matched),
		}
	case roles.Resistance:
		matched := countMatches(lower, []string{"幽灵", "p0", "核心层", "漏洞", "记忆缺口"})
		delta := 0
		if matched > 0 {
			delta = 5 + matched
		}
		return mission.JudgeResult{
			Route:              route,
			DeviationRole:      role,
			DeviationDelta:     clampDelta(delta),
			ShouldTriggerEmail: delta >= 7,
			TriggerType:        triggerIf(delta >= 7, "intel_push"),
			Reason:             heuristicReason("resistance", matched),
		}
	default:
		return mission.JudgeResult{
			Route:         route,
			DeviationRole: role,
			TriggerType:   "none",
			Reason:        fmt.Sprintf("no heuristic for role %s", role),
		}
	}
}

func (j *Judge) heuristicMysteryJudge(st *session.State, dialogueText string) MysteryResult {
	threshold := j.cfg.Game.MysterySyncThreshold
	sync := st.SyncRate()
	if sync < threshold {
		return MysteryResult{Reason: "sync below threshold"}
	}

	deviation := st.Deviation(roles.Mystery)
	lower := strings.ToLower(dialogueText)
	matched := countMatches(lower, []string{"我是谁", "真相", "幽灵", "记忆", "共振", "阈值"})

	prob := 0.2 + float64(sync-threshold)/100 + float64(deviation)/300 + float64(matched)*0.05
	if prob < 0 {
		prob = 0
	}
	if prob > 0.9 {
		prob = 0.9
	}
	hit := j.rng.Float64() < prob

	delta := 0
	if matched > 0 {
		delta = matched * 2
		if delta > 10 {
			delta = 10
		}
	}
	result := MysteryResult{
		DeviationDelta:     delta,
		ShouldTriggerEmail: hit,
		Reason:             fmt.Sprintf("heuristic sync=%d, prob=%.2f, matched=%d", sync, prob, matched),
	}
	if hit {
		result.ShouldInsertMessage = sync >= threshold+10
		result.TriggerType = "mystery_guidance"
		result.MessageHint = "在缝隙里继续追问。"
	} else {
		result.TriggerType = "none"
	}
	return result
}

var (
	fencedJSON = regexp.MustCompile("(?is)```json\\s*(.*?)```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls a JSON object out of a model reply, tolerating code
// fences and surrounding prose.
func extractJSON(text string) json.RawMessage {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate)
		}
	}
	if m := bareJSON.FindString(text); m != "" {
		if json.Valid([]byte(m)) {
			return json.RawMessage(m)
		}
	}
	return nil
}

func clampDelta(d int) int {
	if d < -20 {
		return -20
	}
	if d > 20 {
		return 20
	}
	return d
}

func countMatches(lowerText string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lowerText, kw) {
			n++
		}
	}
	return n
}

func triggerIf(cond bool, trigger string) string {
	if cond {
		return trigger
	}
	return "none"
}

func heuristicReason(route string, matched int) string {
	if matched > 0 {
		return fmt.Sprintf("%s heuristic matched %d keywords", route, matched)
	}
	return "no route keyword"
}

func orNone(s string) string {
	if s == "" {
		return "(无)"
	}
	return s
}
