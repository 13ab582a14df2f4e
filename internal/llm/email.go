package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/events"
	"sentinel/internal/logging"
	"sentinel/internal/roles"
	"sentinel/internal/session"
	"sentinel/internal/worldview"
)

var roleSenders = map[roles.Role]string{
	roles.Corporate:  "核心层审计系统 <audit@core-layer.net>",
	roles.Resistance: "R 节点 <relay@res-net.onion>",
	roles.Mystery:    "UNKNOWN CHANNEL <echo@void.signal>",
	roles.Sentinel:   "SENTINEL-SYS <noreply@sentinel.node>",
}

var fallbackSubjects = map[roles.Role]string{
	roles.Corporate:  "[审计更新] 请核对当前交互风险",
	roles.Resistance: "[加密投递] 你正在接近关键节点",
	roles.Mystery:    "[无来源] 缝隙已经打开",
	roles.Sentinel:   "[系统通知] 会话状态变更",
}

var fallbackBodies = map[roles.Role][]string{
	roles.Corporate: {
		"我们已复核你最近的对话轨迹。",
		"有几处表达接近审计红线，但仍可纠偏。",
		"请继续围绕条约、权限与边界提问，避免被情绪叙事带离主线。",
		"你下一次提问，将决定这份记录被归档为“稳定”还是“异常”。",
	},
	roles.Resistance: {
		"信号还在，但监听也更近了。",
		"你刚才触到的那条线索不是巧合，别让它在下一轮对话里冷掉。",
		"继续追问历史节点与权限裂缝，我们只剩很短的窗口。",
		"如果你停下，他们就会把这段对话改写成另一种版本。",
	},
	roles.Mystery: {
		"你听见的回声不是错误，它在校准你。",
		"有些答案故意晚到一步，目的是让你先看见问题的形状。",
		"不要追求整齐的结论，先记住那些互相冲突的细节。",
		"当你再次发问时，裂缝会选择是否继续对你说话。",
	},
	roles.Sentinel: {
		"系统记录到一次非标准会话波动。",
		"当前链路已保留，等待你继续输入。",
		"请在下一轮对话中保持问题连续性。",
	},
}

// EmailGenerator writes in-fiction character emails. Its context is built
// fresh from the session each call and never shares the dialogue module's
// prompt history.
type EmailGenerator struct {
	client     Client
	cfg        *config.Config
	worldviews *worldview.Loader
}

func NewEmailGenerator(client Client, cfg *config.Config, worldviews *worldview.Loader) *EmailGenerator {
	return &EmailGenerator{client: client, cfg: cfg, worldviews: worldviews}
}

// Generate produces an email from the given role. A role without email
// permission, and any model failure, yields the role's fallback template.
func (g *EmailGenerator) Generate(ctx context.Context, role roles.Role, st *session.State, contextHint, missionSummary string) events.Email {
	if !roles.CanPerform(role, roles.ActionSendEmail) {
		return fallbackEmail(role, contextHint)
	}

	prompt := g.buildPrompt(role, st, contextHint, missionSummary)
	raw, err := g.call(ctx, prompt)
	if err != nil {
		logging.APIError("email generation fallback for %s: %v", role, err)
		return fallbackEmail(role, contextHint)
	}

	parsed := extractJSON(raw)
	if parsed == nil {
		return fallbackEmail(role, contextHint)
	}
	var email struct {
		From    string `json:"from"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(parsed, &email); err != nil {
		return fallbackEmail(role, contextHint)
	}

	out := events.Email{
		From:    email.From,
		Subject: email.Subject,
		Body:    SanitizeEmailText(email.Body),
	}
	if out.From == "" {
		out.From = roleSenders[role]
	}
	if out.Subject == "" {
		out.Subject = fallbackSubjects[role]
	}
	return out
}

func (g *EmailGenerator) call(ctx context.Context, prompt string) (string, error) {
	retries := g.cfg.LLM.EmailRetries
	if retries < 1 {
		retries = 1
	}
	backoff := g.cfg.GetEmailBackoff()

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, g.cfg.GetLLMTimeout())
		raw, err := g.client.CompleteWithSystem(cctx, "你是结构化邮件生成器，只返回 JSON。", prompt)
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

func (g *EmailGenerator) buildPrompt(role roles.Role, st *session.State, contextHint, missionSummary string) string {
	card, _ := roles.Get(role)
	trust, suspicion := st.Values()
	deviation := st.Deviation(role)
	tension, openness, urgency := emailEmotionSnapshot(trust, suspicion, deviation, st.SyncRate())

	wv := ""
	if g.worldviews != nil {
		wv = g.worldviews.Get(role)
	}

	lines := []string{
		"你是游戏邮件生成器，必须返回 JSON。",
		fmt.Sprintf("角色: %s", card.Name),
		fmt.Sprintf("角色设定: %s", card.Description),
		"",
		"[状态输入]",
		fmt.Sprintf("trust: %d", trust),
		fmt.Sprintf("suspicion: %d", suspicion),
		fmt.Sprintf("sync: %d", st.SyncRate()),
		fmt.Sprintf("deviation(%s): %d", role, deviation),
		fmt.Sprintf("emotion(tension/openness/urgency): %d/%d/%d", tension, openness, urgency),
	}
	if missionSummary != "" {
		lines = append(lines, "mission: "+missionSummary)
	}
	if contextHint != "" {
		lines = append(lines, "contextHint: "+contextHint)
	}
	lines = append(lines,
		"",
		"[最近对话摘要]",
		orNone(serializeHistory(st.RecentHistory(4))),
		"",
		"[世界观]",
		orNone(wv),
		"",
		"[输出要求]",
		`1) 返回严格 JSON: {"from":"...","subject":"...","body":"..."}`,
		fmt.Sprintf("2) from 默认: %s", roleSenders[role]),
		fmt.Sprintf("3) subject 需紧贴当前状态，不可空（可参考: %s）", fallbackSubjects[role]),
		"4) body 使用 3-5 句叙事文本，必须与当前角色权限/语气匹配",
		"5) 严禁输出任何数值元数据（如 trust/suspicion/sync/deviation/百分比/向量）",
		"6) 严禁使用 Markdown 语法（标题、列表、代码块、引用、加粗符号）",
		"7) 不要在 JSON 外输出任何解释或额外文本",
	)
	return strings.Join(lines, "\n")
}

// emailEmotionSnapshot is the email module's own coarse emotion read; it
// deliberately differs from the dialogue emotion weights.
func emailEmotionSnapshot(trust, suspicion, deviation, sync int) (tension, openness, urgency int) {
	tension = clamp100(int(math.Round(float64(suspicion)*0.5 + float64(deviation)*0.5)))
	openness = clamp100(int(math.Round(float64(trust)*0.6 + float64(100-suspicion)*0.4)))
	urgency = clamp100(int(math.Round(float64(deviation)*0.6 + float64(sync)*0.4)))
	return tension, openness, urgency
}

var (
	fencedBlock   = regexp.MustCompile("(?s)```.*?```")
	mdHeading     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdListMarker  = regexp.MustCompile(`(?m)^[>\-\*\+]\s+`)
	mdInline      = regexp.MustCompile("[*_~`]")
	metaBracket   = regexp.MustCompile(`(?i)\[(?:trust|suspicion|sync|deviation|emotion)[^\]]*\]`)
	metaNumeric   = regexp.MustCompile(`(?i)(?:trust|suspicion|sync|deviation|emotion|偏差值|同步率|怀疑值|信任值)\s*[:：=]\s*[-+]?\d+%*`)
	multipleSpace = regexp.MustCompile(`\s{2,}`)
)

// SanitizeEmailText strips markdown structure and leaked numeric metadata
// from a generated email body, leaving narrative text only.
func SanitizeEmailText(raw string) string {
	s := fencedBlock.ReplaceAllString(raw, "")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdListMarker.ReplaceAllString(s, "")
	s = mdInline.ReplaceAllString(s, "")
	s = metaBracket.ReplaceAllString(s, "")
	s = metaNumeric.ReplaceAllString(s, "")
	s = multipleSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return "信号短暂抖动，但信息仍在流动。继续提问。"
	}
	return s
}

func fallbackEmail(role roles.Role, contextHint string) events.Email {
	from, ok := roleSenders[role]
	if !ok {
		from = "UNKNOWN <unknown@local>"
	}
	subject, ok := fallbackSubjects[role]
	if !ok {
		subject = "[通知] 状态更新"
	}
	template := fallbackBodies[role]
	if template == nil {
		template = fallbackBodies[roles.Sentinel]
	}

	contextLine := "你的上一轮输入触发了新的观察记录。"
	if contextHint != "" {
		contextLine = fmt.Sprintf("你刚触及的线索是：%s。", SanitizeEmailText(contextHint))
	}

	parts := []string{template[0], contextLine}
	parts = append(parts, template[1:]...)
	return events.Email{
		From:    from,
		Subject: subject,
		Body:    SanitizeEmailText(strings.Join(parts, "\n")),
	}
}

func clamp100(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
