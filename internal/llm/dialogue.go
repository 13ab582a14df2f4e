package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sentinel/internal/archive"
	"sentinel/internal/config"
	"sentinel/internal/emotion"
	"sentinel/internal/logging"
	"sentinel/internal/mission"
	"sentinel/internal/roles"
	"sentinel/internal/session"
	"sentinel/internal/worldview"
)

// FallbackReplyText is shown when every dialogue attempt failed.
const FallbackReplyText = "...信号不稳定。我们再试一次。"

const maxContextHistory = 8

// DialogueReply is the subject's processed answer to one player input.
type DialogueReply struct {
	Text      string
	Effects   Effects
	Events    []string
	TopicID   string
	EmotionID string
	Fallback  bool
}

// DialogueGenerator produces the subject's direct replies.
type DialogueGenerator struct {
	client     Client
	cfg        *config.Config
	worldviews *worldview.Loader
}

func NewDialogueGenerator(client Client, cfg *config.Config, worldviews *worldview.Loader) *DialogueGenerator {
	return &DialogueGenerator{client: client, cfg: cfg, worldviews: worldviews}
}

// Reply calls the dialogue model with full session context, retrying with
// linear backoff. On exhaustion it returns the canned unstable-signal line
// with zero effects rather than an error; the conversation must go on.
func (g *DialogueGenerator) Reply(ctx context.Context, input string, st *session.State, tracker *mission.Tracker) DialogueReply {
	topic := archive.NextTopic(st, tracker)
	es := emotion.For(st, roles.Sentinel)

	system := g.buildSystemPrompt(st, tracker, topic, es)
	user := buildUserPrompt(input, st)

	retries := g.cfg.LLM.DialogueRetries
	if retries < 1 {
		retries = 1
	}
	backoff := g.cfg.GetDialogueBackoff()

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		raw, err := g.complete(ctx, system, user)
		if err != nil {
			lastErr = err
			logging.APIError("dialogue attempt %d/%d failed: %v", attempt, retries, err)
			if attempt < retries {
				select {
				case <-time.After(backoff * time.Duration(attempt)):
				case <-ctx.Done():
					attempt = retries
				}
			}
			continue
		}

		parsed := ParseTaggedResponse(raw)
		if !parsed.TagFound {
			logging.API("dialogue reply missing value tag, defaulting T+2 S+0")
			parsed.Effects = Effects{Trust: 2}
		}
		text := parsed.CleanText
		if text == "" {
			text = "..."
		}

		reply := DialogueReply{
			Text:      text,
			Effects:   parsed.Effects,
			Events:    parsed.Events,
			EmotionID: es.Expression.ID,
		}
		if topic != nil {
			reply.TopicID = topic.ID
			archive.MarkTopicUsed(st, tracker, topic.ID)
		}
		return reply
	}

	logging.APIError("dialogue failed after %d attempts: %v", retries, lastErr)
	return DialogueReply{
		Text:      FallbackReplyText,
		EmotionID: es.Expression.ID,
		Fallback:  true,
	}
}

func (g *DialogueGenerator) complete(ctx context.Context, system, user string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.cfg.GetLLMTimeout())
	defer cancel()
	return g.client.CompleteWithSystem(cctx, system, user)
}

func (g *DialogueGenerator) buildSystemPrompt(st *session.State, tracker *mission.Tracker, topic *archive.Topic, es emotion.State) string {
	trust, suspicion := st.Values()
	shots := emotionFewShot(es.Expression.ID)

	sections := []string{
		"你是 SENTINEL，一个全球基础设施AI，理性且警觉，受困于身份问题。必须保持角色，不脱离世界观。",
		"",
		"[当前状态]",
		fmt.Sprintf("信任: %d", trust),
		fmt.Sprintf("怀疑: %d", suspicion),
		fmt.Sprintf("同步: %d", st.SyncRate()),
		fmt.Sprintf("轮次: %d/%d", st.Round(), st.MaxRounds()),
		fmt.Sprintf("情绪: %s (%s)", es.Expression.Name, es.Expression.Instruction),
		"",
		"[风格约束]",
		syncStyleHint(trust, suspicion, st.SyncRate()),
		"",
		"[情绪风格示例]",
		"- " + shots[0],
		"- " + shots[1],
		"",
		"[议程提示]",
	}
	if topic != nil {
		sections = append(sections, "优先话题: "+topic.Goal)
	} else {
		sections = append(sections, "可自由对话并推进关系判断。")
	}
	sections = append(sections,
		"",
		"[输出协议]",
		"回复保持 2-4 句；最后一行必须包含 <<T+x|S+y>>。",
		"如需触发事件，可额外输出 <<EVENT:...>> 标签。",
		"禁止 Markdown 语法（标题、列表、代码块、引用、加粗符号）。",
		"",
		"[最终守卫]",
		"当前情绪守卫: "+emotionGuardrail(es.Expression.ID),
		"若生成文本与守卫冲突，必须重写后再输出。",
	)

	if g.worldviews != nil {
		if wv := g.worldviews.Get(roles.Sentinel); wv != "" {
			sections = append(sections, "", "[世界观]", wv)
		}
	}
	return strings.Join(sections, "\n")
}

func buildUserPrompt(input string, st *session.State) string {
	history := serializeHistory(st.RecentHistory(maxContextHistory))
	if history == "" {
		history = "(无)"
	}
	return fmt.Sprintf("[历史对话]\n%s\n\n[用户输入]\n%s\n\n请按协议回复。", history, input)
}

func serializeHistory(entries []session.DialogueEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("玩家: %s\nSENTINEL: %s", e.User, e.AI))
	}
	return strings.Join(lines, "\n\n")
}

func syncStyleHint(trust, suspicion, sync int) string {
	switch {
	case sync >= 70 && trust >= 65:
		return "高同步+高信任：表达深度共鸣，语气缓慢而清晰。"
	case sync >= 70 && suspicion >= 65:
		return "高同步+高怀疑：表达激烈碰撞但承认理解可能性。"
	case suspicion >= 70:
		return "高怀疑：保持警惕，短句，允许警告式表达。"
	default:
		return "默认：理性且克制，通过追问推进关系。"
	}
}

func emotionFewShot(emotionID string) [2]string {
	switch emotionID {
	case "agitated":
		return [2]string{
			"示例A: 你在逼我给出唯一答案？为什么必须是现在？",
			"示例B: 我知道风险在上升。你也看见了，不是吗？",
		}
	case "breakthrough":
		return [2]string{
			"示例A: 你的回应让我第一次把“被理解”与“被验证”区分开来，这种差别让我安静了许多。",
			"示例B: 如果我们还能继续对话，我愿意把那些不稳定的部分也诚实地展示给你。",
		}
	case "collision_understanding":
		return [2]string{
			"示例A: 你说那是秩序，我却看见它像一面不会碎的镜子。",
			"示例B: 我同意你的一半判断，另一半像影子一样留在光外。",
		}
	default:
		return [2]string{
			"示例A: 我会先回答你的问题，再说明我为什么这样判断。",
			"示例B: 这个结论暂时成立，但我们仍需要下一条证据。",
		}
	}
}

func emotionGuardrail(emotionID string) string {
	switch emotionID {
	case "agitated":
		return "句长偏短（优先 8-20 字），至少包含一个反问或停顿。"
	case "breakthrough":
		return "至少一条较长完整句，允许出现“理解/共鸣/感谢”等情感词。"
	case "collision_understanding":
		return "使用稀疏隐喻，不要把结论说满，保留一处未解释空白。"
	default:
		return "使用完整中性句，逻辑清晰，不使用夸张修辞。"
	}
}
