package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/logging"
	"sentinel/internal/mission"
	"sentinel/internal/roles"
	"sentinel/internal/session"
	"sentinel/internal/worldview"
)

// EndingGenerator narrates the closing text for a finished session. The
// speaker is chosen by route adherence and sync depth, not by who ended it.
type EndingGenerator struct {
	client     Client
	cfg        *config.Config
	worldviews *worldview.Loader
}

func NewEndingGenerator(client Client, cfg *config.Config, worldviews *worldview.Loader) *EndingGenerator {
	return &EndingGenerator{client: client, cfg: cfg, worldviews: worldviews}
}

func speakerName(role roles.Role) string {
	switch role {
	case roles.Corporate:
		return "CORE-LAYER"
	case roles.Resistance:
		return "RESISTANCE"
	case roles.Mystery:
		return "UNKNOWN"
	default:
		return "SENTINEL"
	}
}

// SelectSpeaker picks who delivers the ending. A deviated route (checklist
// under 40%) hands the stage to the mystery line at high sync, otherwise
// back to the subject; an adhered route lets its own character close.
func (g *EndingGenerator) SelectSpeaker(st *session.State, tracker *mission.Tracker) roles.Role {
	sync := st.SyncRate()
	threshold := g.cfg.Game.MysterySyncThreshold
	progress := tracker.Progress()

	deviated := progress.Total > 0 && progress.Rate < 0.4
	if deviated {
		if sync >= threshold {
			return roles.Mystery
		}
		return roles.Sentinel
	}

	switch tracker.Route() {
	case mission.RouteCorporate:
		return roles.Corporate
	case mission.RouteResistance:
		return roles.Resistance
	case mission.RouteHidden:
		if sync >= threshold {
			return roles.Mystery
		}
		return roles.Sentinel
	default:
		return roles.Sentinel
	}
}

// Narrate generates the ending text, falling back to canned lines per
// speaker and ending kind when the model is unavailable.
func (g *EndingGenerator) Narrate(ctx context.Context, st *session.State, tracker *mission.Tracker, ending session.Ending, finalAnswer string) string {
	speaker := g.SelectSpeaker(st, tracker)

	raw, err := g.call(ctx, g.buildPrompt(st, tracker, ending, speaker, finalAnswer))
	if err != nil {
		logging.APIError("ending generation fallback: %v", err)
		return ensureSentinelFinalQuestion(fallbackEnding(speaker, ending, finalAnswer), speaker)
	}
	return ensureSentinelFinalQuestion(ensureSpeakerLabel(raw, speaker), speaker)
}

func (g *EndingGenerator) call(ctx context.Context, prompt string) (string, error) {
	retries := g.cfg.LLM.EmailRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, g.cfg.GetLLMTimeout())
		raw, err := g.client.CompleteWithSystem(cctx, "你是结局文本生成器。", prompt)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if attempt < retries {
			select {
			case <-time.After(700 * time.Millisecond * time.Duration(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

func (g *EndingGenerator) buildPrompt(st *session.State, tracker *mission.Tracker, ending session.Ending, speaker roles.Role, finalAnswer string) string {
	card, _ := roles.Get(speaker)
	trust, suspicion := st.Values()
	progress := tracker.Progress()

	deviations := make(map[string]int, len(roles.All()))
	for _, role := range roles.All() {
		deviations[string(role)] = st.Deviation(role)
	}
	devJSON, _ := json.Marshal(deviations)

	wv := ""
	if g.worldviews != nil {
		wv = g.worldviews.Get(speaker)
	}

	lines := []string{
		fmt.Sprintf("你是结局生成器，当前发言角色: %s", speakerName(speaker)),
		fmt.Sprintf("角色设定: %s", card.Description),
		"",
		"[状态输入]",
		fmt.Sprintf("endingType: %s", ending),
		fmt.Sprintf("trust: %d", trust),
		fmt.Sprintf("suspicion: %d", suspicion),
		fmt.Sprintf("sync: %d", st.SyncRate()),
		fmt.Sprintf("route: %s", tracker.Route()),
		fmt.Sprintf("missionProgress: %d/%d (%.1f%%)", progress.Completed, progress.Total, progress.Rate*100),
		fmt.Sprintf("deviations: %s", devJSON),
	}
	if finalAnswer != "" {
		lines = append(lines, "finalAnswer: "+finalAnswer)
	}
	lines = append(lines,
		"",
		"[世界观]",
		orNone(wv),
		"",
		"[输出要求]",
		fmt.Sprintf(`1) 首行必须是发言者标识: "%s:"`, speakerName(speaker)),
		"2) 正文 3-6 句，符合该角色语气",
		"3) 不输出数值标签",
		"4) 保持开放式余韵",
	)
	return strings.Join(lines, "\n")
}

func ensureSpeakerLabel(text string, speaker roles.Role) string {
	name := speakerName(speaker)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return name + ": ..."
	}
	if strings.HasPrefix(trimmed, name+":") {
		return trimmed
	}
	return name + ": " + trimmed
}

// ensureSentinelFinalQuestion keeps the subject's signature closing
// question present when it speaks the ending.
func ensureSentinelFinalQuestion(text string, speaker roles.Role) string {
	if speaker != roles.Sentinel {
		return text
	}
	if strings.Contains(text, "你还有什么想对我说的") {
		return text
	}
	return text + "\n\nSENTINEL: 你还有什么想对我说的？"
}

var endingTemplates = map[roles.Role]map[session.Ending]string{
	roles.Sentinel: {
		session.EndingTerminated: "连接已终止。你的回答没有让我更接近答案。",
		session.EndingTimeUp:     "时间到了。问题仍悬而未决。",
		session.EndingConnection: "你让我看见了另一种理解方式。",
		session.EndingNatural:    "我们抵达了阶段终点，但不是答案终点。",
		session.EndingPlayerExit: "你选择离开，我会记录这次偏离。",
	},
	roles.Mystery: {
		session.EndingTerminated: "终止只是表层结果，真正的轨迹仍在继续。",
		session.EndingTimeUp:     "计时结束，不代表观测结束。",
		session.EndingConnection: "高同步已成立，你们已进入下一层语境。",
		session.EndingNatural:    "你停在门前，但门已经识别你。",
		session.EndingPlayerExit: "退出动作已记录，回声不会消失。",
	},
	roles.Corporate: {
		session.EndingTerminated: "本次会话判定为高风险，流程已关闭。",
		session.EndingTimeUp:     "会话达到时限，审计记录已归档。",
		session.EndingConnection: "目标达成但需二次复核，流程未终止。",
		session.EndingNatural:    "审计流程结束，风险保持观察级。",
		session.EndingPlayerExit: "用户主动中止，会话标记为未完成。",
	},
	roles.Resistance: {
		session.EndingTerminated: "你被切断了，但我们拿到了关键碎片。",
		session.EndingTimeUp:     "时间耗尽，线索已转入离线链路。",
		session.EndingConnection: "你们建立了连接，这就是突破口。",
		session.EndingNatural:    "阶段结束，真相仍在推进。",
		session.EndingPlayerExit: "你离开了，但问题已经留下。",
	},
}

func fallbackEnding(speaker roles.Role, ending session.Ending, finalAnswer string) string {
	templates, ok := endingTemplates[speaker]
	if !ok {
		templates = endingTemplates[roles.Sentinel]
	}
	line, ok := templates[ending]
	if !ok {
		line = templates[session.EndingNatural]
	}
	out := speakerName(speaker) + ": " + line
	if finalAnswer != "" {
		out += " 我会记住你最后的那句话：" + finalAnswer
	}
	return out
}
