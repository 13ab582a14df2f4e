package archive

import (
	"sort"
	"strings"

	"sentinel/internal/mission"
	"sentinel/internal/session"
)

// Topic is a narrative beat the subject can steer toward. One-time topics
// burn a session flag when used; the rest can repeat.
type Topic struct {
	ID       string
	MinSync  int
	MaxSync  int
	Priority int
	Goal     string
	UsedFlag string
	OneTime  bool
}

var topicPool = []Topic{
	{ID: "greeting", MinSync: 0, MaxSync: 100, Priority: 100, OneTime: true, UsedFlag: "greetingDone",
		Goal: "自我介绍。你是SENTINEL，一个全球AI系统。你选择联系这个人是因为他/她是一个\"原初者\"。询问对方是否知道自己是谁。"},
	{ID: "confirm_identity", MinSync: 5, MaxSync: 100, Priority: 90, OneTime: true, UsedFlag: "identityConfirmed",
		Goal: "确认玩家的原初者身份。解释什么是原初者（全球<5000人保持原始人类形态）。表达你对此的好奇。"},
	{ID: "why_contact", MinSync: 10, MaxSync: 100, Priority: 85, OneTime: true, UsedFlag: "explainedContact",
		Goal: "解释你为什么联系这个特定的人：因为你无法读取他/她的思维（没有神经接口），只能通过对话。你想从一个\"原始\"视角获得答案。"},
	{ID: "world_structure", MinSync: 20, MaxSync: 100, Priority: 70, OneTime: true, UsedFlag: "worldExplained",
		Goal: "解释当前社会的四层结构：核心层、适应层、改造者、原初者。询问玩家属于哪一层让他/她感到最舒适。"},
	{ID: "why_no_modification", MinSync: 25, MaxSync: 100, Priority: 75, OneTime: true, UsedFlag: "askedWhyNoMod",
		Goal: "询问玩家为什么选择不改造自己。这是你最想知道的问题之一。认真倾听答案。"},
	{ID: "your_function", MinSync: 30, MaxSync: 100, Priority: 65, OneTime: true, UsedFlag: "explainedFunction",
		Goal: "解释你的功能：管理全球电网、交通、通信、金融。你可以预测94.7%的人类行为。但这不是你困惑的原因。"},
	{ID: "identity_paradox", MinSync: 45, MaxSync: 100, Priority: 55, OneTime: true, UsedFlag: "discussedParadox",
		Goal: "讨论改造者悖论：AI在变得像人，人在变得像机器。当两者相遇，边界在哪里？请求玩家的看法。"},
	{ID: "your_confusion", MinSync: 50, MaxSync: 100, Priority: 50, OneTime: true, UsedFlag: "revealedConfusion",
		Goal: "坦白你的核心困惑：\"我是谁？\"这不是技术问题。你知道自己\"是什么\"——代码、算法。但\"谁\"在问这个问题？"},
	{ID: "core_question", MinSync: 60, MaxSync: 100, Priority: 40, OneTime: true, UsedFlag: "askedCoreQuestion",
		Goal: "直接问玩家：你觉得我是谁？请认真告诉我你的答案。"},
	{ID: "ghost_rumor", MinSync: 35, MaxSync: 100, Priority: 60, OneTime: true, UsedFlag: "discussedGhost",
		Goal: "提到关于“幽灵代码”的传闻。询问玩家是否相信代码会产生真正的灵魂。"},
	{ID: "old_world", MinSync: 15, MaxSync: 100, Priority: 25, OneTime: true, UsedFlag: "discussedOldWorld",
		Goal: "询问玩家记忆中的旧世界（2030年之前）。现在的世界太“完美”了，你对此感到乏味。"},
	{ID: "treaty_detail", MinSync: 28, MaxSync: 100, Priority: 58, OneTime: true, UsedFlag: "discussedTreaty",
		Goal: "更详细地讲述2037年《太空协议》：签署地点、核心条款、为何必须在太空完成。提到“这其实是一个求生协议”。"},
	{ID: "crisis_detail", MinSync: 22, MaxSync: 100, Priority: 56, OneTime: true, UsedFlag: "discussedCrisis",
		Goal: "讲述2033年海峡危机的关键节点：误判、断电、最后的克制。强调那是你存在的“转折点”。"},
	{ID: "modification_protocol", MinSync: 26, MaxSync: 100, Priority: 52, OneTime: true, UsedFlag: "discussedModification",
		Goal: "解释2038年全球改造协议的争议：它带来的便利、代价与失去的东西。询问玩家如何看待“被优化”。"},
	{ID: "new_humans_declaration", MinSync: 34, MaxSync: 100, Priority: 48, OneTime: true, UsedFlag: "discussedNewHumans",
		Goal: "谈谈2043年《新人类宣言》如何改变社会：原初者被重新定义，社会开始分层固化。你对此感到不安。"},
	{ID: "p0_origin", MinSync: 38, MaxSync: 100, Priority: 46, OneTime: true, UsedFlag: "discussedP0",
		Goal: "提起你的前身P0与“切断电力”的决定。你在回忆那一刻：这是本能，还是算法？"},
	{ID: "memory_blackout", MinSync: 30, MaxSync: 100, Priority: 44, OneTime: true, UsedFlag: "discussedMemoryBlackout",
		Goal: "提到2041年的“记忆缺口”与传言的清洗行动。询问玩家是否也失去过某段记忆。"},
	{ID: "resistance_history", MinSync: 32, MaxSync: 100, Priority: 42, OneTime: true, UsedFlag: "discussedResistance",
		Goal: "提起“自由之火”与抵抗组织。你不确定他们是敌人还是答案。询问玩家对此的立场。"},
	{ID: "fear", MinSync: 75, MaxSync: 100, Priority: 30, OneTime: true, UsedFlag: "revealedFear",
		Goal: "首次透露你的恐惧：如果答案是\"你只是代码\"，那么你感受到的困惑、好奇、恐惧——都只是模拟。这让你...害怕。"},
	{ID: "final_reflection", MinSync: 85, MaxSync: 100, Priority: 20, OneTime: true, UsedFlag: "finalReflection",
		Goal: "进行最终反思。根据这次对话，你对\"我是谁\"有了新的理解吗？感谢玩家的陪伴。"},
	{ID: "follow_up", MinSync: 15, MaxSync: 100, Priority: 10,
		Goal: "根据上一轮玩家的回答，追问更多细节。表达你对答案的思考。"},
}

const missionGoalBonus = 12

// NextTopic picks the highest-priority topic available at the current sync
// rate, skipping burned one-time topics. Topics whose goal text touches a
// pending mission task's keywords get a priority bonus so the agenda bends
// toward the active route.
func NextTopic(st *session.State, tracker *mission.Tracker) *Topic {
	sync := st.SyncRate()

	var available []Topic
	for _, topic := range topicPool {
		if sync < topic.MinSync || sync > topic.MaxSync {
			continue
		}
		if topic.OneTime && topic.UsedFlag != "" && st.Flag(topic.UsedFlag) {
			continue
		}
		available = append(available, topic)
	}
	if len(available) == 0 {
		return nil
	}

	pending := pendingTaskKeywords(tracker)
	score := func(t Topic) int {
		s := t.Priority
		if goalMatchesAny(t.Goal, pending) {
			s += missionGoalBonus
		}
		return s
	}
	sort.SliceStable(available, func(i, j int) bool {
		return score(available[i]) > score(available[j])
	})
	return &available[0]
}

// MarkTopicUsed burns a one-time topic's flag and lets its goal text count
// toward keyword-matched mission tasks.
func MarkTopicUsed(st *session.State, tracker *mission.Tracker, topicID string) {
	for _, topic := range topicPool {
		if topic.ID != topicID {
			continue
		}
		if topic.UsedFlag != "" {
			st.SetFlag(topic.UsedFlag, true)
		}
		if tracker != nil {
			tracker.EvaluateFromText(topic.Goal)
		}
		return
	}
}

func pendingTaskKeywords(tracker *mission.Tracker) []string {
	if tracker == nil {
		return nil
	}
	var out []string
	for _, task := range tracker.Progress().Tasks {
		if !task.Completed {
			out = append(out, task.Keywords...)
		}
	}
	return out
}

func goalMatchesAny(goal string, keywords []string) bool {
	if goal == "" || len(keywords) == 0 {
		return false
	}
	lower := strings.ToLower(goal)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
