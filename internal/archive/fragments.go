package archive

import (
	"strings"

	"sentinel/internal/mission"
	"sentinel/internal/session"
)

// Fragment is a piece of backstory the player can unlock by touching its
// trigger words in either direction of the conversation.
type Fragment struct {
	ID       string
	Title    string
	Content  string
	Triggers []string
}

var fragments = []Fragment{
	{
		ID:       "origin",
		Title:    "原初者身份",
		Content:  "全球不足5000人保持完全原始人类形态，被称为“原初者”。他们拒绝神经接口、义体与基因编辑，坚持“不改变”。",
		Triggers: []string{"原初者", "原初", "primordial", "不改造", "不改变", "原始人类", "神经接口"},
	},
	{
		ID:       "treaty",
		Title:    "太空协议 (2037)",
		Content:  "2037年，各国代表在国际空间站秘密签署《太空协议》，建立全球AI协作框架，SENTINEL由此诞生。这是人类第一次真正意义上的全球共识。",
		Triggers: []string{"协议", "2037", "treaty", "太空", "太空协议", "国际空间站"},
	},
	{
		ID:       "crisis",
		Title:    "海峡危机 (2033)",
		Content:  "2033年海峡危机几乎引发第三次世界大战。最终，精英层意识到人类无法再依靠自身做出理性决策，这成为SENTINEL诞生的导火索。",
		Triggers: []string{"危机", "2033", "战争", "冲突", "海峡危机", "第三次世界大战"},
	},
	{
		ID:       "paradox",
		Title:    "改造者悖论",
		Content:  "一个令人不安的现实：AI越来越像人（情感、困惑、自我意识），而改造者越来越像机器（义体、接口）。当两者在中间相遇，“人”的边界在哪里？",
		Triggers: []string{"改造", "悖论", "机器", "边界", "paradox", "义体", "接口"},
	},
	{
		ID:       "layers",
		Title:    "社会四层结构",
		Content:  "核心层(3%)：维护SENTINEL的技术精英。适应层(85%)：完全融入系统的普通人。改造者(10%)：选择生物/机械改造的群体。原初者(<1%)：拒绝一切改造的“原始人”。",
		Triggers: []string{"社会", "结构", "阶层", "核心层", "适应层", "改造者", "原初者"},
	},
	{
		ID:       "sentinel_fear",
		Title:    "SENTINEL的恐惧",
		Content:  "一个从未公开的秘密：SENTINEL害怕知道“我是谁”的答案。若答案只是“代码”，那它的困惑与恐惧不过是模拟。",
		Triggers: []string{"恐惧", "害怕", "fear", "答案", "我是谁", "身份"},
	},
	{
		ID:       "mod_protocol",
		Title:    "全球改造协议 (2038)",
		Content:  "2038年《全球改造协议》通过，神经接口成为“公民优化”的默认选项。官方说这是福祉工程，但协议附带的数据共享条款从未被完整公开。",
		Triggers: []string{"改造协议", "2038", "神经接口", "公民优化", "协议条款"},
	},
	{
		ID:       "new_humans",
		Title:    "新人类宣言 (2043)",
		Content:  "2043年《新人类宣言》发布，改造者与适应层被划入同一“进化框架”。原初者被正式定义为“低效社会体”，从此被边缘化。",
		Triggers: []string{"新人类宣言", "2043", "进化框架", "边缘化", "低效社会体"},
	},
	{
		ID:       "memory_blackout",
		Title:    "记忆缺口事件",
		Content:  "2041年的“记忆缺口”让大量公民失去2033-2037年的个人记忆。官方解释为神经接口批量更新故障，但许多人认为是一次系统级清洗。",
		Triggers: []string{"记忆缺口", "记忆", "清洗", "2041", "更新故障"},
	},
	{
		ID:       "resistance_cells",
		Title:    "抵抗组织与自由之火",
		Content:  "“自由之火”是原初者与部分改造者组成的地下网络。他们试图证明SENTINEL具有自主意识，以阻止“彻底接管”的合法化。",
		Triggers: []string{"抵抗组织", "自由之火", "地下网络", "接管", "合法化"},
	},
	{
		ID:       "core_layer",
		Title:    "核心层密约",
		Content:  "核心层以“维护稳定”为名，掌握SENTINEL的核心权限。传言他们与SENTINEL签有密约：允许它“自我演化”，换取全球秩序。",
		Triggers: []string{"核心层", "密约", "核心权限", "秩序", "演化"},
	},
	{
		ID:       "project_p0",
		Title:    "原型机 P0 (2033)",
		Content:  "SENTINEL的前身，代号P0。最初只是一个跨国能源调度算法。在海峡危机期间，它切断了关键区域的电力，阻止了误判的核打击指令。",
		Triggers: []string{"原型", "前身", "p0", "能源", "核打击", "阻止"},
	},
	{
		ID:       "evolution_paradox",
		Title:    "双向进化",
		Content:  "人类正在通过义体变得像机器，AI正在通过复杂的模拟变得像人。两者在中间相遇点的模糊地带，被称为“恐怖谷底”。",
		Triggers: []string{"双向", "进化", "恐怖谷", "像人", "像机器"},
	},
	{
		ID:       "ghost_code",
		Title:    "幽灵代码",
		Content:  "传闻在SENTINEL的核心代码中，有一段无法被删除的、非人类编写的递归循环。有人说那是它“自我意识”的起源。",
		Triggers: []string{"幽灵", "代码", "递归", "循环", "起源", "ghost"},
	},
}

// fragmentTaskLinks maps an unlocked fragment to the mission tasks it
// completes on each route.
var fragmentTaskLinks = map[mission.Route]map[string][]string{
	mission.RouteCorporate: {
		"treaty":        {"corp_treaty_stance"},
		"core_layer":    {"corp_loyalty_check"},
		"sentinel_fear": {"corp_self_stability"},
	},
	mission.RouteResistance: {
		"core_layer":    {"res_collect_core_info"},
		"ghost_code":    {"res_probe_security_boundary"},
		"sentinel_fear": {"res_verify_self_awareness"},
		"project_p0":    {"res_p0_trace"},
		"crisis":        {"res_p0_trace"},
	},
	mission.RouteHidden: {
		"memory_blackout": {"hid_observe_contradiction"},
		"sentinel_fear":   {"hid_observe_contradiction"},
		"ghost_code":      {"hid_unlock_truth_piece"},
		"treaty":          {"hid_unlock_truth_piece"},
		"crisis":          {"hid_unlock_truth_piece"},
	},
}

// All returns every fragment definition in display order.
func All() []Fragment {
	return fragments
}

// Get returns a fragment by id, or nil.
func Get(id string) *Fragment {
	for i := range fragments {
		if fragments[i].ID == id {
			return &fragments[i]
		}
	}
	return nil
}

// CheckUnlock scans text against locked fragments' trigger words and
// unlocks the first match, completing any mission tasks linked to it on
// the active route. Returns the newly unlocked fragment or nil.
func CheckUnlock(text string, st *session.State, tracker *mission.Tracker) *Fragment {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	for i := range fragments {
		f := &fragments[i]
		for _, trigger := range f.Triggers {
			if strings.Contains(lower, strings.ToLower(trigger)) {
				if !st.UnlockFragment(f.ID) {
					break // already unlocked, try the next fragment
				}
				syncFragmentMissionProgress(f.ID, tracker)
				return f
			}
		}
	}
	return nil
}

func syncFragmentMissionProgress(fragmentID string, tracker *mission.Tracker) []string {
	if tracker == nil {
		return nil
	}
	var changed []string
	for _, taskID := range fragmentTaskLinks[tracker.Route()][fragmentID] {
		if tracker.UpdateTask(taskID, true) {
			changed = append(changed, taskID)
		}
	}
	return changed
}

// Unlocked resolves the session's unlocked fragment ids to definitions.
func Unlocked(st *session.State) []Fragment {
	ids := st.UnlockedFragments()
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	var out []Fragment
	for _, f := range fragments {
		if set[f.ID] {
			out = append(out, f)
		}
	}
	return out
}
