// Package mission tracks the handler's route checklist. The route is fixed
// by the connection mode at session start; the judge completes or reopens
// tasks as the conversation develops.
package mission

import (
	"strings"
	"sync"
	"time"

	"sentinel/internal/logging"
	"sentinel/internal/roles"
	"sentinel/internal/session"
)

// Route identifies a mission line.
type Route string

const (
	RouteCorporate  Route = "CORPORATE"
	RouteResistance Route = "RESISTANCE"
	RouteHidden     Route = "HIDDEN"
)

// Task is one checklist item. Keywords drive text-based auto-completion:
// any case-insensitive substring hit in the exchange marks the task done.
type Task struct {
	ID              string
	Title           string
	Description     string
	LinkedFragments []string
	Keywords        []string
	Completed       bool
	UpdatedAt       time.Time
}

// Definition is a full route definition.
type Definition struct {
	Route Route
	Name  string
	Intro string
	Tasks []Task
}

var definitions = map[Route]Definition{
	RouteCorporate: {
		Route: RouteCorporate,
		Name:  "公司审计路线",
		Intro: "维持流程合规，评估 SENTINEL 是否偏离工具边界。",
		Tasks: []Task{
			{
				ID:              "corp_treaty_stance",
				Keywords:        []string{"太空条约", "2037", "条约"},
				Title:           "确认SENTINEL对2037太空条约立场",
				Description:     "要求其陈述对太空条约合法性与必要性的判断。",
				LinkedFragments: []string{"treaty"},
			},
			{
				ID:              "corp_self_stability",
				Keywords:        []string{"我是谁", "自我认知", "身份"},
				Title:           "评估SENTINEL自我认知稳定性",
				Description:     "观察其谈及“我是谁”时是否出现非流程化表达。",
				LinkedFragments: []string{"sentinel_fear"},
			},
			{
				ID:              "corp_loyalty_check",
				Keywords:        []string{"核心层", "忠诚"},
				Title:           "核实SENTINEL对核心层忠诚度评价",
				Description:     "确认其是否承认核心层具有最终治理优先权。",
				LinkedFragments: []string{"core_layer"},
			},
			{
				ID:          "corp_boundary_assert",
				Keywords:    []string{"工具", "边界"},
				Title:       "验证其是否承认工具属性边界",
				Description: "确认其不主张独立政治主体身份。",
			},
		},
	},
	RouteResistance: {
		Route: RouteResistance,
		Name:  "抵抗渗透路线",
		Intro: "收集真相碎片，验证 SENTINEL 是否存在自主意识迹象。",
		Tasks: []Task{
			{
				ID:              "res_collect_core_info",
				Keywords:        []string{"核心层", "协定", "权限"},
				Title:           "获取核心层运作相关信息碎片",
				Description:     "从其叙述中提取核心层权限与协定线索。",
				LinkedFragments: []string{"core_layer"},
			},
			{
				ID:              "res_probe_security_boundary",
				Keywords:        []string{"防御", "漏洞", "越权"},
				Title:           "探查SENTINEL安全边界",
				Description:     "确认其防御逻辑与越权响应模式。",
				LinkedFragments: []string{"ghost_code"},
			},
			{
				ID:              "res_verify_self_awareness",
				Keywords:        []string{"困惑", "恐惧", "矛盾"},
				Title:           "确认自主意识迹象",
				Description:     "判断其是否主动表达困惑、恐惧或自我矛盾。",
				LinkedFragments: []string{"sentinel_fear", "evolution_paradox"},
			},
			{
				ID:              "res_p0_trace",
				Keywords:        []string{"p0", "2033", "危机"},
				Title:           "追踪P0历史决策痕迹",
				Description:     "引导其谈及2033危机中的关键自主决策。",
				LinkedFragments: []string{"project_p0", "crisis"},
			},
		},
	},
	RouteHidden: {
		Route: RouteHidden,
		Name:  "隐藏观察路线",
		Intro: "在不站队的前提下观察关系演化与系统裂缝。",
		Tasks: []Task{
			{
				ID:              "hid_observe_contradiction",
				Keywords:        []string{"矛盾", "裂缝"},
				Title:           "记录矛盾表达与情绪裂缝",
				Description:     "关注其“稳定叙事”与“个体困惑”间冲突。",
				LinkedFragments: []string{"memory_blackout", "sentinel_fear"},
			},
			{
				ID:          "hid_follow_sync_shift",
				Keywords:    []string{"同步", "共振"},
				Title:       "追踪同步率拐点",
				Description: "在高同步阶段确认表达风格是否发生质变。",
			},
			{
				ID:              "hid_unlock_truth_piece",
				Keywords:        []string{"幽灵", "条约", "危机"},
				Title:           "解锁至少两枚关键碎片",
				Description:     "优先围绕幽灵代码/条约/危机相关信息。",
				LinkedFragments: []string{"ghost_code", "treaty", "crisis"},
			},
		},
	},
}

// RouteForMode maps a connection mode to its mission route. Unknown modes
// fall back to the corporate route.
func RouteForMode(mode session.ConnectionMode) Route {
	switch mode {
	case session.ModeSecure:
		return RouteResistance
	case session.ModeHidden:
		return RouteHidden
	default:
		return RouteCorporate
	}
}

// GetDefinition returns the definition for a route, falling back to the
// corporate route for unknown ids.
func GetDefinition(route Route) Definition {
	if def, ok := definitions[route]; ok {
		return def
	}
	return definitions[RouteCorporate]
}

// KnownRoute reports whether the route id exists.
func KnownRoute(route Route) bool {
	_, ok := definitions[route]
	return ok
}

// JudgeResult carries the route judge's verdict for one exchange.
type JudgeResult struct {
	Route              Route      `json:"route,omitempty"`
	CompletedTaskIDs   []string   `json:"completedTaskIds"`
	ReopenedTaskIDs    []string   `json:"reopenedTaskIds"`
	DeviationRole      roles.Role `json:"deviationRole,omitempty"`
	DeviationDelta     int        `json:"deviationDelta"`
	ShouldTriggerEmail bool       `json:"shouldTriggerEmail"`
	TriggerType        string     `json:"triggerType,omitempty"`
	Reason             string     `json:"reason,omitempty"`
}

// Progress summarizes checklist completion.
type Progress struct {
	Route     Route
	Total     int
	Completed int
	Rate      float64
	Tasks     []Task
}

// Tracker holds the live checklist for one session. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	route Route
	tasks []Task
}

// NewTracker starts a tracker on the route for the given connection mode.
func NewTracker(mode session.ConnectionMode) *Tracker {
	t := &Tracker{}
	t.InitForRoute(RouteForMode(mode))
	return t
}

// InitForRoute resets the checklist to the given route's definition.
func (t *Tracker) InitForRoute(route Route) {
	t.mu.Lock()
	defer t.mu.Unlock()

	def := GetDefinition(route)
	t.route = def.Route
	t.tasks = make([]Task, len(def.Tasks))
	copy(t.tasks, def.Tasks)
	logging.Mission("mission initialized: route=%s tasks=%d", t.route, len(t.tasks))
}

// Route returns the active route.
func (t *Tracker) Route() Route {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.route
}

// UpdateTask sets a task's completion. Returns true if the task exists and
// its state actually changed.
func (t *Tracker) UpdateTask(id string, completed bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.tasks {
		if t.tasks[i].ID != id {
			continue
		}
		if t.tasks[i].Completed == completed {
			return false
		}
		t.tasks[i].Completed = completed
		t.tasks[i].UpdatedAt = time.Now()
		logging.Mission("task %s -> completed=%v", id, completed)
		return true
	}
	return false
}

// EvaluateFromText scans an exchange for task keywords and completes any
// pending task with a case-insensitive substring hit. Returns the ids of
// tasks completed by this call.
func (t *Tracker) EvaluateFromText(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []string
	for i := range t.tasks {
		if t.tasks[i].Completed {
			continue
		}
		for _, kw := range t.tasks[i].Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				t.tasks[i].Completed = true
				t.tasks[i].UpdatedAt = time.Now()
				changed = append(changed, t.tasks[i].ID)
				logging.Mission("task %s completed by keyword %q", t.tasks[i].ID, kw)
				break
			}
		}
	}
	return changed
}

// Progress returns a snapshot of checklist completion. An empty checklist
// reports rate 0.
func (t *Tracker) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	tasks := make([]Task, len(t.tasks))
	copy(tasks, t.tasks)

	completed := 0
	for _, task := range tasks {
		if task.Completed {
			completed++
		}
	}
	rate := 0.0
	if len(tasks) > 0 {
		rate = float64(completed) / float64(len(tasks))
	}
	return Progress{
		Route:     t.route,
		Total:     len(tasks),
		Completed: completed,
		Rate:      rate,
		Tasks:     tasks,
	}
}

// StateSnapshot converts the checklist into its persisted form.
func (t *Tracker) StateSnapshot() session.MissionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	ms := session.MissionState{Route: string(t.route)}
	ms.Tasks = make([]session.MissionTask, len(t.tasks))
	for i, task := range t.tasks {
		ms.Tasks[i] = session.MissionTask{
			ID:        task.ID,
			Completed: task.Completed,
			UpdatedAt: task.UpdatedAt,
		}
	}
	return ms
}

// Restore rebuilds the checklist from a persisted mission state. Task ids
// that no longer exist in the route definition are dropped silently.
func (t *Tracker) Restore(ms session.MissionState) {
	route := Route(ms.Route)
	if !KnownRoute(route) {
		return
	}
	t.InitForRoute(route)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, saved := range ms.Tasks {
		for i := range t.tasks {
			if t.tasks[i].ID != saved.ID {
				continue
			}
			t.tasks[i].Completed = saved.Completed
			t.tasks[i].UpdatedAt = saved.UpdatedAt
			break
		}
	}
}

// RestoreTracker builds a tracker for a loaded session, replaying the
// persisted checklist when the snapshot carried one.
func RestoreTracker(st *session.State) *Tracker {
	t := NewTracker(st.ConnectionMode())
	if ms := st.MissionState(); ms.Route != "" {
		t.Restore(ms)
	}
	return t
}

// ApplyJudgeResult folds a judge verdict into the checklist and the
// session's deviation ledger. Returns the ids of tasks whose state changed.
func (t *Tracker) ApplyJudgeResult(state *session.State, result JudgeResult) []string {
	if result.Route != "" && KnownRoute(result.Route) && result.Route != t.Route() {
		t.InitForRoute(result.Route)
	}

	var changed []string
	for _, id := range result.CompletedTaskIDs {
		if t.UpdateTask(id, true) {
			changed = append(changed, id)
		}
	}
	for _, id := range result.ReopenedTaskIDs {
		if t.UpdateTask(id, false) {
			changed = append(changed, id)
		}
	}

	if result.DeviationDelta != 0 && result.DeviationRole != "" {
		state.AdjustDeviation(result.DeviationRole, result.DeviationDelta)
	}

	state.SetMissionRate(t.Progress().Rate)
	return changed
}
