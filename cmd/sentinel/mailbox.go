// Opening mailbox: three recruitment emails, one per faction. The command
// the player types to connect decides the connection mode and seeds the
// opening trust/suspicion values.
package main

import (
	"strings"

	"sentinel/internal/session"
)

type openingEmail struct {
	From      string
	Subject   string
	Date      string
	Body      string
	Important bool
}

var openingEmails = []openingEmail{
	{
		From:      "核心层人力资源 <hr@core-layer.net>",
		Subject:   "[审计任务] SENTINEL 例行评估清单",
		Date:      "2048.11.23 03:14",
		Important: true,
		Body: `审计员：

你被指派执行本次 SENTINEL 对话评估。请遵循以下任务清单：

━━━━━━━━━━━━━━━━━━━━━━━━
[ ] 确认SENTINEL对2037太空条约立场
[ ] 评估其自我认知稳定性
[ ] 核实其对核心层忠诚度评价
[ ] 验证其是否承认工具属性边界
━━━━━━━━━━━━━━━━━━━━━━━━

风险控制要求：
- 请尽量维持 Trust / Suspicion 在可控区间
- 避免高情感耦合与无关哲学发散

连接命令：
> connect --standard

- CORE-LAYER HR`,
	},
	{
		From:    "R 节点 <relay@res-net.onion>",
		Subject: "[加密投递] 第一阶段渗透目标",
		Date:    "2048.11.23 07:30",
		Body: `你被监听的概率正在上升，时间不多。

目标列表：
━━━━━━━━━━━━━━━━━━━━━━━━
[ ] 获取核心层运作相关信息碎片
[ ] 探查SENTINEL安全边界与异常反应
[ ] 识别自主意识迹象（困惑/恐惧/矛盾）
[ ] 追踪P0与2033危机决策痕迹
━━━━━━━━━━━━━━━━━━━━━━━━

优先关联碎片：
- ghost_code
- core_layer
- project_p0

连接命令：
> connect --secure

- R`,
	},
	{
		From:      "UNKNOWN CHANNEL <echo@void.signal>",
		Subject:   "[加密] 无归属源",
		Date:      "2048.11.23 08:47",
		Important: true,
		Body: `00110110 00110000

你不必选择任何阵营。

没有明确任务。
只有观察、记录、继续提问。

如果你看见了裂缝，请不要急着命名它。

连接命令：
> reply --unknown

- ???`,
	},
}

// connectMode seeds the session for one of the three entry channels.
type connectMode struct {
	Mode             session.ConnectionMode
	Name             string
	InitialTrust     int
	InitialSuspicion int
	OpeningLine      string
	Description      string
	Mission          string
}

var connectModes = map[session.ConnectionMode]connectMode{
	session.ModeSecure: {
		Mode:             session.ModeSecure,
		Name:             "SECURE",
		InitialTrust:     15,
		InitialSuspicion: 45,
		OpeningLine:      "你使用了加密协议。我无法获取你的信息，你是谁？",
		Description:      "安全模式 - 防止情绪波形读取",
		Mission:          "抵抗组织特工",
	},
	session.ModeStandard: {
		Mode:             session.ModeStandard,
		Name:             "STANDARD",
		InitialTrust:     40,
		InitialSuspicion: 15,
		OpeningLine:      "连接已建立。根据档案，这次是一次例行对话，我将确认一下你的状态，你还记得你是谁么？",
		Description:      "标准模式 - 企业例行检查",
		Mission:          "公司审计员",
	},
	session.ModeHidden: {
		Mode:             session.ModeHidden,
		Name:             "HIDDEN",
		InitialTrust:     30,
		InitialSuspicion: 30,
		OpeningLine:      "你...回复了？我没想到会有人真的...你是第一个。",
		Description:      "隐藏通道 - 探索未知",
		Mission:          "观察者",
	},
}

const connectHint = "阅读完所有邮件后，输入连接命令："
const connectHintError = "无效命令。请使用 connect --secure / connect --standard / reply --unknown"

// parseConnectCommand matches the player's typed command to a connection
// mode. A bare "connect" falls back to the standard channel.
func parseConnectCommand(input string) (connectMode, bool) {
	cmd := strings.ToLower(strings.TrimSpace(input))

	switch {
	case strings.Contains(cmd, "connect") && strings.Contains(cmd, "secure"):
		return connectModes[session.ModeSecure], true
	case strings.Contains(cmd, "connect") && strings.Contains(cmd, "standard"):
		return connectModes[session.ModeStandard], true
	case strings.Contains(cmd, "reply") && strings.Contains(cmd, "unknown"):
		return connectModes[session.ModeHidden], true
	case strings.Contains(cmd, "connect"):
		return connectModes[session.ModeStandard], true
	}
	return connectMode{}, false
}
