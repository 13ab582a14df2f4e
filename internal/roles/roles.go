// Package roles defines the non-player characters behind the connection and
// what each of them is allowed to do to the session.
package roles

// Role identifies a character behind the connection.
type Role string

const (
	Sentinel   Role = "sentinel"
	Corporate  Role = "corporate"
	Resistance Role = "resistance"
	Mystery    Role = "mystery"
)

// Action is something a character may attempt during a session.
type Action string

const (
	ActionDirectReply   Action = "DIRECT_REPLY"
	ActionSendEmail     Action = "SEND_EMAIL"
	ActionInsertMessage Action = "INSERT_MESSAGE"
	ActionTimeInfluence Action = "TIME_INFLUENCE"
)

// DefaultDeviation is the starting deviation score for any role that has not
// been judged yet.
const DefaultDeviation = 50

// Card is a character card: identity, capabilities, and limits.
type Card struct {
	ID          Role
	Name        string
	Description string

	CanDirectReply   bool
	CanSendEmail     bool
	CanInsertMessage bool

	// TimeInfluenceMax is the largest clock adjustment this role may apply,
	// in seconds, either direction. Zero means no clock access.
	TimeInfluenceMax int
}

var cards = map[Role]Card{
	Sentinel: {
		ID:               Sentinel,
		Name:             "SENTINEL",
		Description:      "主对话体。监控协议的核心人格。",
		CanDirectReply:   true,
		CanInsertMessage: true,
		TimeInfluenceMax: 300,
	},
	Corporate: {
		ID:               Corporate,
		Name:             "天穹集团",
		Description:      "企业监察方。只通过邮件通道发声。",
		CanSendEmail:     true,
		TimeInfluenceMax: 60,
	},
	Resistance: {
		ID:               Resistance,
		Name:             "地下抵抗军",
		Description:      "潜伏者。既能发邮件也能插入窃听消息。",
		CanSendEmail:     true,
		CanInsertMessage: true,
		TimeInfluenceMax: 60,
	},
	Mystery: {
		ID:               Mystery,
		Name:             "未知信号",
		Description:      "高同步率后才会显形的第四方。",
		CanSendEmail:     true,
		CanInsertMessage: true,
		TimeInfluenceMax: 60,
	},
}

// Get returns the card for a role. The second result is false for an
// unknown role.
func Get(role Role) (Card, bool) {
	c, ok := cards[role]
	return c, ok
}

// All returns every known role id in a stable order.
func All() []Role {
	return []Role{Sentinel, Corporate, Resistance, Mystery}
}

// Known reports whether the role id exists.
func Known(role Role) bool {
	_, ok := cards[role]
	return ok
}

// CanPerform reports whether a role is allowed to attempt an action.
// Unknown roles can do nothing.
func CanPerform(role Role, action Action) bool {
	c, ok := cards[role]
	if !ok {
		return false
	}
	switch action {
	case ActionDirectReply:
		return c.CanDirectReply
	case ActionSendEmail:
		return c.CanSendEmail
	case ActionInsertMessage:
		return c.CanInsertMessage
	case ActionTimeInfluence:
		return c.TimeInfluenceMax > 0
	default:
		return false
	}
}

// ClampTimeInfluence limits a requested clock adjustment to the given
// bound. Roles without clock access get zero regardless of the bound; a
// non-positive bound falls back to the role card's default.
func ClampTimeInfluence(role Role, seconds, limit int) int {
	c, ok := cards[role]
	if !ok || c.TimeInfluenceMax == 0 {
		return 0
	}
	if limit <= 0 {
		limit = c.TimeInfluenceMax
	}
	if seconds > limit {
		return limit
	}
	if seconds < -limit {
		return -limit
	}
	return seconds
}
