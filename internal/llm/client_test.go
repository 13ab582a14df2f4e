package llm

import (
	"context"
	"errors"

	"sentinel/internal/config"
	"sentinel/internal/session"
)

// stubClient scripts model replies for tests. Each call consumes the next
// scripted reply; an empty script returns the terminal err.
type stubClient struct {
	replies []string
	err     error
	calls   int
	lastSys string
}

func (c *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *stubClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	c.calls++
	c.lastSys = system
	if len(c.replies) == 0 {
		if c.err != nil {
			return "", c.err
		}
		return "", errors.New("stub: out of replies")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.DialogueBackoff = "1ms"
	cfg.LLM.JudgeBackoff = "1ms"
	cfg.LLM.EmailBackoff = "1ms"
	return cfg
}

func testState(cfg *config.Config) *session.State {
	return session.New(&cfg.Game, nil, "llm-test")
}
