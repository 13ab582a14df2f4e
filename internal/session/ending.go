package session

import "time"

// Ending identifies how a session concluded.
type Ending string

const (
	EndingNone       Ending = ""
	EndingTimeUp     Ending = "TIME_UP"
	EndingTerminated Ending = "TERMINATED"
	EndingConnection Ending = "CONNECTION"
	EndingNatural    Ending = "NATURAL_END"
	EndingPlayerExit Ending = "PLAYER_EXIT"
)

// CheckEndCondition evaluates the end conditions in fixed priority order
// and returns the first that holds, or EndingNone.
func (s *State) CheckEndCondition() Ending {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clock.Remaining() <= 0 {
		return EndingTimeUp
	}
	if s.ledger.Suspicion >= s.cfg.SuspicionThreshold {
		return EndingTerminated
	}
	if s.ledger.Trust >= s.cfg.TrustBreakthrough {
		return EndingConnection
	}
	if s.round > s.maxRounds {
		return EndingNatural
	}
	return EndingNone
}

// BeginFinalQuestion opens the closing prompt for an ending.
func (s *State) BeginFinalQuestion(ending Ending, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalQuestion = &FinalQuestion{
		EndingType: ending,
		Prompt:     prompt,
		Round:      s.round,
		Timestamp:  time.Now().UnixMilli(),
	}
	s.pendingEnding = ending
	s.flags["finalQuestionAsked"] = true
	s.persist()
}

// ResolveFinalAnswer records the player's closing answer.
func (s *State) ResolveFinalAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalAnswer = answer
	s.persist()
}

// ClearFinalQuestion abandons the closing prompt.
func (s *State) ClearFinalQuestion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalQuestion = nil
	s.finalAnswer = ""
	s.pendingEnding = EndingNone
	s.flags["finalQuestionAsked"] = false
	s.persist()
}

// FinalQuestionActive reports whether the closing prompt is showing.
func (s *State) FinalQuestionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalQuestion != nil
}

// FinalQuestionPrompt returns the active closing prompt, or empty.
func (s *State) FinalQuestionPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalQuestion == nil {
		return ""
	}
	return s.finalQuestion.Prompt
}

// PendingEnding returns the ending awaiting the closing answer.
func (s *State) PendingEnding() Ending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingEnding
}

// FinalAnswer returns the recorded closing answer, or empty.
func (s *State) FinalAnswer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalAnswer
}
