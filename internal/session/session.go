package session

import (
	"time"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/config"
	"github.com/spigell/cv-matcher/internal/resume"
)

// Session is the conversation with one chat. It is only touched by the
// handler of that chat.
type Session struct {
	ChatID     int64
	State      State
	Model      ai.Model
	ResumeText string
	Analysis   *resume.Analysis
	Locations  []string
	Jobs       []ai.MatchScore

	// Config is the snapshot of defaults taken when the session was created.
	Config *config.Snapshot

	lastSeen time.Time
}

// Transition moves the session to the next state.
func (s *Session) Transition(to State) error {
	if !IsTransitionAllowed(s.State, to) {
		return &TransitionError{From: s.State, To: to}
	}
	s.State = to
	return nil
}

// Reset discards the résumé and everything derived from it. The model is kept.
func (s *Session) Reset() {
	s.ResumeText = ""
	s.Analysis = nil
	s.Locations = nil
	s.Jobs = nil
}
