package domain

import "time"

// SessionState is the lifecycle state machine:
// Empty -> Loaded (ingest) -> Summarized (summarize). Remove resets to Empty
// from any state.
type SessionState string

const (
	SessionEmpty      SessionState = "empty"
	SessionLoaded     SessionState = "loaded"
	SessionSummarized SessionState = "summarized"
)

// Session is the only mutable shared state in the system: the single active
// document plus the cached summary. It is keyed by an opaque session id and
// threaded through every call; there is no process-wide singleton.
type Session struct {
	ID                 string       `json:"id"`
	State              SessionState `json:"state"`
	ActiveFileID       string       `json:"active_file_id,omitempty"`
	Summary            string       `json:"summary,omitempty"`
	QuestionsGenerated bool         `json:"questions_generated,omitempty"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func NewSession(id string) *Session {
	return &Session{ID: id, State: SessionEmpty, UpdatedAt: time.Now().UTC()}
}

func (s *Session) HasActiveDocument() bool {
	return s != nil && s.State != SessionEmpty && s.ActiveFileID != ""
}

// SetActive installs a new active document and invalidates everything that
// depended on the previous one.
func (s *Session) SetActive(fileID string) {
	s.ActiveFileID = fileID
	s.State = SessionLoaded
	s.Summary = ""
	s.QuestionsGenerated = false
	s.UpdatedAt = time.Now().UTC()
}

func (s *Session) SetSummary(summary string) {
	s.Summary = summary
	if s.State == SessionLoaded {
		s.State = SessionSummarized
	}
	s.UpdatedAt = time.Now().UTC()
}

func (s *Session) ClearSummary() {
	s.Summary = ""
	if s.State == SessionSummarized {
		s.State = SessionLoaded
	}
	s.UpdatedAt = time.Now().UTC()
}

func (s *Session) Reset() {
	s.ActiveFileID = ""
	s.Summary = ""
	s.QuestionsGenerated = false
	s.State = SessionEmpty
	s.UpdatedAt = time.Now().UTC()
}
