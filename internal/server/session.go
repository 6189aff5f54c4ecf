package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fpang/rodin-studio/internal/generate"
	"github.com/fpang/rodin-studio/internal/imaging"
	"github.com/fpang/rodin-studio/internal/rodin"
)

// Session tracks one generation run for the browser: the orchestrator's
// state snapshot, the accepted reference images (for previews), and the
// cancellation handle for its polling loop.
type Session struct {
	ID        string
	StartedAt time.Time
	Estimate  time.Duration

	mu     sync.RWMutex
	state  generate.State
	jobs   []rodin.JobStatus
	result *generate.Result
	errMsg string

	items   []imaging.Item
	notice  string
	skipped []string

	cancel context.CancelFunc
}

func newSession(batch imaging.BatchResult, estimate time.Duration, cancel context.CancelFunc) *Session {
	skipped := make([]string, 0, len(batch.Failed))
	for _, f := range batch.Failed {
		skipped = append(skipped, f.Name)
	}
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Estimate:  estimate,
		state:     generate.StateSubmitting,
		items:     batch.Items,
		notice:    batch.Notice(),
		skipped:   skipped,
		cancel:    cancel,
	}
}

// observe is the orchestrator Observer: snapshots replace the job set
// wholesale.
func (s *Session) observe(state generate.State, jobs []rodin.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.jobs = jobs
}

func (s *Session) complete(result *generate.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = generate.StateDone
	s.result = result
}

func (s *Session) fail(state generate.State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.errMsg = err.Error()
}

// Cancel stops the session's polling loop. Safe to call more than once.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Item returns the i-th accepted reference image, or nil when out of range.
func (s *Session) Item(i int) *imaging.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.items) {
		return nil
	}
	return &s.items[i]
}

// View is the JSON shape returned by the status route.
type View struct {
	ID       string            `json:"id"`
	State    generate.State    `json:"state"`
	Jobs     []rodin.JobStatus `json:"jobs,omitempty"`
	Error    string            `json:"error,omitempty"`
	Notice   string            `json:"notice,omitempty"`
	Skipped  []string          `json:"skippedImages,omitempty"`
	Phrase   string            `json:"statusText"`
	Elapsed  int               `json:"elapsedSeconds"`
	Remain   int               `json:"remainingSeconds"`
	Fraction float64           `json:"progress"`

	ModelURL    string        `json:"modelUrl,omitempty"`
	DownloadURL string        `json:"downloadUrl,omitempty"`
	Assets      []rodin.Asset `json:"assets,omitempty"`
}

// Snapshot derives the current view, including the presenter's progress
// figures for the given instant.
func (s *Session) Snapshot(now time.Time) View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	progress := generate.Describe(s.jobs, s.StartedAt, s.Estimate, now)

	view := View{
		ID:       s.ID,
		State:    s.state,
		Jobs:     s.jobs,
		Error:    s.errMsg,
		Notice:   s.notice,
		Skipped:  s.skipped,
		Phrase:   progress.Phrase,
		Elapsed:  int(progress.Elapsed / time.Second),
		Remain:   int(progress.Remaining / time.Second),
		Fraction: progress.Fraction,
	}
	if s.result != nil {
		view.ModelURL = s.result.ModelURL
		view.DownloadURL = s.result.DownloadURL
		view.Assets = s.result.Assets
	}
	return view
}

// sessionStore is the in-memory session registry. Sessions live for the
// process lifetime; results are never persisted.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*Session)}
}

func (st *sessionStore) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

func (st *sessionStore) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}
