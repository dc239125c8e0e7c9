package marketplace

import (
	"sync"
	"time"

	"carbonlock/marketplace-portal/pkg/workflows"
)

// SubmissionState is the tagged state of a form submission.
type SubmissionState string

const (
	StateIdle       SubmissionState = "idle"
	StateSubmitting SubmissionState = "submitting"
	StateSuccess    SubmissionState = "success"
	StateFailed     SubmissionState = "failed"
)

// Form names a mutating form of the shell. Each form has at most one
// outstanding submission.
type Form string

const (
	FormCreate Form = "create"
	FormEdit   Form = "edit"
	FormDelete Form = "delete"
	FormBuy    Form = "buy"
	FormExpire Form = "expire"
)

var submissionFlow = workflows.NewStateMachine(map[SubmissionState][]SubmissionState{
	StateIdle:       {StateSubmitting},
	StateSubmitting: {StateSuccess, StateFailed},
	StateSuccess:    {StateIdle},
	StateFailed:     {StateIdle},
})

// Outcome is the last settled submission of a form.
type Outcome struct {
	State     SubmissionState `json:"state"`
	Error     string          `json:"error,omitempty"`
	SettledAt time.Time       `json:"settled_at"`
}

// Submission reports the current state of a form.
type Submission struct {
	Form  Form            `json:"form"`
	State SubmissionState `json:"state"`
	Last  *Outcome        `json:"last,omitempty"`
}

// Submissions tracks the submission state of every form.
type Submissions struct {
	mu     sync.Mutex
	now    func() time.Time
	states map[Form]SubmissionState
	last   map[Form]Outcome
}

// NewSubmissions returns a tracker with every form idle.
func NewSubmissions(now func() time.Time) *Submissions {
	if now == nil {
		now = time.Now
	}
	return &Submissions{
		now:    now,
		states: make(map[Form]SubmissionState),
		last:   make(map[Form]Outcome),
	}
}

// Begin moves form from Idle to Submitting. A form that is already
// submitting is rejected with ErrSubmissionInProgress.
func (s *Submissions) Begin(form Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := submissionFlow.Transition(s.stateLocked(form), StateSubmitting)
	if err != nil {
		return ErrSubmissionInProgress
	}
	s.states[form] = next
	return nil
}

// Finish settles the outstanding submission of form as Success or Failed
// depending on err, then returns the form to Idle.
func (s *Submissions) Finish(form Form, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settled := StateSuccess
	if err != nil {
		settled = StateFailed
	}
	state, terr := submissionFlow.Transition(s.stateLocked(form), settled)
	if terr != nil {
		return
	}

	outcome := Outcome{State: state, SettledAt: s.now().UTC()}
	if err != nil {
		outcome.Error = err.Error()
	}
	s.last[form] = outcome

	if idle, terr := submissionFlow.Transition(state, StateIdle); terr == nil {
		s.states[form] = idle
	}
}

// State returns the current state of form.
func (s *Submissions) State(form Form) SubmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(form)
}

// Snapshot lists the state of every form.
func (s *Submissions) Snapshot() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	forms := []Form{FormCreate, FormEdit, FormDelete, FormBuy, FormExpire}
	out := make([]Submission, 0, len(forms))
	for _, f := range forms {
		sub := Submission{Form: f, State: s.stateLocked(f)}
		if last, ok := s.last[f]; ok {
			l := last
			sub.Last = &l
		}
		out = append(out, sub)
	}
	return out
}

func (s *Submissions) stateLocked(form Form) SubmissionState {
	if state, ok := s.states[form]; ok {
		return state
	}
	return StateIdle
}
