package core

import "time"

// Secret is an opaque credential handle. It never prints its value.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

// Value returns the underlying secret for use at the API boundary.
func (s Secret) Value() string { return string(s) }

// EffectiveConfig is the configuration selected for a single review request.
// It is produced fresh per file and never mutated after creation. The
// credential axis (who pays/authorizes) is independent of the model axis
// (how to review): a request can use one user's credential with a different
// language's prompt.
type EffectiveConfig struct {
	Model          string
	Temperature    float64
	PromptTemplate string
	Credential     Secret
}

// ReviewResult is the outcome of reviewing one changed file. Exactly one is
// produced per ChangedFile regardless of individual call failures.
type ReviewResult struct {
	Path   string
	Model  string
	Review string
	Err    error
}

// Failed reports whether the backend call for this file did not produce a review.
func (r ReviewResult) Failed() bool { return r.Err != nil }

// PublishOutcome reports which files' reviews were delivered to the hosting
// API and which were not, so a caller can decide whether to re-queue.
type PublishOutcome struct {
	Published []string
	Failed    []string
}

// State tracks an event through the review pipeline. Every event reaches
// exactly one terminal state.
type State string

const (
	StateReceived        State = "received"
	StateAuthorized      State = "authorized"
	StateConfigsResolved State = "configs_resolved"
	StateDispatched      State = "dispatched"
	StatePublished       State = "published"
	StateDone            State = "done"
	StateRejected        State = "rejected"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateRejected || s == StateFailed
}

// Outcome is the single result emitted for one inbound event.
type Outcome struct {
	State   State
	Results []ReviewResult
	Publish PublishOutcome
	Err     error
}

// FailedFileCount counts files whose review was generated but not delivered,
// plus files whose review generation failed outright.
func (o Outcome) FailedFileCount() int {
	n := len(o.Publish.Failed)
	for _, r := range o.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Review is a persisted record of a completed pipeline run for one pull request.
type Review struct {
	ID           int64     `db:"id"`
	RepoFullName string    `db:"repo_full_name"`
	PRNumber     int       `db:"pr_number"`
	HeadSHA      string    `db:"head_sha"`
	State        string    `db:"state"`
	FilesTotal   int       `db:"files_total"`
	FilesFailed  int       `db:"files_failed"`
	Summary      string    `db:"summary"`
	CreatedAt    time.Time `db:"created_at"`
}
