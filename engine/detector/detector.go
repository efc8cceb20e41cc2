package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"terriyaki/engine/bridge"
)

type Timings struct {
	Poll            time.Duration
	ClickRecheck    time.Duration
	NavigationGrace time.Duration
	Dedup           time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Poll:            2 * time.Second,
		ClickRecheck:    3 * time.Second,
		NavigationGrace: time.Second,
		Dedup:           5 * time.Second,
	}
}

// Emitter is the part of the bridge the detector talks to.
type Emitter interface {
	Send(ctx context.Context, to string, msg bridge.Message) bridge.Outcome
}

// Session is the state of one page load; navigation replaces it.
type Session struct {
	ID        string
	URL       string
	StartedAt time.Time

	monitoring     bool
	lastSubmission time.Time
	solution       *Solution
	stopPoll       context.CancelFunc
}

type Status struct {
	Detected bool   `json:"detected"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
}

// Detector watches one tab. Mutation, poll and click events all end up in
// OnCandidateEvent.
type Detector struct {
	Tab     string
	Timings Timings
	Now     func() time.Time

	emitter Emitter
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	session *Session
	page    *Page
	editor  *bridge.Editor
	// bumped on navigation so stale timers do nothing
	generation uint64
}

func New(ctx context.Context, tab string, emitter Emitter, timings Timings) *Detector {
	ctx, cancel := context.WithCancel(ctx)
	d := &Detector{
		Tab:     tab,
		Timings: timings,
		emitter: emitter,
		ctx:     ctx,
		cancel:  cancel,
	}
	d.mu.Lock()
	d.startSessionLocked("")
	d.mu.Unlock()
	return d
}

func (d *Detector) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Detector) Close() {
	d.cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	if d.session != nil && d.session.stopPoll != nil {
		d.session.stopPoll()
	}
}

// Session returns a copy of the current session.
func (d *Detector) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := *d.session
	s.stopPoll = nil
	return s
}

func (d *Detector) startSessionLocked(url string) {
	s := &Session{
		ID:         uuid.New().String(),
		URL:        url,
		StartedAt:  d.now(),
		monitoring: true,
	}
	d.session = s

	if d.Timings.Poll > 0 {
		pollCtx, stop := context.WithCancel(d.ctx)
		s.stopPoll = stop
		go d.poll(pollCtx, d.Timings.Poll)
	}
	slog.Debug("detector session started", "tab", d.Tab, "session", s.ID, "url", url)
}

func (d *Detector) poll(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.OnCandidateEvent(ctx, "poll")
		}
	}
}

// OnSnapshot is the mutation adapter. A snapshot from a different URL is
// treated as a navigation first.
func (d *Detector) OnSnapshot(ctx context.Context, url, doc string, editor *bridge.Editor) error {
	page, err := ParsePage(doc)
	if err != nil {
		return err
	}
	if url != "" {
		d.OnNavigate(url)
	}

	d.mu.Lock()
	d.page = page
	d.editor = editor
	d.mu.Unlock()

	d.OnCandidateEvent(ctx, "mutation")
	return nil
}

// OnClick is the click adapter. Submit clicks are stamped and rechecked
// once the judge has had time to answer.
func (d *Detector) OnClick(text, locator string) bool {
	if !IsSubmitClick(text, locator) {
		return false
	}

	d.mu.Lock()
	d.session.lastSubmission = d.now()
	gen := d.generation
	d.mu.Unlock()

	slog.Debug("submit click", "tab", d.Tab)
	time.AfterFunc(d.Timings.ClickRecheck, func() {
		if d.current(gen) {
			d.OnCandidateEvent(d.ctx, "click")
		}
	})
	return true
}

// OnNavigate drops the session at once and starts a new one after the grace
// period so the next page's editor can mount.
func (d *Detector) OnNavigate(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session.URL == "" && d.session.monitoring {
		// first URL seen for this session
		d.session.URL = url
		return
	}
	if url == d.session.URL {
		return
	}

	slog.Debug("page navigated", "tab", d.Tab, "from", d.session.URL, "to", url)
	d.session.monitoring = false
	d.session.solution = nil
	d.session.URL = url
	if d.session.stopPoll != nil {
		d.session.stopPoll()
		d.session.stopPoll = nil
	}
	d.page = nil
	d.editor = nil
	d.generation++
	gen := d.generation

	time.AfterFunc(d.Timings.NavigationGrace, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if gen != d.generation || d.ctx.Err() != nil {
			return
		}
		d.startSessionLocked(url)
	})
}

func (d *Detector) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.generation && d.ctx.Err() == nil
}

func (d *Detector) OnCandidateEvent(ctx context.Context, source string) bool {
	if !d.checkForSuccess() {
		return false
	}
	emitted := d.ExtractAndNotify(ctx)
	slog.Debug("accepted submission seen", "tab", d.Tab, "source", source, "emitted", emitted)
	return true
}

// CheckForSuccess runs the decision once and reports whether the page shows
// an accepted submission.
func (d *Detector) CheckForSuccess(ctx context.Context) bool {
	return d.OnCandidateEvent(ctx, "check")
}

func (d *Detector) checkForSuccess() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.session.monitoring || d.page == nil {
		return false
	}
	if !HasSuccessIndicator(d.page) || !IsAccepted(d.page) {
		return false
	}
	return submissionGate(d.now().Sub(d.session.lastSubmission))
}

// submissionGate admits every delay except exactly one minute. The
// extension has always shipped this check; narrowing it to recent clicks
// would stop already-accepted pages from being reported.
func submissionGate(since time.Duration) bool {
	return since < time.Minute || since > time.Minute
}

// ExtractAndNotify stores and reports the page's code unless the current
// solution is younger than the dedup window. Extraction misses are logged.
func (d *Detector) ExtractAndNotify(ctx context.Context) bool {
	d.mu.Lock()
	if !d.session.monitoring {
		d.mu.Unlock()
		return false
	}
	now := d.now()
	if s := d.session.solution; s != nil && now.Sub(s.Timestamp) < d.Timings.Dedup {
		d.mu.Unlock()
		return false
	}
	solution := ExtractCode(d.page, d.editor)
	if solution == nil {
		d.mu.Unlock()
		slog.Debug("accepted page without extractable code", "tab", d.Tab)
		return false
	}
	solution.Timestamp = now
	d.session.solution = solution
	d.mu.Unlock()

	d.notify(ctx, solution)
	return true
}

func (d *Detector) notify(ctx context.Context, solution *Solution) {
	msg := solution.Message()
	msg.Tab = d.Tab
	for _, to := range []string{bridge.Background, bridge.Popup} {
		outcome := d.emitter.Send(ctx, to, msg)
		slog.Debug("solution sent", "tab", d.Tab, "to", to, "outcome", outcome.String())
	}
	slog.Info("solution detected", "tab", d.Tab, "language", solution.Language, "length", len(solution.Code))
}

func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.session.solution
	if s == nil {
		return Status{}
	}
	return Status{Detected: true, Code: s.Code, Language: s.Language}
}

// CheckSolution forces a recheck and returns the resulting status.
func (d *Detector) CheckSolution(ctx context.Context) Status {
	d.CheckForSuccess(ctx)
	return d.Status()
}

// Handle is the bridge listener for the tab's content context.
func (d *Detector) Handle(ctx context.Context, msg bridge.Message) (any, error) {
	switch msg.Action {
	case bridge.PageSnapshot:
		return nil, d.OnSnapshot(ctx, msg.URL, msg.HTML, msg.Editor)
	case bridge.PageClick:
		d.OnClick(msg.Text, msg.Locator)
	case bridge.PageNavigate:
		d.OnNavigate(msg.URL)
	case bridge.GetStatus:
		return d.Status(), nil
	case bridge.CheckSolution:
		return d.CheckSolution(ctx), nil
	default:
		slog.Debug("ignoring message", "tab", d.Tab, "action", msg.Action)
	}
	return nil, nil
}
