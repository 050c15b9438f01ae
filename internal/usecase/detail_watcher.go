package usecase

import (
	"context"
	"log/slog"
	"math"
	"time"

	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/pkg/logger"
	"go-candidate-tracker/pkg/validation"
)

type ConversionState string

const (
	ConversionPending     ConversionState = "pending"
	ConversionAvailable   ConversionState = "available"
	ConversionUnavailable ConversionState = "unavailable"
)

// Conversion is the GBP rendering of a candidate's expected salary.
type Conversion struct {
	State     ConversionState `json:"state"`
	Rate      float64         `json:"rate,omitempty"`
	AmountGBP float64         `json:"amount_gbp,omitempty"`
}

type DetailView struct {
	Candidate        domain.Candidate `json:"candidate"`
	Age              int              `json:"age"`
	BirthDateDisplay string           `json:"birth_date_display"`
	SalaryEUR        int              `json:"salary_eur"`
	Conversion       Conversion       `json:"conversion"`
}

// DetailWatcher follows a single candidate and keeps its salary conversion
// current. The rate is fetched again each time the salary changes; only the
// newest fetch may update the view.
type DetailWatcher struct {
	store domain.CandidateStore
	rates domain.RateFetcher
	now   func() time.Time
	log   *slog.Logger
}

func NewDetailWatcher(store domain.CandidateStore, rates domain.RateFetcher, now func() time.Time) *DetailWatcher {
	if now == nil {
		now = time.Now
	}
	return &DetailWatcher{
		store: store,
		rates: rates,
		now:   now,
		log:   logger.Component("detail_watcher"),
	}
}

// Snapshot builds a view with a freshly fetched conversion.
func (w *DetailWatcher) Snapshot(ctx context.Context, id int64) (DetailView, error) {
	c, err := w.store.GetByID(ctx, id)
	if err != nil {
		return DetailView{}, err
	}
	if c == nil {
		return DetailView{}, domain.ErrNotFound
	}

	view := w.view(*c)
	rate, ok := w.rates.FetchEURToGBP(ctx)
	view.Conversion = convert(view.SalaryEUR, rate, ok)
	return view, nil
}

type rateResult struct {
	generation uint64
	salary     int
	rate       float64
	ok         bool
}

// Watch emits a view whenever the candidate or its conversion changes. The
// channel closes when ctx is done or the candidate is deleted.
func (w *DetailWatcher) Watch(ctx context.Context, id int64) (<-chan DetailView, error) {
	c, err := w.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}

	snapshots, err := w.store.StreamAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan DetailView)
	go w.run(ctx, id, snapshots, out)
	return out, nil
}

func (w *DetailWatcher) run(ctx context.Context, id int64, snapshots <-chan []domain.Candidate, out chan<- DetailView) {
	defer close(out)

	results := make(chan rateResult)
	var (
		generation  uint64
		cancelFetch context.CancelFunc = func() {}
		current     *DetailView
		salaryKnown bool
		lastSalary  int
		conversion  Conversion
	)
	defer func() { cancelFetch() }()

	emit := func(v DetailView) bool {
		select {
		case out <- v:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			c, found := findCandidate(snapshot, id)
			if !found {
				if current != nil {
					return
				}
				continue
			}

			view := w.view(c)
			if !salaryKnown || view.SalaryEUR != lastSalary {
				salaryKnown = true
				lastSalary = view.SalaryEUR
				generation++
				cancelFetch()

				var fetchCtx context.Context
				fetchCtx, cancelFetch = context.WithCancel(ctx)
				go w.fetch(fetchCtx, generation, view.SalaryEUR, results)
				conversion = Conversion{State: ConversionPending}
			}
			view.Conversion = conversion
			current = &view
			if !emit(view) {
				return
			}

		case res := <-results:
			if res.generation != generation || current == nil {
				w.log.Debug("Dropping stale exchange rate", "candidate_id", id, "salary", res.salary)
				continue
			}
			conversion = convert(res.salary, res.rate, res.ok)
			view := *current
			view.Conversion = conversion
			current = &view
			if !emit(view) {
				return
			}
		}
	}
}

func (w *DetailWatcher) fetch(ctx context.Context, generation uint64, salary int, results chan<- rateResult) {
	rate, ok := w.rates.FetchEURToGBP(ctx)
	select {
	case results <- rateResult{generation: generation, salary: salary, rate: rate, ok: ok}:
	case <-ctx.Done():
	}
}

func (w *DetailWatcher) view(c domain.Candidate) DetailView {
	v := DetailView{
		Candidate:        c,
		BirthDateDisplay: validation.FormatBirthDate(c.BirthDate),
		SalaryEUR:        c.ExpectedSalary,
	}
	if !c.BirthDate.IsZero() {
		v.Age = validation.Age(c.BirthDate, w.now())
	}
	return v
}

func findCandidate(snapshot []domain.Candidate, id int64) (domain.Candidate, bool) {
	for _, c := range snapshot {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Candidate{}, false
}

func convert(salary int, rate float64, ok bool) Conversion {
	if !ok {
		return Conversion{State: ConversionUnavailable}
	}
	return Conversion{
		State:     ConversionAvailable,
		Rate:      rate,
		AmountGBP: math.Round(float64(salary)*rate*100) / 100,
	}
}
