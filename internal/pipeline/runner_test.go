package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/domain"
)

// fakeDispatcher записывает вызовы и отвечает телом со всеми полями
// базового каталога.
type fakeDispatcher struct {
	mu        sync.Mutex
	endpoints []string
	payloads  []*domain.Payload

	failOn  string
	body    map[string]any
	onCall  func(endpoint string)
	release chan struct{}
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		body: map[string]any{
			"previews":     []any{"preview_0.png", "preview_1.png"},
			"prediction":   "prediction.png",
			"labels":       "labels.las",
			"mask":         "mask.png",
			"overlay":      "overlay.png",
			"result_image": "result.png",
		},
	}
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, endpoint string, payload *domain.Payload) (map[string]any, error) {
	d.mu.Lock()
	d.endpoints = append(d.endpoints, endpoint)
	d.payloads = append(d.payloads, payload)
	onCall := d.onCall
	d.mu.Unlock()

	if onCall != nil {
		onCall(endpoint)
	}

	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if endpoint == d.failOn {
		return nil, fmt.Errorf("remote returned HTTP 500 for %s", endpoint)
	}
	return d.body, nil
}

func (d *fakeDispatcher) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.endpoints...)
}

// eventRecorder собирает события.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) record(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestRunner(t *testing.T, d Dispatcher, cat *catalog.Catalog) (*Runner, *eventRecorder) {
	t.Helper()

	r := New(Config{
		Catalog:     cat,
		Dispatcher:  d,
		StepTimeout: 5 * time.Second,
	})
	rec := &eventRecorder{}
	r.Subscribe(rec.record)
	return r, rec
}

func lasFile(name string) *domain.Artifact {
	return domain.NewArtifact(name, []byte("LASF point cloud"))
}

// --- Runner Tests ---

func TestRunner_FullSuccess(t *testing.T) {
	d := newFakeDispatcher()
	r, rec := newTestRunner(t, d, catalog.Baseline())

	run, err := r.Run(context.Background(), lasFile("Main_St.las"))
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, domain.PipelineStatusCompleted, run.Status)
	assert.Equal(t, "Main_St", run.JobName)
	assert.Empty(t, run.FailedStep)

	// Шаги вызваны строго в порядке каталога
	assert.Equal(t,
		[]string{"/upload", "/split", "/predict", "/binary-mask", "/displacement", "/overlay", "/result"},
		d.calls(),
	)

	require.Len(t, run.Steps, 7)
	for _, s := range run.Steps {
		assert.Equal(t, domain.StepStatusCompleted, s.Status, "step %s", s.Key)
	}

	// Каждый шаг COMPLETED ровно один раз
	completed := map[string]int{}
	for _, ev := range rec.ofType(domain.EventStepProgress) {
		if ev.StepStatus == domain.StepStatusCompleted {
			completed[ev.StepKey]++
		}
	}
	for _, key := range r.Catalog().Keys() {
		assert.Equal(t, 1, completed[key], "step %s", key)
	}

	// Один результат на каждый шаг с извлекателем
	assert.Len(t, run.Results, r.Catalog().ExtractorCount())
	assert.Equal(t, "result.png", run.Results[catalog.KeyResult])
	assert.Equal(t, "mask.png", run.Results[catalog.KeyBinaryMask])
	assert.NotContains(t, run.Results, catalog.KeySplit)

	assert.Len(t, rec.ofType(domain.EventStepResult), 5)
	assert.Len(t, rec.ofType(domain.EventRunStarted), 1)

	finished := rec.ofType(domain.EventRunFinished)
	require.Len(t, finished, 1)
	require.NotNil(t, finished[0].Run)
	assert.Equal(t, domain.PipelineStatusCompleted, finished[0].Run.Status)
}

func TestRunner_NeverStartsNextBeforePreviousCompleted(t *testing.T) {
	d := newFakeDispatcher()
	r, _ := newTestRunner(t, d, catalog.Baseline())
	keys := r.Catalog().Keys()

	var violations []string
	d.onCall = func(endpoint string) {
		progress := r.Progress()
		inFlight := progress.InFlight()
		idx := r.Catalog().Index(inFlight)
		for i, key := range keys {
			status, _ := progress.Status(key)
			switch {
			case i < idx && status != domain.StepStatusCompleted:
				violations = append(violations, fmt.Sprintf("%s: %s before %s", key, status, inFlight))
			case i > idx && status != domain.StepStatusPending:
				violations = append(violations, fmt.Sprintf("%s: %s after %s", key, status, inFlight))
			}
		}
	}

	_, err := r.Run(context.Background(), lasFile("Main_St.las"))
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestRunner_FailureAtThirdStep(t *testing.T) {
	d := newFakeDispatcher()
	d.failOn = "/predict"
	r, rec := newTestRunner(t, d, catalog.Baseline())

	run, err := r.Run(context.Background(), lasFile("Main_St.las"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepFailed))

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, catalog.KeyPredict, stepErr.Key)
	assert.Equal(t, "Predict classes", stepErr.Label)

	require.NotNil(t, run)
	assert.Equal(t, domain.PipelineStatusAborted, run.Status)
	assert.Equal(t, catalog.KeyPredict, run.FailedStep)
	assert.NotEmpty(t, run.Error)

	want := map[string]domain.StepStatus{
		catalog.KeyUpload:       domain.StepStatusCompleted,
		catalog.KeySplit:        domain.StepStatusCompleted,
		catalog.KeyPredict:      domain.StepStatusFailed,
		catalog.KeyBinaryMask:   domain.StepStatusPending,
		catalog.KeyDisplacement: domain.StepStatusPending,
		catalog.KeyOverlay:      domain.StepStatusPending,
		catalog.KeyResult:       domain.StepStatusPending,
	}
	assert.Equal(t, want, r.Progress().Map())

	// Дальше /predict запросов нет
	assert.Equal(t, []string{"/upload", "/split", "/predict"}, d.calls())

	// Результаты завершённых шагов не откатываются
	assert.Contains(t, run.Results, catalog.KeyUpload)
	assert.NotContains(t, run.Results, catalog.KeyPredict)

	failed := rec.ofType(domain.EventStepFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, catalog.KeyPredict, failed[0].StepKey)
	assert.Equal(t, "Predict classes", failed[0].StepLabel)
}

func TestRunner_ExtractorErrorFailsStep(t *testing.T) {
	d := newFakeDispatcher()
	delete(d.body, "mask")
	r, _ := newTestRunner(t, d, catalog.Baseline())

	run, err := r.Run(context.Background(), lasFile("Main_St.las"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrMissingField))
	assert.Equal(t, catalog.KeyBinaryMask, run.FailedStep)

	status, _ := r.Progress().Status(catalog.KeyBinaryMask)
	assert.Equal(t, domain.StepStatusFailed, status)
}

func TestRunner_NilFileIsNoop(t *testing.T) {
	d := newFakeDispatcher()
	r, rec := newTestRunner(t, d, catalog.Baseline())

	run, err := r.Run(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, run)
	assert.Empty(t, d.calls())
	assert.Empty(t, rec.ofType(domain.EventRunStarted))
	assert.Equal(t, domain.PipelineStatusIdle, r.Status())

	done, err := r.Start(context.Background(), nil)
	require.NoError(t, err)
	_, open := <-done
	assert.False(t, open)
	assert.Equal(t, domain.PipelineStatusIdle, r.Status())
}

func TestRunner_IdleSnapshot(t *testing.T) {
	r := New(Config{Dispatcher: newFakeDispatcher()})

	snap := r.Snapshot()
	assert.Equal(t, domain.PipelineStatusIdle, snap.Status)
	require.Len(t, snap.Steps, 7)
	for _, s := range snap.Steps {
		assert.Equal(t, domain.StepStatusPending, s.Status)
	}
	assert.Empty(t, snap.Results)
}

func TestRunner_ResubmissionResetsState(t *testing.T) {
	d := newFakeDispatcher()
	r, _ := newTestRunner(t, d, catalog.Baseline())

	first, err := r.Run(context.Background(), lasFile("Main_St.las"))
	require.NoError(t, err)
	assert.Len(t, first.Results, 5)

	// Второй run падает на первом шаге: результаты первого не должны протечь
	d.failOn = "/upload"
	second, err := r.Run(context.Background(), lasFile("Elm_Ave.laz"))
	require.Error(t, err)

	assert.Equal(t, "Elm_Ave", second.JobName)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Empty(t, second.Results)
	assert.Equal(t, 0, r.Context().Len())
	assert.Equal(t, 1, r.Progress().Count(domain.StepStatusFailed))
	assert.Equal(t, 6, r.Progress().Count(domain.StepStatusPending))
}

func TestRunner_StartResetsSynchronously(t *testing.T) {
	d := newFakeDispatcher()
	d.release = make(chan struct{})
	r, _ := newTestRunner(t, d, catalog.Baseline())

	done, err := r.Start(context.Background(), lasFile("Main_St.las"))
	require.NoError(t, err)

	assert.Equal(t, domain.PipelineStatusRunning, r.Status())
	assert.Equal(t, "Main_St", r.Context().JobName())

	// Второй run, пока первый выполняется, отклоняется
	_, err = r.Start(context.Background(), lasFile("Other.las"))
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(d.release)
	require.NoError(t, <-done)
	assert.Equal(t, domain.PipelineStatusCompleted, r.Status())
}

func TestRunner_ContextCancelAbortsInFlightStep(t *testing.T) {
	d := newFakeDispatcher()
	d.release = make(chan struct{})
	r, _ := newTestRunner(t, d, catalog.Baseline())

	ctx, cancel := context.WithCancel(context.Background())
	done, err := r.Start(ctx, lasFile("Main_St.las"))
	require.NoError(t, err)

	cancel()
	err = <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.PipelineStatusAborted, r.Status())
	assert.Equal(t, catalog.KeyUpload, r.Snapshot().FailedStep)
}

func TestRunner_WaitIdleReturnsImmediately(t *testing.T) {
	r, _ := newTestRunner(t, newFakeDispatcher(), catalog.Baseline())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Wait(ctx))
}

func TestRunner_WaitCoversRunFinishedDelivery(t *testing.T) {
	d := newFakeDispatcher()
	d.release = make(chan struct{})
	r, rec := newTestRunner(t, d, catalog.Baseline())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := r.Start(ctx, lasFile("Main_St.las"))
	require.NoError(t, err)

	// Пока шаг висит, Wait ограничен своим контекстом
	short, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	assert.ErrorIs(t, r.Wait(short), context.DeadlineExceeded)

	cancel()
	require.NoError(t, r.Wait(context.Background()))

	finished := rec.ofType(domain.EventRunFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, domain.PipelineStatusAborted, finished[0].Run.Status)
}

func TestRunner_StepTimeout(t *testing.T) {
	d := newFakeDispatcher()
	d.release = make(chan struct{})
	defer close(d.release)

	r := New(Config{Dispatcher: d, StepTimeout: 20 * time.Millisecond})

	_, err := r.Run(context.Background(), lasFile("Main_St.las"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.PipelineStatusAborted, r.Status())
}

func TestRunner_NoDispatcher(t *testing.T) {
	r := New(Config{})

	_, err := r.Run(context.Background(), lasFile("Main_St.las"))
	assert.ErrorIs(t, err, ErrNoDispatcher)
	assert.Equal(t, domain.PipelineStatusIdle, r.Status())
}

func TestRunner_LabelReassemblyEchoesUpload(t *testing.T) {
	d := newFakeDispatcher()
	r, _ := newTestRunner(t, d, catalog.Baseline(catalog.WithLabelReassembly()))

	run, err := r.Run(context.Background(), lasFile("Main_St.las"))
	require.NoError(t, err)
	assert.Len(t, run.Steps, 8)
	assert.Equal(t, "labels.las", run.Results[catalog.KeyLabels])

	calls := d.calls()
	require.Equal(t, "/labels", calls[3])

	fields := parseMultipart(t, d.payloads[3])
	assert.Equal(t, "Main_St", fields[FieldJobName])
	assert.JSONEq(t, `["preview_0.png","preview_1.png"]`, fields[catalog.KeyUpload])
}

func TestRunner_SubscriberPanicDoesNotAbort(t *testing.T) {
	d := newFakeDispatcher()
	r, _ := newTestRunner(t, d, catalog.Baseline())
	r.Subscribe(func(domain.Event) { panic("boom") })

	run, err := r.Run(context.Background(), lasFile("Main_St.las"))
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineStatusCompleted, run.Status)
}

func TestRunner_Unsubscribe(t *testing.T) {
	d := newFakeDispatcher()
	r := New(Config{Dispatcher: d})

	var count int
	unsubscribe := r.Subscribe(func(domain.Event) { count++ })
	unsubscribe()

	_, err := r.Run(context.Background(), lasFile("Main_St.las"))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunner_EventOrderPerStep(t *testing.T) {
	d := newFakeDispatcher()
	cat := catalog.MustNew(
		catalog.Step{Key: "a", Endpoint: "/a", Kind: domain.PayloadBinaryUpload, Extract: catalog.Field("mask")},
		catalog.Step{Key: "b", Endpoint: "/b", Kind: domain.PayloadStructured},
	)
	r, rec := newTestRunner(t, d, cat)

	_, err := r.Run(context.Background(), lasFile("x.las"))
	require.NoError(t, err)

	var got []string
	for _, ev := range rec.events {
		got = append(got, fmt.Sprintf("%s:%s:%s", ev.Type, ev.StepKey, ev.StepStatus))
	}
	assert.Equal(t, []string{
		"run.started::",
		"step.progress:a:IN_FLIGHT",
		"step.result:a:",
		"step.progress:a:COMPLETED",
		"step.progress:b:IN_FLIGHT",
		"step.progress:b:COMPLETED",
		"run.finished::",
	}, got)
}
