package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/cuadrilla-dispatch/internal/config"
	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
	"github.com/spec-kit/cuadrilla-dispatch/internal/integration/reclamos"
	"github.com/spec-kit/cuadrilla-dispatch/internal/integration/whatsapp"
	"github.com/spec-kit/cuadrilla-dispatch/internal/queue"
)

var testTemplates = config.NotificationConfig{
	TemplateAssigned:   "reclamo_asignado",
	TemplateInProgress: "reclamo_en_proceso",
	TemplateCompleted:  "reclamo_completado",
	CountryCode:        "54",
	TimeoutMillis:      2000,
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+5493415550000":    "5493415550000",
		"3415550000":        "543415550000",
		" 54 341 555-0000 ": "543415550000",
		"+54 (341) 5550000": "543415550000",
		"":                  "",
		"+":                 "",
	}
	for raw, want := range cases {
		got := NormalizePhone(raw, "54")
		assert.Equal(t, want, got, "raw=%q", raw)
		assert.Equal(t, got, NormalizePhone(got, "54"), "idempotent for %q", raw)
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2/1/2026", FormatDate(time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, "25/11/2026", FormatDate(time.Date(2026, 11, 25, 0, 0, 0, 0, time.UTC)))
}

// providerFakes stands up the Reclamos and WhatsApp APIs.
type providerFakes struct {
	reclamos *httptest.Server
	whatsapp *httptest.Server

	mu       sync.Mutex
	sent     []whatsapp.TemplateMessage
	patches  int
	failSend bool
}

func newProviderFakes(t *testing.T) *providerFakes {
	t.Helper()
	f := &providerFakes{}
	f.reclamos = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			f.mu.Lock()
			f.patches++
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":101,"nombre":"Ana Gómez","telefono":"+54 341 555 0000"}`))
	}))
	f.whatsapp = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failSend {
			http.Error(w, "provider down", http.StatusInternalServerError)
			return
		}
		var msg whatsapp.TemplateMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		f.sent = append(f.sent, msg)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(f.reclamos.Close)
	t.Cleanup(f.whatsapp.Close)
	return f
}

func (f *providerFakes) setFailSend(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSend = v
}

func (f *providerFakes) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patches
}

func (f *providerFakes) messages() []whatsapp.TemplateMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]whatsapp.TemplateMessage(nil), f.sent...)
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 7, 10, 30, 0, 0, time.UTC)
}

func TestDeliverBuildsTemplate(t *testing.T) {
	fakes := newProviderFakes(t)
	n := NewNotificationService(NotificationDependencies{
		Complaints: reclamos.New(config.ReclamosConfig{BaseURL: fakes.reclamos.URL}, nil),
		Sender:     whatsapp.New(config.WhatsAppConfig{BaseURL: fakes.whatsapp.URL}),
		Config:     testTemplates,
		Clock:      fixedClock,
	})

	require.NoError(t, n.Deliver(context.Background(), 101, domain.AssignmentStatusAssigned))

	sent := fakes.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, whatsapp.TemplateMessage{
		Number:       "543415550000",
		Template:     "reclamo_asignado",
		LanguageCode: "es_AR",
		Components: []whatsapp.Component{
			{Type: "header", Parameters: []whatsapp.Parameter{{Type: "text", Text: "101"}}},
			{Type: "body", Parameters: []whatsapp.Parameter{
				{Type: "text", Text: "Ana Gómez"},
				{Type: "text", Text: "7/3/2026"},
			}},
		},
	}, sent[0])
}

func TestDeliverPicksTemplatePerStatus(t *testing.T) {
	fakes := newProviderFakes(t)
	n := NewNotificationService(NotificationDependencies{
		Complaints: reclamos.New(config.ReclamosConfig{BaseURL: fakes.reclamos.URL}, nil),
		Sender:     whatsapp.New(config.WhatsAppConfig{BaseURL: fakes.whatsapp.URL}),
		Config:     testTemplates,
	})
	require.NoError(t, n.Deliver(context.Background(), 101, domain.AssignmentStatusInProgress))
	require.NoError(t, n.Deliver(context.Background(), 101, domain.AssignmentStatusCompleted))

	sent := fakes.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "reclamo_en_proceso", sent[0].Template)
	assert.Equal(t, "reclamo_completado", sent[1].Template)
}

// notifyHarness wires the full transition path to the provider fakes.
func notifyHarness(t *testing.T, producer queue.Producer) (*harness, *NotificationService, *providerFakes) {
	t.Helper()
	fakes := newProviderFakes(t)
	h := newHarness(t)
	h.sync.client = reclamos.New(config.ReclamosConfig{BaseURL: fakes.reclamos.URL}, nil)
	n := NewNotificationService(NotificationDependencies{
		Dispatcher: h.dispatcher,
		Complaints: reclamos.New(config.ReclamosConfig{BaseURL: fakes.reclamos.URL}, nil),
		Sender:     whatsapp.New(config.WhatsAppConfig{BaseURL: fakes.whatsapp.URL}),
		Producer:   producer,
		Metrics:    h.metrics,
		Config:     testTemplates,
		Clock:      fixedClock,
	})
	n.RegisterHandlers()
	return h, n, fakes
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	h, n, fakes := notifyHarness(t, nil)
	fakes.setFailSend(true)
	crew := h.crew(t, 2)

	res, err := h.svc.Assign(context.Background(), AssignInput{ComplaintID: 101, CrewID: crew.ID, Notify: true})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentStatusAssigned, res.Record.Status)

	n.Wait()
	snap := h.metrics.Snapshot()
	assert.EqualValues(t, 1, snap.NotificationFailures)
	assert.EqualValues(t, 0, snap.NotificationsSent)
	assert.Equal(t, 1, fakes.patchCount())
}

func TestNotificationSentOnlyWhenRequested(t *testing.T) {
	h, n, fakes := notifyHarness(t, nil)
	crew := h.crew(t, 2)
	ctx := context.Background()

	res, err := h.svc.Assign(ctx, AssignInput{ComplaintID: 101, CrewID: crew.ID})
	require.NoError(t, err)
	n.Wait()
	assert.Empty(t, fakes.messages())

	_, err = h.svc.MarkInProgress(ctx, res.Record.ID, true)
	require.NoError(t, err)
	n.Wait()
	sent := fakes.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "reclamo_en_proceso", sent[0].Template)
	assert.EqualValues(t, 1, h.metrics.Snapshot().NotificationsSent)
}

type fakeProducer struct {
	mu   sync.Mutex
	jobs []queue.NotificationJob
	err  error
}

func (p *fakeProducer) Enqueue(_ context.Context, job queue.NotificationJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func TestNotificationQueuedWhenProducerConfigured(t *testing.T) {
	producer := &fakeProducer{}
	h, n, fakes := notifyHarness(t, producer)
	crew := h.crew(t, 2)

	res, err := h.svc.Assign(context.Background(), AssignInput{ComplaintID: 101, CrewID: crew.ID, Notify: true})
	require.NoError(t, err)
	n.Wait()

	assert.Empty(t, fakes.messages())
	require.Len(t, producer.jobs, 1)
	assert.Equal(t, queue.NotificationJob{
		ComplaintID: 101,
		RecordID:    res.Record.ID,
		Status:      domain.AssignmentStatusAssigned,
	}, producer.jobs[0])
}

func TestNotificationFallsBackWhenQueueUnavailable(t *testing.T) {
	producer := &fakeProducer{err: errors.New("redis down")}
	h, n, fakes := notifyHarness(t, producer)
	crew := h.crew(t, 2)

	_, err := h.svc.Assign(context.Background(), AssignInput{ComplaintID: 101, CrewID: crew.ID, Notify: true})
	require.NoError(t, err)
	n.Wait()
	assert.Len(t, fakes.messages(), 1)
}

func TestNoSenderSkipsNotification(t *testing.T) {
	h := newHarness(t)
	n := NewNotificationService(NotificationDependencies{Dispatcher: h.dispatcher, Config: testTemplates})
	n.RegisterHandlers()
	crew := h.crew(t, 1)

	_, err := h.svc.Assign(context.Background(), AssignInput{ComplaintID: 5, CrewID: crew.ID, Notify: true})
	require.NoError(t, err)
	n.Wait()
	assert.Error(t, n.Deliver(context.Background(), 5, domain.AssignmentStatusAssigned))
}
