// Copyright 2025 The Rouse Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package alerts

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rouselabs/rouse/dispatch"
	"github.com/rouselabs/rouse/escalation"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

type fakeAlertRepo struct {
	alerts map[types.AlertID]*types.Alert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: map[types.AlertID]*types.Alert{}}
}

func (r *fakeAlertRepo) Save(_ context.Context, a *types.Alert) error {
	clone := *a
	r.alerts[a.ID] = &clone
	return nil
}

func (r *fakeAlertRepo) Get(_ context.Context, id types.AlertID) (*types.Alert, error) {
	a, ok := r.alerts[id]
	if !ok {
		return nil, provider.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (r *fakeAlertRepo) FindByFingerprint(_ context.Context, fp types.Fingerprint) (*types.Alert, error) {
	for _, a := range r.alerts {
		if a.Fingerprint == fp {
			clone := *a
			return &clone, nil
		}
	}
	return nil, provider.ErrNotFound
}

func (r *fakeAlertRepo) List(_ context.Context, _ types.AlertFilter) ([]*types.Alert, error) {
	out := make([]*types.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a)
	}
	return out, nil
}

type fakePolicyRepo struct {
	policies map[types.PolicyID]*escalation.Policy
}

func newFakePolicyRepo() *fakePolicyRepo {
	return &fakePolicyRepo{policies: map[types.PolicyID]*escalation.Policy{}}
}

func (r *fakePolicyRepo) Save(_ context.Context, p *escalation.Policy) error {
	r.policies[p.ID] = p
	return nil
}

func (r *fakePolicyRepo) Get(_ context.Context, id types.PolicyID) (*escalation.Policy, error) {
	p, ok := r.policies[id]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return p, nil
}

func (r *fakePolicyRepo) List(_ context.Context) ([]*escalation.Policy, error) { return nil, nil }
func (r *fakePolicyRepo) Delete(_ context.Context, _ types.PolicyID) error    { return nil }

type fakeEscalationQueue struct {
	enqueued  []*provider.PendingEscalation
	cancelled []types.AlertID
}

func (q *fakeEscalationQueue) Enqueue(_ context.Context, p *provider.PendingEscalation) error {
	q.enqueued = append(q.enqueued, p)
	return nil
}

func (q *fakeEscalationQueue) PollDue(_ context.Context, _ time.Time) ([]*provider.PendingEscalation, error) {
	return nil, nil
}

func (q *fakeEscalationQueue) MarkFired(_ context.Context, _ string) error { return nil }

func (q *fakeEscalationQueue) CancelForAlert(_ context.Context, id types.AlertID) error {
	q.cancelled = append(q.cancelled, id)
	for _, p := range q.enqueued {
		if p.AlertID == id && p.Status == provider.StatusPending {
			p.Status = provider.StatusCancelled
		}
	}
	return nil
}

type fakePublisher struct {
	events []types.Event
}

func (p *fakePublisher) Publish(_ context.Context, events ...types.Event) error {
	p.events = append(p.events, events...)
	return nil
}

type fakeGroupRepo struct {
	groups []*types.AlertGroup
}

func (r *fakeGroupRepo) Save(_ context.Context, g *types.AlertGroup) error {
	for i, existing := range r.groups {
		if existing.ID == g.ID {
			r.groups[i] = g
			return nil
		}
	}
	r.groups = append(r.groups, g)
	return nil
}

func (r *fakeGroupRepo) Get(_ context.Context, id types.GroupID) (*types.AlertGroup, error) {
	for _, g := range r.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, provider.ErrNotFound
}

func (r *fakeGroupRepo) FindLatest(_ context.Context, key string) (*types.AlertGroup, error) {
	var latest *types.AlertGroup
	for _, g := range r.groups {
		if g.GroupingKey == key && (latest == nil || g.LastAddedAt.After(latest.LastAddedAt)) {
			latest = g
		}
	}
	if latest == nil {
		return nil, provider.ErrNotFound
	}
	return latest, nil
}

type fixture struct {
	svc      *Service
	alerts   *fakeAlertRepo
	policies *fakePolicyRepo
	queue    *fakeEscalationQueue
	pub      *fakePublisher
	policy   *escalation.Policy
}

// newFixture wires the service with a single default route to a two-step
// policy.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	step := func(order int, wait time.Duration) escalation.Step {
		s, err := escalation.NewStep(order, wait,
			[]escalation.Target{escalation.UserTarget(types.NewUserID())},
			[]types.Channel{types.ChannelSlack})
		require.NoError(t, err)
		return s
	}
	policy, err := escalation.NewPolicy("default", []escalation.Step{
		step(0, time.Minute),
		step(1, 5*time.Minute),
	}, 0)
	require.NoError(t, err)

	f := &fixture{
		alerts:   newFakeAlertRepo(),
		policies: newFakePolicyRepo(),
		queue:    &fakeEscalationQueue{},
		pub:      &fakePublisher{},
		policy:   policy,
	}
	require.NoError(t, f.policies.Save(context.Background(), policy))

	router := dispatch.NewRouter([]dispatch.Route{
		{Matchers: map[string]string{}, PolicyID: policy.ID},
	})
	f.svc = NewService(f.alerts, f.policies, f.queue, f.pub, router,
		Options{}, prometheus.NewRegistry(), slog.New(slog.DiscardHandler))
	return f
}

func rawAlert(service string) types.RawAlert {
	return types.RawAlert{
		ExternalID: "ext-1",
		Source:     "am",
		Severity:   "critical",
		Labels:     types.Labels{"service": service},
		Summary:    "High CPU",
		Status:     "firing",
	}
}

func eventTypes(events []types.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type()
	}
	return out
}

func TestReceiveNewAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	id, err := f.svc.Receive(ctx, rawAlert("api"), now)
	require.NoError(t, err)

	stored, err := f.alerts.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusFiring, stored.Status)
	require.Equal(t, types.SeverityCritical, stored.Severity)

	require.Equal(t, []string{types.EventAlertReceived}, eventTypes(f.pub.events))

	// The first escalation step is scheduled after its wait.
	require.Len(t, f.queue.enqueued, 1)
	pending := f.queue.enqueued[0]
	require.Equal(t, id, pending.AlertID)
	require.Equal(t, f.policy.ID, pending.PolicyID)
	require.Equal(t, 0, pending.StepOrder)
	require.Equal(t, now.Add(time.Minute), pending.FiresAt)
}

func TestReceiveDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	id1, err := f.svc.Receive(ctx, rawAlert("api"), t0)
	require.NoError(t, err)
	id2, err := f.svc.Receive(ctx, rawAlert("api"), t0.Add(time.Minute))
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Len(t, f.alerts.alerts, 1)
	require.Equal(t, []string{types.EventAlertReceived, types.EventAlertDeduplicated}, eventTypes(f.pub.events))
	// Only the first receive enqueues an escalation.
	require.Len(t, f.queue.enqueued, 1)
}

func TestReceiveResolvedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	id, err := f.svc.Receive(ctx, rawAlert("api"), t0)
	require.NoError(t, err)

	resolved := rawAlert("api")
	resolved.Status = "resolved"
	gotID, err := f.svc.Receive(ctx, resolved, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, id, gotID)

	stored, err := f.alerts.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusResolved, stored.Status)

	last := f.pub.events[len(f.pub.events)-1].(types.AlertResolved)
	require.Equal(t, "source:am", last.ResolvedBy)
	require.Equal(t, []types.AlertID{id}, f.queue.cancelled)
	require.Equal(t, provider.StatusCancelled, f.queue.enqueued[0].Status)
}

func TestReceiveResolvedUnknownFingerprint(t *testing.T) {
	f := newFixture(t)

	raw := rawAlert("api")
	raw.Status = "resolved"
	_, err := f.svc.Receive(context.Background(), raw, time.Now().UTC())
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestReceiveUnroutedAlertIsStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Replace the catch-all route with one that cannot match.
	f.svc.router = dispatch.NewRouter([]dispatch.Route{
		{Matchers: map[string]string{"service": "web"}, PolicyID: f.policy.ID},
	})

	_, err := f.svc.Receive(ctx, rawAlert("api"), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, f.alerts.alerts, 1)
	require.Empty(t, f.queue.enqueued)
}

func TestAcknowledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	id, err := f.svc.Receive(ctx, rawAlert("api"), t0)
	require.NoError(t, err)

	user := types.NewUserID()
	require.NoError(t, f.svc.Acknowledge(ctx, id, user, t0.Add(time.Minute)))

	stored, err := f.alerts.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusAcknowledged, stored.Status)
	require.Equal(t, user, *stored.AcknowledgedBy)
	require.Equal(t, []types.AlertID{id}, f.queue.cancelled)
	require.Equal(t, types.EventAlertAcknowledged, f.pub.events[len(f.pub.events)-1].Type())

	// A second acknowledgement changes nothing.
	eventsBefore := len(f.pub.events)
	require.NoError(t, f.svc.Acknowledge(ctx, id, types.NewUserID(), t0.Add(2*time.Minute)))
	require.Len(t, f.pub.events, eventsBefore)
	require.Len(t, f.queue.cancelled, 1)
}

func TestConcurrentAcknowledgesYieldOneEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	id, err := f.svc.Receive(ctx, rawAlert("api"), t0)
	require.NoError(t, err)

	const goroutines = 8
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if err := f.svc.Acknowledge(ctx, id, types.NewUserID(), t0.Add(time.Minute)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	stored, err := f.alerts.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusAcknowledged, stored.Status)

	// Exactly one of the racing acknowledges wins; the rest are no-ops.
	var acks int
	for _, e := range f.pub.events {
		if e.Type() == types.EventAlertAcknowledged {
			acks++
		}
	}
	require.Equal(t, 1, acks)
	require.Equal(t, []types.AlertID{id}, f.queue.cancelled)
}

func TestAcknowledgeResolvedAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	id, err := f.svc.Receive(ctx, rawAlert("api"), t0)
	require.NoError(t, err)
	require.NoError(t, f.svc.Resolve(ctx, id, "user:ops", t0.Add(time.Minute)))

	err = f.svc.Acknowledge(ctx, id, types.NewUserID(), t0.Add(2*time.Minute))
	require.ErrorIs(t, err, types.ErrAlertAlreadyResolved)
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Acknowledge(context.Background(), types.NewAlertID(), types.NewUserID(), time.Now().UTC())
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	id, err := f.svc.Receive(ctx, rawAlert("api"), t0)
	require.NoError(t, err)

	require.NoError(t, f.svc.Resolve(ctx, id, "user:ops", t0.Add(time.Minute)))
	eventsBefore := len(f.pub.events)
	cancelsBefore := len(f.queue.cancelled)

	require.NoError(t, f.svc.Resolve(ctx, id, "user:ops", t0.Add(time.Hour)))
	require.Len(t, f.pub.events, eventsBefore)
	require.Len(t, f.queue.cancelled, cancelsBefore)

	stored, err := f.alerts.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, t0.Add(time.Minute), *stored.ResolvedAt)
}

func TestGrouperWindows(t *testing.T) {
	repo := &fakeGroupRepo{}
	g := NewGrouper(repo, 30*time.Second)
	ctx := context.Background()
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	mkAlert := func(at time.Time) *types.Alert {
		a, _ := types.NewAlert("ext", "am", types.SeverityCritical, types.Labels{"service": "api"}, "x", at)
		return a
	}

	a := mkAlert(base)
	b := mkAlert(base.Add(10 * time.Second))
	c := mkAlert(base.Add(45 * time.Second))

	ga, err := g.Assign(ctx, a)
	require.NoError(t, err)
	gb, err := g.Assign(ctx, b)
	require.NoError(t, err)
	gc, err := g.Assign(ctx, c)
	require.NoError(t, err)

	require.Equal(t, ga.ID, gb.ID)
	require.Equal(t, []types.AlertID{a.ID, b.ID}, gb.MemberAlertIDs)

	require.NotEqual(t, ga.ID, gc.ID)
	require.Equal(t, c.ID, gc.RootAlertID)
	require.Len(t, repo.groups, 2)
}

func TestGrouperKeySeparation(t *testing.T) {
	repo := &fakeGroupRepo{}
	g := NewGrouper(repo, 30*time.Second)
	ctx := context.Background()
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	a, _ := types.NewAlert("ext", "am", types.SeverityCritical, types.Labels{"service": "api"}, "x", base)
	b, _ := types.NewAlert("ext", "am", types.SeverityCritical, types.Labels{"service": "db"}, "x", base.Add(time.Second))

	ga, err := g.Assign(ctx, a)
	require.NoError(t, err)
	gb, err := g.Assign(ctx, b)
	require.NoError(t, err)
	require.NotEqual(t, ga.ID, gb.ID)
	require.Equal(t, "am:api", ga.GroupingKey)
	require.Equal(t, "am:db", gb.GroupingKey)
}
