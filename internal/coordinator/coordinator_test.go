package coordinator

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submesh/internal/config"
	"submesh/internal/facet"
	"submesh/internal/kernel"
	"submesh/internal/listener"
	"submesh/internal/message"
	"submesh/internal/subsystem"
)

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func testCounterValueVec(t *testing.T, v *prometheus.CounterVec, label string) float64 {
	t.Helper()
	return testutil.ToFloat64(v.WithLabelValues(label))
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c := New(config.Default(), nil)
	c.Bootstrap()
	return c
}

func TestBootstrapIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t)
	k1 := c.Kernel
	c.Bootstrap()
	assert.Same(t, k1, c.Kernel)
}

func TestRegisterSubsystemRequiresBootstrap(t *testing.T) {
	c := New(config.Default(), nil)
	sub := subsystem.New(subsystem.Config{Name: "a"})
	_, err := c.RegisterSubsystem(sub, 0, 0)
	assert.Error(t, err)
}

func TestSendRoutesToRegisteredSubsystem(t *testing.T) {
	c := newTestCoordinator(t)
	sub := subsystem.New(subsystem.Config{Name: "echo", QueueCapacity: 8})
	require.NoError(t, sub.Router().RegisterRoute("echo://query/ping", func(p map[string]string) (any, error) {
		return "pong", nil
	}, nil, false))
	_, err := c.RegisterSubsystem(sub, 0, 0)
	require.NoError(t, err)

	f := message.NewFactory()
	env, err := f.Create("echo://query/ping", nil)
	require.NoError(t, err)

	res := c.Send(env, nil)
	assert.True(t, res.Success)
	assert.Equal(t, "pong", res.Value)
}

// SendProtected denies a caller lacking rights over a registered resource,
// and allows the owner through.
func TestSendProtectedEnforcesResourceACL(t *testing.T) {
	c := newTestCoordinator(t)
	sub := subsystem.New(subsystem.Config{Name: "vault", QueueCapacity: 8})
	// The resource name is the first path segment after "scheme://", so the
	// guarded resource here is "secret", not a nested "query" segment.
	require.NoError(t, sub.Router().RegisterRoute("vault://secret", func(p map[string]string) (any, error) {
		return "shh", nil
	}, nil, false))
	_, err := c.RegisterSubsystem(sub, 0, 0)
	require.NoError(t, err)

	owner := c.Kernel.CreateFriend("owner", 0)
	stranger := c.Kernel.CreateFriend("stranger", 0)
	_, err = c.Kernel.CreateResource(owner, "secret", nil, nil)
	require.NoError(t, err)

	f := message.NewFactory()
	env, err := f.Create("vault://secret", nil)
	require.NoError(t, err)
	res := c.SendProtected(owner, env, nil)
	assert.True(t, res.Success)

	before := testCounterValue(t, c.Metrics.ACLDenials)
	env2, err := f.Create("vault://secret", nil)
	require.NoError(t, err)
	res2 := c.SendProtected(stranger, env2, nil)
	assert.False(t, res2.Success)
	require.NotNil(t, res2.Error)
	assert.Equal(t, "ACCESS_DENIED", string(res2.Error.Code))
	assert.Equal(t, before+1, testCounterValue(t, c.Metrics.ACLDenials))
}

// Handler errors surfaced through Send are also counted against the
// subsystem-labelled HandlerErrors metric.
func TestSendRecordsHandlerErrorMetric(t *testing.T) {
	c := newTestCoordinator(t)
	sub := subsystem.New(subsystem.Config{Name: "flaky", QueueCapacity: 8, Disposition: subsystem.Synchronous})
	require.NoError(t, sub.Router().RegisterRoute("flaky://boom", func(p map[string]string) (any, error) {
		return nil, assert.AnError
	}, nil, false))
	_, err := c.RegisterSubsystem(sub, 0, 0)
	require.NoError(t, err)

	f := message.NewFactory()
	env, err := f.Create("flaky://boom", nil)
	require.NoError(t, err)

	res := c.Send(env, nil)
	assert.False(t, res.Success)
	assert.InDelta(t, 1, testCounterValueVec(t, c.Metrics.HandlerErrors, "flaky"), 0)
}

func TestSendProtectedRejectsUnknownCaller(t *testing.T) {
	c := newTestCoordinator(t)
	f := message.NewFactory()
	env, err := f.Create("kernel://query/errors/recent", nil)
	require.NoError(t, err)

	bogus := kernel.PKR{UUID: "does-not-exist"}
	res := c.SendProtected(bogus, env, nil)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "ACCESS_DENIED", string(res.Error.Code))
}

func TestListenerOnReceivesSuccessEvent(t *testing.T) {
	c := newTestCoordinator(t)
	sub := subsystem.New(subsystem.Config{Name: "notif", QueueCapacity: 8})
	require.NoError(t, sub.Router().RegisterRoute("notif://do/thing", func(p map[string]string) (any, error) {
		return "done", nil
	}, nil, false))
	w, err := c.RegisterSubsystem(sub, 0, 0)
	require.NoError(t, err)

	received := make(chan listener.Event, 1)
	ok := c.ListenerOn("notif", "notif://event/thing", func(ev listener.Event) {
		received <- ev
	})
	require.True(t, ok)

	f := message.NewFactory()
	env, err := f.Create("notif://do/thing", nil)
	require.NoError(t, err)
	w.Accept(env, nil)
	w.Process(50)

	select {
	case ev := <-received:
		assert.Equal(t, listener.OnSuccess, ev.Outcome)
		assert.Equal(t, "done", ev.Body)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestDisposeRunsReverseOrder(t *testing.T) {
	c := newTestCoordinator(t)
	var disposed []string
	for _, name := range []string{"a", "b", "c"} {
		sub := subsystem.New(subsystem.Config{Name: name})
		require.NoError(t, sub.Facets().Register(facet.Hook{
			Kind:      "probe",
			Origin:    "test",
			Build:     func(ctx *facet.BuildContext) (*facet.Facet, error) { return &facet.Facet{}, nil },
			DisposeFn: func(methods any) error { disposed = append(disposed, name); return nil },
		}))
		_, err := c.RegisterSubsystem(sub, 0, 0)
		require.NoError(t, err)
	}
	require.NoError(t, c.Dispose())
	assert.Equal(t, []string{"c", "b", "a"}, disposed)
	assert.Equal(t, []string{"c", "b", "a"}, c.Registry.ReverseNames())
}

// A query route is processed inline by SendProtected, but nothing ever
// sends a reply message back to Request's transient waiter, so the wait
// always elapses: Request is meant for handlers that explicitly reply via
// the overlay, not ordinary query/command routes.
func TestRequestTimesOutWhenNoReplyIsSent(t *testing.T) {
	c := newTestCoordinator(t)
	caller := c.Kernel.CreateFriend("caller", 0)

	before := c.Kernel.Errors.Len()
	_, err := c.Request(caller, "kernel://query/errors/recent", nil, time.Millisecond)
	assert.Error(t, err)
	assert.Greater(t, c.Kernel.Errors.Len(), before)
}

func TestRequestSurfacesSendFailure(t *testing.T) {
	c := newTestCoordinator(t)
	bogus := kernel.PKR{UUID: "does-not-exist"}

	_, err := c.Request(bogus, "kernel://query/errors/recent", nil, time.Millisecond)
	assert.Error(t, err)
}
