package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildKeyDeterministic(t *testing.T) {
	t.Parallel()

	in := KeyInputs{
		EventName:       "monitor/self-heal.requested",
		SourceFunction:  "health-monitor",
		TargetComponent: "Gateway",
		Domain:          "gateway-bridge",
		TargetEventName: "selfheal/gateway.restart",
		Attempt:         0,
		EvidenceCount:   2,
	}
	require.Equal(t, BuildKey(in), BuildKey(in))

	bumped := in
	bumped.Attempt = 1
	require.NotEqual(t, BuildKey(in), BuildKey(bumped))

	other := in
	other.EvidenceCount = 3
	require.NotEqual(t, BuildKey(in), BuildKey(other))
}

func TestBuildKeySeparatorCollisionResistance(t *testing.T) {
	t.Parallel()

	a := KeyInputs{EventName: "x|y", SourceFunction: "z"}
	b := KeyInputs{EventName: "x", SourceFunction: "y|z"}
	require.NotEqual(t, BuildKey(a), BuildKey(b))
}

func TestBuildAndAppend(t *testing.T) {
	t.Parallel()

	in := KeyInputs{EventName: "monitor/run", TargetComponent: "Redis", Domain: "gateway-bridge"}
	ctx := Build(in, "evt-1", []string{"cron/heartbeat"})
	require.Equal(t, "evt-1", ctx.SourceEventID)
	require.Equal(t, "monitor/run", ctx.SourceEventName)
	require.Equal(t, []string{"cron/heartbeat"}, ctx.Trace)

	next := ctx.Append("monitor/escalate")
	require.Equal(t, []string{"cron/heartbeat"}, ctx.Trace)
	require.Equal(t, []string{"cron/heartbeat", "monitor/escalate"}, next.Trace)
}
