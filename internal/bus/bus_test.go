package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	b := New()
	topic := Topic{Node: "osc1", Handle: "trigger", Kind: KindReceiveOn}

	var got []int
	b.Subscribe(topic, func(ctx context.Context, payload any) { got = append(got, 1) })
	b.Subscribe(topic, func(ctx context.Context, payload any) { got = append(got, 2) })

	b.Emit(context.Background(), topic, nil)
	require.Equal(t, []int{1, 2}, got, "handlers fire in subscription order")
}

func TestEmitIsSynchronousAndReentrant(t *testing.T) {
	t.Parallel()

	b := New()
	first := Topic{Node: "a", Handle: "out", Kind: KindSendOn}
	second := Topic{Node: "b", Handle: "trigger", Kind: KindReceiveOn}

	var order []string
	b.Subscribe(second, func(ctx context.Context, payload any) {
		order = append(order, "inner")
	})
	b.Subscribe(first, func(ctx context.Context, payload any) {
		order = append(order, "outer-before")
		b.Emit(ctx, second, nil)
		order = append(order, "outer-after")
	})

	b.Emit(context.Background(), first, nil)
	require.Equal(t, []string{"outer-before", "inner", "outer-after"}, order)
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	t.Parallel()

	b := New()
	topic := Topic{Node: "clock1", Handle: "output-0", Kind: KindSendOn}

	b.Emit(context.Background(), topic, nil)

	fired := false
	b.Subscribe(topic, func(ctx context.Context, payload any) { fired = true })
	assert.False(t, fired, "a subscriber added after emission must not see it")
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	topic := Topic{Node: "env1", Handle: "trigger", Kind: KindReceiveOn}

	calls := 0
	sub := b.Subscribe(topic, func(ctx context.Context, payload any) { calls++ })
	b.Subscribe(topic, func(ctx context.Context, payload any) { calls += 10 })

	b.Unsubscribe(sub)
	b.Emit(context.Background(), topic, nil)
	require.Equal(t, 10, calls)

	// Removing an already-removed subscription is a no-op.
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)
}

func TestUnsubscribeNode(t *testing.T) {
	t.Parallel()

	b := New()
	mine := Topic{Node: "voice1.osc1", Handle: "frequency", Kind: KindUpdateParams}
	other := Topic{Node: "voice1", Handle: "input-0", Kind: KindReceiveOn}

	calls := 0
	b.Subscribe(mine, func(ctx context.Context, payload any) { calls++ })
	b.Subscribe(Topic{Node: "voice1.osc1", Handle: "detune", Kind: KindUpdateParams},
		func(ctx context.Context, payload any) { calls++ })
	b.Subscribe(other, func(ctx context.Context, payload any) { calls += 100 })

	b.UnsubscribeNode("voice1.osc1")

	b.Emit(context.Background(), mine, nil)
	b.Emit(context.Background(), other, nil)
	require.Equal(t, 100, calls, "only the other node's subscription survives")
	assert.Zero(t, b.SubscriberCount(mine))
}

func TestMidEmissionMutationUsesSnapshot(t *testing.T) {
	t.Parallel()

	b := New()
	topic := Topic{Node: "seq1", Handle: "step", Kind: KindReceiveOn}

	var order []string
	var late *Subscription
	b.Subscribe(topic, func(ctx context.Context, payload any) {
		order = append(order, "first")
		late = b.Subscribe(topic, func(ctx context.Context, payload any) {
			order = append(order, "late")
		})
	})

	b.Emit(context.Background(), topic, nil)
	require.Equal(t, []string{"first"}, order, "handler added mid-emission waits for the next emit")

	b.Emit(context.Background(), topic, nil)
	require.Contains(t, order, "late")
	b.Unsubscribe(late)
}

func TestTopicRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   Topic
	}{
		{name: "plain", in: Topic{Node: "osc1", Handle: "frequency", Kind: KindUpdateParams}},
		{name: "nested node id", in: Topic{Node: "rack.voice1.osc1", Handle: "output-2", Kind: KindSendOn}},
		{name: "params topic", in: ParamsTopic("gain1")},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			parsed, err := ParseTopic(tc.in.String())
			require.NoError(t, err)
			require.Equal(t, tc.in, parsed)
		})
	}

	_, err := ParseTopic("tooshort")
	require.Error(t, err)
	_, err = ParseTopic("a..receiveNodeOn")
	require.Error(t, err)
}
