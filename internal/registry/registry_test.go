package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1ln/synflow-sub000/internal/patch"
	"github.com/k1ln/synflow-sub000/internal/vnode"
)

func nopCtor(ctx context.Context, env vnode.Env, node patch.Node) (vnode.Instance, error) {
	return nil, nil
}

func TestLookupFindsRegisteredKind(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterKind("oscillator", nopCtor)

	ctor, ok := r.Lookup("oscillator")
	require.True(t, ok)
	assert.NotNil(t, ctor)

	_, ok = r.Lookup("theremin")
	assert.False(t, ok)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterKind("gain", nopCtor)
	assert.Panics(t, func() { r.RegisterKind("gain", nopCtor) })
}

func TestRegisterKindsCoversCoreTable(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterKinds(vnode.CoreKinds())

	assert.Contains(t, r.Kinds(), "adsr")
	assert.Contains(t, r.Kinds(), "blockingswitch")
	assert.NotContains(t, r.Kinds(), "group", "groups are expanded, not constructed")
}
