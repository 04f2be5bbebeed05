package vnode

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/patch"
)

// formula evaluates a user-supplied expression of x over each incoming
// sample and pushes the result downstream. The expression is compiled once
// up front and recompiled when the param changes, so the per-message path
// is a plain function call.
type formula struct {
	*Base
	fn func(float64) float64
}

func NewFormula(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	f := &formula{Base: NewBase(env, node, nil)}
	f.compile(ctx, StringAttr(node.Data, "expression", "x"))

	f.OnParams(func(ctx context.Context, changed map[string]any) {
		if expr, ok := changed["expression"].(string); ok {
			f.compile(ctx, expr)
		}
	})

	f.SubscribeHandle("input-0", bus.KindReceiveOn, func(ctx context.Context, payload any) {
		x, ok := ToFloat(payload)
		if !ok {
			return
		}
		y := f.eval(ctx, x)
		f.Env().Bus.Emit(ctx, bus.Topic{Node: f.ID(), Handle: "output-0", Kind: bus.KindSendOn}, y)
		f.Env().Router.EmitToConnectedEdges(ctx, f.ID(), y, bus.KindReceiveOn)
	})

	return f, nil
}

func (f *formula) compile(ctx context.Context, expr string) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		ctxlog.FromContext(ctx).Error("formula interpreter setup failed", slog.Any("error", err))
		f.fn = nil
		return
	}
	src := fmt.Sprintf("import . \"math\"\nfunc __f(x float64) float64 { return %s }", expr)
	if _, err := i.Eval(src); err != nil {
		ctxlog.FromContext(ctx).Warn("formula does not compile",
			slog.String("node", f.ID()), slog.String("expression", expr), slog.Any("error", err))
		f.fn = nil
		return
	}
	v, err := i.Eval("__f")
	if err != nil {
		f.fn = nil
		return
	}
	fn, ok := v.Interface().(func(float64) float64)
	if !ok {
		f.fn = nil
		return
	}
	f.fn = fn
}

func (f *formula) eval(ctx context.Context, x float64) (y float64) {
	if f.fn == nil {
		return math.NaN()
	}
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Warn("formula panicked",
				slog.String("node", f.ID()), slog.Any("panic", r))
			y = math.NaN()
		}
	}()
	return f.fn(x)
}
