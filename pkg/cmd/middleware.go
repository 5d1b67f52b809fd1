package cmd

import "context"

// Middleware decorates a command. Decorators must keep the inner command
// reachable through Root, which Wrap does.
type Middleware func(Command) Command

// Apply decorates c with mws; the first middleware ends up outermost.
func Apply(c Command, mws ...Middleware) Command {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}

// RunFunc is the signature of Command.Run.
type RunFunc func(ctx context.Context, inv *Invocation) error

type wrapped struct {
	inner Command
	run   RunFunc
}

func (w *wrapped) Name() string        { return w.inner.Name() }
func (w *wrapped) Description() string { return w.inner.Description() }
func (w *wrapped) Unwrap() Command     { return w.inner }

func (w *wrapped) Run(ctx context.Context, inv *Invocation) error {
	if w.run == nil {
		return w.inner.Run(ctx, inv)
	}
	return w.run(ctx, inv)
}

// Wrap returns c with its Run replaced by run. Identity and the optional
// capabilities of c stay visible through Root.
func Wrap(c Command, run RunFunc) Command {
	return &wrapped{inner: c, run: run}
}

// Root strips every Wrap layer from c.
func Root(c Command) Command {
	for {
		u, ok := c.(interface{ Unwrap() Command })
		if !ok {
			return c
		}
		c = u.Unwrap()
	}
}
