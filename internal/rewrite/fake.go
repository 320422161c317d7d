package rewrite

import "context"

// Fake is an in-process Rewriter for tests. It records calls and returns
// a canned result or error.
type Fake struct {
	Result string
	Err    error

	Calls []FakeCall
}

// FakeCall records one Rewrite invocation.
type FakeCall struct {
	Original    string
	Instruction string
	Opts        Options
}

var _ Rewriter = (*Fake)(nil)

// Rewrite implements Rewriter.
func (f *Fake) Rewrite(_ context.Context, original, instruction string, opts Options) (string, error) {
	f.Calls = append(f.Calls, FakeCall{Original: original, Instruction: instruction, Opts: opts})
	if f.Err != nil {
		return "", f.Err
	}
	return f.Result, nil
}
