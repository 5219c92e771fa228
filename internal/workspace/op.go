package workspace

import "sync"

// Phase is where an optimistic mutation stands with respect to the record store.
type Phase string

const (
	// PhasePending: applied locally, remote call in flight.
	PhasePending Phase = "pending"
	// PhaseCommitted: remote confirmed; provisional ids were substituted.
	PhaseCommitted Phase = "committed"
	// PhaseRolledBack: a creation failed remotely and the record was removed.
	PhaseRolledBack Phase = "rolled_back"
	// PhaseDiverged: a non-creation remote call failed; local state was kept.
	PhaseDiverged Phase = "diverged"
	// PhaseRejected: a precondition failed; nothing changed locally or remotely.
	PhaseRejected Phase = "rejected"
)

// Outcome is the resolved state of an Op.
type Outcome struct {
	Phase Phase
	// ID is the record id after resolution: the server id for committed
	// creations, the local id otherwise.
	ID  string
	Err error
}

// Op tracks the remote phase of one mutation. Callers never have to wait on it.
type Op struct {
	name        string
	provisional string

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newOp(name, provisional string) *Op {
	return &Op{name: name, provisional: provisional, done: make(chan struct{})}
}

func rejected(name string, err error) *Op {
	op := newOp(name, "")
	op.resolve(Outcome{Phase: PhaseRejected, Err: err})
	return op
}

func (o *Op) resolve(out Outcome) {
	o.once.Do(func() {
		o.outcome = out
		close(o.done)
	})
}

// Name is the remote operation label, e.g. "insert_event".
func (o *Op) Name() string { return o.name }

// ProvisionalID is the id the record carried when the Op was created.
func (o *Op) ProvisionalID() string { return o.provisional }

// Done is closed once the Op has resolved.
func (o *Op) Done() <-chan struct{} { return o.done }

// Wait blocks until the remote phase resolves.
func (o *Op) Wait() Outcome {
	<-o.done
	return o.outcome
}

// Outcome returns the resolution without blocking. ok is false while pending.
func (o *Op) Outcome() (Outcome, bool) {
	select {
	case <-o.done:
		return o.outcome, true
	default:
		return Outcome{Phase: PhasePending, ID: o.provisional}, false
	}
}

// Rejection returns the precondition failure of a rejected Op, or nil.
func (o *Op) Rejection() error {
	if out, ok := o.Outcome(); ok && out.Phase == PhaseRejected {
		return out.Err
	}
	return nil
}
