package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"casedesk.org/internal/workspace"
)

// opResponse reports a mutation. Without ?wait=true the record is the local
// provisional copy and phase is pending.
type opResponse struct {
	Op            string `json:"op"`
	Phase         string `json:"phase"`
	ID            string `json:"id"`
	ProvisionalID string `json:"provisionalId,omitempty"`
	Error         string `json:"error,omitempty"`
	Record        any    `json:"record,omitempty"`
}

// lookup returns the current local record for id.
type lookup func(id string) (any, bool)

func wantsWait(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("wait"))
	return err == nil && v
}

// respondOp answers 202 with the provisional record, or with ?wait=true
// blocks until the remote phase resolves. A committed creation answers 201,
// a rolled back one 502; every other resolution answers 200 and carries its
// phase.
func (a *API) respondOp(w http.ResponseWriter, r *http.Request, op *workspace.Op, created bool, find lookup) {
	resp := opResponse{
		Op:    op.Name(),
		Phase: string(workspace.PhasePending),
		ID:    op.ProvisionalID(),
	}
	if !wantsWait(r) {
		resp.Record, _ = find(resp.ID)
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.opts.WaitTimeout)
	defer cancel()
	select {
	case <-op.Done():
	case <-ctx.Done():
		resp.Record, _ = find(resp.ID)
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	out := op.Wait()
	resp.Phase = string(out.Phase)
	resp.ID = out.ID
	if out.ID != op.ProvisionalID() {
		resp.ProvisionalID = op.ProvisionalID()
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	if rec, ok := find(out.ID); ok {
		resp.Record = rec
	}

	code := http.StatusOK
	switch {
	case out.Phase == workspace.PhaseRolledBack:
		code = http.StatusBadGateway
	case created && out.Phase == workspace.PhaseCommitted:
		code = http.StatusCreated
	}
	writeJSON(w, code, resp)
}
