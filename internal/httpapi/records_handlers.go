package httpapi

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/blob"
	"casedesk.org/internal/docket"
)

type contactRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

func (req contactRequest) contact() (docket.Contact, error) {
	if strings.TrimSpace(req.Name) == "" {
		return docket.Contact{}, fmt.Errorf("%w: name is required", auth.ErrInvalidInput)
	}
	typ, err := docket.ParseContactType(req.Type)
	if err != nil {
		return docket.Contact{}, err
	}
	return docket.Contact{
		Name:  strings.TrimSpace(req.Name),
		Type:  typ,
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
		Notes: strings.TrimSpace(req.Notes),
	}, nil
}

type caseRequest struct {
	Number      string `json:"number"`
	Title       string `json:"title"`
	ClientID    string `json:"clientId"`
	Status      string `json:"status"`
	Description string `json:"description"`
	OpenDate    string `json:"openDate"`
	Court       string `json:"court"`
	Partes      string `json:"partes"`
}

func (req caseRequest) caseRecord() (docket.Case, error) {
	if strings.TrimSpace(req.Number) == "" || strings.TrimSpace(req.Title) == "" {
		return docket.Case{}, fmt.Errorf("%w: number and title are required", auth.ErrInvalidInput)
	}
	status, err := docket.ParseCaseStatus(req.Status)
	if err != nil {
		return docket.Case{}, err
	}
	var open docket.Date
	if strings.TrimSpace(req.OpenDate) != "" {
		if open, err = docket.ParseDate(req.OpenDate); err != nil {
			return docket.Case{}, err
		}
	}
	return docket.Case{
		Number:      strings.TrimSpace(req.Number),
		Title:       strings.TrimSpace(req.Title),
		ClientID:    strings.TrimSpace(req.ClientID),
		Status:      status,
		Description: strings.TrimSpace(req.Description),
		OpenDate:    open,
		Court:       strings.TrimSpace(req.Court),
		Partes:      strings.TrimSpace(req.Partes),
	}, nil
}

// caseView adds the display label of the status.
type caseView struct {
	docket.Case
	StatusLabel string `json:"statusLabel"`
}

func viewCase(c docket.Case) caseView {
	return caseView{Case: c, StatusLabel: c.Status.Label()}
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.deps.Workspace.Users()})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Planner.Stats(viewer(r)))
}

func (a *API) handleListContacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.deps.Workspace.Contacts()})
}

func (a *API) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	if !auth.For(viewer(r)).CanCreate() {
		a.handleError(w, r, auth.ErrForbidden)
		return
	}
	var req contactRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := req.contact()
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	op := a.deps.Workspace.AddContact(c)
	if err := op.Rejection(); err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, true, a.findContact)
}

func (a *API) findContact(id string) (any, bool) {
	for _, c := range a.deps.Workspace.Contacts() {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (a *API) handleListCases(w http.ResponseWriter, r *http.Request) {
	if !auth.For(viewer(r)).CanViewAll() {
		a.handleError(w, r, auth.ErrForbidden)
		return
	}
	cases := a.deps.Workspace.Cases()
	items := make([]caseView, 0, len(cases))
	for _, c := range cases {
		items = append(items, viewCase(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	if !auth.For(viewer(r)).CanCreate() {
		a.handleError(w, r, auth.ErrForbidden)
		return
	}
	var req caseRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := req.caseRecord()
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	op := a.deps.Workspace.AddCase(c)
	if err := op.Rejection(); err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, true, a.findCase)
}

func (a *API) findCase(id string) (any, bool) {
	c, ok := a.deps.Workspace.Case(id)
	if !ok {
		return nil, false
	}
	return viewCase(c), true
}

func (a *API) handleGetCase(w http.ResponseWriter, r *http.Request) {
	if !auth.For(viewer(r)).CanViewAll() {
		a.handleError(w, r, auth.ErrForbidden)
		return
	}
	c, ok := a.findCase(r.PathValue("id"))
	if !ok {
		a.handleError(w, r, docket.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleCaseEvents(w http.ResponseWriter, r *http.Request) {
	if !auth.For(viewer(r)).CanViewAll() {
		a.handleError(w, r, auth.ErrForbidden)
		return
	}
	id := r.PathValue("id")
	if _, ok := a.deps.Workspace.Case(id); !ok {
		a.handleError(w, r, docket.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": a.deps.Workspace.EventsForCase(id)})
}

// handleUploadDocument stores the "file" part of a multipart form in the blob
// store and appends its metadata to the case.
func (a *API) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	actor := viewer(r)
	if !auth.For(actor).CanEdit() {
		a.handleError(w, r, auth.ErrForbidden)
		return
	}
	caseID := r.PathValue("id")
	if _, ok := a.deps.Workspace.Case(caseID); !ok {
		a.handleError(w, r, docket.ErrNotFound)
		return
	}
	if a.deps.Blobs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "uploads disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	} else {
		contentType = ""
	}
	key := blob.DocumentKey(caseID, header.Filename)
	obj, err := a.deps.Blobs.Put(r.Context(), key, file, header.Size, orDefault(contentType, docket.DefaultMimeType))
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	op := a.deps.Workspace.AddCaseDocument(actor, caseID, docket.FileMeta{
		Name:     header.Filename,
		MimeType: contentType,
		Size:     obj.Size,
		URL:      "/v1/files/" + obj.Key,
	})
	if err := op.Rejection(); err != nil {
		a.handleError(w, r, err)
		return
	}
	a.respondOp(w, r, op, true, func(id string) (any, bool) {
		c, ok := a.deps.Workspace.Case(caseID)
		if !ok {
			return nil, false
		}
		for _, d := range c.Documents {
			if d.ID == id {
				return d, true
			}
		}
		return nil, false
	})
}

// handleDownload streams a stored document to anyone allowed to view cases.
func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !auth.For(viewer(r)).CanViewAll() {
		a.handleError(w, r, auth.ErrForbidden)
		return
	}
	if a.deps.Blobs == nil {
		a.handleError(w, r, blob.ErrNotFound)
		return
	}
	rc, obj, err := a.deps.Blobs.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", orDefault(obj.ContentType, "application/octet-stream"))
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
