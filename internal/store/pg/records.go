package pg

import (
	"context"
	"database/sql"
	"time"

	"casedesk.org/internal/docket"
)

type contactRow struct {
	ID    string
	Name  string
	Type  string
	Email sql.NullString
	Phone sql.NullString
	Notes sql.NullString
}

func (r contactRow) contact() docket.Contact {
	return docket.Contact{
		ID:    r.ID,
		Name:  r.Name,
		Type:  docket.ContactType(r.Type),
		Email: r.Email.String,
		Phone: r.Phone.String,
		Notes: r.Notes.String,
	}
}

func (s *Store) ListContacts(ctx context.Context) ([]docket.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, type, email, phone, notes
		from contacts
		order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docket.Contact
	for rows.Next() {
		var r contactRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &r.Email, &r.Phone, &r.Notes); err != nil {
			return nil, err
		}
		out = append(out, r.contact())
	}
	return out, rows.Err()
}

func (s *Store) InsertContact(ctx context.Context, c docket.Contact) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		insert into contacts (name, type, email, phone, notes)
		values ($1, $2, $3, $4, $5)
		returning id
	`, c.Name, string(c.Type), nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Notes)).Scan(&id)
	return id, err
}

type caseRow struct {
	ID          string
	Number      string
	Title       string
	ClientID    sql.NullString
	Status      string
	Description sql.NullString
	OpenDate    sql.NullString
	Court       sql.NullString
	Partes      sql.NullString
}

func (r caseRow) caseRecord() docket.Case {
	return docket.Case{
		ID:          r.ID,
		Number:      r.Number,
		Title:       r.Title,
		ClientID:    r.ClientID.String,
		Status:      docket.CaseStatus(r.Status),
		Description: r.Description.String,
		OpenDate:    docket.Date(r.OpenDate.String),
		Court:       r.Court.String,
		Partes:      r.Partes.String,
		Documents:   []docket.CaseDocument{},
	}
}

type documentRow struct {
	ID         string
	CaseID     string
	Name       string
	Type       string
	Size       string
	UploadDate time.Time
	UploadedBy sql.NullString
	URL        sql.NullString
}

func (r documentRow) document() docket.CaseDocument {
	return docket.CaseDocument{
		ID:         r.ID,
		Name:       r.Name,
		MimeType:   r.Type,
		SizeLabel:  r.Size,
		UploadDate: r.UploadDate.UTC(),
		UploadedBy: r.UploadedBy.String,
		URL:        r.URL.String,
	}
}

// ListCases loads cases and their documents in two queries and joins them here.
func (s *Store) ListCases(ctx context.Context) ([]docket.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, number, title, client_id, status, description,
		       to_char(open_date, 'YYYY-MM-DD'), court, partes
		from cases
		order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docket.Case
	index := map[string]int{}
	for rows.Next() {
		var r caseRow
		if err := rows.Scan(&r.ID, &r.Number, &r.Title, &r.ClientID, &r.Status, &r.Description, &r.OpenDate, &r.Court, &r.Partes); err != nil {
			return nil, err
		}
		index[r.ID] = len(out)
		out = append(out, r.caseRecord())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs, err := s.db.QueryContext(ctx, `
		select d.id, d.case_id, d.name, d.type, d.size, d.upload_date,
		       coalesce(u.name, d.uploaded_by), d.url
		from case_documents d
		left join users u on u.id = d.uploaded_by
		order by d.seq
	`)
	if err != nil {
		return nil, err
	}
	defer docs.Close()
	for docs.Next() {
		var r documentRow
		if err := docs.Scan(&r.ID, &r.CaseID, &r.Name, &r.Type, &r.Size, &r.UploadDate, &r.UploadedBy, &r.URL); err != nil {
			return nil, err
		}
		if i, ok := index[r.CaseID]; ok {
			out[i].Documents = append(out[i].Documents, r.document())
		}
	}
	return out, docs.Err()
}

func (s *Store) InsertCase(ctx context.Context, c docket.Case) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		insert into cases (number, title, client_id, status, court, partes, description, open_date)
		values ($1, $2, $3, $4, $5, $6, $7, $8::date)
		returning id
	`, c.Number, c.Title, nullIfEmpty(c.ClientID), string(c.Status), nullIfEmpty(c.Court),
		nullIfEmpty(c.Partes), nullIfEmpty(c.Description), nullIfEmpty(string(c.OpenDate))).Scan(&id)
	return id, err
}

func (s *Store) InsertDocument(ctx context.Context, caseID string, doc docket.CaseDocument, uploaderID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		insert into case_documents (case_id, name, type, size, upload_date, uploaded_by, url)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id
	`, caseID, doc.Name, doc.MimeType, doc.SizeLabel, doc.UploadDate, uploaderID, nullIfEmpty(doc.URL)).Scan(&id)
	return id, err
}
