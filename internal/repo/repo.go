package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"crisisline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- users ---

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,email,full_name,password_hash,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Email, nullable(u.FullName), u.PasswordHash, u.CreatedAt)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var fullName sql.NullString
	err := row.Scan(&u.ID, &u.Email, &fullName, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if fullName.Valid {
		u.FullName = fullName.String
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,full_name,password_hash,created_at FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,full_name,password_hash,created_at FROM users WHERE email=?`, email))
}

// --- companies ---

func (r Repo) InsertCompany(ctx context.Context, tx *sql.Tx, c domain.Company) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO companies(id,name,industry,description,created_by,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Industry), nullable(c.Description), c.CreatedBy, c.CreatedAt)
	return err
}

func (r Repo) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(industry,''),COALESCE(description,''),created_by,created_at FROM companies WHERE id=?`, id)
	var c domain.Company
	err := row.Scan(&c.ID, &c.Name, &c.Industry, &c.Description, &c.CreatedBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) UpdateCompany(ctx context.Context, tx *sql.Tx, c domain.Company) error {
	res, err := tx.ExecContext(ctx, `UPDATE companies SET name=?, industry=?, description=? WHERE id=?`,
		c.Name, nullable(c.Industry), nullable(c.Description), c.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteCompany(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM companies WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListCompanies(ctx context.Context, createdBy string) ([]domain.Company, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(industry,''),COALESCE(description,''),created_by,created_at FROM companies WHERE created_by=? ORDER BY created_at DESC`, createdBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Industry, &c.Description, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- teams ---

func (r Repo) InsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	members, err := marshalJSON(t.MemberIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO teams(id,company_id,name,lead_id,members_json,created_at) VALUES (?,?,?,?,?,?)`,
		t.ID, t.CompanyID, t.Name, nullable(t.LeadID), members, t.CreatedAt)
	return err
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,company_id,name,COALESCE(lead_id,''),COALESCE(members_json,'[]'),created_at FROM teams WHERE id=?`, id)
	var t domain.Team
	var members string
	err := row.Scan(&t.ID, &t.CompanyID, &t.Name, &t.LeadID, &members, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(members), &t.MemberIDs); err != nil {
		return t, err
	}
	return t, nil
}

func (r Repo) ListTeams(ctx context.Context, companyID string) ([]domain.Team, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,company_id,name,COALESCE(lead_id,''),COALESCE(members_json,'[]'),created_at FROM teams WHERE company_id=? ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		var t domain.Team
		var members string
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &t.LeadID, &members, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(members), &t.MemberIDs); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, ownerID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, ownerID, evtType, entityKind, entityID)
}

// LatestEventsFrom pages the event log backwards from the cursor id.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, ownerID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(owner_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if ownerID != "" {
		query += ` AND owner_id=?`
		args = append(args, ownerID)
	}
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	if cursor > 0 {
		query += ` AND id<?`
		args = append(args, cursor)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OwnerID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, ownerID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,COALESCE(owner_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if ownerID != "" {
		query += ` AND owner_id=?`
		args = append(args, ownerID)
	}
	if cursor > 0 {
		query += ` AND id>?`
		args = append(args, cursor)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OwnerID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the highest event id, or 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context, ownerID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id=?`
		args = append(args, ownerID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
