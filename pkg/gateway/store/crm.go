package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Contact struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"companyId"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Engagement struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"companyId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type EngagementPerson struct {
	ID           string    `json:"id"`
	EngagementID string    `json:"engagementId"`
	Name         string    `json:"name"`
	Role         string    `json:"role,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Interview struct {
	ID           string     `json:"id"`
	EngagementID string     `json:"engagementId"`
	PersonID     string     `json:"personId,omitempty"`
	ScheduledAt  *time.Time `json:"scheduledAt,omitempty"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (s *Store) ListCompanies(ctx context.Context) ([]Company, error) {
	defer s.observe("list_companies", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(domain, ''), created_at
		FROM companies ORDER BY lower(name) ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Domain, &c.CreatedAt); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

func (s *Store) CreateCompany(ctx context.Context, name, domain string) (Company, error) {
	defer s.observe("create_company", time.Now())
	c := Company{ID: uuid.NewString(), Name: name, Domain: domain}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (id, name, domain) VALUES ($1, $2, $3)
		RETURNING created_at`,
		c.ID, c.Name, nullString(c.Domain)).Scan(&c.CreatedAt)
	return c, err
}

func (s *Store) ListContacts(ctx context.Context, companyID string) ([]Contact, error) {
	defer s.observe("list_contacts", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, name, COALESCE(email, ''), COALESCE(title, ''), created_at
		FROM contacts WHERE company_id = $1 ORDER BY lower(name) ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *Store) ListEngagements(ctx context.Context, companyID string) ([]Engagement, error) {
	defer s.observe("list_engagements", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, name, status, created_at
		FROM engagements WHERE company_id = $1 ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var engagements []Engagement
	for rows.Next() {
		var e Engagement
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		engagements = append(engagements, e)
	}
	return engagements, rows.Err()
}

func (s *Store) ListEngagementPeople(ctx context.Context, engagementID string) ([]EngagementPerson, error) {
	defer s.observe("list_engagement_people", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, engagement_id, name, COALESCE(role, ''), created_at
		FROM engagement_people WHERE engagement_id = $1 ORDER BY lower(name) ASC`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var people []EngagementPerson
	for rows.Next() {
		var p EngagementPerson
		if err := rows.Scan(&p.ID, &p.EngagementID, &p.Name, &p.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

func (s *Store) ListInterviews(ctx context.Context, engagementID string) ([]Interview, error) {
	defer s.observe("list_interviews", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, engagement_id, COALESCE(person_id, ''), scheduled_at, status, notes, created_at
		FROM interviews WHERE engagement_id = $1 ORDER BY created_at DESC`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interviews []Interview
	for rows.Next() {
		var iv Interview
		if err := rows.Scan(&iv.ID, &iv.EngagementID, &iv.PersonID, &iv.ScheduledAt, &iv.Status, &iv.Notes, &iv.CreatedAt); err != nil {
			return nil, err
		}
		interviews = append(interviews, iv)
	}
	return interviews, rows.Err()
}

func (s *Store) CreateInterview(ctx context.Context, iv Interview) (Interview, error) {
	defer s.observe("create_interview", time.Now())
	iv.ID = uuid.NewString()
	if iv.Status == "" {
		iv.Status = "scheduled"
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO interviews (id, engagement_id, person_id, scheduled_at, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		iv.ID, iv.EngagementID, nullString(iv.PersonID), iv.ScheduledAt, iv.Status, iv.Notes).
		Scan(&iv.CreatedAt)
	return iv, err
}
