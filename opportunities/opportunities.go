// Package opportunities lists and manages the opportunities (scholarships,
// internships, jobs) a user has published, and their categories.
package opportunities

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-opportuci/apiclient"
)

const (
	endpointUserOpportunities = "/opportunities/user-opportunities/"
	endpointOpportunities     = "/opportunities/opportunities/"
	endpointCategories        = "/opportunities/categories/"
)

// Status values the backend assigns.
const (
	StatusActive = "active"
	StatusClosed = "closed"
	StatusDraft  = "draft"
)

type Opportunity struct {
	ID               int       `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Category         int       `json:"category"`
	Deadline         Date      `json:"deadline"`
	Location         string    `json:"location"`
	Organization     string    `json:"organization"`
	IsVerified       bool      `json:"is_verified"`
	Status           string    `json:"status"`
	PublicationDate  time.Time `json:"publication_date"`
	ApplicationCount int       `json:"application_count"`
}

// DeadlinePassed reports whether the deadline day is over at now.
// An opportunity without a deadline never expires.
func (o *Opportunity) DeadlinePassed(now time.Time) bool {
	if o.Deadline.IsZero() {
		return false
	}
	return NewDate(now).After(o.Deadline.Time)
}

type Category struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Input is the body of a create or update.
type Input struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"required"`
	Category     int    `json:"category" validate:"required"`
	Deadline     Date   `json:"deadline"`
	Location     string `json:"location" validate:"required"`
	Organization string `json:"organization" validate:"required"`
	Status       string `json:"status,omitempty" validate:"omitempty,oneof=active closed draft"`
}

// Validate runs the checks the backend would, so obvious mistakes never leave the process.
func (in Input) Validate() error {
	err := apiclient.Validate(in)
	if !in.Deadline.IsZero() {
		return err
	}

	fve := &apiclient.FieldValidationError{Fields: map[string][]string{}}
	if err != nil && !errors.As(err, &fve) {
		return err
	}
	fve.Fields["deadline"] = append(fve.Fields["deadline"], "This field is required.")
	return fve
}

// Service calls the opportunity endpoints through an authenticated client.
type Service struct {
	client *apiclient.Client
}

func New(client *apiclient.Client) *Service {
	return &Service{client: client}
}

// List returns the opportunities created by the logged-in user.
func (s *Service) List(ctx context.Context) ([]Opportunity, error) {
	resp, err := s.client.Get(ctx, endpointUserOpportunities, nil)
	if err != nil {
		return nil, err
	}

	var out []Opportunity
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("[opportunities List] %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int) (*Opportunity, error) {
	resp, err := s.client.Get(ctx, opportunityPath(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeOpportunity(resp)
}

func (s *Service) Create(ctx context.Context, in Input) (*Opportunity, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	resp, err := s.client.Post(ctx, endpointOpportunities, in)
	if err != nil {
		return nil, err
	}
	return decodeOpportunity(resp)
}

// Update replaces opportunity id with in (PUT semantics: every field is sent).
func (s *Service) Update(ctx context.Context, id int, in Input) (*Opportunity, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	resp, err := s.client.Put(ctx, opportunityPath(id), in)
	if err != nil {
		return nil, err
	}
	return decodeOpportunity(resp)
}

// Delete removes opportunity id. It reports true when the backend answered 204.
func (s *Service) Delete(ctx context.Context, id int) (bool, error) {
	resp, err := s.client.Delete(ctx, opportunityPath(id))
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusNoContent, nil
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	resp, err := s.client.Get(ctx, endpointCategories, nil)
	if err != nil {
		return nil, err
	}

	var out []Category
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("[opportunities Categories] %w", err)
	}
	return out, nil
}

func opportunityPath(id int) string {
	return fmt.Sprintf("%s%d/", endpointOpportunities, id)
}

func decodeOpportunity(resp *apiclient.Response) (*Opportunity, error) {
	var o Opportunity
	if err := resp.Decode(&o); err != nil {
		return nil, fmt.Errorf("[opportunities decodeOpportunity] %w", err)
	}
	return &o, nil
}
