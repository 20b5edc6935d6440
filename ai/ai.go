// Package ai calls the assistant endpoints: personalised opportunity
// recommendations, career advice and interview preparation.
package ai

import (
	"context"
	"fmt"
	"math"

	"github.com/jrsteele09/go-opportuci/apiclient"
	"github.com/jrsteele09/go-opportuci/opportunities"
)

const (
	endpointRecommendations = "/ai/recommendations/"
	endpointCareerAdvice    = "/ai/career-advice/"
	endpointInterviewPrep   = "/ai/interview-prep/"

	// defaultMatchScore stands in for a recommendation the backend did not score.
	defaultMatchScore = 0.5
)

// Recommendation is an opportunity suggested for the logged-in user.
type Recommendation struct {
	ID           int                `json:"id"`
	Title        string             `json:"title"`
	Organization string             `json:"organization"`
	Category     string             `json:"category"` // Category name, not id
	Location     string             `json:"location"`
	Deadline     opportunities.Date `json:"deadline"`
	MatchScore   float64            `json:"match_score"` // 0 to 1
	MatchReason  string             `json:"match_reason"`
}

// MatchPercent is the score as a whole percentage.
func (r *Recommendation) MatchPercent() int {
	score := r.MatchScore
	if score == 0 {
		score = defaultMatchScore
	}
	return int(math.Round(score * 100))
}

type CareerAdvice struct {
	Strengths         []string `json:"strengths"`
	AreasToImprove    []string `json:"areas_to_improve"`
	NextSteps         []string `json:"next_steps"`
	RecommendedSkills []string `json:"recommended_skills"`
	SalaryEstimation  string   `json:"salary_estimation"`
}

type InterviewPrep struct {
	OpportunityID int      `json:"opportunity_id"`
	Title         string   `json:"title"`
	Organization  string   `json:"organization"`
	Questions     []string `json:"questions"`
	Tips          []string `json:"tips"`
}

// Service calls the assistant endpoints through an authenticated client.
type Service struct {
	client *apiclient.Client
}

func New(client *apiclient.Client) *Service {
	return &Service{client: client}
}

// Recommendations returns the backend's ranking, best match first.
func (s *Service) Recommendations(ctx context.Context) ([]Recommendation, error) {
	resp, err := s.client.Get(ctx, endpointRecommendations, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("[ai Recommendations] %w", err)
	}
	if out.Recommendations == nil {
		return []Recommendation{}, nil
	}
	return out.Recommendations, nil
}

// CareerAdvice asks for advice towards goals, a free text description of
// where the user wants their career to go.
func (s *Service) CareerAdvice(ctx context.Context, goals string) (*CareerAdvice, error) {
	req := struct {
		CareerGoals string `json:"career_goals" validate:"required"`
	}{CareerGoals: goals}
	if err := apiclient.Validate(req); err != nil {
		return nil, err
	}

	resp, err := s.client.Post(ctx, endpointCareerAdvice, req)
	if err != nil {
		return nil, err
	}

	var out struct {
		CareerAdvice *CareerAdvice `json:"career_advice"`
	}
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("[ai CareerAdvice] %w", err)
	}
	if out.CareerAdvice == nil {
		return nil, fmt.Errorf("[ai CareerAdvice] response has no career_advice")
	}
	return out.CareerAdvice, nil
}

// InterviewPrep returns likely questions and tips for opportunityID.
func (s *Service) InterviewPrep(ctx context.Context, opportunityID int) (*InterviewPrep, error) {
	req := struct {
		OpportunityID int `json:"opportunity_id" validate:"required,gt=0"`
	}{OpportunityID: opportunityID}
	if err := apiclient.Validate(req); err != nil {
		return nil, err
	}

	resp, err := s.client.Post(ctx, endpointInterviewPrep, req)
	if err != nil {
		return nil, err
	}

	var out struct {
		InterviewPrep *InterviewPrep `json:"interview_prep"`
	}
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("[ai InterviewPrep] %w", err)
	}
	if out.InterviewPrep == nil {
		return nil, fmt.Errorf("[ai InterviewPrep] response has no interview_prep")
	}
	return out.InterviewPrep, nil
}
