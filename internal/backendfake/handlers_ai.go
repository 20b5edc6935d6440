package backendfake

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const maxRecommendations = 10

// Recommendation is one entry of the recommendations response.
type Recommendation struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Organization string  `json:"organization"`
	Category     string  `json:"category"`
	Location     string  `json:"location"`
	Deadline     string  `json:"deadline"`
	MatchScore   float64 `json:"match_score"`
	MatchReason  string  `json:"match_reason"`
}

// careerSkills maps keywords found in a career goal to the skills it needs.
var careerSkills = []struct {
	keywords []string
	skills   []string
}{
	{keywords: []string{"software", "logiciel", "développ", "programm"}, skills: []string{"python", "javascript", "sql", "git", "agile"}},
	{keywords: []string{"data", "donnée"}, skills: []string{"python", "statistics", "machine_learning", "sql", "visualization"}},
	{keywords: []string{"marketing"}, skills: []string{"seo", "social_media", "analytics", "content_creation", "ppc"}},
	{keywords: []string{"business", "analyste", "gestion"}, skills: []string{"excel", "sql", "process_mapping", "stakeholder_management"}},
}

// handleRecommendations ranks open opportunities for the caller: a base score,
// a boost for the caller's city and one for deadlines within a week.
func (b *Backend) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	var city string
	if u, ok := b.users[requestUserID(r)]; ok {
		city = u.City
	}
	now := b.nowFunc()
	out := []Recommendation{}
	for _, o := range b.opportunities {
		if o.Status != "active" {
			continue
		}
		deadline, err := time.Parse(time.DateOnly, o.Deadline)
		if err == nil && deadline.Before(now.Truncate(24*time.Hour)) {
			continue
		}

		rec := Recommendation{
			ID:           o.ID,
			Title:        o.Title,
			Organization: o.Organization,
			Category:     b.categoryName(o.Category),
			Location:     o.Location,
			Deadline:     o.Deadline,
			MatchScore:   0.5,
			MatchReason:  "Profil compatible",
		}
		if city != "" && strings.EqualFold(o.Location, city) {
			rec.MatchScore += 0.3
			rec.MatchReason = "Proche de chez vous"
		}
		if err == nil && deadline.Sub(now) <= 7*24*time.Hour {
			rec.MatchScore += 0.2
			rec.MatchReason += ", date limite proche"
		}
		out = append(out, rec)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchScore != out[j].MatchScore {
			return out[i].MatchScore > out[j].MatchScore
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > maxRecommendations {
		out = out[:maxRecommendations]
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": out})
}

func (b *Backend) handleCareerAdvice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CareerGoals string `json:"career_goals"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CareerGoals) == "" {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"career_goals": {"This field is required."}})
		return
	}

	u, _ := b.User(requestUserID(r))

	goals := strings.ToLower(req.CareerGoals)
	seen := map[string]bool{}
	skills := []string{}
	for _, m := range careerSkills {
		for _, k := range m.keywords {
			if !strings.Contains(goals, k) {
				continue
			}
			for _, s := range m.skills {
				if !seen[s] {
					seen[s] = true
					skills = append(skills, s)
				}
			}
			break
		}
	}
	if len(skills) == 0 {
		skills = []string{"communication", "english", "excel"}
	}

	strengths := []string{"Objectifs de carrière clairement définis"}
	if u.Institution != "" {
		strengths = append(strengths, "Formation à "+u.Institution)
	}
	improve := []string{}
	for _, s := range skills[:min(2, len(skills))] {
		improve = append(improve, "Approfondir "+s)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"career_advice": map[string]any{
			"strengths":          strengths,
			"areas_to_improve":   improve,
			"next_steps":         []string{"Compléter votre profil", "Postuler à trois opportunités ce mois-ci", "Suivre une formation certifiante"},
			"recommended_skills": skills,
			"salary_estimation":  "250 000 à 600 000 FCFA par mois en début de carrière selon le secteur",
		},
	})
}

func (b *Backend) handleInterviewPrep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OpportunityID int `json:"opportunity_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OpportunityID == 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"opportunity_id": {"This field is required."}})
		return
	}

	b.mu.Lock()
	o, ok := b.opportunities[req.OpportunityID]
	var opp Opportunity
	if ok {
		opp = *o
	}
	category := b.categoryName(opp.Category)
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"opportunity_id": {fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", req.OpportunityID)}})
		return
	}

	questions := []string{
		fmt.Sprintf("Pourquoi voulez-vous rejoindre %s ?", opp.Organization),
		fmt.Sprintf("Décrivez une expérience en lien avec « %s ».", opp.Title),
		"Où vous voyez-vous dans cinq ans ?",
	}
	if category == "Bourses" {
		questions = append(questions, "Comment cette bourse servira-t-elle votre projet d'études ?")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"interview_prep": map[string]any{
			"opportunity_id": opp.ID,
			"title":          opp.Title,
			"organization":   opp.Organization,
			"questions":      questions,
			"tips": []string{
				fmt.Sprintf("Renseignez-vous sur %s avant l'entretien", opp.Organization),
				"Préparez deux exemples concrets de réalisations",
				"Arrivez dix minutes en avance",
			},
		},
	})
}

// categoryName is called with mu held.
func (b *Backend) categoryName(id int) string {
	for _, c := range b.categories {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}
