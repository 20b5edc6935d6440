package backendfake

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// User mirrors the backend's UserDetailSerializer.
type User struct {
	ID               int       `json:"id"`
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	UserType         string    `json:"user_type"`
	PhoneNumber      string    `json:"phone_number"`
	Bio              string    `json:"bio"`
	City             string    `json:"city"`
	Country          string    `json:"country"`
	EducationLevel   string    `json:"education_level"`
	Institution      string    `json:"institution"`
	OrganizationName string    `json:"organization_name"`
	IsVerified       bool      `json:"is_verified"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	password string
}

// Opportunity mirrors the backend's opportunity serializer.
type Opportunity struct {
	ID               int       `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Category         int       `json:"category"`
	Deadline         string    `json:"deadline"`
	Location         string    `json:"location"`
	Organization     string    `json:"organization"`
	IsVerified       bool      `json:"is_verified"`
	Status           string    `json:"status"`
	PublicationDate  time.Time `json:"publication_date"`
	ApplicationCount int       `json:"application_count"`
	CreatedBy        int       `json:"created_by"`
}

type Category struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func defaultCategories() []Category {
	return []Category{
		{ID: 1, Name: "Bourses", Slug: "bourses", Description: "Bourses d'études"},
		{ID: 2, Name: "Stages", Slug: "stages", Description: "Stages en entreprise"},
		{ID: 3, Name: "Emplois", Slug: "emplois", Description: "Offres d'emploi"},
		{ID: 4, Name: "Formations", Slug: "formations", Description: "Formations et certifications"},
	}
}

// AddUser registers an active user that can log in with email and password.
func (b *Backend) AddUser(email, password string) User {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.addUserLocked(User{
		Email:    email,
		Username: strings.SplitN(email, "@", 2)[0],
		UserType: "student",
	}, password)
	return *u
}

// User returns a copy of the user with id.
func (b *Backend) User(id int) (User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// AddOpportunity stores an opportunity as created by userID and returns it
// with its assigned id.
func (b *Backend) AddOpportunity(userID int, o Opportunity) Opportunity {
	b.mu.Lock()
	defer b.mu.Unlock()

	o.CreatedBy = userID
	return *b.addOpportunityLocked(o)
}

// Seed fills the backend with n generated opportunities owned by userID.
func (b *Backend) Seed(userID, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	faker := gofakeit.New(0)
	now := b.nowFunc()
	for range n {
		b.addOpportunityLocked(Opportunity{
			Title:        faker.JobTitle(),
			Description:  faker.Sentence(20),
			Category:     b.categories[faker.IntRange(0, len(b.categories)-1)].ID,
			Deadline:     faker.DateRange(now, now.AddDate(0, 6, 0)).Format(time.DateOnly),
			Location:     faker.City(),
			Organization: faker.Company(),
			Status:       "active",
			CreatedBy:    userID,
		})
	}
}

// ResetToken returns the uid and token a reset_password request issued for
// email, as they would appear in the emailed link.
func (b *Backend) ResetToken(email string) (uid, token string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.userByEmail(email)
	if u == nil {
		return "", "", false
	}
	token, ok = b.resetTokens[u.ID]
	return encodeUID(u.ID), token, ok
}

// EmailVerificationKey issues the key a confirmation email would carry for
// userID. Asking again before it is used returns the same key.
func (b *Backend) EmailVerificationKey(userID int) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[userID]; !ok {
		return "", false
	}
	key, ok := b.verifyKeys[userID]
	if !ok {
		key = uuid.NewString()
		b.verifyKeys[userID] = key
	}
	return key, true
}

func (b *Backend) addUserLocked(u User, password string) *User {
	now := b.nowFunc()
	u.ID = b.nextUserID
	u.CreatedAt = now
	u.UpdatedAt = now
	u.password = password
	b.nextUserID++
	b.users[u.ID] = &u
	return &u
}

func (b *Backend) addOpportunityLocked(o Opportunity) *Opportunity {
	o.ID = b.nextOppID
	if o.Status == "" {
		o.Status = "active"
	}
	o.PublicationDate = b.nowFunc()
	b.nextOppID++
	b.opportunities[o.ID] = &o
	return &o
}

func (b *Backend) userByEmail(email string) *User {
	for _, u := range b.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (b *Backend) hasCategory(id int) bool {
	for _, c := range b.categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// encodeUID renders a user id the way Djoser puts it in reset links.
func encodeUID(id int) string {
	return fmt.Sprintf("%x", id)
}
