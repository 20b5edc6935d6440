package backendfake

import (
	"net/http"
	"net/mail"
	"sort"
	"time"
)

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email           string `json:"email"`
		Username        string `json:"username"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
		FirstName       string `json:"first_name"`
		LastName        string `json:"last_name"`
		UserType        string `json:"user_type"`
		PhoneNumber     string `json:"phone_number"`
		City            string `json:"city"`
		Country         string `json:"country"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	errs := fieldErrors{}
	errs.required("email", req.Email)
	errs.required("username", req.Username)
	errs.required("password", req.Password)
	errs.required("confirm_password", req.ConfirmPassword)
	if _, err := mail.ParseAddress(req.Email); req.Email != "" && err != nil {
		errs.add("email", "Enter a valid email address.")
	}
	if len(req.Password) > 0 && len(req.Password) < 8 {
		errs.add("password", "This password is too short. It must contain at least 8 characters.")
	}
	if len(errs) == 0 && req.Password != req.ConfirmPassword {
		errs.add("confirm_password", "Les mots de passe ne correspondent pas.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if req.Email != "" && b.userByEmail(req.Email) != nil {
		errs.add("email", "user with this email already exists.")
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	if req.UserType == "" {
		req.UserType = "student"
	}
	u := b.addUserLocked(User{
		Email:       req.Email,
		Username:    req.Username,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		UserType:    req.UserType,
		PhoneNumber: req.PhoneNumber,
		City:        req.City,
		Country:     req.Country,
	}, req.Password)
	writeJSON(w, http.StatusCreated, u)
}

func (b *Backend) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if id != requestUserID(r) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}

	var req map[string]any
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	if np, ok := req["new_password"].(string); ok && np != "" {
		cp, _ := req["current_password"].(string)
		if cp == "" {
			writeJSON(w, http.StatusBadRequest, fieldErrors{"current_password": {"Le mot de passe actuel est requis pour définir un nouveau mot de passe."}})
			return
		}
		if cp != u.password {
			writeJSON(w, http.StatusBadRequest, fieldErrors{"current_password": {"Le mot de passe actuel est incorrect."}})
			return
		}
		u.password = np
	}

	// Read-only fields (id, email, is_verified, timestamps) are ignored.
	fields := map[string]*string{
		"first_name":        &u.FirstName,
		"last_name":         &u.LastName,
		"phone_number":      &u.PhoneNumber,
		"bio":               &u.Bio,
		"city":              &u.City,
		"country":           &u.Country,
		"education_level":   &u.EducationLevel,
		"institution":       &u.Institution,
		"organization_name": &u.OrganizationName,
	}
	for k, dst := range fields {
		if v, ok := req[k].(string); ok {
			*dst = v
		}
	}
	u.UpdatedAt = b.nowFunc()
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) handleUserOpportunities(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	b.mu.Lock()
	out := []Opportunity{}
	for _, o := range b.opportunities {
		if o.CreatedBy == userID {
			out = append(out, *o)
		}
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleOpportunityGet(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	o, ok := b.opportunities[pathID(r)]
	var out Opportunity
	if ok {
		out = *o
	}
	b.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleOpportunityCreate(w http.ResponseWriter, r *http.Request) {
	var req Opportunity
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if errs := b.validateOpportunity(req); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	req.CreatedBy = requestUserID(r)
	req.IsVerified = false
	req.ApplicationCount = 0
	writeJSON(w, http.StatusCreated, b.addOpportunityLocked(req))
}

func (b *Backend) handleOpportunityUpdate(w http.ResponseWriter, r *http.Request) {
	var req Opportunity
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.opportunities[pathID(r)]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if o.CreatedBy != requestUserID(r) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	if errs := b.validateOpportunity(req); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	o.Title = req.Title
	o.Description = req.Description
	o.Category = req.Category
	o.Deadline = req.Deadline
	o.Location = req.Location
	o.Organization = req.Organization
	if req.Status != "" {
		o.Status = req.Status
	}
	writeJSON(w, http.StatusOK, o)
}

func (b *Backend) handleOpportunityDelete(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := pathID(r)
	o, ok := b.opportunities[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if o.CreatedBy != requestUserID(r) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	delete(b.opportunities, id)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleCategories(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := append([]Category(nil), b.categories...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// validateOpportunity applies the serializer's field rules. Called with b.mu held.
func (b *Backend) validateOpportunity(o Opportunity) fieldErrors {
	errs := fieldErrors{}
	errs.required("title", o.Title)
	errs.required("description", o.Description)
	errs.required("deadline", o.Deadline)
	errs.required("location", o.Location)
	errs.required("organization", o.Organization)

	switch {
	case o.Category == 0:
		errs.add("category", "This field is required.")
	case !b.hasCategory(o.Category):
		errs.add("category", "Invalid pk - object does not exist.")
	}

	if o.Deadline != "" {
		if _, err := time.Parse(time.DateOnly, o.Deadline); err != nil {
			errs.add("deadline", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		}
	}
	if len(o.Title) > 200 {
		errs.add("title", "Ensure this field has no more than 200 characters.")
	}
	return errs
}
