package backendfake

import (
	"net/http"

	"github.com/google/uuid"
)

func (b *Backend) handleTokenCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	errs := fieldErrors{}
	errs.required("email", req.Email)
	errs.required("password", req.Password)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.userByEmail(req.Email)
	if u == nil || u.password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}

	access, err := b.issueAccess(u.ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	refresh, err := b.issueRefresh(u.ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

func (b *Backend) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.refreshCalls++
	gate := b.refreshGate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"refresh": {"This field is required."}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refreshFailStatus != 0 {
		writeJSON(w, b.refreshFailStatus, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	userID, err := b.checkToken(req.Refresh, tokenTypeRefresh)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	access, err := b.issueAccess(userID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]string{"access": access}

	if b.rotateRefresh {
		refresh, err := b.issueRefresh(userID)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, err.Error())
			return
		}
		b.blacklistToken(req.Refresh)
		resp["refresh"] = refresh
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleTokenVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"token": {"This field is required."}})
		return
	}

	b.mu.Lock()
	_, accessErr := b.checkToken(req.Token, tokenTypeAccess)
	_, refreshErr := b.checkToken(req.Token, tokenTypeRefresh)
	b.mu.Unlock()

	if accessErr != nil && refreshErr != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := b.User(requestUserID(r))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"email": {"This field is required."}})
		return
	}

	b.mu.Lock()
	// Unknown emails get the same answer so accounts cannot be enumerated.
	if u := b.userByEmail(req.Email); u != nil {
		b.resetTokens[u.ID] = uuid.NewString()
	}
	b.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleResetPasswordConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID         string `json:"uid"`
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	errs := fieldErrors{}
	errs.required("uid", req.UID)
	errs.required("token", req.Token)
	errs.required("new_password", req.NewPassword)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, token := range b.resetTokens {
		if encodeUID(id) != req.UID {
			continue
		}
		if token != req.Token {
			break
		}
		b.users[id].password = req.NewPassword
		delete(b.resetTokens, id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusBadRequest, fieldErrors{"token": {"Invalid token for given user."}})
}

func (b *Backend) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword  string `json:"old_password"`
		NewPassword1 string `json:"new_password1"`
		NewPassword2 string `json:"new_password2"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	errs := fieldErrors{}
	errs.required("old_password", req.OldPassword)
	errs.required("new_password1", req.NewPassword1)
	errs.required("new_password2", req.NewPassword2)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[requestUserID(r)]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if u.password != req.OldPassword {
		errs.add("old_password", "Your old password was entered incorrectly. Please enter it again.")
	}
	if req.NewPassword1 != req.NewPassword2 {
		errs.add("new_password2", "The two password fields didn't match.")
	}
	if len(req.NewPassword1) < 8 {
		errs.add("new_password2", "This password is too short. It must contain at least 8 characters.")
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	u.password = req.NewPassword1
	u.UpdatedAt = b.nowFunc()
	writeDetail(w, http.StatusOK, "New password has been saved.")
}

func (b *Backend) handleEmailVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"key": {"This field is required."}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, key := range b.verifyKeys {
		if key != req.Key {
			continue
		}
		b.users[id].IsVerified = true
		b.users[id].UpdatedAt = b.nowFunc()
		delete(b.verifyKeys, id)
		writeDetail(w, http.StatusOK, "ok")
		return
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}
