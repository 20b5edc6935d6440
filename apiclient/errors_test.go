package apiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-opportuci/apiclient"
	"github.com/jrsteele09/go-opportuci/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestFieldValidationError_BodyShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string][]string
	}{
		{
			name: "field lists",
			body: `{"email": ["Enter a valid email address."], "username": ["This field is required."]}`,
			want: map[string][]string{"email": {"Enter a valid email address."}, "username": {"This field is required."}},
		},
		{
			name: "field string",
			body: `{"confirm_password": "Les mots de passe ne correspondent pas."}`,
			want: map[string][]string{"confirm_password": {"Les mots de passe ne correspondent pas."}},
		},
		{
			name: "nested profile errors",
			body: `{"profile": {"cv": ["Invalid file."]}}`,
			want: map[string][]string{"profile": {"Invalid file."}},
		},
		{
			name: "bare list",
			body: `["Opportunity is closed."]`,
			want: map[string][]string{apiclient.NonFieldErrors: {"Opportunity is closed."}},
		},
		{
			name: "plain text",
			body: `Bad Request`,
			want: map[string][]string{apiclient.NonFieldErrors: {"Bad Request"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newStaticClient(t, http.StatusBadRequest, tc.body)
			_, err := c.Post(context.Background(), "/accounts/users/", map[string]string{})

			var fve *apiclient.FieldValidationError
			require.ErrorAs(t, err, &fve)
			require.Equal(t, http.StatusBadRequest, fve.StatusCode)
			require.Equal(t, tc.want, fve.Fields)
		})
	}
}

func TestStatusError_Detail(t *testing.T) {
	c := newStaticClient(t, http.StatusServiceUnavailable, `{"detail": "Maintenance en cours"}`)
	_, err := c.Get(context.Background(), "/opportunities/categories/", nil)

	var se *apiclient.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	require.Equal(t, "Maintenance en cours", se.Message)
	require.False(t, apiclient.IsNotFound(err))
}

// newStaticClient returns a client whose backend always answers status with body
func newStaticClient(t *testing.T, status int, body string) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := apiclient.New(srv.URL, session.NewInMemoryStore(), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return c
}
