package opportunities_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jrsteele09/go-opportuci/apiclient"
	"github.com/jrsteele09/go-opportuci/internal/backendfake"
	"github.com/jrsteele09/go-opportuci/opportunities"
	"github.com/jrsteele09/go-opportuci/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "mariam.traore@example.ci"
	testPassword = "Cocody2026"
)

// testFixture holds all test dependencies
type testFixture struct {
	backend       *backendfake.Backend
	client        *apiclient.Client
	opportunities *opportunities.Service
	user          backendfake.User
	faker         *gofakeit.Faker
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := backendfake.New(backendfake.WithLogger(zerolog.Nop()))
	user := backend.AddUser(testEmail, testPassword)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := apiclient.New(srv.URL+backendfake.APIPrefix, session.NewInMemoryStore(), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = client.Login(context.Background(), apiclient.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	return &testFixture{
		backend:       backend,
		client:        client,
		opportunities: opportunities.New(client),
		user:          user,
		faker:         gofakeit.New(0),
	}
}

func (f *testFixture) input() opportunities.Input {
	return opportunities.Input{
		Title:        f.faker.JobTitle(),
		Description:  f.faker.Sentence(15),
		Category:     2,
		Deadline:     opportunities.NewDate(time.Now().AddDate(0, 1, 0)),
		Location:     f.faker.City(),
		Organization: f.faker.Company(),
	}
}

func TestService_List(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.backend.Seed(f.user.ID, 5)
	other := f.backend.AddUser("autre@example.ci", testPassword)
	f.backend.Seed(other.ID, 3)

	list, err := f.opportunities.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 5)
	for _, o := range list {
		require.NotEmpty(t, o.Title)
		require.False(t, o.Deadline.IsZero())
		require.Equal(t, opportunities.StatusActive, o.Status)
	}

	t.Run("after expiry", func(t *testing.T) {
		f.backend.ExpireAccessTokens()
		list, err := f.opportunities.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 5)
	})
}

func TestService_CRUD(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	in := f.input()
	created, err := f.opportunities.Create(ctx, in)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, in.Title, created.Title)
	require.Equal(t, in.Deadline.String(), created.Deadline.String())
	require.False(t, created.IsVerified)

	got, err := f.opportunities.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created, got)

	in.Title = "Stage développeur Go"
	in.Status = opportunities.StatusClosed
	updated, err := f.opportunities.Update(ctx, created.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Stage développeur Go", updated.Title)
	require.Equal(t, opportunities.StatusClosed, updated.Status)

	deleted, err := f.opportunities.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = f.opportunities.Get(ctx, created.ID)
	require.True(t, apiclient.IsNotFound(err))

	t.Run("delete missing", func(t *testing.T) {
		deleted, err := f.opportunities.Delete(ctx, created.ID)
		require.False(t, deleted)
		require.True(t, apiclient.IsNotFound(err))
	})
}

func TestService_Ownership(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	other := f.backend.AddUser("autre@example.ci", testPassword)
	theirs := f.backend.AddOpportunity(other.ID, backendfake.Opportunity{
		Title:        "Bourse d'excellence",
		Description:  "Bourse pour le master",
		Category:     1,
		Deadline:     "2030-01-31",
		Location:     "Abidjan",
		Organization: "Fondation",
	})

	// Anyone logged in can read it.
	got, err := f.opportunities.Get(ctx, theirs.ID)
	require.NoError(t, err)
	require.Equal(t, "2030-01-31", got.Deadline.String())

	_, err = f.opportunities.Update(ctx, theirs.ID, f.input())
	var ae *apiclient.AuthError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, http.StatusForbidden, ae.StatusCode)

	_, err = f.opportunities.Delete(ctx, theirs.ID)
	require.ErrorAs(t, err, &ae)

	// A 403 is not an expired token.
	require.Zero(t, f.backend.RefreshCalls())
}

func TestService_Validation(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	t.Run("missing fields never reach the backend", func(t *testing.T) {
		before := len(f.backend.Calls("/opportunities/opportunities/"))

		_, err := f.opportunities.Create(ctx, opportunities.Input{Title: "Sans détails"})
		var fve *apiclient.FieldValidationError
		require.ErrorAs(t, err, &fve)
		require.Zero(t, fve.StatusCode)
		for _, field := range []string{"description", "category", "deadline", "location", "organization"} {
			require.Equal(t, "This field is required.", fve.Field(field), field)
		}
		require.Empty(t, fve.Field("title"))
		require.Len(t, f.backend.Calls("/opportunities/opportunities/"), before)
	})

	t.Run("only the deadline missing", func(t *testing.T) {
		in := f.input()
		in.Deadline = opportunities.Date{}
		err := in.Validate()
		var fve *apiclient.FieldValidationError
		require.ErrorAs(t, err, &fve)
		require.Equal(t, map[string][]string{"deadline": {"This field is required."}}, fve.Fields)
	})

	t.Run("unknown category is rejected by the backend", func(t *testing.T) {
		in := f.input()
		in.Category = 99
		_, err := f.opportunities.Create(ctx, in)
		var fve *apiclient.FieldValidationError
		require.ErrorAs(t, err, &fve)
		require.Equal(t, http.StatusBadRequest, fve.StatusCode)
		require.Equal(t, "Invalid pk - object does not exist.", fve.Field("category"))
	})
}

func TestService_Categories(t *testing.T) {
	f := setupTestFixture(t)

	cats, err := f.opportunities.Categories(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cats)
	require.Equal(t, "bourses", cats[0].Slug)
}

func TestOpportunity_DeadlinePassed(t *testing.T) {
	deadline, err := opportunities.ParseDate("2026-06-30")
	require.NoError(t, err)
	o := opportunities.Opportunity{Deadline: deadline}

	require.False(t, o.DeadlinePassed(time.Date(2026, 6, 29, 12, 0, 0, 0, time.UTC)))
	require.False(t, o.DeadlinePassed(time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC)))
	require.True(t, o.DeadlinePassed(time.Date(2026, 7, 1, 0, 0, 1, 0, time.UTC)))

	require.False(t, (&opportunities.Opportunity{}).DeadlinePassed(time.Now()))
}

func TestDate_JSON(t *testing.T) {
	t.Run("date only", func(t *testing.T) {
		var d opportunities.Date
		require.NoError(t, json.Unmarshal([]byte(`"2026-12-01"`), &d))
		require.Equal(t, "2026-12-01", d.String())

		b, err := json.Marshal(d)
		require.NoError(t, err)
		require.JSONEq(t, `"2026-12-01"`, string(b))
	})

	t.Run("timestamp", func(t *testing.T) {
		var d opportunities.Date
		require.NoError(t, json.Unmarshal([]byte(`"2026-12-01T18:30:00+02:00"`), &d))
		require.Equal(t, "2026-12-01", d.String())
	})

	t.Run("null and empty", func(t *testing.T) {
		var d opportunities.Date
		require.NoError(t, json.Unmarshal([]byte(`null`), &d))
		require.True(t, d.IsZero())
		require.NoError(t, json.Unmarshal([]byte(`""`), &d))
		require.True(t, d.IsZero())

		b, err := json.Marshal(d)
		require.NoError(t, err)
		require.Equal(t, "null", string(b))
	})

	t.Run("garbage", func(t *testing.T) {
		var d opportunities.Date
		require.Error(t, json.Unmarshal([]byte(`"demain"`), &d))
	})
}
