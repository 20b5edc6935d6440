package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-opportuci/accounts"
	"github.com/jrsteele09/go-opportuci/apiclient"
	"github.com/jrsteele09/go-opportuci/internal/backendfake"
	"github.com/jrsteele09/go-opportuci/internal/utils"
	"github.com/jrsteele09/go-opportuci/opportunities"
)

type command struct {
	summary     string
	needsClient bool
	run         func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"login":         {summary: "Sign in and store the session", needsClient: true, run: cmdLogin},
		"logout":        {summary: "Forget the stored session", needsClient: true, run: cmdLogout},
		"whoami":        {summary: "Show the signed-in user", needsClient: true, run: cmdWhoami},
		"verify":        {summary: "Check the stored access token with the backend", needsClient: true, run: cmdVerify},
		"profile":       {summary: "Update the signed-in user's profile", needsClient: true, run: cmdProfile},
		"password":      {summary: "Change the signed-in user's password", needsClient: true, run: cmdPassword},
		"verify-email":  {summary: "Confirm an email address with the key from the confirmation email", needsClient: true, run: cmdVerifyEmail},
		"ai":            {summary: "recommendations | advice <goals> | interview <id>", needsClient: true, run: cmdAI},
		"opportunities": {summary: "list | get <id> | create | delete <id>", needsClient: true, run: cmdOpportunities},
		"categories":    {summary: "List opportunity categories", needsClient: true, run: cmdCategories},
		"api":           {summary: "Send METHOD PATH [JSON body] and print the response", needsClient: true, run: cmdAPI},
		"serve-fake":    {summary: "Run an in-memory backend for local testing", run: cmdServeFake},
	}
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("OPPORTUCI_PASSWORD"), "account password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *password == "" {
		fmt.Fprint(a.out, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("[login] read password: %w", err)
		}
		*password = strings.TrimSpace(line)
	}

	if _, err := a.client.Login(ctx, apiclient.Credentials{Email: *email, Password: *password}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", *email)
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	a.client.Logout(ctx)
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, _ []string) error {
	me, err := a.accounts.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s> (%s, id %d)\n", me.FullName(), me.Email, me.UserType, me.ID)
	return nil
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(a.out)
	fields := map[string]*string{
		"first-name":  fs.String("first-name", "", "first name"),
		"last-name":   fs.String("last-name", "", "last name"),
		"phone":       fs.String("phone", "", "phone number"),
		"bio":         fs.String("bio", "", "short biography"),
		"city":        fs.String("city", "", "city"),
		"country":     fs.String("country", "", "country"),
		"institution": fs.String("institution", "", "school or university"),
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	// Only flags given on the command line are sent.
	set := map[string]*string{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = utils.Ptr(*fields[f.Name])
	})
	if len(set) == 0 {
		fmt.Fprintln(a.out, "Nothing to update")
		return nil
	}

	me, err := a.accounts.UpdateProfile(ctx, accounts.UserUpdate{
		FirstName:   set["first-name"],
		LastName:    set["last-name"],
		PhoneNumber: set["phone"],
		Bio:         set["bio"],
		City:        set["city"],
		Country:     set["country"],
		Institution: set["institution"],
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s (%s, %s)\n", me.FullName(), me.City, me.Country)
	return nil
}

func cmdPassword(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("password", flag.ContinueOnError)
	fs.SetOutput(a.out)
	var pc accounts.PasswordChange
	fs.StringVar(&pc.OldPassword, "old", "", "current password")
	fs.StringVar(&pc.NewPassword, "new", "", "new password")
	fs.StringVar(&pc.ConfirmPassword, "confirm", "", "new password again (defaults to -new)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if pc.ConfirmPassword == "" {
		pc.ConfirmPassword = pc.NewPassword
	}

	if err := a.accounts.ChangePassword(ctx, pc); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed")
	return nil
}

func cmdVerifyEmail(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: opportuci verify-email <key>")
		return errUsage
	}
	if err := a.accounts.VerifyEmail(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Email verified")
	return nil
}

func cmdAI(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: opportuci ai recommendations | advice <goals> | interview <id>")
		return errUsage
	}

	switch args[0] {
	case "recommendations":
		recs, err := a.ai.Recommendations(ctx)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintln(a.out, "No recommendations yet, complete your profile for personalised suggestions")
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMATCH\tTITLE\tCATEGORY\tWHY")
		for _, r := range recs {
			fmt.Fprintf(tw, "%d\t%d%%\t%s\t%s\t%s\n", r.ID, r.MatchPercent(), r.Title, r.Category, r.MatchReason)
		}
		return tw.Flush()

	case "advice":
		advice, err := a.ai.CareerAdvice(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return printJSON(a.out, advice)

	case "interview":
		id, err := idArg(args[1:])
		if err != nil {
			return err
		}
		prep, err := a.ai.InterviewPrep(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(a.out, prep)

	default:
		return fmt.Errorf("unknown ai subcommand %q", args[0])
	}
}

func cmdVerify(ctx context.Context, a *app, _ []string) error {
	if err := a.client.Verify(ctx, ""); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Token is valid")
	return nil
}

func cmdCategories(ctx context.Context, a *app, _ []string) error {
	cats, err := a.opportunities.Categories(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSLUG\tNAME")
	for _, c := range cats {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.Slug, c.Name)
	}
	return tw.Flush()
}

func cmdOpportunities(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: opportuci opportunities list | get <id> | create [flags] | delete <id>")
		return errUsage
	}

	switch args[0] {
	case "list":
		list, err := a.opportunities.List(ctx)
		if err != nil {
			return err
		}
		printOpportunities(a.out, list, time.Now())
		return nil

	case "get":
		id, err := idArg(args[1:])
		if err != nil {
			return err
		}
		o, err := a.opportunities.Get(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(a.out, o)

	case "create":
		in, err := parseInput(a.out, args[1:])
		if err != nil {
			return err
		}
		o, err := a.opportunities.Create(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created opportunity %d\n", o.ID)
		return nil

	case "delete":
		id, err := idArg(args[1:])
		if err != nil {
			return err
		}
		deleted, err := a.opportunities.Delete(ctx, id)
		if err != nil {
			return err
		}
		if deleted {
			fmt.Fprintf(a.out, "%s Deleted opportunity %d\n", utils.ColourStatus(http.StatusNoContent), id)
		}
		return nil

	default:
		return fmt.Errorf("unknown opportunities subcommand %q", args[0])
	}
}

func cmdAPI(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(a.out, "Usage: opportuci api METHOD PATH [JSON body]")
		return errUsage
	}

	req := apiclient.Request{Method: strings.ToUpper(args[0]), Path: args[1]}
	if len(args) > 2 {
		req.Body = json.RawMessage(args[2])
	}

	resp, err := a.client.Do(ctx, req)
	if resp != nil {
		fmt.Fprintf(a.out, "%s %s %s (%s)\n", utils.ColourMethod(req.Method), req.Path, utils.ColourStatus(resp.StatusCode), resp.Duration.Round(time.Millisecond))
		if len(resp.Body) > 0 {
			fmt.Fprintln(a.out, string(resp.Body))
		}
	}
	return err
}

func cmdServeFake(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve-fake", flag.ContinueOnError)
	fs.SetOutput(a.out)
	addr := fs.String("addr", ":8000", "listen address")
	email := fs.String("email", "demo@opportuci.ci", "seeded user email")
	password := fs.String("password", "Demo2026!", "seeded user password")
	seed := fs.Int("seed", 10, "opportunities to generate for the seeded user")
	accessTTL := fs.Duration("access-ttl", 5*time.Minute, "access token lifetime")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	backend := backendfake.New(
		backendfake.WithLogger(a.logger),
		backendfake.WithAccessTTL(*accessTTL),
		backendfake.WithRotateRefreshTokens(true),
	)
	user := backend.AddUser(*email, *password)
	backend.Seed(user.ID, *seed)

	displayAppname(a.out, a.cfg.GetAppName())
	server := &http.Server{Addr: *addr, Handler: backend, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(server)
	}()
	a.logger.Info().Str("addr", *addr).Str("email", *email).Int("opportunities", *seed).Msgf("Fake backend serving %s", backendfake.APIPrefix)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func parseInput(out io.Writer, args []string) (opportunities.Input, error) {
	fs := flag.NewFlagSet("opportunities create", flag.ContinueOnError)
	fs.SetOutput(out)
	var in opportunities.Input
	fs.StringVar(&in.Title, "title", "", "title")
	fs.StringVar(&in.Description, "description", "", "description")
	fs.IntVar(&in.Category, "category", 0, "category id (see 'opportuci categories')")
	deadline := fs.String("deadline", "", "deadline as YYYY-MM-DD")
	fs.StringVar(&in.Location, "location", "", "location")
	fs.StringVar(&in.Organization, "organization", "", "publishing organization")
	if err := fs.Parse(args); err != nil {
		return in, errUsage
	}

	if *deadline != "" {
		d, err := opportunities.ParseDate(*deadline)
		if err != nil {
			return in, err
		}
		in.Deadline = d
	}
	return in, nil
}

func idArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("an opportunity id is required")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func printOpportunities(w io.Writer, list []opportunities.Opportunity, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDEADLINE\tSTATUS")
	for _, o := range list {
		status := o.Status
		if o.DeadlinePassed(now) {
			status += " (expired)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", o.ID, o.Title, o.Deadline, status)
	}
	_ = tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
