package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pribylovaa/go-cheffrey-client/internal/media"
	"github.com/pribylovaa/go-cheffrey-client/internal/models"
	"github.com/pribylovaa/go-cheffrey-client/internal/shopping"
)

var (
	errUsage       = errors.New("usage")
	errNotLoggedIn = errors.New("not logged in: run `cheffrey login`")
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":        {"login -email E [-password P]", cmdLogin},
	"logout":       {"logout", cmdLogout},
	"register":     {"register -email E [-password P]", cmdRegister},
	"whoami":       {"whoami", cmdWhoami},
	"explore":      {"explore [-pages N] [-refresh]", cmdExplore},
	"search":       {"search QUERY...", cmdSearch},
	"list":         {"list show|count|add ID|remove ID|toggle ID|clear", cmdList},
	"favorites":    {"favorites show|add ID|remove ID|toggle ID", cmdFavorites},
	"cookbook":     {"cookbook show|add -title T [-ingredients a,b]|remove ID", cmdCookbook},
	"cooked":       {"cooked show|submit ID...", cmdCooked},
	"shopping":     {"shopping [-dict FILE] [-columns N] [-bought a,b]", cmdShopping},
	"password":     {"password change|forgot|reset [flags]", cmdPassword},
	"verify-email": {"verify-email", cmdVerifyEmail},
	"photo":        {"photo [-extract] FILE", cmdPhoto},
	"watch":        {"watch", cmdWatch},
}

// dispatch выполняет подкоманду args[0].
func dispatch(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	if err := cmd.run(ctx, a, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("%w: cheffrey %s", err, cmd.usage)
		}
		return err
	}

	return nil
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: cheffrey [-config FILE] COMMAND [ARGS]")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	email, password, err := credentialFlags("login", args)
	if err != nil {
		return err
	}

	s, err := a.session.Login(ctx, email, password)
	if err != nil {
		return err
	}

	fmt.Printf("logged in as %s\n", s.Claims.Email)
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	return a.session.Logout(ctx)
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	email, password, err := credentialFlags("register", args)
	if err != nil {
		return err
	}

	s, err := a.session.Register(ctx, email, password)
	if err != nil {
		return err
	}

	fmt.Printf("registered and logged in as %s\n", s.Claims.Email)
	return nil
}

func cmdWhoami(ctx context.Context, a *app, _ []string) error {
	s := a.session.Current()
	if s == nil {
		return errNotLoggedIn
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", s.Claims.ID)
	fmt.Fprintf(w, "email\t%s\n", s.Claims.Email)
	fmt.Fprintf(w, "verified\t%t\n", s.Claims.EmailVerified)
	if s.Claims.HasExpiry() {
		fmt.Fprintf(w, "expires\t%s\n", s.Claims.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "expired\t%t\n", a.session.IsTokenExpired(ctx, a.cfg.Session.ExpiryBuffer))

	return w.Flush()
}

func cmdExplore(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("explore", flag.ContinueOnError)
	pages := fs.Int("pages", 1, "pages to load")
	refresh := fs.Bool("refresh", false, "reshuffle the feed first")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *refresh {
		if err := a.api.RefreshExplore(ctx); err != nil {
			return err
		}
	}

	recipes, err := a.api.LoadPages(ctx, 1, *pages)
	if err != nil {
		return err
	}

	return printRecipes(recipes)
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	recipes, err := a.api.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	return printRecipes(recipes)
}

func cmdList(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "show":
		recipes, err := a.api.RecipeList(ctx)
		if err != nil {
			return err
		}
		return printRecipes(recipes)
	case "count":
		n, err := a.api.RecipeListCount(ctx)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	case "clear":
		return a.api.ClearRecipeList(ctx)
	case "add":
		return withID(args[1:], func(id int64) error { return a.api.AddToRecipeList(ctx, id) })
	case "remove":
		return withID(args[1:], func(id int64) error { return a.api.RemoveFromRecipeList(ctx, id) })
	case "toggle":
		return withID(args[1:], func(id int64) error { return a.api.ToggleRecipeInList(ctx, id) })
	default:
		return errUsage
	}
}

func cmdFavorites(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "show":
		recipes, err := a.api.Favorites(ctx)
		if err != nil {
			return err
		}
		return printRecipes(recipes)
	case "add":
		return withID(args[1:], func(id int64) error { return a.api.AddToFavorites(ctx, id) })
	case "remove":
		return withID(args[1:], func(id int64) error { return a.api.RemoveFromFavorites(ctx, id) })
	case "toggle":
		return withID(args[1:], func(id int64) error { return a.api.ToggleFavorite(ctx, id) })
	default:
		return errUsage
	}
}

func cmdCookbook(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "show":
		recipes, err := a.api.Cookbook(ctx)
		if err != nil {
			return err
		}
		return printRecipes(recipes)
	case "add":
		fs := flag.NewFlagSet("cookbook add", flag.ContinueOnError)
		title := fs.String("title", "", "recipe title")
		ingredients := fs.String("ingredients", "", "comma-separated ingredients")
		image := fs.String("image-url", "", "photo URL (see `cheffrey photo`)")
		public := fs.Bool("public", false, "share the recipe")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		return a.api.AddToCookbook(ctx, models.Recipe{
			Title:       *title,
			Ingredients: splitList(*ingredients),
			ImageURL:    *image,
			IsPublic:    *public,
		})
	case "remove":
		return withID(args[1:], func(id int64) error { return a.api.RemoveFromCookbook(ctx, id) })
	default:
		return errUsage
	}
}

func cmdCooked(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "show":
		recipes, err := a.api.CookedRecipes(ctx)
		if err != nil {
			return err
		}
		return printRecipes(recipes)
	case "submit":
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}
		return a.api.SubmitCookedRecipes(ctx, ids)
	default:
		return errUsage
	}
}

func cmdShopping(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("shopping", flag.ContinueOnError)
	dictPath := fs.String("dict", "", "ingredient→category JSON (default: built-in)")
	columns := fs.Int("columns", 3, "number of columns")
	bought := fs.String("bought", "", "comma-separated items already bought")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	dict := shopping.DefaultDictionary()
	if *dictPath != "" {
		d, err := shopping.LoadDictionaryFile(*dictPath)
		if err != nil {
			return err
		}
		dict = d
	}

	recipes, err := a.api.RecipeList(ctx)
	if err != nil {
		return err
	}

	list := shopping.Build(recipes, dict)
	list.MarkBought(splitList(*bought)...)

	for i, col := range list.Columns(*columns) {
		if len(col) == 0 {
			continue
		}
		fmt.Printf("== column %d ==\n", i+1)
		for _, c := range col {
			fmt.Printf("%s:\n", c.Name)
			for _, it := range c.Items {
				fmt.Printf("  - %s\n", it)
			}
		}
	}

	return nil
}

func cmdPassword(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	fs := flag.NewFlagSet("password "+args[0], flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	current := fs.String("current", "", "current password")
	next := fs.String("new", "", "new password")
	code := fs.String("code", "", "verification code from the email")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}

	switch args[0] {
	case "change":
		return a.session.ChangePassword(ctx, *current, *next)
	case "forgot":
		return a.session.SendForgotPasswordEmail(ctx, *email)
	case "reset":
		return a.session.ChangeForgotPassword(ctx, models.ResetPassword{
			Email:              *email,
			VerificationCode:   *code,
			NewPassword:        *next,
			ConfirmNewPassword: *next,
		})
	default:
		return errUsage
	}
}

func cmdVerifyEmail(ctx context.Context, a *app, _ []string) error {
	return a.session.SendVerificationEmail(ctx)
}

// cmdPhoto загружает фото рецепта в объектное хранилище (если настроено)
// и, с -extract, отправляет его на распознавание.
func cmdPhoto(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("photo", flag.ContinueOnError)
	extract := fs.Bool("extract", false, "extract recipe info from the photo")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	s := a.session.Current()
	if s == nil {
		return errNotLoggedIn
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	if a.cfg.S3.Endpoint != "" {
		up, err := media.New(ctx, a.cfg)
		if err != nil {
			return err
		}
		contentType := http.DetectContentType(data)
		p, err := up.Upload(ctx, s.Claims.ID, contentType, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return err
		}
		fmt.Printf("uploaded %s\n", p.Key)
		if p.URL != "" {
			fmt.Printf("url %s\n", p.URL)
		}
	} else if !*extract {
		return media.ErrNotConfigured
	}

	if *extract {
		r, err := a.api.ExtractRecipeInfo(ctx, [][]byte{data})
		if err != nil {
			return err
		}
		fmt.Printf("title: %s\n", r.Title)
		for _, ing := range r.Ingredients {
			fmt.Printf("  - %s\n", ing)
		}
	}

	return nil
}

func credentialFlags(name string, args []string) (email, password string, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&email, "email", "", "account email")
	fs.StringVar(&password, "password", "", "password (default: $CHEFFREY_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return "", "", errUsage
	}

	if password == "" {
		password = os.Getenv("CHEFFREY_PASSWORD")
	}

	return email, password, nil
}

func withID(args []string, fn func(id int64) error) error {
	if len(args) != 1 {
		return errUsage
	}

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	return fn(ids[0])
}

func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errUsage
	}

	ids := make([]int64, 0, len(args))
	for _, s := range args {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad recipe id %q", errUsage, s)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func printRecipes(recipes []models.Recipe) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTIME\tLIST\tFAV")
	for _, r := range recipes {
		fmt.Fprintf(w, "%d\t%s\t%d\t%t\t%t\n", r.ID, r.Title, r.TotalTime, r.InList, r.InFavorites)
	}

	return w.Flush()
}
