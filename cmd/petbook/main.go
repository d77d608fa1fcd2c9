package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mazart23/pet-book/internal/app"
	"github.com/Mazart23/pet-book/internal/config"
	"github.com/Mazart23/pet-book/internal/domain"
	"github.com/Mazart23/pet-book/internal/gateway"
	"github.com/Mazart23/pet-book/internal/sqlite"
)

const usage = `usage: petbook <command> [flags]

commands:
  login          log in and remember the session
  logout         forget the session
  whoami         show the logged-in user
  signup         create an account
  posts          list the newest posts (-user to filter by author)
  post           publish a post
  comments       list the newest comments of a post
  comment        comment on a post
  react          toggle your reaction on a post
  notifications  list the newest notifications
  search         find a user (-user) or posts (-content)
  qr             save your pet QR code as PNG
  scan           report a QR code scan
  profile        edit your profile and picture`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", gateway.DisplayMessage(err))
		if domain.IsAuthError(err) {
			fmt.Fprintln(os.Stderr, "hint: run `petbook login`")
		}
		os.Exit(1)
	}
}

type command func(ctx context.Context, a *app.App, args []string) error

var commands = map[string]command{
	"login":         cmdLogin,
	"logout":        cmdLogout,
	"whoami":        cmdWhoami,
	"signup":        cmdSignup,
	"posts":         cmdPosts,
	"post":          cmdPost,
	"comments":      cmdComments,
	"comment":       cmdComment,
	"react":         cmdReact,
	"notifications": cmdNotifications,
	"search":        cmdSearch,
	"qr":            cmdQR,
	"scan":          cmdScan,
	"profile":       cmdProfile,
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	var repo domain.CredentialRepository = &domain.MemoryCredentials{}
	if !cfg.Ephemeral() {
		store, err := sqlite.NewRepository(cfg.SessionPath)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer store.Close()
		repo = store
	}

	ctx := context.Background()
	a := app.New(cfg, repo, logger)
	if err := a.Session().Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return cmd(ctx, a, args[1:])
}

func requireToken(a *app.App) (string, error) {
	token, ok := a.Session().Token()
	if !ok {
		return "", domain.ErrNoCredential
	}
	return token, nil
}

func cmdLogin(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", envOrDefault("PETBOOK_USERNAME", ""), "account username")
	password := fs.String("password", envOrDefault("PETBOOK_PASSWORD", ""), "account password")
	fs.Parse(args)

	if *username == "" || *password == "" {
		return fmt.Errorf("--username and --password are required (or set PETBOOK_USERNAME and PETBOOK_PASSWORD)")
	}

	fmt.Printf("Logging in as %s...\n", *username)
	if err := a.Login(ctx, *username, *password); err != nil {
		return err
	}
	cred := a.Session().Credential()
	if !cred.ExpiresAt.IsZero() {
		fmt.Printf("Logged in until %s\n", cred.ExpiresAt.Local().Format("2006-01-02 15:04"))
	} else {
		fmt.Println("Logged in")
	}
	return nil
}

func cmdLogout(ctx context.Context, a *app.App, _ []string) error {
	if err := a.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func cmdWhoami(ctx context.Context, a *app.App, _ []string) error {
	token, err := requireToken(a)
	if err != nil {
		return err
	}
	user, err := a.Client().Self(ctx, token)
	if err != nil {
		return err
	}
	printUser(user)
	return nil
}

func cmdSignup(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	var req gateway.SignupRequest
	fs.StringVar(&req.Username, "username", "", "username")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.Password, "password", envOrDefault("PETBOOK_PASSWORD", ""), "password")
	fs.StringVar(&req.Phone, "phone", "", "phone number (optional)")
	fs.Parse(args)

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return fmt.Errorf("--username, --email and --password are required")
	}
	if err := a.Client().Signup(ctx, req); err != nil {
		return err
	}
	fmt.Printf("Account %s created; run `petbook login`\n", req.Username)
	return nil
}

func cmdPosts(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("posts", flag.ExitOnError)
	userID := fs.String("user", "", "author user id")
	pages := fs.Int("pages", 1, "number of pages to load")
	fs.Parse(args)

	feed := a.Timeline()
	if *userID != "" {
		feed = a.UserPosts(*userID)
	}
	if err := loadPages(ctx, feed, *pages); err != nil {
		return err
	}
	for _, p := range feed.Items() {
		printPost(p)
	}
	return nil
}

func cmdPost(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	var p domain.NewPost
	images := fs.String("images", "", "comma-separated image URLs")
	fs.StringVar(&p.Content, "content", "", "post text")
	fs.StringVar(&p.Location, "location", "", "where it happened")
	fs.Parse(args)

	if p.Content == "" {
		return fmt.Errorf("--content is required")
	}
	if *images != "" {
		p.Images = strings.Split(*images, ",")
	}

	post, err := a.Timeline().Create(ctx, p)
	if err != nil {
		return err
	}
	fmt.Printf("Post published: %s\n", post.ID)
	return nil
}

func cmdComments(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("comments", flag.ExitOnError)
	postID := fs.String("post", "", "post id")
	pages := fs.Int("pages", 1, "number of pages to load")
	fs.Parse(args)

	if *postID == "" {
		return fmt.Errorf("--post is required")
	}
	feed := a.Comments(*postID)
	if err := loadPages(ctx, feed, *pages); err != nil {
		return err
	}
	for _, c := range feed.Items() {
		fmt.Printf("%s  %-16s %s\n", c.Timestamp, c.User.Username, c.Content)
	}
	return nil
}

func cmdComment(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	postID := fs.String("post", "", "post id")
	content := fs.String("content", "", "comment text")
	fs.Parse(args)

	if *postID == "" || *content == "" {
		return fmt.Errorf("--post and --content are required")
	}
	comment, err := a.Comments(*postID).Create(ctx, domain.NewComment{Content: *content})
	if err != nil {
		return err
	}
	fmt.Printf("Comment added: %s\n", comment.ID)
	return nil
}

func cmdReact(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("react", flag.ExitOnError)
	postID := fs.String("post", "", "post id")
	kind := fs.String("kind", string(domain.ReactionLike), "reaction kind (like or heart); choosing your current kind removes it")
	fs.Parse(args)

	if *postID == "" {
		return fmt.Errorf("--post is required")
	}
	token, err := requireToken(a)
	if err != nil {
		return err
	}
	post, err := a.Client().Post(ctx, token, *postID)
	if err != nil {
		return err
	}

	toggle := a.Reactions(*postID)
	if err := toggle.Load(ctx, post.Reactions); err != nil {
		return err
	}
	if err := toggle.Select(ctx, domain.ReactionKind(*kind)); err != nil {
		return err
	}

	selected := string(toggle.Selected())
	if selected == "" {
		selected = "none"
	}
	counts := toggle.Counts()
	fmt.Printf("Your reaction: %s (like %d, heart %d)\n", selected, counts[domain.ReactionLike], counts[domain.ReactionHeart])
	return nil
}

func cmdNotifications(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("notifications", flag.ExitOnError)
	quantity := fs.Int("n", domain.NotificationPageSize, "number of notifications")
	fs.Parse(args)

	token, err := requireToken(a)
	if err != nil {
		return err
	}
	// one-shot listing; the push-gated feed belongs to petbookd
	list, err := a.Client().Notifications(ctx, token, "", *quantity)
	if err != nil {
		return err
	}
	for _, n := range list {
		fmt.Printf("%s  %s\n", n.Timestamp, describeNotification(n))
	}
	return nil
}

func cmdSearch(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	username := fs.String("user", "", "exact username")
	content := fs.String("content", "", "text to look for in posts")
	fs.Parse(args)

	switch {
	case *username != "":
		user, err := a.Client().UserByUsername(ctx, *username)
		if err != nil {
			return err
		}
		printUser(user)
		return nil
	case *content != "":
		token, err := requireToken(a)
		if err != nil {
			return err
		}
		posts, err := a.Client().SearchPosts(ctx, token, *content, domain.PostPageSize)
		if err != nil {
			return err
		}
		for _, p := range posts {
			printPost(p)
		}
		return nil
	}
	return fmt.Errorf("one of --user or --content is required")
}

func cmdQR(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("qr", flag.ExitOnError)
	out := fs.String("out", "petbook-qr.png", "output PNG file")
	fs.Parse(args)

	token, err := requireToken(a)
	if err != nil {
		return err
	}
	png, err := a.Client().GenerateQR(ctx, token)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, png, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Printf("QR code saved to %s\n", *out)
	return nil
}

func cmdScan(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	userID := fs.String("user", "", "owner user id encoded in the QR code")
	var guest gateway.Guest
	fs.StringVar(&guest.IP, "ip", "", "scanner IP address")
	fs.StringVar(&guest.City, "city", "", "scanner city")
	fs.StringVar(&guest.Latitude, "lat", "", "scanner latitude")
	fs.StringVar(&guest.Longitude, "lon", "", "scanner longitude")
	fs.Parse(args)

	if *userID == "" {
		return fmt.Errorf("--user is required")
	}
	if err := a.Client().ReportScan(ctx, *userID, guest); err != nil {
		return err
	}
	fmt.Println("Scan reported; the owner has been notified")
	return nil
}

func cmdProfile(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	var update gateway.ProfileUpdate
	fs.StringVar(&update.Bio, "bio", "", "new bio")
	fs.StringVar(&update.Email, "email", "", "new email")
	fs.StringVar(&update.Phone, "phone", "", "new phone number")
	picture := fs.String("picture", "", "image file to use as profile picture")
	deletePicture := fs.Bool("delete-picture", false, "remove the profile picture")
	fs.Parse(args)

	token, err := requireToken(a)
	if err != nil {
		return err
	}
	userID := a.Session().Credential().Subject

	if update != (gateway.ProfileUpdate{}) {
		if err := a.Client().UpdateSelf(ctx, token, update); err != nil {
			return err
		}
		fmt.Println("Profile updated")
	}

	switch {
	case *deletePicture:
		if err := a.Client().DeleteProfilePicture(ctx, token, userID); err != nil {
			return err
		}
		fmt.Println("Profile picture removed")
	case *picture != "":
		f, err := os.Open(*picture)
		if err != nil {
			return fmt.Errorf("open picture: %w", err)
		}
		defer f.Close()
		url, err := a.Client().UploadProfilePicture(ctx, token, userID, filepath.Base(*picture), f)
		if err != nil {
			return err
		}
		fmt.Printf("Profile picture uploaded: %s\n", url)
	}

	user, err := a.Client().Self(ctx, token)
	if err != nil {
		return err
	}
	printUser(user)
	return nil
}

type pager interface {
	LoadMore(ctx context.Context) error
	Exhausted() bool
}

func loadPages(ctx context.Context, feed pager, pages int) error {
	for i := 0; i < pages && !feed.Exhausted(); i++ {
		if err := feed.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

func describeNotification(n domain.Notification) string {
	switch n.Type {
	case domain.NotificationComment:
		return fmt.Sprintf("%s commented on %s: %s", who(n.Comment.Username, n.Comment.UserID), n.Comment.PostID, n.Comment.Content)
	case domain.NotificationReaction:
		return fmt.Sprintf("%s reacted %s to %s", who(n.Reaction.Username, n.Reaction.UserID), n.Reaction.ReactionType, n.Reaction.PostID)
	case domain.NotificationScan:
		return fmt.Sprintf("your pet's QR code was scanned in %s (%s, %s)", n.Scan.City, n.Scan.Latitude, n.Scan.Longitude)
	}
	return string(n.Type)
}

func who(username, userID string) string {
	if username != "" {
		return username
	}
	return userID
}

func printUser(u *domain.User) {
	fmt.Printf("%s (%s)\n", u.Username, u.ID)
	if u.Email != "" {
		fmt.Printf("  email: %s\n", u.Email)
	}
	if u.Phone != "" {
		fmt.Printf("  phone: %s\n", u.Phone)
	}
	if u.Bio != "" {
		fmt.Printf("  bio:   %s\n", u.Bio)
	}
	if u.ProfilePictureURL != "" {
		fmt.Printf("  photo: %s\n", u.ProfilePictureURL)
	}
}

func printPost(p domain.Post) {
	fmt.Printf("%s  %s  %-16s %s", p.Timestamp, p.ID, p.User.Username, p.Content)
	if p.Location != "" {
		fmt.Printf("  @ %s", p.Location)
	}
	fmt.Printf("  [like %d, heart %d]\n", p.Reactions[domain.ReactionLike], p.Reactions[domain.ReactionHeart])
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
