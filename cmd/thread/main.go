// thread - консольный клиент блога: показывает ветки комментариев
// и выполняет над ними действия от имени пользователя.
//
//	thread [-url URL] [-user NAME] list [PAGE]
//	thread [-url URL] [-user NAME] show POST
//	thread [-url URL] [-user NAME] reply POST [-parent COMMENT] MESSAGE
//	thread [-url URL] [-user NAME] edit POST COMMENT MESSAGE
//	thread [-url URL] [-user NAME] delete POST COMMENT
//	thread [-url URL] [-user NAME] like POST COMMENT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rtemka/blog/domain"
	"github.com/rtemka/blog/pkg/client"
	"github.com/rtemka/blog/pkg/commentsync"
	"github.com/rtemka/blog/pkg/thread"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// переменные окружения
const (
	urlEnv  = "BLOG_URL"
	userEnv = "BLOG_USER"
)

const dateLayout = "Jan 2, 2006, 3:04 PM"

var errUsage = errors.New("usage: thread [-url URL] [-user NAME] list|show|reply|edit|delete|like ...")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, domain.Message(err))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	// переменные можно найти не только в файле
	_ = godotenv.Load()

	fs := flag.NewFlagSet("thread", flag.ContinueOnError)
	baseURL := fs.String("url", envOr(urlEnv, "http://localhost:8080"), "blog API address")
	user := fs.String("user", os.Getenv(userEnv), "sign in as this user")
	timeout := fs.Duration("timeout", client.DefaultTimeout, "request timeout")
	verbose := fs.Bool("v", false, "log requests to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	logger := zap.NewNop()
	if *verbose {
		logger = zapLogger(os.Stderr)
		defer func() {
			_ = logger.Sync()
		}()
	}

	c, err := client.New(*baseURL, client.WithTimeout(*timeout))
	if err != nil {
		return err
	}

	ctx := context.Background()
	if *user != "" {
		if _, err := c.Login(ctx, *user); err != nil {
			return err
		}
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "list" {
		return list(ctx, c, rest, out)
	}

	if len(rest) == 0 {
		return errUsage
	}
	sync := commentsync.New(c, thread.New(nil), rest[0], logger)
	post, err := sync.Load(ctx)
	if err != nil {
		return err
	}
	rest = rest[1:]

	var a commentsync.Affordance
	switch cmd {
	case "show":
	case "reply":
		rf := flag.NewFlagSet("reply", flag.ContinueOnError)
		parent := rf.String("parent", "", "reply to this comment")
		if err := rf.Parse(rest); err != nil {
			return err
		}
		var parentID *string
		if *parent != "" {
			parentID = parent
		}
		if _, err := sync.Create(ctx, &a, strings.Join(rf.Args(), " "), parentID); err != nil {
			return err
		}
	case "edit":
		if len(rest) < 2 {
			return errUsage
		}
		if err := sync.Update(ctx, &a, rest[0], strings.Join(rest[1:], " ")); err != nil {
			return err
		}
	case "delete":
		if len(rest) != 1 {
			return errUsage
		}
		if err := sync.Delete(ctx, &a, rest[0]); err != nil {
			return err
		}
	case "like":
		if len(rest) != 1 {
			return errUsage
		}
		if _, err := sync.ToggleLike(ctx, &a, rest[0]); err != nil {
			return err
		}
	default:
		return errUsage
	}

	fmt.Fprintf(out, "%s\n\n%s\n\n", post.Title, post.Body)
	render(out, sync.Store().Tree(), 0)
	return nil
}

func list(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	page := 1
	if len(args) > 0 {
		var err error
		if page, err = strconv.Atoi(args[0]); err != nil || page < 1 {
			return errUsage
		}
	}

	p, err := c.Posts(ctx, page)
	if err != nil {
		return err
	}
	for _, s := range p.Posts {
		fmt.Fprintf(out, "%s  %s\n", s.ID, s.Title)
	}
	fmt.Fprintf(out, "page %d of %d\n", p.PageNumber, p.TotalPages)
	return nil
}

// render печатает дерево комментариев с отступом по глубине.
func render(w io.Writer, nodes []thread.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		heart := "♡"
		if n.LikedByMe {
			heart = "♥"
		}
		fmt.Fprintf(w, "%s%s · %s · %s %d [%s]\n",
			indent, n.User.Name, formatDate(n.CreatedAt), heart, n.LikeCount, n.ID)
		for _, line := range strings.Split(n.Message, "\n") {
			fmt.Fprintf(w, "%s  %s\n", indent, line)
		}
		if c := n.Count(); c > 0 && depth == 0 {
			fmt.Fprintf(w, "%s  (%d %s)\n", indent, c, plural(c, "reply", "replies"))
		}
		render(w, n.Replies, depth+1)
	}
}

func formatDate(t time.Time) string {
	return t.Local().Format(dateLayout)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

var encoderCfg = zapcore.EncoderConfig{
	MessageKey: "msg",

	LevelKey:    "level",
	EncodeLevel: zapcore.CapitalLevelEncoder,

	TimeKey:    "time",
	EncodeTime: zapcore.RFC3339TimeEncoder,
}

func zapLogger(w io.Writer) *zap.Logger {
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	))
}
