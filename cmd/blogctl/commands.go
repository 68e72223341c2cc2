package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-blog/pkg/config"
	"github.com/tendant/simple-blog/pkg/engagement"
	"github.com/tendant/simple-blog/pkg/mediastore"
	"github.com/tendant/simple-blog/pkg/mediastore/scan"
	"github.com/tendant/simple-blog/pkg/mediastore/sniff"
)

var errUsage = errors.New("invalid usage")

type cli struct {
	core *config.Core
	out  io.Writer
}

type commandFunc func(c *cli, ctx context.Context, args []string) error

var commands = map[string]commandFunc{
	"migrate": (*cli).migrate,
	"put":     (*cli).put,
	"update":  (*cli).update,
	"get":     (*cli).get,
	"cat":     (*cli).cat,
	"rm":      (*cli).rm,
	"ls":      (*cli).list,
	"safe":    (*cli).safe,
	"scan":    (*cli).scan,
	"post":    (*cli).post,
	"hit":     (*cli).hit,
	"like":    (*cli).like,
	"stats":   (*cli).stats,
	"top":     (*cli).top,
	"tag":     (*cli).tag,
	"tr":      (*cli).translate,
	"attach":  (*cli).attach,
	"detach":  (*cli).detach,
	"tags":    (*cli).tags,
	"resolve": (*cli).resolve,
}

// parseArgs parses flags placed anywhere among the positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%v: %w", err, errUsage)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func expectArgs(args []string, n int, form string) error {
	if len(args) != n {
		return fmt.Errorf("expected %s: %w", form, errUsage)
	}
	return nil
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func (c *cli) migrate(ctx context.Context, args []string) error {
	if c.core.Pool == nil {
		fmt.Fprintln(c.out, "Memory database configured, nothing to migrate")
		return nil
	}
	fmt.Fprintln(c.out, "Database schema is up to date")
	return nil
}

func (c *cli) put(ctx context.Context, args []string) error {
	fs := newFlags("put")
	uploader := fs.String("uploader", os.Getenv("USER"), "uploader recorded on the object")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := expectArgs(args, 2, "put <name> <file>"); err != nil {
		return err
	}
	data, err := readInput(args[1])
	if err != nil {
		return err
	}
	obj, err := c.core.Media.Create(ctx, args[0], data, *uploader)
	if err != nil {
		return err
	}
	return c.printObject(obj)
}

func (c *cli) update(ctx context.Context, args []string) error {
	if err := expectArgs(args, 2, "update <name> <file>"); err != nil {
		return err
	}
	data, err := readInput(args[1])
	if err != nil {
		return err
	}
	obj, err := c.core.Media.UpdateContent(ctx, args[0], data)
	if err != nil {
		return err
	}
	return c.printObject(obj)
}

func (c *cli) get(ctx context.Context, args []string) error {
	if err := expectArgs(args, 1, "get <name>"); err != nil {
		return err
	}
	obj, err := c.core.Media.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return c.printObject(obj)
}

func (c *cli) printObject(obj *mediastore.Object) error {
	return c.printJSON(obj)
}

func (c *cli) cat(ctx context.Context, args []string) error {
	if err := expectArgs(args, 1, "cat <name>"); err != nil {
		return err
	}
	rc, _, err := c.core.Media.Open(ctx, args[0])
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(c.out, rc)
	return err
}

func (c *cli) rm(ctx context.Context, args []string) error {
	if err := expectArgs(args, 1, "rm <name>"); err != nil {
		return err
	}
	return c.core.Media.Delete(ctx, args[0])
}

func (c *cli) list(ctx context.Context, args []string) error {
	fs := newFlags("ls")
	uploader := fs.String("uploader", "", "only objects of this uploader")
	unchecked := fs.Bool("unchecked", false, "only objects not yet safety checked")
	limit := fs.Int("limit", 100, "maximum results")
	offset := fs.Int("offset", 0, "pagination offset")
	useJSON := fs.Bool("json", false, "output as JSON")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	req := mediastore.ListObjectsRequest{Uploader: *uploader, Limit: *limit, Offset: *offset}
	if *unchecked {
		checked := false
		req.SafetyChecked = &checked
	}
	objs, err := c.core.Media.List(ctx, req)
	if err != nil {
		return err
	}
	if *useJSON {
		return c.printJSON(objs)
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCONTENT TYPE\tSIZE\tUPLOADER\tCHECKED\tMODIFIED")
	for _, obj := range objs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\t%s\n",
			obj.Name, obj.ContentType, obj.SizeBytes, obj.Uploader, obj.SafetyChecked,
			obj.ModifiedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (c *cli) safe(ctx context.Context, args []string) error {
	if len(args) != 1 && len(args) != 2 {
		return fmt.Errorf("expected safe <name> [true|false]: %w", errUsage)
	}
	checked := true
	if len(args) == 2 {
		v, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid flag value %q: %w", args[1], errUsage)
		}
		checked = v
	}
	obj, err := c.core.Media.SetSafetyChecked(ctx, args[0], checked)
	if err != nil {
		return err
	}
	return c.printObject(obj)
}

// denyCheck rejects objects whose sniffed content type starts with one of
// the denied prefixes.
func denyCheck(denied []string) scan.CheckFunc {
	return func(ctx context.Context, obj *mediastore.Object, r io.Reader) (bool, error) {
		head := make([]byte, sniff.Limit)
		n, err := io.ReadFull(r, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return false, err
		}
		detected := sniff.Detect(head[:n])
		for _, prefix := range denied {
			if strings.HasPrefix(detected, prefix) || strings.HasPrefix(obj.ContentType, prefix) {
				return false, nil
			}
		}
		return true, nil
	}
}

func (c *cli) scan(ctx context.Context, args []string) error {
	fs := newFlags("scan")
	deny := fs.String("deny", "application/x-msdownload,application/x-elf,application/x-mach-binary",
		"comma separated content type prefixes to reject")
	workers := fs.Int("workers", 1, "objects checked concurrently")
	batch := fs.Int("batch", 100, "objects listed per page")
	dryRun := fs.Bool("dry-run", false, "only count unchecked objects")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	var denied []string
	for _, p := range strings.Split(*deny, ",") {
		if p = strings.TrimSpace(p); p != "" {
			denied = append(denied, p)
		}
	}

	unchecked := false
	scanner := scan.New(c.core.Media, c.core.Logger)
	result, err := scanner.Scan(ctx, scan.ScanOptions{
		Filters:   mediastore.ListObjectsRequest{SafetyChecked: &unchecked},
		Processor: scan.NewSafetyMarker(c.core.Media, denyCheck(denied)),
		BatchSize: *batch,
		Workers:   *workers,
		DryRun:    *dryRun,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Found:     %d\n", result.TotalFound)
	fmt.Fprintf(c.out, "Checked:   %d\n", result.TotalProcessed)
	fmt.Fprintf(c.out, "Rejected:  %d\n", result.TotalFailed)
	for _, name := range result.FailedNames {
		fmt.Fprintf(c.out, "  %s\n", name)
	}
	return nil
}

func parsePostID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid post id %q: %w", s, errUsage)
	}
	return id, nil
}

func (c *cli) post(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("expected post <title>: %w", errUsage)
	}
	post, err := c.core.Ledger.CreatePost(ctx, strings.Join(args, " "), time.Now())
	if err != nil {
		return err
	}
	return c.printJSON(post)
}

func (c *cli) hit(ctx context.Context, args []string) error {
	return c.record(ctx, engagement.KindHit, args)
}

func (c *cli) like(ctx context.Context, args []string) error {
	return c.record(ctx, engagement.KindLike, args)
}

func (c *cli) record(ctx context.Context, kind engagement.Kind, args []string) error {
	if err := expectArgs(args, 2, fmt.Sprintf("%s <post-id> <address>", kind)); err != nil {
		return err
	}
	id, err := parsePostID(args[0])
	if err != nil {
		return err
	}

	var counted bool
	switch kind {
	case engagement.KindLike:
		counted, err = c.core.Ledger.RecordLike(ctx, id, args[1], time.Now())
	default:
		counted, err = c.core.Ledger.RecordHit(ctx, id, args[1], time.Now())
	}
	if err != nil {
		return err
	}
	if !counted {
		fmt.Fprintf(c.out, "Duplicate %s ignored\n", kind)
		return nil
	}
	fmt.Fprintf(c.out, "Recorded %s\n", kind)
	return nil
}

func (c *cli) stats(ctx context.Context, args []string) error {
	if err := expectArgs(args, 1, "stats <post-id>"); err != nil {
		return err
	}
	id, err := parsePostID(args[0])
	if err != nil {
		return err
	}
	post, err := c.core.Ledger.GetPost(ctx, id)
	if err != nil {
		return err
	}
	hitEvents, err := c.core.Ledger.EventCount(ctx, id, engagement.KindHit)
	if err != nil {
		return err
	}
	likeEvents, err := c.core.Ledger.EventCount(ctx, id, engagement.KindLike)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Post:        %s\n", post.Title)
	fmt.Fprintf(c.out, "Hits:        %d (%d events)\n", post.HitCount, hitEvents)
	fmt.Fprintf(c.out, "Likes:       %d (%d events)\n", post.LikeCount, likeEvents)
	fmt.Fprintf(c.out, "Recent:      %t\n", c.core.Ledger.IsRecentPost(post, time.Now()))
	return nil
}

func (c *cli) top(ctx context.Context, args []string) error {
	fs := newFlags("top")
	kind := fs.String("kind", string(engagement.KindHit), "hit or like")
	limit := fs.Int("limit", engagement.DefaultTopPostsLimit, "maximum results")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	posts, err := c.core.Ledger.TopPosts(ctx, engagement.Kind(*kind), *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tHITS\tLIKES\tCREATED")
	for _, p := range posts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", p.ID, p.Title, p.HitCount, p.LikeCount, p.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (c *cli) tag(ctx context.Context, args []string) error {
	if err := expectArgs(args, 1, "tag <identifier>"); err != nil {
		return err
	}
	tag, err := c.core.Tags.CreateTag(ctx, args[0])
	if err != nil {
		return err
	}
	return c.printJSON(tag)
}

func (c *cli) translate(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("expected tr <identifier> <lang> <name>: %w", errUsage)
	}
	tag, err := c.core.Tags.GetTag(ctx, args[0])
	if err != nil {
		return err
	}
	if err := c.core.Tags.SetTranslation(ctx, tag.ID, args[1], strings.Join(args[2:], " ")); err != nil {
		return err
	}
	trs, err := c.core.Tags.Translations(ctx, tag.ID)
	if err != nil {
		return err
	}
	return c.printJSON(trs)
}

func (c *cli) attach(ctx context.Context, args []string) error {
	if err := expectArgs(args, 2, "attach <post-id> <identifier>"); err != nil {
		return err
	}
	id, err := parsePostID(args[0])
	if err != nil {
		return err
	}
	if _, err := c.core.Ledger.GetPost(ctx, id); err != nil {
		return err
	}
	tag, err := c.core.Tags.GetTag(ctx, args[1])
	if err != nil {
		return err
	}
	return c.core.Tags.AttachTag(ctx, id, tag.ID)
}

func (c *cli) detach(ctx context.Context, args []string) error {
	if err := expectArgs(args, 2, "detach <post-id> <identifier>"); err != nil {
		return err
	}
	id, err := parsePostID(args[0])
	if err != nil {
		return err
	}
	tag, err := c.core.Tags.GetTag(ctx, args[1])
	if err != nil {
		return err
	}
	return c.core.Tags.DetachTag(ctx, id, tag.ID)
}

func (c *cli) tags(ctx context.Context, args []string) error {
	fs := newFlags("tags")
	lang := fs.String("lang", "", "show display names in this language")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := expectArgs(args, 1, "tags <post-id>"); err != nil {
		return err
	}
	id, err := parsePostID(args[0])
	if err != nil {
		return err
	}
	if *lang == "" {
		csv, err := c.core.Tags.TagsAsCSV(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, csv)
		return nil
	}

	list, err := c.core.Tags.Tags(ctx, id)
	if err != nil {
		return err
	}
	for _, tag := range list {
		fmt.Fprintf(c.out, "%s\t%s\n", tag.Identifier, c.core.Tags.Resolve(ctx, tag, *lang))
	}
	return nil
}

func (c *cli) resolve(ctx context.Context, args []string) error {
	if err := expectArgs(args, 2, "resolve <identifier> <lang>"); err != nil {
		return err
	}
	tag, err := c.core.Tags.GetTag(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, c.core.Tags.Resolve(ctx, *tag, args[1]))
	return nil
}
