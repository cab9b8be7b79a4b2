package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/shhac/httpspy/internal/app"
	"github.com/shhac/httpspy/internal/domain"
	apperrors "github.com/shhac/httpspy/internal/errors"
	"github.com/shhac/httpspy/internal/inspect"
	"github.com/shhac/httpspy/internal/match"
	"github.com/shhac/httpspy/internal/wait"
)

var commands = map[string]func(*env, []string) error{
	"list":  runList,
	"get":   runGet,
	"clear": runClear,
	"wait":  runWait,
	"serve": runServe,
}

type globals struct {
	config  string
	root    string
	logFile string
	debug   bool
}

func (g *globals) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&g.config, "config", "c", "", "config file (default: ./httpspy.yaml)")
	fs.StringVar(&g.root, "root", "", "storage root shared with the application")
	fs.StringVar(&g.logFile, "log-file", "", `log file ("-" for stderr)`)
	fs.BoolVar(&g.debug, "debug", false, "enable debug logging")
}

type env struct {
	globals
	stdout io.Writer
	stderr io.Writer
}

func (e *env) loadConfig() (*app.Config, error) {
	cfg, err := app.LoadConfig(e.config)
	if err != nil {
		return nil, err
	}
	if e.root != "" {
		cfg.Storage.Root = e.root
	}
	if e.logFile != "" {
		cfg.Log.File = e.logFile
	}
	if e.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// reader opens the shared collections without capture machinery.
func (e *env) reader() (*app.Reader, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewReader(cfg)
}

func (e *env) app() (*app.App, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func (e *env) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// criteriaFlags are shared by list and wait.
type criteriaFlags struct {
	method, host, path, url, pattern string
	headers, queries, bodies         []string
	since                            time.Duration
}

func (c *criteriaFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&c.method, "method", "X", "", "HTTP method")
	fs.StringVar(&c.host, "host", "", "exact host, without port")
	fs.StringVar(&c.path, "path", "", "exact path")
	fs.StringVar(&c.url, "url", "", "exact absolute URL")
	fs.StringVar(&c.pattern, "pattern", "", "regular expression searched in the URL")
	fs.StringArrayVarP(&c.headers, "header", "H", nil, "header criterion Name:Value (repeatable)")
	fs.StringArrayVarP(&c.queries, "query", "q", nil, "query criterion name=value (repeatable)")
	fs.StringArrayVar(&c.bodies, "body", nil, "JSON body criterion path=value (repeatable)")
	fs.DurationVar(&c.since, "since", 0, "only exchanges started within this window")
}

func (c *criteriaFlags) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("method", c.method)
	set("host", c.host)
	set("path", c.path)
	set("url", c.url)
	set("pattern", c.pattern)
	v["header"] = c.headers
	v["query"] = c.queries
	v["body"] = c.bodies
	if c.since > 0 {
		v.Set("since", time.Now().Add(-c.since).UTC().Format(time.RFC3339Nano))
	}
	return v
}

func runList(e *env, args []string) error {
	var cf criteriaFlags
	var (
		limit  int
		order  string
		asc    bool
		asJSON bool
	)
	fs := e.flags("list")
	cf.bind(fs)
	fs.IntVarP(&limit, "limit", "n", 0, "maximum number of exchanges")
	fs.StringVar(&order, "order", "created", "sort by created or modified")
	fs.BoolVar(&asc, "asc", false, "oldest first")
	fs.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	v := cf.values()
	v.Set("order", order)
	v.Set("asc", strconv.FormatBool(asc))
	c, q, err := inspect.ParseQuery(v)
	if err != nil {
		return err
	}
	m, err := c.Compile()
	if err != nil {
		return err
	}

	a, err := e.reader()
	if err != nil {
		return err
	}
	list, err := a.Exchanges().LoadSorted(q)
	if err != nil {
		return err
	}
	list = m.Filter(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	if asJSON {
		return e.printJSON(list)
	}
	return printTable(e.stdout, list)
}

func printTable(w io.Writer, list []domain.Exchange) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMETHOD\tSTATUS\tDURATION\tURL")
	for _, ex := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ex.ID,
			ex.Timestamp.Local().Format("15:04:05.000"),
			ex.Request.Method,
			status(ex),
			duration(ex),
			ex.Request.URL)
	}
	return tw.Flush()
}

func status(ex domain.Exchange) string {
	switch {
	case ex.Error != nil:
		return "error: " + ex.Error.Domain
	case ex.Response != nil:
		return strconv.Itoa(ex.Response.StatusCode)
	default:
		return "pending"
	}
}

func duration(ex domain.Exchange) string {
	if !ex.IsFinal() {
		return "-"
	}
	return ex.Duration().Round(time.Millisecond).String()
}

func runGet(e *env, args []string) error {
	fs := e.flags("get")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return apperrors.ValidationError{Field: "id", Message: "usage: httpspy get <id>"}
	}
	id := fs.Arg(0)

	a, err := e.reader()
	if err != nil {
		return err
	}
	ex, ok, err := a.Exchanges().Retrieve(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("exchange %q not found in %s", id, a.Root().Path)
	}
	return e.printJSON(ex)
}

func runClear(e *env, args []string) error {
	var withContext bool
	fs := e.flags("clear")
	fs.BoolVar(&withContext, "context", false, "also clear the context collection")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := e.reader()
	if err != nil {
		return err
	}
	if withContext {
		err = a.ClearAll()
	} else {
		err = a.Exchanges().Clear()
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "cleared %s\n", a.Root().Path)
	return nil
}

func runWait(e *env, args []string) error {
	var cf criteriaFlags
	var (
		timeout   time.Duration
		absent    bool
		completed bool
		fullBody  bool
		once      bool
	)
	fs := e.flags("wait")
	cf.bind(fs)
	fs.DurationVarP(&timeout, "timeout", "t", 0, "wait budget (default from config)")
	fs.BoolVar(&absent, "absent", false, "succeed only if nothing matches for the whole timeout")
	fs.BoolVar(&completed, "completed", false, "wait for a response or transport error, not just the request")
	fs.BoolVar(&fullBody, "full-body", false, "like --completed, and also wait for the whole response body")
	fs.BoolVar(&once, "once", false, "require exactly one match")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := criteria(&cf)
	if err != nil {
		return err
	}
	var opts []wait.WaitOption
	if timeout > 0 {
		opts = append(opts, wait.Timeout(timeout))
	}
	if cf.since > 0 {
		opts = append(opts, wait.Since(time.Now().Add(-cf.since)))
	}

	a, err := e.reader()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := a.Waiter()
	var ex domain.Exchange
	switch {
	case absent:
		if err := w.AssertNotRequested(ctx, c, opts...); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "no request matching %s\n", c)
		return nil
	case once:
		ex, err = w.WaitForSingleRequest(ctx, c, opts...)
	case fullBody:
		ex, err = w.WaitForResponseBody(ctx, c, opts...)
	case completed:
		ex, err = w.WaitForResponse(ctx, c, opts...)
	default:
		ex, err = w.WaitForRequest(ctx, c, opts...)
	}
	if err != nil {
		return err
	}
	return e.printJSON(ex)
}

func criteria(cf *criteriaFlags) (match.Criteria, error) {
	v := cf.values()
	v.Del("since")
	c, _, err := inspect.ParseQuery(v)
	return c, err
}

func runServe(e *env, args []string) error {
	var addr string
	fs := e.flags("serve")
	fs.StringVar(&addr, "addr", "", "listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := e.app()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = a.Config().Inspect.Addr
	}
	if err := a.Exchanges().Initialize(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := inspect.NewServer(a.Exchanges(), a.Context(), a.Logger(), a.Registry())
	fmt.Fprintf(e.stdout, "serving %s on http://%s\n", a.Root().Path, addr)
	return srv.ListenAndServe(ctx, addr)
}
