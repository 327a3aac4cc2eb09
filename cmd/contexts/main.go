// Command contexts inspects and edits stored chat contexts using the same
// store settings as the server.
//
//	contexts -get telegram:42
//	contexts -find step=checkout
//	contexts -remove telegram:42
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/calamars-bot/calamars-go/internal/config"
	"github.com/calamars-bot/calamars-go/internal/contextstore"
	"github.com/calamars-bot/calamars-go/internal/logger"
)

const toolTimeout = 30 * time.Second

// CLI flags
type options struct {
	get    string
	find   string
	remove string
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("contexts", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.get, "get", "", "Print the context with this id")
	fs.StringVar(&opts.find, "find", "", "Print contexts whose property matches, as key=value (value may be JSON)")
	fs.StringVar(&opts.remove, "remove", "", "Delete the context with this id")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	set := 0
	for _, v := range []string{opts.get, opts.find, opts.remove} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return options{}, errors.New("exactly one of -get, -find or -remove is required")
	}
	return opts, nil
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.LoadForMode(config.ToolMode)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log := logger.NewWithWriter(cfg.LogLevel, os.Stderr).WithModule("contexts")

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	store, err := contextstore.Open(ctx, cfg, nil)
	if err != nil {
		log.WithError(err).Error("Failed to open context store")
		return 1
	}
	defer func() { _ = store.Close() }()
	log.WithField("backend", cfg.Store.Kind).Debug("Context store opened")

	if err := run(ctx, store, opts, os.Stdout); err != nil {
		log.WithError(err).Error("Command failed")
		return 1
	}
	return 0
}

func run(ctx context.Context, store contextstore.Store, opts options, out io.Writer) error {
	switch {
	case opts.get != "":
		rec, err := store.Get(ctx, opts.get)
		if err != nil {
			return err
		}
		if len(rec) == 0 {
			return fmt.Errorf("context %q not found", opts.get)
		}
		return printJSON(out, rec)

	case opts.find != "":
		key, raw, ok := strings.Cut(opts.find, "=")
		if !ok || key == "" {
			return fmt.Errorf("-find wants key=value, got %q", opts.find)
		}
		recs, err := store.FindByProp(ctx, key, parseValue(raw))
		if err != nil {
			return err
		}
		if recs == nil {
			recs = []contextstore.Record{}
		}
		return printJSON(out, recs)

	default:
		id, err := store.Remove(ctx, opts.remove)
		if err != nil {
			return err
		}
		if id == "" {
			return fmt.Errorf("context %q not found", opts.remove)
		}
		_, err = fmt.Fprintf(out, "removed %s\n", id)
		return err
	}
}

// parseValue reads raw as a JSON literal so numbers and booleans compare
// like stored values; anything else is a plain string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
