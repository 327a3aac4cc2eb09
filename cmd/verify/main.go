// Command verify checks a route file before it is deployed: the file must
// compile, and each -expect case must route the way it says.
//
//	verify -routes routes.yaml -expect 'ping=pong' -expect 'weather Lisbon=Looking up Lisbon...' -expect 'gibberish'
//
// A case without "=" expects no route to match.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/calamars-bot/calamars-go/internal/bot"
	"github.com/calamars-bot/calamars-go/internal/config"
	"github.com/calamars-bot/calamars-go/internal/message"
	"github.com/calamars-bot/calamars-go/internal/router"
	"github.com/calamars-bot/calamars-go/internal/routes"
)

// Verification results
type verifyResult struct {
	name    string
	passed  bool
	message string
}

// expectations collects repeated -expect flags.
type expectations []string

func (e *expectations) String() string { return strings.Join(*e, ", ") }

func (e *expectations) Set(v string) error {
	*e = append(*e, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("routes", os.Getenv(config.EnvRoutesFile), "Route file to verify")
	var cases expectations
	fs.Var(&cases, "expect", "Routing case as 'input=reply', or 'input' to expect no match (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" {
		_, _ = fmt.Fprintf(out, "no route file: pass -routes or set %s\n", config.EnvRoutesFile)
		return 2
	}

	_, _ = fmt.Fprintln(out, "🔍 Route Table Verification")
	_, _ = fmt.Fprintln(out, "===========================")

	table, err := routes.Load(*path)
	results := []verifyResult{{
		name:    "Route file compiles",
		passed:  err == nil,
		message: loadMessage(len(table), err),
	}}
	if err == nil {
		results = append(results, verifyCases(router.New(table), cases)...)
	}

	_, _ = fmt.Fprintln(out, "\n📊 Verification Results:")
	passedCount, failedCount := 0, 0
	for _, result := range results {
		status := "❌"
		if result.passed {
			status = "✅"
			passedCount++
		} else {
			failedCount++
		}
		_, _ = fmt.Fprintf(out, "%s %s: %s\n", status, result.name, result.message)
	}
	_, _ = fmt.Fprintf(out, "\n📈 Summary: %d passed, %d failed\n", passedCount, failedCount)

	if failedCount > 0 {
		return 1
	}
	return 0
}

func loadMessage(n int, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%d routes", n)
}

// verifyCases routes each case the way the processor would, without NLU
// or a session.
func verifyCases(r *router.Router, cases []string) []verifyResult {
	results := make([]verifyResult, 0, len(cases))
	for _, c := range cases {
		input, want, wantMatch := strings.Cut(c, "=")
		text := strings.Join(strings.Fields(input), " ")
		msg := &message.Message{Text: &text, ChatID: "verify", Platform: message.PlatformTelegram}
		turn := bot.NewTurn(context.Background(), msg, text, nil, nil)

		result, matched := r.Match(text, turn)
		got := render(result)

		res := verifyResult{name: fmt.Sprintf("%q", input)}
		switch {
		case !wantMatch:
			res.passed = !matched
			res.message = "expected no match"
			if matched {
				res.message = fmt.Sprintf("expected no match, got %q", got)
			}
		case !matched:
			res.message = fmt.Sprintf("expected %q, no route matched", want)
		default:
			res.passed = got == want
			res.message = fmt.Sprintf("got %q", got)
			if !res.passed {
				res.message = fmt.Sprintf("expected %q, got %q", want, got)
			}
		}
		results = append(results, res)
	}
	return results
}

// render flattens a route result to the text a user would see.
func render(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, "\n")
	case bot.Reply:
		return strings.Join(v.Texts, "\n")
	default:
		return fmt.Sprint(v)
	}
}
