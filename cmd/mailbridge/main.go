// Package main implements the mailbridge command line client.
//
// Usage:
//
//	mailbridge <command> [flags]
//
// Commands: labels, threads, thread, message, search, read, archive,
// trash, star, send, identities. Connection settings come from the
// MAILBRIDGE_SESSION_URL and MAILBRIDGE_TOKEN environment variables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mailbridge/internal/fastmail"
	"mailbridge/internal/jmap"
	"mailbridge/internal/logging"
	"mailbridge/internal/provider"
)

var logger = logging.New()

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	client, err := connect(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "connect failed", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, client, os.Args[1], os.Args[2:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(2)
		}
		logger.ErrorContext(ctx, "command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*fastmail.Client, error) {
	sessionURL := os.Getenv("MAILBRIDGE_SESSION_URL")
	token := os.Getenv("MAILBRIDGE_TOKEN")
	if sessionURL == "" || token == "" {
		return nil, fmt.Errorf("MAILBRIDGE_SESSION_URL and MAILBRIDGE_TOKEN must be set")
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	session, err := jmap.FetchSession(ctx, httpClient, sessionURL, token)
	if err != nil {
		return nil, err
	}
	return fastmail.New(session, token,
		fastmail.WithLogger(logger),
		fastmail.WithHTTPClient(httpClient),
	)
}

func run(ctx context.Context, client *fastmail.Client, command string, args []string) error {
	switch command {
	case "labels", "mailboxes":
		labels, err := client.GetLabels(ctx)
		if err != nil {
			return err
		}
		return printJSON(labels)

	case "threads":
		fs := flag.NewFlagSet("threads", flag.ContinueOnError)
		mailbox := fs.String("mailbox", "", "mailbox id to list (all mailboxes when empty)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		threads, err := client.GetThreads(ctx, *mailbox)
		if err != nil {
			return err
		}
		return printJSON(threads)

	case "thread":
		fs := flag.NewFlagSet("thread", flag.ContinueOnError)
		id := fs.String("id", "", "thread id (required)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("thread: -id is required")
		}
		thread, err := client.GetThread(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(thread)

	case "message":
		fs := flag.NewFlagSet("message", flag.ContinueOnError)
		id := fs.String("id", "", "message id (required)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("message: -id is required")
		}
		message, err := client.GetMessage(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(message)

	case "search":
		fs := flag.NewFlagSet("search", flag.ContinueOnError)
		query := fs.String("query", "", "full text query")
		token := fs.String("page", "", "continuation token from a previous page")
		limit := fs.Int("limit", 20, "page size")
		if err := fs.Parse(args); err != nil {
			return err
		}
		page, err := client.GetMessagesWithPagination(ctx, provider.PageRequest{
			Query:     *query,
			PageToken: *token,
			MaxItems:  *limit,
		})
		if err != nil {
			return err
		}
		return printJSON(page)

	case "read":
		return eachMessage(ctx, args, client.MarkRead)

	case "archive":
		return eachMessage(ctx, args, client.ArchiveMessage)

	case "trash":
		return eachMessage(ctx, args, client.TrashMessage)

	case "star":
		return eachMessage(ctx, args, client.StarMessage)

	case "send":
		fs := flag.NewFlagSet("send", flag.ContinueOnError)
		to := fs.String("to", "", "comma-separated recipients (required)")
		subject := fs.String("subject", "", "message subject")
		body := fs.String("body", "", "plain text body")
		from := fs.String("from", "", "sending identity address")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *to == "" {
			return fmt.Errorf("send: -to is required")
		}
		result, err := client.SendEmail(ctx, provider.DraftRequest{
			To:       strings.Split(*to, ","),
			Subject:  *subject,
			TextBody: *body,
			From:     *from,
		})
		if err != nil {
			return err
		}
		return printJSON(result)

	case "identities":
		identities, err := client.Identities(ctx)
		if err != nil {
			return err
		}
		return printJSON(identities)
	}

	usage()
	return fmt.Errorf("unknown command %q", command)
}

// eachMessage applies op to every message id given as an argument.
func eachMessage(ctx context.Context, ids []string, op func(context.Context, string) error) error {
	if len(ids) == 0 {
		return fmt.Errorf("at least one message id is required")
	}
	for _, id := range ids {
		if err := op(ctx, id); err != nil {
			return fmt.Errorf("message %s: %w", id, err)
		}
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: mailbridge <command> [flags]

commands:
  labels                        list mailboxes as labels
  threads [-mailbox <id>]       list threads, optionally scoped to a mailbox
  thread -id <id>               show one thread
  message -id <id>              show one message
  search [-query q] [-page t]   search messages with pagination
  read <message-id>...          mark messages read
  archive <message-id>...       archive messages
  trash <message-id>...         trash messages
  star <message-id>...          star messages
  send -to a,b [-subject s] [-body b] [-from f]
  identities                    list sending identities`)
}
