// Command coursechat-cli is an interactive terminal client for a coursechat server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/campusify/coursechat/internal/client"
	"github.com/campusify/coursechat/internal/domain/entities"
)

var (
	serverURL  = flag.String("server", "http://localhost:5001", "coursechat server URL")
	userID     = flag.String("user", os.Getenv("USER"), "User ID that owns the session")
	year       = flag.String("year", "", "Academic year, e.g. \"2nd Year\"")
	semester   = flag.String("semester", "", "Semester, e.g. \"1st Semester\"")
	subject    = flag.String("subject", "", "Subject name")
	regulation = flag.String("regulation", "", "Regulation code, e.g. R20")
	units      = flag.String("units", "", "Unit, e.g. \"2nd unit\"")
	chatID     = flag.String("chat", "", "Resume an existing chat instead of starting one")
	timeout    = flag.Duration("timeout", 150*time.Second, "Per-request timeout")
)

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
)

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := client.New(*serverURL, *timeout)

	id := *chatID
	if id == "" {
		summary, err := c.StartChat(ctx, entities.SessionFilter{
			Year:       *year,
			Semester:   *semester,
			Subject:    *subject,
			Regulation: *regulation,
			Unit:       *units,
		}, *userID)
		if err != nil {
			fmt.Fprintln(os.Stderr, red("Could not start chat: "+describe(err)))
			os.Exit(1)
		}
		id = summary.SessionID
		fmt.Printf("%s %s (%s)\n", boldGreen("Started chat on"), summary.Subject, summary.Regulation)
	}

	fmt.Printf("Chat ID: %s\n", boldCyan(id))
	fmt.Println("Ask a question and press Enter. /history shows the transcript, /sessions lists your chats, /materials lists matching course material, exit quits.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch {
		case input == "":
			continue
		case input == "exit" || input == "/quit":
			return
		case input == "/history":
			printHistory(ctx, c, id)
			continue
		case input == "/sessions":
			printSessions(ctx, c)
			continue
		case input == "/materials":
			query := entities.MaterialQuery{Year: *year, Semester: *semester, Subject: *subject, Units: *units}
			if err := printMaterials(ctx, os.Stdout, c, query); err != nil {
				fmt.Fprintln(os.Stderr, red("Error: "+describe(err)))
			}
			continue
		}

		answer, err := c.Ask(ctx, id, input)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintln(os.Stderr, red("Error: "+describe(err)))
			continue
		}

		label := boldCyan("Campusify Bot: ")
		if answer.Refused {
			label = yellow("Campusify Bot: ")
		}
		fmt.Println(label + answer.Response)
		fmt.Println()
	}
}

func printHistory(ctx context.Context, c *client.Client, id string) {
	history, err := c.History(ctx, id, *userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("Error: "+describe(err)))
		return
	}
	if len(history.Messages) == 0 {
		fmt.Println(yellow("No messages yet."))
		return
	}
	for _, m := range history.Messages {
		if m.Role == entities.RoleUser {
			fmt.Printf("%s %s\n", boldGreen("You:"), m.Content)
		} else {
			fmt.Printf("%s %s\n\n", boldCyan("Campusify Bot:"), m.Content)
		}
	}
}

func printSessions(ctx context.Context, c *client.Client) {
	sessions, err := c.Sessions(ctx, *userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("Error: "+describe(err)))
		return
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s %s %s (%d messages)\n",
			boldCyan(s.ID), s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Subject, s.Regulation, len(s.Messages))
	}
}

func printMaterials(ctx context.Context, w io.Writer, c *client.Client, q entities.MaterialQuery) error {
	materials, err := c.Materials(ctx, q)
	if err != nil {
		return err
	}
	for _, m := range materials {
		fmt.Fprintf(w, "%s %s / %s / %s / %s\n", boldCyan(m.Regulation), m.Year, m.Semester, m.Subject, m.Units)
		for _, f := range m.Files {
			fmt.Fprintf(w, "  %s  %s\n", f.FileName, f.FileURL)
		}
	}
	return nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, entities.ErrNoMaterialFound):
		return "no course material found for the selected criteria"
	case errors.Is(err, entities.ErrNotFound):
		return "chat not found"
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
