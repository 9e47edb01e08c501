// Command prosper-chat is a terminal client for the gateway's realtime
// surface: it mints an ephemeral key, opens a session, and renders the
// transcript as the conversation progresses.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prosperlabs/prosper/pkg/core"
	"github.com/prosperlabs/prosper/pkg/eventlog"
	"github.com/prosperlabs/prosper/pkg/realtime"
	"github.com/prosperlabs/prosper/pkg/transcript"
)

func main() {
	os.Exit(run(os.Stdin, os.Stdout, os.Stderr, os.Args[1:]))
}

func run(stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	fs := flag.NewFlagSet("prosper-chat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	gatewayURL := fs.String("gateway", "http://localhost:8080", "gateway base URL")
	apiKey := fs.String("api-key", "", "gateway API key for minting session keys")
	agent := fs.String("agent", "", "agent to converse with (gateway default when empty)")
	codec := fs.String("codec", "", "preferred audio codec (pcmu, pcma, default pcm16)")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	store := transcript.NewStore(logger)
	log := eventlog.New()
	adapter := realtime.NewHistoryAdapter(store, log, logger)
	mgr := realtime.NewManager(realtime.Config{}, logger, realtime.WithEventLog(log))

	base := strings.TrimRight(*gatewayURL, "/")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.Connect(ctx, realtime.ConnectOptions{
		GetEphemeralKey: func(ctx context.Context) (string, error) {
			return mintEphemeralKey(ctx, base, *apiKey)
		},
		URL:   base + "/v1/realtime",
		Agent: *agent,
		Codec: *codec,
	})
	if mgr.Status() != realtime.StatusConnected {
		fmt.Fprintf(stderr, "prosper-chat: connect failed: %v\n", mgr.LastError())
		return 1
	}
	defer mgr.Disconnect()

	fmt.Fprintf(stdout, "connected (session %s). /mute /unmute /interrupt /quit\n", mgr.SessionID())

	render := newRenderer(stdout, store)
	go func() {
		for event := range mgr.Events() {
			adapter.Handle(event)
			render.refresh()
		}
	}()

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			return 0
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return 0
		case line == "/mute":
			if err := mgr.Mute(true); err != nil {
				fmt.Fprintf(stderr, "mute: %v\n", err)
			}
		case line == "/unmute":
			if err := mgr.Mute(false); err != nil {
				fmt.Fprintf(stderr, "unmute: %v\n", err)
			}
		case line == "/interrupt":
			if err := mgr.Interrupt(); err != nil {
				fmt.Fprintf(stderr, "interrupt: %v\n", err)
			}
		default:
			if err := mgr.SendUserText(line); err != nil {
				fmt.Fprintf(stderr, "send: %v\n", err)
			}
		}
	}
}

func mintEphemeralKey(ctx context.Context, base, apiKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/session", nil)
	if err != nil {
		return "", err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Terminal for the session; the manager gives up instead of retrying.
		return "", core.NewAuthenticationError("session endpoint returned " + resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return "", core.NewOverloadedError("session endpoint returned " + resp.Status)
	default:
		return "", fmt.Errorf("session endpoint returned %s", resp.Status)
	}

	var body struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.ClientSecret.Value == "" {
		return "", fmt.Errorf("session endpoint returned no client secret")
	}
	return body.ClientSecret.Value, nil
}

// renderer prints transcript items once they are final, skipping hidden
// entries and items already shown.
type renderer struct {
	out     io.Writer
	store   *transcript.Store
	printed map[string]bool
}

func newRenderer(out io.Writer, store *transcript.Store) *renderer {
	return &renderer{out: out, store: store, printed: make(map[string]bool)}
}

func (r *renderer) refresh() {
	for _, item := range r.store.Items() {
		if r.printed[item.ItemID] || item.Hidden {
			continue
		}
		switch item.Type {
		case transcript.TypeBreadcrumb:
			fmt.Fprintf(r.out, "\n  * %s\n", item.Title)
			r.printed[item.ItemID] = true
		case transcript.TypeMessage:
			if item.Status != transcript.StatusDone {
				continue
			}
			fmt.Fprintf(r.out, "\n[%s] %s\n", item.Role, item.Title)
			r.printed[item.ItemID] = true
		}
	}
}
