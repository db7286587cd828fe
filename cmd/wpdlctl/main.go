package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/matheus3301/wpdl/internal/api"
	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/session"
)

const usage = `usage: wpdlctl [--json] [--timeout 10s] <command>

commands:
  status                              Show the active session
  sessions [list]                     List known sessions
  sessions create                     Create a session with a fresh ID
  sessions select <id>                Switch to a session, creating it if needed
  sessions remove <id>                Remove a session and its data
  auth                                Show the auth state
  auth qr                             Log in by QR code (waits for the scan)
  auth phone <number>                 Log in with a phone number
  auth code <code>                    Submit a login code
  auth password <password>            Submit the two-step password
  auth logout                         Log out the active session
  chats [limit]                       List chats
  scan <chat> [from= to= type= q= cap=]  Scan a chat for media and print it
  downloads [list]                    List downloads
  downloads start <id> <name> <size>  Start a download
  downloads pause|resume|cancel <id>  Control one download
  downloads pause-all|resume-all|cancel-all
  downloads clear                     Remove finished downloads
  dir <path>                          Set the download directory
  proxy off | <type> <host> <port> [user] [pass]
  watch [namespace]                   Stream events as JSON lines`

// errUsage makes main print the usage text.
var errUsage = errors.New("invalid arguments")

func main() {
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeoutFlag := flag.Duration("timeout", 10*time.Second, "timeout for single calls")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	socketPath := session.DefaultLayout().SocketPath()
	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cli := &ctl{c: c, json: *jsonFlag, timeout: *timeoutFlag}
	if err := cli.run(ctx, args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

type ctl struct {
	c       *api.Client
	json    bool
	timeout time.Duration
}

func (t *ctl) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return fn(ctx)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func (t *ctl) run(ctx context.Context, args []string) error {
	switch args[0] {
	case "status":
		return t.status(ctx)
	case "sessions":
		return t.sessions(ctx, args[1:])
	case "auth":
		return t.auth(ctx, args[1:])
	case "chats":
		limit := 0
		if s := arg(args, 1); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("invalid limit %q", s)
			}
			limit = n
		}
		return t.chats(ctx, limit)
	case "scan":
		if len(args) < 2 {
			return errUsage
		}
		req, err := api.ParseScanArgs(args[1], strings.Join(args[2:], " "))
		if err != nil {
			return err
		}
		return t.scan(ctx, req)
	case "downloads":
		return t.downloads(ctx, args[1:])
	case "dir":
		if len(args) != 2 {
			return errUsage
		}
		return t.call(ctx, func(ctx context.Context) error { return t.c.SetDownloadDir(ctx, args[1]) })
	case "proxy":
		p, err := api.ParseProxy(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return t.call(ctx, func(ctx context.Context) error { return t.c.SetProxy(ctx, p) })
	case "watch":
		return t.watch(ctx, arg(args, 1))
	}
	return fmt.Errorf("unknown command: %s", args[0])
}

func (t *ctl) status(ctx context.Context) error {
	var resp *api.StatusResponse
	err := t.call(ctx, func(ctx context.Context) (err error) {
		resp, err = t.c.Status(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if t.json {
		return outputJSON(resp)
	}
	if resp.Session == nil {
		fmt.Println("Session: none")
	} else {
		fmt.Printf("Session: %s (%s)\n", resp.Session.ID, resp.Session.DisplayName())
		fmt.Printf("Auth:    %s\n", resp.Auth)
		fmt.Printf("Link:    %s\n", resp.Connectivity)
	}
	fmt.Printf("Saving:  %s\n", resp.DownloadDir)
	fmt.Printf("Uptime:  %s\n", time.Duration(resp.UptimeMs)*time.Millisecond)
	return nil
}

func (t *ctl) sessions(ctx context.Context, args []string) error {
	switch arg(args, 0) {
	case "", "list":
		var resp *api.SessionList
		err := t.call(ctx, func(ctx context.Context) (err error) {
			resp, err = t.c.ListSessions(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if t.json {
			return outputJSON(resp)
		}
		if len(resp.Sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, s := range resp.Sessions {
			marker := " "
			if s.Active {
				marker = "*"
			}
			last := "-"
			if !s.LastActive.IsZero() {
				last = s.LastActive.Local().Format(time.DateTime)
			}
			fmt.Printf("%s %-20s %-24s %-16s %s\n", marker, s.ID, s.DisplayName(), s.Phone, last)
		}
		return nil
	case "create":
		return t.call(ctx, func(ctx context.Context) error {
			id, err := t.c.CreateSession(ctx)
			if err == nil {
				fmt.Println(id)
			}
			return err
		})
	case "select":
		if len(args) != 2 {
			return errUsage
		}
		return t.call(ctx, func(ctx context.Context) error { return t.c.SelectSession(ctx, args[1]) })
	case "remove":
		if len(args) != 2 {
			return errUsage
		}
		return t.call(ctx, func(ctx context.Context) error { return t.c.RemoveSession(ctx, args[1]) })
	}
	return errUsage
}

func (t *ctl) auth(ctx context.Context, args []string) error {
	switch arg(args, 0) {
	case "":
		var resp *api.AuthStateResponse
		err := t.call(ctx, func(ctx context.Context) (err error) {
			resp, err = t.c.AuthState(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if t.json {
			return outputJSON(resp)
		}
		fmt.Printf("Session: %s\nState:   %s\n", resp.SessionID, resp.State)
		return nil
	case "qr":
		return t.loginQR(ctx)
	case "phone":
		if len(args) != 2 {
			return errUsage
		}
		return t.loginPhone(ctx, args[1])
	case "code":
		if len(args) != 2 {
			return errUsage
		}
		return t.call(ctx, func(ctx context.Context) error { return t.c.SubmitCode(ctx, args[1]) })
	case "password":
		if len(args) != 2 {
			return errUsage
		}
		return t.call(ctx, func(ctx context.Context) error { return t.c.SubmitPassword(ctx, args[1]) })
	case "logout":
		return t.call(ctx, t.c.Logout)
	}
	return errUsage
}

// loginQR prints every QR code the daemon pushes until the session is ready.
func (t *ctl) loginQR(ctx context.Context) error {
	return t.followAuth(ctx, t.c.RequestQR, func(ev bus.AuthState) {
		if ev.State != model.AuthQRPending || ev.Payload == "" {
			return
		}
		qr, err := qrcode.New(ev.Payload, qrcode.Low)
		if err != nil {
			fmt.Fprintf(os.Stderr, "render QR: %v\n", err)
			return
		}
		fmt.Println(qr.ToSmallString(false))
		fmt.Println("Scan this QR code with WhatsApp > Linked devices.")
	})
}

// loginPhone prints the pairing code to type on the phone.
func (t *ctl) loginPhone(ctx context.Context, phone string) error {
	submit := func(ctx context.Context) error { return t.c.SubmitPhone(ctx, phone) }
	return t.followAuth(ctx, submit, func(ev bus.AuthState) {
		if ev.State == model.AuthAwaitingCode && ev.Payload != "" {
			fmt.Printf("Enter this code on your phone: %s\n", ev.Payload)
		}
	})
}

// followAuth subscribes to auth events, runs start and reports each event
// until the session is ready or ctx ends.
func (t *ctl) followAuth(ctx context.Context, start func(context.Context) error, show func(bus.AuthState)) error {
	stream, err := t.c.Watch(ctx, string(bus.KindAuthState))
	if err != nil {
		return err
	}
	if err := t.call(ctx, start); err != nil {
		return err
	}
	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		var ev bus.AuthState
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return err
		}
		if ev.State == model.AuthReady {
			fmt.Println("Logged in.")
			return nil
		}
		show(ev)
	}
}

func (t *ctl) chats(ctx context.Context, limit int) error {
	var resp *api.ChatList
	err := t.call(ctx, func(ctx context.Context) (err error) {
		resp, err = t.c.ListChats(ctx, limit)
		return err
	})
	if err != nil {
		return err
	}
	if t.json {
		return outputJSON(resp)
	}
	for _, c := range resp.Chats {
		fmt.Printf("%-40s %-8s %4d  %s\n", c.ID, c.Type, c.UnreadCount, c.Title)
	}
	return nil
}

// scan starts a history scan and prints its files until it ends.
func (t *ctl) scan(ctx context.Context, req api.ScanRequest) error {
	stream, err := t.c.Watch(ctx, "scan.")
	if err != nil {
		return err
	}
	var epoch uint64
	err = t.call(ctx, func(ctx context.Context) (err error) {
		epoch, err = t.c.StartScan(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	total := 0
	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		switch bus.Kind(env.Kind) {
		case bus.KindScanBatch:
			var ev bus.ScanBatch
			if err := json.Unmarshal(env.Payload, &ev); err != nil {
				return err
			}
			if ev.Epoch != epoch {
				continue
			}
			for _, f := range ev.Files {
				total++
				if t.json {
					if err := outputJSON(f); err != nil {
						return err
					}
					continue
				}
				fmt.Printf("%-14d %-9s %10d  %s  %s\n", f.FileID, f.Type, f.Size,
					time.Unix(f.Date, 0).Format(time.DateOnly), f.Name)
			}
		case bus.KindScanEnded:
			var ev bus.ScanEnded
			if err := json.Unmarshal(env.Payload, &ev); err != nil {
				return err
			}
			if ev.Epoch != epoch {
				continue
			}
			if ev.Error != "" {
				return fmt.Errorf("scan failed: %s", ev.Error)
			}
			if !t.json {
				fmt.Fprintf(os.Stderr, "%d files\n", total)
			}
			return nil
		}
	}
}

func (t *ctl) downloads(ctx context.Context, args []string) error {
	id := func() (int64, error) {
		if len(args) < 2 {
			return 0, errUsage
		}
		return strconv.ParseInt(args[1], 10, 64)
	}
	switch arg(args, 0) {
	case "", "list":
		var resp *api.DownloadList
		err := t.call(ctx, func(ctx context.Context) (err error) {
			resp, err = t.c.ListDownloads(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if t.json {
			return outputJSON(resp)
		}
		for _, d := range resp.Downloads {
			fmt.Printf("%-14d %-11s %10d/%-10d %s\n", d.FileID, d.State, d.Downloaded, d.Size, d.Name)
		}
		return nil
	case "start":
		if len(args) != 4 {
			return errUsage
		}
		fileID, err := id()
		if err != nil {
			return err
		}
		size, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q", args[3])
		}
		return t.call(ctx, func(ctx context.Context) error { return t.c.StartDownload(ctx, fileID, args[2], size) })
	case "pause", "resume", "cancel":
		fileID, err := id()
		if err != nil {
			return err
		}
		fn := map[string]func(context.Context, int64) error{
			"pause":  t.c.PauseDownload,
			"resume": t.c.ResumeDownload,
			"cancel": t.c.CancelDownload,
		}[args[0]]
		return t.call(ctx, func(ctx context.Context) error { return fn(ctx, fileID) })
	case "pause-all":
		return t.call(ctx, t.c.PauseAllDownloads)
	case "resume-all":
		return t.call(ctx, t.c.ResumeAllDownloads)
	case "cancel-all":
		return t.call(ctx, t.c.CancelAllDownloads)
	case "clear":
		return t.call(ctx, func(ctx context.Context) error {
			ids, err := t.c.ClearCompletedDownloads(ctx)
			if err == nil {
				fmt.Printf("Cleared %d downloads\n", len(ids))
			}
			return err
		})
	}
	return errUsage
}

// watch prints every event matching namespace until interrupted.
func (t *ctl) watch(ctx context.Context, namespace string) error {
	stream, err := t.c.Watch(ctx, namespace)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for {
		env, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := enc.Encode(env); err != nil {
			return err
		}
	}
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
