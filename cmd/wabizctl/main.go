package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wabiz/internal/admin"
	"github.com/matheus3301/wabiz/internal/config"
	"github.com/matheus3301/wabiz/internal/httpapi"
	"github.com/matheus3301/wabiz/internal/instance"
	"github.com/matheus3301/wabiz/internal/store"
	"github.com/matheus3301/wabiz/internal/tui/model"
	"github.com/matheus3301/wabiz/internal/tui/views"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Commands that only touch the instance directory.
	switch args[0] {
	case "init":
		cmdInit(name)
		return
	case "token":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wabizctl token <user-id> [ttl]")
			os.Exit(1)
		}
		cmdToken(name, args[1:])
		return
	case "instances":
		cmdInstances(*jsonFlag)
		return
	}

	c, err := admin.New(instance.SocketPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for instance %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		namespace := ""
		if len(args) > 1 {
			namespace = args[1]
		}
		cmdWatch(c, namespace, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "events":
		cmdEvents(ctx, c, intArg(args, 1), *jsonFlag)
	case "connections":
		cmdConnections(ctx, c, *jsonFlag)
	case "messages":
		chat := ""
		if len(args) > 1 {
			chat = args[1]
		}
		cmdMessages(ctx, c, chat, intArg(args, 2), *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wabizctl send <phone> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "qr":
		cmdQR(ctx, c)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wabizctl [--instance <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  init                     Write a default config for the instance")
	fmt.Fprintln(os.Stderr, "  token <user> [ttl]       Issue a bearer token signed with auth.jwt_secret")
	fmt.Fprintln(os.Stderr, "  instances                List known instances")
	fmt.Fprintln(os.Stderr, "  status                   Show daemon status")
	fmt.Fprintln(os.Stderr, "  events [n]               Show buffered webhook events")
	fmt.Fprintln(os.Stderr, "  connections              List registered live connections")
	fmt.Fprintln(os.Stderr, "  messages [chat] [n]      List stored messages")
	fmt.Fprintln(os.Stderr, "  send <phone> <text>      Send a text message as the operator")
	fmt.Fprintln(os.Stderr, "  watch [namespace]        Stream daemon events")
	fmt.Fprintln(os.Stderr, "  qr                       Print the click-to-chat QR code")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func intArg(args []string, i int) int {
	if len(args) <= i {
		return 0
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		fatal(fmt.Errorf("invalid number %q", args[i]))
	}
	return n
}

func cmdInit(name string) {
	path := instance.ConfigPath(name)
	if _, err := os.Stat(path); err == nil {
		fatal(fmt.Errorf("%s already exists", path))
	}
	if err := instance.EnsureDir(name); err != nil {
		fatal(err)
	}
	if err := config.Save(path, config.Default()); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Set verify_token, graph.access_token, graph.phone_number_id and auth.jwt_secret before starting wabizd.")
}

func cmdToken(name string, args []string) {
	ttl := 24 * time.Hour
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			fatal(err)
		}
		ttl = d
	}
	cfg, err := config.Load(instance.ConfigPath(name))
	if err != nil {
		fatal(err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if cfg.Auth.JWTSecret == "" {
		fatal(errors.New("auth.jwt_secret is not set"))
	}
	token, err := httpapi.IssueToken([]byte(cfg.Auth.JWTSecret), args[0], ttl)
	if err != nil {
		fatal(err)
	}
	fmt.Println(token)
}

func cmdInstances(jsonOut bool) {
	names, err := instance.List()
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(names)
		return
	}
	if len(names) == 0 {
		fmt.Println("No instances found.")
		return
	}
	for _, n := range names {
		running := "stopped"
		if _, err := os.Stat(instance.SocketPath(n)); err == nil {
			running = "running"
		}
		fmt.Printf("%-20s %s (%s)\n", n, instance.Dir(n), running)
	}
}

func cmdStatus(ctx context.Context, c *admin.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Instance:    %s (pid %d)\n", st.Instance, st.PID)
	fmt.Printf("Uptime:      %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Printf("Listening:   %s\n", st.ListenAddr)
	fmt.Printf("Phone:       %s (id %s)\n", st.DisplayPhone, st.PhoneNumberID)
	fmt.Printf("Event log:   %d/%d\n", st.EventLogLen, st.EventLogCap)
	fmt.Printf("Live:        %d users, %d sockets\n", st.RegisteredUsers, st.OpenSockets)
	fmt.Printf("Messages:    %d\n", st.MessageCount)
	if st.BusDropped > 0 {
		fmt.Printf("Bus dropped: %d\n", st.BusDropped)
	}
}

func cmdEvents(ctx context.Context, c *admin.Client, limit int, jsonOut bool) {
	entries, err := c.Events(ctx, limit)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No buffered events.")
		return
	}
	for _, e := range entries {
		fmt.Printf("%4d %s %-7s %-16s %s\n", e.Seq, e.ReceivedAt.Local().Format(time.DateTime),
			e.Event.Kind, e.Event.ConversationID, views.EventDetail(e.Event))
	}
}

func cmdConnections(ctx context.Context, c *admin.Client, jsonOut bool) {
	conns, err := c.Connections(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(conns)
		return
	}
	if len(conns) == 0 {
		fmt.Println("No registered connections.")
		return
	}
	for _, cn := range conns {
		fmt.Printf("%-30s %s\n", cn.UserID, cn.ConnID)
	}
}

func cmdMessages(ctx context.Context, c *admin.Client, chat string, limit int, jsonOut bool) {
	msgs, err := c.Messages(ctx, chat, limit)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range msgs {
		arrow := "<-"
		if m.Direction == store.DirectionOutgoing {
			arrow = "->"
		}
		fmt.Printf("%s %s %-16s [%s] %s\n", m.CreatedAt.Local().Format(time.DateTime), arrow, m.ConversationID, m.Status, m.Text)
	}
}

func cmdSend(ctx context.Context, c *admin.Client, to, text string, jsonOut bool) {
	msg, err := c.SendText(ctx, to, text)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Sent %s (%s)\n", msg.ID, msg.ProviderMessageID)
}

func cmdWatch(c *admin.Client, namespace string, jsonOut bool) {
	stream, err := c.Watch(context.Background(), namespace)
	if err != nil {
		fatal(err)
	}
	for {
		evt, err := stream.Recv()
		if admin.IsEOF(err) {
			return
		}
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		fmt.Println(model.FormatBusEvent(evt))
	}
}

func cmdQR(ctx context.Context, c *admin.Client) {
	st, err := c.Status(ctx)
	if err != nil {
		fatal(err)
	}
	link := views.ClickToChatLink(st.DisplayPhone)
	if link == "" {
		fatal(errors.New("graph.display_phone is not configured"))
	}
	fmt.Print(views.RenderQR(link))
	fmt.Println(link)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
