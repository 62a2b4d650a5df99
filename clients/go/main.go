// Command line client for palaver.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/palaver-chat/palaver/clients/go/palaver"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PALAVER_URL")

	client, err := palaver.NewClient(baseURL)
	exitOnError(err)
	defer client.Close()

	cmd := os.Args[1]

	switch cmd {
	case "register":
		requireArgs(4, "register <email> <password> <pseudo>")
		id, err := client.Register(os.Args[2], os.Args[3], os.Args[4])
		exitOnError(err)
		fmt.Println("registered:", id)

	case "login":
		requireArgs(3, "login <email> <password>")
		exitOnError(client.Login(os.Args[2], os.Args[3]))
		fmt.Println("signed in as", client.UserID)

	case "logout":
		exitOnError(client.Logout())
		fmt.Println("signed out")

	case "whoami":
		entry, err := client.LastUser()
		exitOnError(err)
		if entry == nil {
			fmt.Println("not signed in")
			return
		}
		fmt.Printf("%s (%s), since %s\n", entry.Email, entry.UserID, entry.RememberedAt.Format(time.RFC3339))

	case "accounts":
		accounts, err := client.Accounts()
		exitOnError(err)
		for _, a := range accounts {
			fmt.Printf("  %s  %s <%s>\n", a.ID, a.Profile.Pseudo, a.Email)
		}

	case "dm":
		requireArgs(2, "dm <userId>")
		id, err := client.ResolveDirect(os.Args[2])
		exitOnError(err)
		fmt.Println(id)

	case "read":
		requireArgs(2, "read <conversationId>")
		msgs, err := client.Messages(os.Args[2])
		exitOnError(err)
		for _, m := range msgs {
			ts := time.UnixMilli(m.CreatedAt).Format("15:04:05")
			fmt.Printf("  [%s] %s: %s\n", ts, m.SenderID, m.Text)
		}

	case "send":
		requireArgs(3, "send <conversationId> <text...>")
		id, err := client.SendText(os.Args[2], strings.Join(os.Args[3:], " "))
		exitOnError(err)
		fmt.Println("sent:", id)

	case "groups":
		groups, err := client.Groups()
		exitOnError(err)
		for _, g := range groups {
			fmt.Printf("  %s  %s (%d members)\n", g.ID, g.Name, len(g.Members))
		}

	case "mkgroup":
		requireArgs(3, "mkgroup <name> <memberId...>")
		id, err := client.CreateGroup(os.Args[2], os.Args[3:])
		exitOnError(err)
		fmt.Println("created:", id)

	case "listen":
		requireArgs(2, "listen <conversationId>")
		listen(client, os.Args[2])

	default:
		usage()
		os.Exit(1)
	}
}

// listen streams a conversation until interrupted.
func listen(client *palaver.Client, convID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.Connect(ctx, convID)
	exitOnError(err)
	defer stream.Close()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		stream.Close()
	}()

	for {
		frame, err := stream.Next()
		if err != nil {
			return
		}
		printJSON(frame)
	}
}

func requireArgs(n int, usageLine string) {
	if len(os.Args) < n+1 {
		fmt.Fprintln(os.Stderr, "usage: palaver", usageLine)
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func usage() {
	fmt.Fprintln(os.Stderr, `palaver - chat client

commands:
  register <email> <password> <pseudo>
  login <email> <password>
  logout
  whoami
  accounts
  dm <userId>
  read <conversationId>
  send <conversationId> <text...>
  groups
  mkgroup <name> <memberId...>
  listen <conversationId>

environment:
  PALAVER_URL     server base URL (default http://localhost:8080)
  PALAVER_CONFIG  config directory (default ~/.palaver)`)
}
