package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nordlicht-IT-Solutions/nordlicht-chat-sdk-go/nordchat"
)

const chatHelp = `commands:
  /join <room>      join and select a room
  /contact <user>   join the contact room shared with user
  /leave            leave the selected room
  /select <room>    switch to a joined room
  /rooms            list joined rooms with unread counts
  /members          list members of the selected room
  /logout           log out and forget the stored identity
  /quit             exit
anything else is sent to the selected room`

// NewChatCommand creates the interactive chat command.
func NewChatCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [room...]",
		Short: "Interactive chat session",
		Long:  "Connect, optionally join the given rooms, then read commands and messages from stdin.\n\n" + chatHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, rootOpts, args)
		},
	}
}

func runChat(cmd *cobra.Command, opts *RootOptions, rooms []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client, err := connect(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	client.OnRoomEvent(func(ev nordchat.RoomEvent) { printEvent(out, ev) })
	client.OnPhaseChanged(func(ev nordchat.PhaseEvent) {
		if ev.NewPhase == nordchat.PhaseClosed && !nordchat.IsDeliberateClose(ev.Code) {
			fmt.Fprintf(out, "*** connection lost (%d), reconnecting\n", ev.Code)
		}
		if ev.NewPhase == nordchat.PhaseConnected && ev.OldPhase != nordchat.PhaseClosed {
			fmt.Fprintln(out, "*** connected")
		}
	})

	for _, room := range rooms {
		if err := client.JoinRoom(ctx, room); err != nil {
			return fmt.Errorf("join %s: %w", room, err)
		}
	}

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, client, out, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintf(out, "!!! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, client *nordchat.Client, out io.Writer, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		room := client.State().Selected
		if room == "" {
			return false, fmt.Errorf("no room selected")
		}
		return false, client.SendMessage(ctx, room, line)
	}

	verb, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch verb {
	case "quit":
		return true, nil
	case "join":
		return false, client.JoinRoom(ctx, arg)
	case "contact":
		_, err := client.JoinContact(ctx, arg)
		return false, err
	case "leave":
		room := client.State().Selected
		if room == "" {
			return false, fmt.Errorf("no room selected")
		}
		return false, client.LeaveRoom(ctx, room)
	case "select":
		if _, ok := client.State().Room(arg); !ok {
			return false, fmt.Errorf("not in room %q", arg)
		}
		return false, client.SelectRoom(arg)
	case "rooms":
		state := client.State()
		for _, name := range state.RoomNames() {
			room := state.Rooms[name]
			marker := " "
			if name == state.Selected {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s (%d unread)\n", marker, name, room.Unread())
		}
		return false, nil
	case "members":
		room, ok := client.State().Room(client.State().Selected)
		if !ok {
			return false, fmt.Errorf("no room selected")
		}
		fmt.Fprintln(out, strings.Join(room.MemberList(), ", "))
		return false, nil
	case "logout":
		return false, client.Logout(ctx)
	default:
		return false, fmt.Errorf("unknown command /%s", verb)
	}
}

func printEvent(out io.Writer, ev nordchat.RoomEvent) {
	ts := time.UnixMilli(ev.TS).Format("15:04:05")
	switch ev.Kind {
	case nordchat.EventMessage:
		fmt.Fprintf(out, "[%s] %s <%s> %s\n", ev.Room, ts, ev.Sender, ev.Message)
	case nordchat.EventJoin:
		fmt.Fprintf(out, "[%s] %s >>> %s joined\n", ev.Room, ts, ev.Sender)
	case nordchat.EventLeave:
		fmt.Fprintf(out, "[%s] %s <<< %s left\n", ev.Room, ts, ev.Sender)
	}
}

func readLines(in io.Reader, dst chan<- string) {
	defer close(dst)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		dst <- scanner.Text()
	}
}
