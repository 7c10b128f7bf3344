// nextmeeting is the client CLI for nextmeetingd: it queries the
// daemon's meeting cache and drives notifications from the shell or a
// status bar.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/chmouel/nextmeetingd/internal/client"
	"github.com/chmouel/nextmeetingd/internal/config"
	"github.com/chmouel/nextmeetingd/internal/event"
	"github.com/chmouel/nextmeetingd/internal/protocol"
	"github.com/chmouel/nextmeetingd/internal/version"
)

type CLI struct {
	Socket string `short:"s" help:"Daemon socket path."`

	Ping      PingCmd      `cmd:"" help:"Check that the daemon answers."`
	Next      NextCmd      `cmd:"" help:"Show the next upcoming meeting."`
	List      ListCmd      `cmd:"" aliases:"meetings" help:"List upcoming meetings."`
	Status    StatusCmd    `cmd:"" help:"Show daemon health."`
	Refresh   RefreshCmd   `cmd:"" help:"Ask the daemon to fetch now."`
	Snooze    SnoozeCmd    `cmd:"" help:"Pause notifications."`
	Dismiss   DismissCmd   `cmd:"" help:"Silence notifications for one event."`
	Undismiss UndismissCmd `cmd:"" help:"Re-enable notifications for an event."`
	Shutdown  ShutdownCmd  `cmd:"" help:"Stop the daemon."`
	Version   VersionCmd   `cmd:"" help:"Print version."`
}

func (c *CLI) client() *client.Client {
	path := c.Socket
	if path == "" {
		path = defaultSocket()
	}
	return client.New(path)
}

func defaultSocket() string {
	return config.RuntimeDir() + "/nextmeetingd.sock"
}

func main() {
	var cli CLI
	k := kong.Parse(&cli,
		kong.Name("nextmeeting"),
		kong.Description("Query the nextmeetingd calendar daemon"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	k.FatalIfErrorf(k.Run(&cli))
}

type PingCmd struct{}

func (PingCmd) Run(cli *CLI) error {
	start := time.Now()
	if err := cli.client().Ping(); err != nil {
		return err
	}
	fmt.Printf("pong (%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}

type NextCmd struct {
	SkipAllDay bool `help:"Ignore all-day events."`
	OnlyLink   bool `help:"Only meetings with a join link."`
}

func (c *NextCmd) Run(cli *CLI) error {
	meetings, stale, err := cli.client().Meetings(&protocol.MeetingsFilter{
		SkipAllDay:   c.SkipAllDay,
		OnlyWithLink: c.OnlyLink,
		SkipDeclined: true,
		Limit:        1,
	})
	if err != nil {
		return err
	}
	if len(meetings) == 0 {
		fmt.Println("no upcoming meetings")
		return nil
	}
	printMeeting(meetings[0], stale)
	return nil
}

type ListCmd struct {
	Today      bool `help:"Only today's meetings."`
	Limit      int  `help:"Maximum number of meetings." default:"10"`
	SkipAllDay bool `help:"Ignore all-day events."`
}

func (c *ListCmd) Run(cli *CLI) error {
	meetings, stale, err := cli.client().Meetings(&protocol.MeetingsFilter{
		TodayOnly:  c.Today,
		Limit:      c.Limit,
		SkipAllDay: c.SkipAllDay,
	})
	if err != nil {
		return err
	}
	if len(meetings) == 0 {
		fmt.Println("no upcoming meetings")
		return nil
	}
	for _, m := range meetings {
		printMeeting(m, false)
	}
	if stale {
		fmt.Fprintln(os.Stderr, "warning: cached data is stale")
	}
	return nil
}

type StatusCmd struct{}

func (StatusCmd) Run(cli *CLI) error {
	st, err := cli.client().Status()
	if err != nil {
		return err
	}
	fmt.Printf("uptime: %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	if st.LastSync != nil {
		fmt.Printf("last sync: %s ago\n", time.Since(*st.LastSync).Round(time.Second))
	} else {
		fmt.Println("last sync: never")
	}
	if st.NextFetch != nil {
		fmt.Printf("next fetch: in %s\n", time.Until(*st.NextFetch).Round(time.Second))
	}
	if st.SnoozedUntil != nil {
		fmt.Printf("notifications snoozed until %s\n", st.SnoozedUntil.Local().Format("15:04"))
	}
	for _, p := range st.Providers {
		state := "healthy"
		if !p.Healthy {
			state = "unhealthy"
			if p.Error != "" {
				state += ": " + p.Error
			}
		}
		fmt.Printf("provider %s: %s (%d events)\n", p.Name, state, p.EventCount)
	}
	return nil
}

type RefreshCmd struct {
	Force bool `help:"Bypass the refresh cooldown."`
}

func (c *RefreshCmd) Run(cli *CLI) error {
	if err := cli.client().Refresh(c.Force); err != nil {
		return err
	}
	fmt.Println("refresh queued")
	return nil
}

type SnoozeCmd struct {
	Minutes int `arg:"" help:"How long to pause notifications."`
}

func (c *SnoozeCmd) Run(cli *CLI) error {
	if err := cli.client().Snooze(c.Minutes); err != nil {
		return err
	}
	fmt.Printf("notifications snoozed for %dm\n", c.Minutes)
	return nil
}

type DismissCmd struct {
	EventID string `arg:"" help:"Event to silence."`
}

func (c *DismissCmd) Run(cli *CLI) error {
	return cli.client().Dismiss(c.EventID)
}

type UndismissCmd struct {
	EventID string `arg:"" help:"Event to re-enable."`
}

func (c *UndismissCmd) Run(cli *CLI) error {
	return cli.client().Undismiss(c.EventID)
}

type VersionCmd struct{}

func (VersionCmd) Run(*CLI) error {
	fmt.Println(version.String())
	return nil
}

type ShutdownCmd struct{}

func (ShutdownCmd) Run(cli *CLI) error {
	cl := cli.client()
	if !cl.IsRunning() {
		fmt.Println("daemon not running")
		return nil
	}
	return cl.Shutdown()
}

func printMeeting(m event.Meeting, stale bool) {
	when := m.Start.Local().Format("Mon 15:04")
	line := fmt.Sprintf("%s  %s", when, m.Title)
	if m.MeetingLink != "" {
		line += "  " + m.MeetingLink
	}
	if stale {
		line += "  (stale)"
	}
	fmt.Println(line)
}
