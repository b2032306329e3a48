package ui

import (
	"fmt"
	"time"

	"github.com/amkisko/snake/internal/app"
	"github.com/amkisko/snake/internal/game"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// SummaryView renders the end-of-session report.
func SummaryView(s app.Summary) string {
	t := prettytable.NewWriter()
	t.SetTitle("Session Summary")
	t.SetStyle(prettytable.StyleRounded)
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Lobby", s.Lobby},
		{"Game rooms", len(s.GameRooms)},
		{"Players seen", len(s.Players)},
		{"Messages sent", s.Sent},
		{"Messages received", s.Received},
	})

	if len(s.GameRooms) > 0 {
		t.AppendSeparator()
		for _, v := range s.GameRooms {
			t.AppendRow(prettytable.Row{
				fmt.Sprintf("%s %s", IconGame, v.Status),
				fmt.Sprintf("%s at %s", v.ID, time.UnixMilli(v.At).Format(time.TimeOnly)),
			})
		}
	}

	if len(s.Players) > 0 {
		t.AppendSeparator()
		for _, p := range s.Players {
			t.AppendRow(prettytable.Row{game.Emoji(p.Emoji), p.ID})
		}
	}

	return t.Render()
}

func RenderSummary(s app.Summary) {
	fmt.Println(SummaryView(s))
}
