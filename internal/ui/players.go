package ui

import (
	"fmt"

	"github.com/amkisko/snake/internal/game"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// PlayersView lists the local player followed by everyone in the game room.
func PlayersView(self game.Player, players []game.Player) string {
	rows := [][]string{playerRow("you", self)}
	for _, p := range players {
		rows = append(rows, playerRow(p.ID, p))
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("", "Player", "Pos", "Accel").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func playerRow(name string, p game.Player) []string {
	if len(name) > 12 {
		name = name[:12] + "…"
	}
	return []string{
		game.Emoji(p.Emoji),
		name,
		fmt.Sprintf("%.0f,%.0f", p.Pos.X, p.Pos.Y),
		fmt.Sprintf("%+.0f,%+.0f", p.Accel.X, p.Accel.Y),
	}
}
