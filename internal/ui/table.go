package ui

import (
	"fmt"

	"github.com/BioHazard786/peercall/internal/call"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// MediaTable renders the local and remote enabled flags side by side.
func MediaTable(snap call.Snapshot) string {
	headers := []string{"", "Microphone", "Camera"}
	rows := [][]string{
		{"You", mediaCell(IconMic, IconMicOff, snap.Local.Audio), mediaCell(IconCamera, IconCamOff, snap.Local.Video)},
		{"Peer", mediaCell(IconMic, IconMicOff, snap.Remote.Audio), mediaCell(IconCamera, IconCamOff, snap.Remote.Video)},
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
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

func mediaCell(on, off string, enabled bool) string {
	if enabled {
		return on + " on"
	}
	return off + " off"
}

// RoomInfo is the box shown while a room waits for someone to join.
type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s\n\n%s Room ID:    %s\n%s Room Link:  %s\n\n%s",
		TitleStyle.Render(IconSuccess+" Room Ready!"),
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
		MutedStyle.Render("Share the ID or link with the person you want to call."),
	)

	return boxStyle.Render(content)
}
