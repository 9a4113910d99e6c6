package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type RoomInfo struct {
	RoomID string
	Binary string
}

func NewRoomInfo(roomID, binary string) *RoomInfo {
	return &RoomInfo{RoomID: roomID, Binary: binary}
}

func (r *RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(0, 2)

	content := fmt.Sprintf("%s Room Created!\n\n%s Room code:  %s\n%s Join with:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconPeer, MutedStyle.Render(fmt.Sprintf("%s join %s", r.Binary, r.RoomID)),
	)

	return boxStyle.Render(content)
}
