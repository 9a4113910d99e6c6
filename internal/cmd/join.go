package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/C0neF/gomoku-project/internal/room"
	"github.com/C0neF/gomoku-project/internal/ui"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join an opponent's room",
	Long: `Join a room created by another player.

Examples:
  gomoku join ABC123
  gomoku join abc123
  gomoku join https://play.example.com/r/ABC123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return runSession(cmd.Context(), roomID)
	},
}

// parseRoomInput accepts a room code in any case or a share link ending in
// /r/<code>.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	code := input
	if strings.Contains(input, "://") || strings.Contains(input, "/") {
		var err error
		if code, err = extractRoomIDFromURL(input); err != nil {
			return "", err
		}
	}

	code = strings.ToUpper(code)
	if !room.ValidID(code) {
		return "", fmt.Errorf("invalid room ID %q: expected %d letters or digits", code, room.IDLength)
	}
	if code != input {
		ui.PrintSuccess(fmt.Sprintf("Room ID: %s", code))
	}
	return code, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	parts := strings.Split(strings.TrimSuffix(parsed.Path, "/"), "/")
	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
