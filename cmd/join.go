package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BioHazard786/peercall/internal/relay"
	"github.com/BioHazard786/peercall/internal/ui"
	"github.com/spf13/cobra"
)

var joinFlags callFlags

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join an existing call room",
	Long: `Join a call room created from the CLI or the webapp.

Examples:
  peercall join 482913
  peercall join https://peercall.qzz.io/room/482913
  peercall join 482913 --no-video`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return runCall(cmd.Context(), roomID, &joinFlags)
	},
}

func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	roomID := input
	if strings.Contains(input, "://") || strings.Contains(input, "/") {
		id, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room ID: %s", id)
		roomID = id
	}

	if !relay.ValidRoomID(roomID) {
		return "", fmt.Errorf("invalid room ID %q: expected 6 digits", roomID)
	}
	return roomID, nil
}

// extractRoomIDFromURL takes the segment after /room/ (webapp links) or /r/
// (short links).
func extractRoomIDFromURL(urlStr string) (string, error) {
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if (part == "room" || part == "r") && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinFlags.register(joinCmd)
}
