package ui

import (
	"fmt"
	"time"

	"github.com/BioHazard786/peercall/internal/call"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary is printed once a call has ended.
type CallSummary struct {
	RoomID   string
	Outcome  string
	Duration time.Duration
	Tracks   []call.TrackStats
}

func CallSummaryView(s CallSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("%s Call Summary", IconStats))
	t.Style().Title.Align = text.AlignCenter

	t.AppendRow(table.Row{"Room", s.RoomID})
	t.AppendRow(table.Row{"Outcome", s.Outcome})
	t.AppendRow(table.Row{"Duration", humanDuration(s.Duration)})
	t.AppendSeparator()

	if len(s.Tracks) == 0 {
		t.AppendRow(table.Row{"Remote media", "none received"})
		return t.Render()
	}

	for _, st := range s.Tracks {
		t.AppendRow(table.Row{
			fmt.Sprintf("Remote %s", st.Kind),
			fmt.Sprintf("%s, %d packets, %s, %s", st.Codec, st.Packets, humanBytes(st.Bytes), bitrate(st)),
		})
	}
	return t.Render()
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(CallSummaryView(s))
}

// bitrate averages over the span between the first and last packet.
func bitrate(st call.TrackStats) string {
	span := st.Last.Sub(st.First).Seconds()
	if st.Packets < 2 || span <= 0 {
		return "n/a"
	}
	kbps := float64(st.Bytes) * 8 / span / 1000
	return fmt.Sprintf("%.1f kbit/s", kbps)
}

func humanBytes(n uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case n >= GB:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(GB))
	case n >= MB:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(MB))
	case n >= KB:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(KB))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func humanDuration(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
