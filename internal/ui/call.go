package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/peercall/internal/call"
	"github.com/BioHazard786/peercall/internal/media"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const refreshInterval = 200 * time.Millisecond

// Controls is the part of the call driver the view operates.
type Controls interface {
	Toggle(kind media.Kind) bool
	HangUp() bool
}

type (
	tickMsg time.Time
	peerMsg bool
	roomMsg string

	// endedMsg is sent once the driver has returned.
	endedMsg struct{}
)

// callModel polls the coordinator snapshot and forwards key presses as
// intents. It quits only when the call has ended.
type callModel struct {
	state    func() call.Snapshot
	controls Controls
	link     func(roomID string) string
	now      func() time.Time
	spinner  spinner.Model

	snap        call.Snapshot
	room        string
	peer        bool
	hangingUp   bool
	connectedAt time.Time
	endedAt     time.Time
	ended       bool
}

func newCallModel(state func() call.Snapshot, controls Controls, link func(string) string) *callModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &callModel{
		state:    state,
		controls: controls,
		link:     link,
		now:      time.Now,
		spinner:  s,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "m":
			m.controls.Toggle(media.KindAudio)
		case "v":
			m.controls.Toggle(media.KindVideo)
		case "q", "h", "ctrl+c":
			m.hangingUp = true
			m.controls.HangUp()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.refresh()
		if m.ended {
			return m, nil
		}
		return m, tick()

	case peerMsg:
		m.peer = bool(msg)

	case roomMsg:
		m.room = string(msg)

	case endedMsg:
		m.refresh()
		m.ended = true
		m.endedAt = m.now()
		return m, tea.Quit
	}

	return m, nil
}

func (m *callModel) refresh() {
	m.snap = m.state()
	if m.snap.RoomID != "" {
		m.room = m.snap.RoomID
	}
	if m.snap.Connection == call.StateConnected && m.connectedAt.IsZero() {
		m.connectedAt = m.now()
	}
}

// duration is the time spent connected.
func (m *callModel) duration() time.Duration {
	if m.connectedAt.IsZero() {
		return 0
	}
	end := m.endedAt
	if end.IsZero() {
		end = m.now()
	}
	return end.Sub(m.connectedAt)
}

func (m *callModel) View() string {
	if m.ended {
		return ""
	}

	var b strings.Builder

	room := m.room
	if room == "" {
		room = "…"
	}
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s PeerCall  %s Room %s", IconCall, IconRoom, room)))
	b.WriteString("\n")
	if m.room != "" && m.link != nil {
		if m.waiting() {
			b.WriteString(NewRoomInfo(m.room, m.link(m.room)).View())
			b.WriteString("\n")
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n", IconWeb, MutedStyle.Render(m.link(m.room))))
		}
	}
	b.WriteString("\n")

	b.WriteString(m.status())
	b.WriteString("\n\n")

	b.WriteString(MediaTable(m.snap))
	b.WriteString("\n")

	b.WriteString(FooterStyle.Render("m mute/unmute • v camera on/off • q hang up"))
	return b.String()
}

func (m *callModel) status() string {
	if m.hangingUp {
		return fmt.Sprintf("%s %s", IconHangUp, WarningStyle.Render("Hanging up..."))
	}

	switch m.snap.Connection {
	case call.StateConnected:
		return fmt.Sprintf("%s %s %s",
			StatusStyle.Render(m.snap.Connection.String()),
			IconTime, humanDuration(m.duration()))
	case call.StateFailed:
		return fmt.Sprintf("%s %s", IconError, ErrorStyle.Render("Connection failed"))
	case call.StateDisconnected:
		return fmt.Sprintf("%s %s", m.spinner.View(), WarningStyle.Render("Connection interrupted, waiting for it to recover..."))
	case call.StateConnecting:
		return fmt.Sprintf("%s %s Connecting to peer...", m.spinner.View(), IconConnect)
	}

	if !m.waiting() {
		return fmt.Sprintf("%s %s Peer is here, negotiating...", m.spinner.View(), IconPeer)
	}
	return fmt.Sprintf("%s %s Waiting for the other person to join...", m.spinner.View(), IconWaiting)
}

// waiting reports whether the room has nobody else in it yet.
func (m *callModel) waiting() bool {
	if m.hangingUp || m.peer {
		return false
	}
	switch m.snap.Connection {
	case call.StateNew, call.StateClosed:
	default:
		return false
	}
	return m.snap.RoomID == "" || m.snap.Initiator
}

// CallView shows a live call and forwards key presses to its controls.
type CallView struct {
	program *tea.Program
	model   *callModel
}

// NewCallView leaves signal handling to the caller's context.
func NewCallView(state func() call.Snapshot, controls Controls, link func(roomID string) string, opts ...tea.ProgramOption) *CallView {
	model := newCallModel(state, controls, link)
	opts = append([]tea.ProgramOption{tea.WithoutSignalHandler()}, opts...)
	return &CallView{
		model:   model,
		program: tea.NewProgram(model, opts...),
	}
}

// PeerPresent reports the other participant joining or leaving.
func (v *CallView) PeerPresent(present bool) {
	v.program.Send(peerMsg(present))
}

// RoomReady shows the room id before a session exists.
func (v *CallView) RoomReady(roomID string) {
	v.program.Send(roomMsg(roomID))
}

// Run renders the view while run drives the call and returns run's error.
// If the view itself fails, the call is hung up.
func (v *CallView) Run(run func() error) error {
	errc := make(chan error, 1)
	go func() {
		err := run()
		errc <- err
		v.program.Send(endedMsg{})
	}()

	if _, err := v.program.Run(); err != nil {
		v.model.controls.HangUp()
		return errors.Join(fmt.Errorf("call view: %w", err), <-errc)
	}
	return <-errc
}

// Duration is how long the call stayed connected. Only valid once Run has
// returned.
func (v *CallView) Duration() time.Duration {
	return v.model.duration()
}
