package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/peercall/internal/call"
	"github.com/BioHazard786/peercall/internal/media"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControls struct {
	toggled []media.Kind
	hangups int
}

func (f *fakeControls) Toggle(kind media.Kind) bool {
	f.toggled = append(f.toggled, kind)
	return true
}

func (f *fakeControls) HangUp() bool {
	f.hangups++
	return true
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(snap *call.Snapshot) (*callModel, *fakeControls) {
	controls := &fakeControls{}
	m := newCallModel(func() call.Snapshot { return *snap }, controls, func(id string) string {
		return "https://peercall.qzz.io/room/" + id
	})
	return m, controls
}

func TestCallModelKeys(t *testing.T) {
	snap := call.Snapshot{}
	m, controls := newTestModel(&snap)

	m.Update(key("m"))
	m.Update(key("v"))
	m.Update(key("x"))
	assert.Equal(t, []media.Kind{media.KindAudio, media.KindVideo}, controls.toggled)

	_, cmd := m.Update(key("q"))
	assert.Nil(t, cmd, "hang up waits for the call to end")
	assert.Equal(t, 1, controls.hangups)
	assert.Contains(t, m.View(), "Hanging up")
}

func TestCallModelRefresh(t *testing.T) {
	snap := call.Snapshot{
		RoomID:     "482913",
		Initiator:  true,
		Connection: call.StateNew,
		Local:      call.MediaState{Audio: true, Video: true},
		Remote:     call.MediaState{Audio: true, Video: true},
	}
	m, _ := newTestModel(&snap)

	_, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "482913")
	assert.Contains(t, view, "https://peercall.qzz.io/room/482913")
	assert.Contains(t, view, "Waiting for the other person")
	assert.Contains(t, view, "Room Ready!")

	m.Update(peerMsg(true))
	view = m.View()
	assert.Contains(t, view, "negotiating")
	assert.NotContains(t, view, "Room Ready!")
	assert.Contains(t, view, "https://peercall.qzz.io/room/482913")

	snap.Connection = call.StateConnected
	snap.Local.Audio = false
	m.Update(tickMsg(time.Now()))
	view = m.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, IconMicOff+" off")
	assert.False(t, m.connectedAt.IsZero())
}

func TestCallModelRoomBeforeSession(t *testing.T) {
	snap := call.Snapshot{}
	m, _ := newTestModel(&snap)

	assert.NotContains(t, m.View(), "https://")
	m.Update(roomMsg("123456"))
	assert.Contains(t, m.View(), "https://peercall.qzz.io/room/123456")
}

func TestCallModelEnded(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := start
	snap := call.Snapshot{RoomID: "482913", Connection: call.StateConnected}
	m, _ := newTestModel(&snap)
	m.now = func() time.Time { return now }

	m.Update(tickMsg(now))
	now = start.Add(90 * time.Second)

	_, cmd := m.Update(endedMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
	assert.Equal(t, 90*time.Second, m.duration())

	_, cmd = m.Update(tickMsg(now))
	assert.Nil(t, cmd, "no refresh after the call ended")
}

func TestCallModelFailedStatus(t *testing.T) {
	snap := call.Snapshot{RoomID: "482913", Connection: call.StateFailed}
	m, _ := newTestModel(&snap)
	m.Update(tickMsg(time.Now()))
	assert.Contains(t, m.View(), "Connection failed")
}

func TestCallModelPeerLeftShowsRoomAgain(t *testing.T) {
	snap := call.Snapshot{RoomID: "482913", Connection: call.StateConnected}
	m, _ := newTestModel(&snap)
	m.Update(peerMsg(true))
	m.Update(tickMsg(time.Now()))
	assert.NotContains(t, m.View(), "Room Ready!")

	// the partner left and a fresh session now waits as initiator
	snap = call.Snapshot{RoomID: "482913", Initiator: true, Connection: call.StateNew}
	m.Update(peerMsg(false))
	m.Update(tickMsg(time.Now()))
	view := m.View()
	assert.Contains(t, view, "Room Ready!")
	assert.Contains(t, view, "Waiting for the other person")
}

func TestFormatError(t *testing.T) {
	out := FormatError(errors.New("room is full"))
	assert.Contains(t, out, IconError)
	assert.Contains(t, out, "room is full")
}
