package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyFansOut(t *testing.T) {
	var sent []string
	n := New(WithDesktop(true))
	n.send = func(title, msg string) error {
		sent = append(sent, title+": "+msg)
		return nil
	}

	var got []Toast
	n.Subscribe(func(t Toast) { got = append(got, t) })

	n.Success("Task created: Call supplier")
	n.Error("Could not understand command.")

	require.Len(t, got, 2)
	assert.Equal(t, Error, got[1].Level)
	assert.Equal(t, []string{"ConstructionOS: Task created: Call supplier", "ConstructionOS: Could not understand command."}, sent)

	last, ok := n.Last()
	require.True(t, ok)
	assert.Equal(t, "Could not understand command.", last.Message)
	assert.Equal(t, "error", last.Level.String())
}

func TestDesktopDisabled(t *testing.T) {
	n := New()
	n.send = func(string, string) error {
		t.Error("desktop notification sent while disabled")
		return nil
	}
	n.Success("quiet")
	_, ok := n.Last()
	assert.True(t, ok)
}

func TestSendFailureIgnored(t *testing.T) {
	n := New(WithDesktop(true))
	n.send = func(string, string) error { return errors.New("no dbus") }
	n.Error("still delivered")
	last, _ := n.Last()
	assert.Equal(t, "still delivered", last.Message)
}

func TestCue(t *testing.T) {
	played := make(chan struct{}, 1)
	n := New(WithSound(true))
	n.beep = func() error {
		played <- struct{}{}
		return nil
	}
	n.Cue()
	select {
	case <-played:
	case <-time.After(time.Second):
		t.Fatal("cue not played")
	}

	silent := New()
	silent.beep = func() error {
		t.Error("cue played while sound disabled")
		return nil
	}
	silent.Cue()
}
