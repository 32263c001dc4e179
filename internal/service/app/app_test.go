package app

import (
	"strings"
	"testing"
	"time"

	"e2e_relay/internal/model"
	"e2e_relay/internal/service/messenger"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	c := &App{toName: "bob"}
	at := time.Date(2024, 1, 2, 9, 5, 0, 0, time.Local)

	sent := c.format(&messenger.Entry{Text: "hi [red]", Time: at, Status: model.StatusSent})
	assert.True(t, strings.HasPrefix(sent, "[gray]09:05[-] [yellow]You:[-] hi "))
	assert.NotContains(t, sent, "hi [red]", "message text must not carry color tags")

	got := c.format(&messenger.Entry{Text: "yo", Time: at, Status: model.StatusReceived})
	assert.Equal(t, "[gray]09:05[-] [green]bob:[-] yo\n", got)

	bad := c.format(&messenger.Entry{Text: messenger.Undecryptable, Time: at, Status: model.StatusReceived, Undecryptable: true})
	assert.Contains(t, bad, "[red]")
	assert.Contains(t, bad, "UNABLE TO DECRYPT")
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abcdefgh", short(strings.Repeat("abcdefgh", 8)))
	assert.Equal(t, "abc", short("abc"))
}
