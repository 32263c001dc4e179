package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"e2e_relay/internal/model"
	"e2e_relay/internal/service/messenger"
	"e2e_relay/internal/utils/log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	renameCommand = "/name "
	clearCommand  = "/clear"
)

type (
	App struct {
		app     *tview.Application
		chatbox *tview.TextView
		input   *tview.InputField

		messenger *messenger.Messenger

		to     string
		toName string
	}
)

func NewApp(m *messenger.Messenger) *App {
	return &App{
		app:       tview.NewApplication(),
		messenger: m,
	}
}

// Run opens a chat with the identity to and blocks until the UI exits.
func (c *App) Run(ctx context.Context, to string) error {
	c.to = strings.ToLower(to)
	c.toName = c.contactName(ctx)

	c.buildUI()
	if err := c.loadHistory(ctx); err != nil {
		log.Error("load history failed", zap.Error(err))
	}

	go c.listen(ctx)

	if err := c.app.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

func (c *App) Stop() {
	c.app.Stop()
}

func (c *App) contactName(ctx context.Context) string {
	contacts, err := c.messenger.Contacts(ctx)
	if err != nil {
		log.Warn("list contacts failed", zap.Error(err))
	}
	for _, ct := range contacts {
		if ct.ID == c.to {
			return ct.Username
		}
	}
	return short(c.to)
}

func (c *App) buildUI() {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Chat with %s ", tview.Escape(c.toName)))

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(fmt.Sprintf(" You are %s ", short(c.messenger.ID())))

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		if text == "" {
			return
		}
		c.input.SetText("")

		go c.submit(text)
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	c.app.SetRoot(layout, true).SetFocus(c.input)
}

func (c *App) submit(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if name, ok := strings.CutPrefix(text, renameCommand); ok {
		c.rename(ctx, strings.TrimSpace(name))
		return
	}
	if strings.TrimSpace(text) == clearCommand {
		c.clear(ctx)
		return
	}

	entry, err := c.messenger.Send(ctx, c.to, text)
	if err != nil && entry == nil {
		log.Error("send message failed", zap.Error(err))
		c.notice("red", "send failed: "+err.Error())
		return
	}
	if err != nil {
		log.Warn("message sent but not cached", zap.Error(err))
	}
	c.print(entry)
}

func (c *App) rename(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := c.messenger.AddContact(ctx, c.to, name); err != nil {
		c.notice("red", "rename failed: "+err.Error())
		return
	}
	c.app.QueueUpdateDraw(func() {
		c.toName = name
		c.chatbox.SetTitle(fmt.Sprintf(" Chat with %s ", tview.Escape(name)))
	})
}

func (c *App) clear(ctx context.Context) {
	n, err := c.messenger.ClearHistory(ctx, c.to)
	if err != nil {
		log.Error("clear history failed", zap.Error(err))
		c.notice("red", "clear failed: "+err.Error())
		return
	}
	c.app.QueueUpdateDraw(func() {
		c.chatbox.Clear()
	})
	c.notice("gray", fmt.Sprintf("cleared %d messages", n))
}

func (c *App) loadHistory(ctx context.Context) error {
	entries, err := c.messenger.History(ctx, c.to)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprint(c.chatbox, c.format(e))
	}
	c.chatbox.ScrollToEnd()
	return nil
}

func (c *App) listen(ctx context.Context) {
	for {
		select {
		case e := <-c.messenger.Inbox():
			if e.From != c.to {
				c.notice("gray", fmt.Sprintf("new message from %s", short(e.From)))
				continue
			}
			c.print(e)

		case ev := <-c.messenger.Events():
			if ev.Kind == model.EventError {
				c.notice("red", ev.Description)
			}

		case <-c.messenger.Done():
			if err := c.messenger.Err(); err != nil {
				c.notice("red", "disconnected: "+err.Error())
			}
			return

		case <-ctx.Done():
			return
		}
	}
}

// print and rename touch the UI state only from the draw goroutine.
func (c *App) print(e *messenger.Entry) {
	c.app.QueueUpdateDraw(func() {
		fmt.Fprint(c.chatbox, c.format(e))
		c.chatbox.ScrollToEnd()
	})
}

func (c *App) notice(color, text string) {
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatbox, "[%s]* %s[-]\n", color, tview.Escape(text))
		c.chatbox.ScrollToEnd()
	})
}

func (c *App) format(e *messenger.Entry) string {
	stamp := e.Time.Format("15:04")
	if e.Status == model.StatusSent {
		return fmt.Sprintf("[gray]%s[-] [yellow]You:[-] %s\n", stamp, tview.Escape(e.Text))
	}
	text := tview.Escape(e.Text)
	if e.Undecryptable {
		text = "[red]" + text + "[-]"
	}
	return fmt.Sprintf("[gray]%s[-] [green]%s:[-] %s\n", stamp, tview.Escape(c.toName), text)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
