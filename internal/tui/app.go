// Package tui is the operator console: a live bus feed, the webhook event
// log and a composer, all driven over the admin socket.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wabiz/internal/admin"
	"github.com/matheus3301/wabiz/internal/tui/keys"
	"github.com/matheus3301/wabiz/internal/tui/model"
	"github.com/matheus3301/wabiz/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	refreshInterval = 5 * time.Second
	rpcTimeout      = 10 * time.Second
	watchRetry      = 2 * time.Second
)

// App is the console application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	admin     *admin.Client
	registry  *keys.Registry
	statusBar *views.StatusBar
	feed      *views.Feed
	events    *views.EventTable
	composer  *views.Composer
	qr        *views.QRView
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the console for instance.
func NewApp(c *admin.Client, instance string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(c),
		admin:     c,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(instance),
		feed:      views.NewFeed(),
		events:    views.NewEventTable(),
		composer:  views.NewComposer(),
		qr:        views.NewQRView(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "q:quit",
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "i:compose",
		Handler: func() { a.app.SetFocus(a.composer.InputField) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'c', Description: "c:qr",
		Handler: a.showQR,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyTab, Description: "tab:pane",
		Handler: a.togglePane,
	})
	a.registry.AddPane("events", &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "r:reload",
		Handler: func() { go a.refresh() },
	})
}

func (a *App) setupCallbacks() {
	a.composer.SetOnSend(func(line string) {
		cmd, err := ParseCompose(line)
		if err != nil {
			a.vm.Flash.Err(err)
			a.drawFlash()
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
			defer cancel()
			if err := a.vm.Send(ctx, cmd.To, cmd.Text); err != nil {
				a.vm.Flash.Err(err)
			}
			a.app.QueueUpdateDraw(a.drawFlash)
		}()
	})
}

func (a *App) setupLayout() {
	body := tview.NewFlex().
		AddItem(a.feed, 0, 1, false).
		AddItem(a.events, 0, 1, true)

	main := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("main", main, true, true)
	a.pages.AddPage("qr", a.qr, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.statusBar.SetHints(a.registry.Hints("events"))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			if page, _ := a.pages.GetFrontPage(); page == "qr" {
				a.pages.SwitchToPage("main")
			}
			a.app.SetFocus(a.events)
			return nil
		}

		// Text input gets every other key.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(a.focusedPane(), event) {
			return nil
		}
		return event
	})
}

func (a *App) focusedPane() string {
	if a.app.GetFocus() == a.feed {
		return "feed"
	}
	return "events"
}

func (a *App) togglePane() {
	if a.focusedPane() == "events" {
		a.app.SetFocus(a.feed)
	} else {
		a.app.SetFocus(a.events)
	}
	a.statusBar.SetHints(a.registry.Hints(a.focusedPane()))
}

func (a *App) showQR() {
	st := a.vm.Status()
	phone := ""
	if st != nil {
		phone = st.DisplayPhone
	}
	a.qr.Show(phone)
	a.pages.SwitchToPage("qr")
	a.app.SetFocus(a.qr)
}

func (a *App) drawFlash() {
	msg, isErr := a.vm.Flash.Get()
	a.statusBar.SetFlash(msg, isErr)
}

// refresh reloads status and the event log. Call off the UI goroutine.
func (a *App) refresh() {
	ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
	defer cancel()

	statusErr := a.vm.LoadStatus(ctx)
	eventsErr := a.vm.LoadEvents(ctx)
	if statusErr != nil {
		a.vm.Flash.Err(statusErr)
	} else if eventsErr != nil {
		a.vm.Flash.Err(eventsErr)
	}

	a.app.QueueUpdateDraw(func() {
		if statusErr != nil {
			a.statusBar.SetStatus(nil)
		} else {
			a.statusBar.SetStatus(a.vm.Status())
		}
		a.events.Update(a.vm.Events())
		a.drawFlash()
	})
}

// watch streams bus events into the feed, reconnecting after errors until
// the app stops.
func (a *App) watch() {
	for a.ctx.Err() == nil {
		stream, err := a.admin.Watch(a.ctx, "")
		if err == nil {
			for {
				evt, recvErr := stream.Recv()
				if recvErr != nil {
					err = recvErr
					break
				}
				line := a.vm.AppendFeed(evt)
				a.app.QueueUpdateDraw(func() { a.feed.Append(line) })
				// Webhook traffic changes the event log; reload it.
				go a.refresh()
			}
		}
		if a.ctx.Err() != nil {
			return
		}
		if !admin.IsEOF(err) {
			a.vm.Flash.Err(err)
		}
		select {
		case <-time.After(watchRetry):
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.refresh()
		case <-a.ctx.Done():
			return
		}
	}
}

// Run starts the console and blocks until it exits.
func (a *App) Run() error {
	go func() {
		a.refresh()
		go a.watch()
		a.refreshLoop()
	}()
	defer a.cancel()
	return a.app.Run()
}

// Stop shuts the console down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
