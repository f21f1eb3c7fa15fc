// Package model holds console state fetched from the daemon's admin socket.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wabiz/internal/admin"
	"github.com/matheus3301/wabiz/internal/api"
	"github.com/matheus3301/wabiz/internal/eventlog"
)

// FeedCapacity bounds the live feed kept in memory.
const FeedCapacity = 500

// summaryKeys are the payload fields shown in a feed line, in order.
var summaryKeys = []string{
	"chatId", "phone", "userId", "connId", "broadcastId",
	"whatsappMessageId", "status", "text", "error",
}

// ViewModel caches daemon state between redraws.
type ViewModel struct {
	mu sync.RWMutex

	client *admin.Client
	status *api.Status
	events []eventlog.Entry
	feed   []string
	Flash  Flash
}

// NewViewModel creates a view model backed by c.
func NewViewModel(c *admin.Client) *ViewModel {
	return &ViewModel{client: c}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	return nil
}

// LoadEvents fetches the whole buffered event log.
func (vm *ViewModel) LoadEvents(ctx context.Context) error {
	entries, err := vm.client.Events(ctx, 0)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.events = entries
	vm.mu.Unlock()
	return nil
}

// Send sends text to the phone number to as the operator.
func (vm *ViewModel) Send(ctx context.Context, to, text string) error {
	msg, err := vm.client.SendText(ctx, to, text)
	if err != nil {
		return err
	}
	vm.Flash.Info(fmt.Sprintf("Sent to %s (%s)", to, msg.ProviderMessageID), 3*time.Second)
	return nil
}

// AppendFeed formats evt, appends it to the feed and returns the line.
func (vm *ViewModel) AppendFeed(evt *api.BusEvent) string {
	line := FormatBusEvent(evt)
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.feed = append(vm.feed, line)
	if over := len(vm.feed) - FeedCapacity; over > 0 {
		vm.feed = append(vm.feed[:0], vm.feed[over:]...)
	}
	return line
}

// Status returns the last fetched status, or nil.
func (vm *ViewModel) Status() *api.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Events returns the last fetched event log, oldest first.
func (vm *ViewModel) Events() []eventlog.Entry {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.events
}

// Feed returns a copy of the live feed, oldest first.
func (vm *ViewModel) Feed() []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]string(nil), vm.feed...)
}

// FormatBusEvent renders one feed line: time, kind, then the known payload
// fields as key=value. Payloads with none of them are shown as compact JSON.
func FormatBusEvent(evt *api.BusEvent) string {
	head := fmt.Sprintf("%s %-22s", evt.Timestamp.Local().Format("15:04:05"), evt.Kind)

	fields, ok := evt.Payload.(map[string]any)
	if !ok {
		if evt.Payload == nil {
			return head
		}
		raw, _ := json.Marshal(evt.Payload)
		return head + " " + string(raw)
	}

	var parts []string
	for _, k := range summaryKeys {
		v, ok := fields[k]
		if !ok || v == nil || v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if len(parts) == 0 {
		raw, _ := json.Marshal(fields)
		return head + " " + string(raw)
	}
	return head + " " + strings.Join(parts, " ")
}
