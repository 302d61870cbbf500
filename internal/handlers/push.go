package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/weatherdash/internal/livesync"
	"github.com/nfrund/weatherdash/internal/pubsub"
	"github.com/nfrund/weatherdash/internal/rendering"
	"github.com/nfrund/weatherdash/web/templates/components"
)

// Sender delivers HTML fragments to connected browsers.
type Sender interface {
	SendDirect(mountID string, payload []byte)
	Broadcast(payload []byte)
}

// Pusher renders bus events into out-of-band fragments and sends them down
// the page's websocket.
type Pusher struct {
	registry *livesync.Registry
	sender   Sender
	renderer *rendering.UniversalRenderer
}

// NewPusher creates a new Pusher.
func NewPusher(registry *livesync.Registry, sender Sender, renderer *rendering.UniversalRenderer) *Pusher {
	return &Pusher{registry: registry, sender: sender, renderer: renderer}
}

// Start subscribes to the dashboard topics. Delivery stops when ctx ends.
func (p *Pusher) Start(ctx context.Context, sub pubsub.Subscriber) error {
	if err := pubsub.Subscribe(ctx, sub, livesync.TopicRecordsChanged, p.recordsChanged); err != nil {
		return fmt.Errorf("subscribe %s: %w", livesync.TopicRecordsChanged.Name(), err)
	}
	if err := pubsub.Subscribe(ctx, sub, livesync.TopicNotifications, p.notification); err != nil {
		return fmt.Errorf("subscribe %s: %w", livesync.TopicNotifications.Name(), err)
	}
	return nil
}

func (p *Pusher) recordsChanged(ctx context.Context, mountID string, change livesync.RecordsChanged) error {
	s, ok := p.registry.Get(mountID)
	if !ok {
		return nil
	}
	// Later changes may already be applied; the region is rendered from
	// the current list either way.
	slog.Debug("Pushing records region", "mount", mountID, "version", change.Version, "cause", change.Cause)
	return p.send(ctx, mountID, regionOf(s, true))
}

func (p *Pusher) notification(ctx context.Context, mountID string, n livesync.Notification) error {
	return p.send(ctx, mountID, components.Toast(string(n.Level), n.Message))
}

// Announce shows a toast on every connected dashboard.
func (p *Pusher) Announce(ctx context.Context, n livesync.Notification) error {
	html, err := p.renderer.RenderComponent(ctx, components.Toast(string(n.Level), n.Message))
	if err != nil {
		return fmt.Errorf("render announcement: %w", err)
	}
	p.sender.Broadcast(html)
	return nil
}

func (p *Pusher) send(ctx context.Context, mountID string, component any) error {
	html, err := p.renderer.RenderComponent(ctx, component)
	if err != nil {
		return fmt.Errorf("render push for %s: %w", mountID, err)
	}
	p.sender.SendDirect(mountID, html)
	return nil
}
