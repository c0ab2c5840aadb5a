// Package matrix provides the Matrix transport for Okane.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/okanebot/okane/internal/okane/platform"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// AllowedRooms restricts which rooms the bot listens to. Empty means
	// every room the account is a member of.
	AllowedRooms []string
	// DB is an optional SQLite connection used to persist the sync token
	// (next_batch) across restarts. When nil, an in-memory store is used
	// and room history replays on every restart.
	DB *sql.DB
}

// Inbound is one user message received from Matrix.
type Inbound struct {
	RoomID   string
	SenderID string
	Text     string
}

// MessageHandler processes incoming user messages.
type MessageHandler func(ctx context.Context, msg Inbound)

// Client wraps the mautrix client.
type Client struct {
	client  *mautrix.Client
	config  *Config
	stopCh  chan struct{}
	handler MessageHandler
}

// New creates a Matrix client.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	c := &Client{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
	}

	// A persistent sync store lets the bot resume from the last known
	// position after a restart instead of replaying full room history.
	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}

	return c, nil
}

// Start begins syncing with the homeserver and delivering user messages to
// handler.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.handler = handler

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	for _, roomID := range c.config.AllowedRooms {
		if err := c.joinRoom(id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	// Sync in the background with exponential back-off reconnection.
	// Without retries a transient homeserver error would silently kill the
	// sync goroutine and leave the bot deaf to all new messages.
	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			backoff = backoffMin // reset before each attempt
			if err := c.client.Sync(); err != nil {
				select {
				case <-c.stopCh:
					return
				default:
				}
				slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			// Sync returned nil, which only happens on a clean StopSync.
			return
		}
	}()

	return nil
}

// Stop stops the Matrix client.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// Send delivers an outbound message to a room. Template messages cannot
// occur here: the Matrix formatter degrades them to text.
func (c *Client) Send(ctx context.Context, roomID string, out platform.Outbound) error {
	switch out.Kind {
	case platform.KindImage:
		return c.sendImage(ctx, roomID, out.ImageURL, out.Caption)
	default:
		return c.SendText(ctx, roomID, out.Text)
	}
}

// SendText sends a plain text message to a room.
func (c *Client) SendText(ctx context.Context, roomID, text string) error {
	_, err := c.client.SendText(ctx, id.RoomID(roomID), text)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// sendImage mirrors the image at url into the homeserver's media store and
// sends it as an m.image event with the caption as body.
func (c *Client) sendImage(ctx context.Context, roomID, url, caption string) error {
	upload, err := c.client.UploadLink(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}

	content := event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    caption,
		URL:     upload.ContentURI.CUString(),
	}
	_, err = c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send image: %w", err)
	}
	return nil
}

// SetTyping sets the typing indicator, shown while a message is being
// processed.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	_, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout)
	if err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

// handleMessage filters incoming events down to user text messages.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}

	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.MsgType != event.MsgText {
		return
	}

	if !c.allowedRoom(evt.RoomID.String()) {
		return
	}

	if c.handler != nil {
		c.handler(ctx, Inbound{
			RoomID:   evt.RoomID.String(),
			SenderID: evt.Sender.String(),
			Text:     msgContent.Body,
		})
	}
}

// allowedRoom reports whether the bot listens to roomID.
func (c *Client) allowedRoom(roomID string) bool {
	if len(c.config.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range c.config.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

// joinRoom attempts to join a room.
func (c *Client) joinRoom(roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(context.Background(), roomID)
	if err != nil {
		// M_FORBIDDEN is returned when the bot is already a member of the
		// room. Use mautrix's typed error check instead of string matching.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
