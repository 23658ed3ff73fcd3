package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	// Session stores are per-instance sqlite files.
	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
	"github.com/zzjunior/whatsapp-checker-api/internal/instance"
)

// Dialer opens whatsmeow connections backed by per-instance sqlite session
// stores under authDir/<locator>/.
type Dialer struct {
	authDir string
	debugQR bool
	logger  waLog.Logger
}

// NewDialer creates a dialer rooted at authDir. With debugQR set, pairing
// codes are also rendered to the terminal.
func NewDialer(authDir string, debugQR bool) *Dialer {
	level := "WARN"
	if debugQR {
		level = "INFO"
	}
	return &Dialer{
		authDir: authDir,
		debugQR: debugQR,
		logger:  waLog.Stdout("whatsmeow", level, false),
	}
}

// Dial opens a connection for the credential locator. Fresh state (no paired
// device in the store) triggers the QR pairing flow; event handlers are wired
// before the handshake starts.
func (d *Dialer) Dial(ctx context.Context, authPath string, evts domain.ConnEvents) (domain.Conn, error) {
	dir := filepath.Join(d.authDir, authPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dir, instance.CredentialFile))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, d.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	client := whatsmeow.NewClient(device, d.logger)
	// Reconnection policy lives in the session handle, not here.
	client.EnableAutoReconnect = false

	conn := &Conn{
		client:    client,
		container: container,
		events:    evts,
		debugQR:   d.debugQR,
	}
	client.AddEventHandler(conn.handleEvent)

	if client.Store.ID == nil {
		// Unpaired state: the QR channel must be requested before Connect or
		// the first codes are lost.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to open QR channel: %w", err)
		}
		go conn.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return conn, nil
}

// Conn wraps one live whatsmeow client.
type Conn struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	events    domain.ConnEvents
	debugQR   bool

	closeOnce sync.Once
}

// IsLoggedIn reports whether the client is connected and paired.
func (c *Conn) IsLoggedIn() bool {
	return c.client.IsLoggedIn()
}

// CheckNumber asks the server whether the phone is registered. phone is
// digits only; the leading + required by the query is added here.
func (c *Conn) CheckNumber(ctx context.Context, phone string) (domain.NumberResult, error) {
	responses, err := c.client.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return domain.NumberResult{}, fmt.Errorf("IsOnWhatsApp query failed: %w", err)
	}
	if len(responses) == 0 {
		return domain.NumberResult{}, fmt.Errorf("IsOnWhatsApp returned no result for %s", phone)
	}

	resp := responses[0]
	result := domain.NumberResult{Exists: resp.IsIn}
	if resp.IsIn {
		result.JID = resp.JID.String()
	}
	return result, nil
}

// Disconnect closes the connection and releases the session store. The
// credentials on disk stay valid.
func (c *Conn) Disconnect() {
	c.client.Disconnect()
	if err := c.container.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close session store")
	}
}

// closed delivers the Closed signal at most once per connection and releases
// the session store afterwards.
func (c *Conn) closed(reason domain.CloseReason, err error) {
	c.closeOnce.Do(func() {
		if c.events.Closed != nil {
			c.events.Closed(reason, err)
		}
		if closeErr := c.container.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close session store")
		}
	})
}

// pumpQR forwards pairing codes from the QR channel. The channel ends with
// success (pairing done, Connected follows) or timeout (all codes expired).
func (c *Conn) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if c.debugQR {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			}
			if c.events.QR != nil {
				c.events.QR(evt.Code)
			}
		case "success":
			// Connected event carries the open signal.
		case "timeout":
			c.closed(domain.CloseReasonTimedOut, fmt.Errorf("pairing codes expired"))
		case "err-client-outdated":
			c.closed(domain.CloseReasonOther, fmt.Errorf("client version rejected by server"))
		}
	}
}

// handleEvent maps whatsmeow events onto the connection signals.
func (c *Conn) handleEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Connected:
		if c.events.Open != nil {
			c.events.Open()
		}

	case *events.PairSuccess:
		log.Info().Str("jid", evt.ID.String()).Msg("Device paired")

	case *events.LoggedOut:
		c.closed(domain.CloseReasonCredentialsInvalid,
			fmt.Errorf("logged out by server: %s", evt.Reason.String()))

	case *events.StreamReplaced:
		c.closed(domain.CloseReasonReplaced,
			fmt.Errorf("session taken over by another connection"))

	case *events.Disconnected:
		c.closed(domain.CloseReasonConnectionLost, fmt.Errorf("connection lost"))

	case *events.ConnectFailure:
		c.closed(domain.CloseReasonOther,
			fmt.Errorf("connect failure: %s", evt.Reason.String()))

	case *events.TemporaryBan:
		c.closed(domain.CloseReasonOther,
			fmt.Errorf("temporary ban: %s", evt.String()))

	case *events.ClientOutdated:
		c.closed(domain.CloseReasonOther, fmt.Errorf("client version outdated"))

	case *events.KeepAliveTimeout:
		log.Warn().Msg("Keepalive timeout, waiting for recovery")
	}
}
