package connection

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vantagecrm/courier/internal/events"
	"github.com/vantagecrm/courier/internal/vault"
	"github.com/vantagecrm/courier/pkg/gateway"
)

type fakeStore struct {
	conn        *Connection
	upserts     []UpsertParams
	deactivated bool
}

func (f *fakeStore) GetActive(_ context.Context, _, _ uuid.UUID) (*Connection, error) {
	if f.conn == nil {
		return nil, ErrNotFound
	}
	c := *f.conn
	return &c, nil
}

func (f *fakeStore) Upsert(_ context.Context, p UpsertParams) (*Connection, error) {
	f.upserts = append(f.upserts, p)
	f.conn = &Connection{
		ID:           uuid.New(),
		TenantID:     p.TenantID,
		OperatorID:   p.OperatorID,
		BaseURL:      p.BaseURL,
		Credential:   p.Credential,
		InstanceName: p.InstanceName,
		Status:       p.Status,
		QRCode:       p.QRCode,
		Active:       true,
	}
	c := *f.conn
	return &c, nil
}

func (f *fakeStore) SetState(_ context.Context, _ uuid.UUID, status string, phone, qrCode *string) (*Connection, error) {
	now := time.Now()
	f.conn.Status = status
	f.conn.Phone = phone
	f.conn.QRCode = qrCode
	f.conn.LastSyncAt = &now
	c := *f.conn
	return &c, nil
}

func (f *fakeStore) SetStatus(_ context.Context, _ uuid.UUID, status string) (*Connection, error) {
	f.conn.Status = status
	c := *f.conn
	return &c, nil
}

func (f *fakeStore) Deactivate(_ context.Context, _ uuid.UUID) (*Connection, error) {
	f.deactivated = true
	f.conn.Status = StatusDisconnected
	f.conn.Phone = nil
	f.conn.QRCode = nil
	f.conn.Active = false
	c := *f.conn
	return &c, nil
}

type fakeGateway struct {
	createResult gateway.CreateInstanceResult
	createErr    error
	connectQR    string
	connectErr   error
	state        gateway.State
	stateErr     error
	restartErr   error
	logoutErr    error
	calls        []string
}

func (f *fakeGateway) CreateInstance(_ context.Context, name string) (*gateway.CreateInstanceResult, error) {
	f.calls = append(f.calls, "create:"+name)
	if f.createErr != nil {
		return nil, f.createErr
	}
	r := f.createResult
	if r.InstanceName == "" {
		r.InstanceName = name
	}
	return &r, nil
}

func (f *fakeGateway) Connect(_ context.Context, name string) (string, error) {
	f.calls = append(f.calls, "connect:"+name)
	return f.connectQR, f.connectErr
}

func (f *fakeGateway) ConnectionState(_ context.Context, name string) (*gateway.State, error) {
	f.calls = append(f.calls, "state:"+name)
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	st := f.state
	return &st, nil
}

func (f *fakeGateway) Restart(_ context.Context, name string) error {
	f.calls = append(f.calls, "restart:"+name)
	return f.restartErr
}

func (f *fakeGateway) Logout(_ context.Context, name string) error {
	f.calls = append(f.calls, "logout:"+name)
	return f.logoutErr
}

type nullSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *nullSink) InsertBatch(_ context.Context, evs []events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evs...)
	return nil
}

type fixture struct {
	service *Service
	store   *fakeStore
	gw      *fakeGateway
	vault   *vault.Vault
	sink    *nullSink
	writer  *events.Writer
	closed  sync.Once

	lastBaseURL    string
	lastCredential string
}

func (f *fixture) closeWriter() {
	f.closed.Do(f.writer.Close)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	v, err := vault.New("unit-test-secret")
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}

	f := &fixture{
		store: &fakeStore{},
		gw:    &fakeGateway{},
		vault: v,
		sink:  &nullSink{},
	}
	f.writer = events.NewWriter(f.sink, logger)
	f.writer.Start(context.Background())
	t.Cleanup(f.closeWriter)

	f.service = &Service{
		store:  f.store,
		vault:  v,
		events: f.writer,
		clients: func(baseURL, credential string) GatewayClient {
			f.lastBaseURL = baseURL
			f.lastCredential = credential
			return f.gw
		},
		logger: logger,
	}
	return f
}

// existing seeds the fake store with an active connection whose credential is
// token, encrypted with the fixture vault.
func (f *fixture) existing(t *testing.T, status, token string) *Connection {
	t.Helper()
	blob, err := f.vault.Encrypt(token)
	if err != nil {
		t.Fatalf("encrypting token: %v", err)
	}
	qr := "data:image/png;base64,old"
	f.store.conn = &Connection{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		OperatorID:   uuid.New(),
		BaseURL:      "https://gw.example.com",
		Credential:   blob,
		InstanceName: "courier-abc",
		Status:       status,
		QRCode:       &qr,
		Active:       true,
	}
	return f.store.conn
}

func TestInitProvisionsNewConnection(t *testing.T) {
	f := newFixture(t)
	f.gw.createResult = gateway.CreateInstanceResult{QRCode: "data:image/png;base64,fresh"}

	tenantID, operatorID := uuid.New(), uuid.New()
	resp, err := f.service.Init(context.Background(), tenantID, operatorID, "op@example.com", InitRequest{
		BaseURL:      "https://gw.example.com///",
		Token:        "gateway-api-token",
		InstanceName: "crm-main",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if resp.Status != StatusInitializing {
		t.Errorf("status = %q, want %q", resp.Status, StatusInitializing)
	}
	if resp.QRCode == nil || *resp.QRCode != "data:image/png;base64,fresh" {
		t.Errorf("expected QR payload on response, got %v", resp.QRCode)
	}
	if f.lastBaseURL != "https://gw.example.com" {
		t.Errorf("base URL not normalized: %q", f.lastBaseURL)
	}
	if f.lastCredential != "gateway-api-token" {
		t.Errorf("client built with credential %q", f.lastCredential)
	}

	if len(f.store.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(f.store.upserts))
	}
	up := f.store.upserts[0]
	if up.BaseURL != "https://gw.example.com" {
		t.Errorf("persisted base URL = %q", up.BaseURL)
	}
	plain, err := f.vault.Decrypt(up.Credential)
	if err != nil || plain != "gateway-api-token" {
		t.Errorf("persisted credential does not round-trip: %q, %v", plain, err)
	}
}

func TestInitRefusesWhenConnected(t *testing.T) {
	f := newFixture(t)
	f.existing(t, StatusConnected, "tok-tok-tok")

	_, err := f.service.Init(context.Background(), f.store.conn.TenantID, f.store.conn.OperatorID, "op", InitRequest{
		BaseURL: "https://gw.example.com",
		Token:   "new-token-1234",
	})
	if err != ErrAlreadyConnected {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	if len(f.gw.calls) != 0 {
		t.Errorf("expected no gateway calls, got %v", f.gw.calls)
	}
}

func TestInitReusesStoredToken(t *testing.T) {
	f := newFixture(t)
	f.existing(t, StatusDisconnected, "stored-token-99")
	f.gw.createResult = gateway.CreateInstanceResult{QRCode: "data:image/png;base64,q"}

	_, err := f.service.Init(context.Background(), f.store.conn.TenantID, f.store.conn.OperatorID, "op", InitRequest{
		BaseURL: "https://gw.example.com",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if f.lastCredential != "stored-token-99" {
		t.Errorf("expected stored token reuse, client got %q", f.lastCredential)
	}
}

func TestInitWithoutAnyToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Init(context.Background(), uuid.New(), uuid.New(), "op", InitRequest{
		BaseURL: "https://gw.example.com",
	})
	if err != ErrMissingCredential {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestInitFetchesQRAfterConflict(t *testing.T) {
	f := newFixture(t)
	// Conflict-tolerated create: instance exists, no QR in the response.
	f.gw.createResult = gateway.CreateInstanceResult{}
	f.gw.connectQR = "data:image/png;base64,pair-me"

	_, err := f.service.Init(context.Background(), uuid.New(), uuid.New(), "op", InitRequest{
		BaseURL:      "https://gw.example.com",
		Token:        "gw-token-5678",
		InstanceName: "crm-main",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	up := f.store.upserts[0]
	if up.QRCode == nil || *up.QRCode != "data:image/png;base64,pair-me" {
		t.Errorf("expected QR fetched via connect, got %v", up.QRCode)
	}
}

func TestConnectRefreshesQR(t *testing.T) {
	f := newFixture(t)
	conn := f.existing(t, StatusInitializing, "tok-tok-tok")
	f.gw.connectQR = "data:image/png;base64,new-qr"

	resp, err := f.service.Connect(context.Background(), conn.TenantID, conn.OperatorID, "op")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if resp.Status != StatusConnecting {
		t.Errorf("status = %q, want %q", resp.Status, StatusConnecting)
	}
	if resp.QRCode == nil || *resp.QRCode != "data:image/png;base64,new-qr" {
		t.Errorf("QR not refreshed: %v", resp.QRCode)
	}
}

func TestStatusOpenBecomesConnected(t *testing.T) {
	f := newFixture(t)
	conn := f.existing(t, StatusConnecting, "tok-tok-tok")
	f.gw.state = gateway.State{State: gateway.StateOpen, OwnerJID: "5511999887766@s.whatsapp.net"}

	resp, err := f.service.Status(context.Background(), conn.TenantID, conn.OperatorID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Status != StatusConnected {
		t.Errorf("status = %q, want %q", resp.Status, StatusConnected)
	}
	if resp.Phone == nil || *resp.Phone != "+5511999887766" {
		t.Errorf("phone = %v, want +5511999887766", resp.Phone)
	}
	if resp.QRCode != nil {
		t.Errorf("expected QR cleared once connected, got %v", resp.QRCode)
	}
	if resp.Stale {
		t.Error("live reconciliation must not be marked stale")
	}
}

func TestStatusConnectingRefreshesQR(t *testing.T) {
	f := newFixture(t)
	conn := f.existing(t, StatusInitializing, "tok-tok-tok")
	f.gw.state = gateway.State{State: gateway.StateConnecting}
	f.gw.connectQR = "data:image/png;base64,refreshed"

	resp, err := f.service.Status(context.Background(), conn.TenantID, conn.OperatorID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Status != StatusConnecting {
		t.Errorf("status = %q, want %q", resp.Status, StatusConnecting)
	}
	if resp.QRCode == nil || *resp.QRCode != "data:image/png;base64,refreshed" {
		t.Errorf("QR not refreshed: %v", resp.QRCode)
	}
}

func TestStatusUnknownStateDisconnects(t *testing.T) {
	f := newFixture(t)
	conn := f.existing(t, StatusConnected, "tok-tok-tok")
	phone := "+5511999887766"
	f.store.conn.Phone = &phone
	f.gw.state = gateway.State{State: gateway.StateClose}

	resp, err := f.service.Status(context.Background(), conn.TenantID, conn.OperatorID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Status != StatusDisconnected {
		t.Errorf("status = %q, want %q", resp.Status, StatusDisconnected)
	}
	if resp.Phone != nil || resp.QRCode != nil {
		t.Errorf("expected phone and QR cleared, got %v %v", resp.Phone, resp.QRCode)
	}
}

func TestStatusAnswersStaleWhenGatewayDown(t *testing.T) {
	f := newFixture(t)
	conn := f.existing(t, StatusConnected, "tok-tok-tok")
	f.gw.stateErr = &gateway.APIError{Operation: "connection_state", Status: 503}

	resp, err := f.service.Status(context.Background(), conn.TenantID, conn.OperatorID)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !resp.Stale {
		t.Error("expected stale flag on fallback response")
	}
	if resp.Status != StatusConnected {
		t.Errorf("status = %q, want last persisted %q", resp.Status, StatusConnected)
	}
}

func TestRestartKeepsIdentity(t *testing.T) {
	f := newFixture(t)
	conn := f.existing(t, StatusConnected, "tok-tok-tok")

	resp, err := f.service.Restart(context.Background(), conn.TenantID, conn.OperatorID, "op")
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if resp.Status != StatusInitializing {
		t.Errorf("status = %q, want %q", resp.Status, StatusInitializing)
	}
	if resp.InstanceName != conn.InstanceName {
		t.Errorf("instance identity changed: %q", resp.InstanceName)
	}
	if len(f.gw.calls) != 1 || f.gw.calls[0] != "restart:"+conn.InstanceName {
		t.Errorf("gateway calls = %v", f.gw.calls)
	}
}

func TestDisconnectSurvivesLogoutFailure(t *testing.T) {
	f := newFixture(t)
	conn := f.existing(t, StatusConnected, "tok-tok-tok")
	f.gw.logoutErr = &gateway.APIError{Operation: "logout", Status: 500}

	resp, err := f.service.Disconnect(context.Background(), conn.TenantID, conn.OperatorID, "op")
	if err != nil {
		t.Fatalf("Disconnect must not propagate logout failure: %v", err)
	}
	if resp.Status != StatusDisconnected {
		t.Errorf("status = %q, want %q", resp.Status, StatusDisconnected)
	}
	if !f.store.deactivated {
		t.Error("expected record deactivated")
	}
	if resp.Phone != nil || resp.QRCode != nil {
		t.Errorf("expected phone and QR cleared, got %v %v", resp.Phone, resp.QRCode)
	}
}

func TestLifecycleEventsRecorded(t *testing.T) {
	f := newFixture(t)
	conn := f.existing(t, StatusConnected, "tok-tok-tok")

	if _, err := f.service.Disconnect(context.Background(), conn.TenantID, conn.OperatorID, "op@example.com"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	f.closeWriter()

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	if len(f.sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.sink.events))
	}
	ev := f.sink.events[0]
	if ev.Type != events.TypeConnectionDisconnected {
		t.Errorf("event type = %q", ev.Type)
	}
	if ev.TenantID != conn.TenantID {
		t.Errorf("event tenant = %s, want %s", ev.TenantID, conn.TenantID)
	}
	if ev.Actor != "op@example.com" {
		t.Errorf("event actor = %q", ev.Actor)
	}
}
