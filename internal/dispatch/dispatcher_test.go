package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/repo"
)

type fakeRelay struct {
	private int
	group   int
	err     error
}

func (f *fakeRelay) HandlePrivateMessage(context.Context, *models.Message) error {
	f.private++
	return f.err
}

func (f *fakeRelay) HandleGroupMessage(context.Context, *models.Message) error {
	f.group++
	return f.err
}

type fakeFlows struct {
	active    bool
	commands  []string
	messages  int
	plans     int
	callbacks []Action
	handled   bool
	panicOn   string
}

func (f *fakeFlows) Active(chatID, userID int64) bool { return f.active }

func (f *fakeFlows) HandleCommand(_ context.Context, _ *models.Message, cmd string) (bool, error) {
	if cmd == f.panicOn {
		panic("command handler exploded")
	}
	f.commands = append(f.commands, cmd)
	return f.handled, nil
}

func (f *fakeFlows) HandleMessage(context.Context, *models.Message) error {
	f.messages++
	return nil
}

func (f *fakeFlows) HandlePlanMessage(context.Context, *models.Message) error {
	f.plans++
	return nil
}

func (f *fakeFlows) HandleCallback(_ context.Context, _ *models.CallbackQuery, act Action) error {
	f.callbacks = append(f.callbacks, act)
	return nil
}

func testCfg() config.Config {
	return config.Config{
		BotID:           42,
		ChatGroupID:     -100200,
		PostPlanGroupID: -100300,
		UpdateClaimTTL:  time.Minute,
	}
}

func newDispatcher(t *testing.T, relay *fakeRelay, flows *fakeFlows) (*Dispatcher, *gorm.DB) {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return New(db, testCfg(), relay, flows, zerolog.Nop()), db
}

func privateUpdate(id int64, text string) []byte {
	return []byte(fmt.Sprintf(
		`{"update_id": %d, "message": {"message_id": 1, "text": %q, "chat": {"id": 7, "type": "private"}, "from": {"id": 7}}}`,
		id, text))
}

func TestDispatch_EmptyAndMalformedBodies(t *testing.T) {
	d, _ := newDispatcher(t, &fakeRelay{}, &fakeFlows{})
	ctx := context.Background()

	for _, raw := range [][]byte{nil, {}, []byte("not json"), []byte(`"a string"`), []byte(`[1,2]`), []byte(`{}`)} {
		if status := d.Dispatch(ctx, raw); status != http.StatusNoContent {
			t.Fatalf("%q: expected 204, got %d", raw, status)
		}
	}
}

func TestDispatch_DuplicateSuppression(t *testing.T) {
	relay := &fakeRelay{}
	d, _ := newDispatcher(t, relay, &fakeFlows{})
	ctx := context.Background()
	raw := privateUpdate(1001, "hello")

	if status := d.Dispatch(ctx, raw); status != http.StatusOK {
		t.Fatalf("first: expected 200, got %d", status)
	}
	if status := d.Dispatch(ctx, raw); status != http.StatusOK {
		t.Fatalf("second: expected 200, got %d", status)
	}
	if relay.private != 1 {
		t.Fatalf("expected exactly one relay call, got %d", relay.private)
	}
}

func TestDispatch_RoutesByChat(t *testing.T) {
	relay := &fakeRelay{}
	flows := &fakeFlows{}
	d, _ := newDispatcher(t, relay, flows)
	ctx := context.Background()

	group := []byte(`{"update_id": 1, "message": {"message_id": 1, "text": "x", "chat": {"id": -100200, "type": "supergroup"}, "from": {"id": 9}}}`)
	plan := []byte(`{"update_id": 2, "message": {"message_id": 2, "text": "/post", "chat": {"id": -100300, "type": "supergroup"}, "from": {"id": 9}}}`)
	other := []byte(`{"update_id": 3, "message": {"message_id": 3, "text": "x", "chat": {"id": -999, "type": "supergroup"}, "from": {"id": 9}}}`)

	for _, raw := range [][]byte{group, plan, other} {
		if status := d.Dispatch(ctx, raw); status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
	}
	if relay.group != 1 || flows.plans != 1 || relay.private != 0 {
		t.Fatalf("misrouted: group=%d plans=%d private=%d", relay.group, flows.plans, relay.private)
	}
}

func TestDispatch_PrivateCommandVsFlowVsRelay(t *testing.T) {
	relay := &fakeRelay{}
	flows := &fakeFlows{handled: true}
	d, _ := newDispatcher(t, relay, flows)
	ctx := context.Background()

	// Command with @botname suffix is stripped.
	d.Dispatch(ctx, privateUpdate(1, "/start@juicy_bot plans"))
	if len(flows.commands) != 1 || flows.commands[0] != "/start" {
		t.Fatalf("unexpected commands: %v", flows.commands)
	}

	// Active frame captures plain text.
	flows.active = true
	d.Dispatch(ctx, privateUpdate(2, "25"))
	if flows.messages != 1 || relay.private != 0 {
		t.Fatalf("expected flow message, got messages=%d private=%d", flows.messages, relay.private)
	}

	// No frame: plain text goes to the relay.
	flows.active = false
	d.Dispatch(ctx, privateUpdate(3, "hi there"))
	if relay.private != 1 {
		t.Fatalf("expected relay call, got %d", relay.private)
	}
}

func TestDispatch_CallbackRouting(t *testing.T) {
	flows := &fakeFlows{}
	d, _ := newDispatcher(t, &fakeRelay{}, flows)
	ctx := context.Background()

	raw := []byte(`{"update_id": 10, "callback_query": {"id": "cb1", "data": "pay:vip_30d", "from": {"id": 7}}}`)
	if status := d.Dispatch(ctx, raw); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(flows.callbacks) != 1 || flows.callbacks[0] != (PayPlan{PlanCode: "vip_30d"}) {
		t.Fatalf("unexpected callbacks: %#v", flows.callbacks)
	}

	// Unknown callback data is swallowed.
	unknown := []byte(`{"update_id": 11, "callback_query": {"id": "cb2", "data": "legacy:button", "from": {"id": 7}}}`)
	if status := d.Dispatch(ctx, unknown); status != http.StatusOK {
		t.Fatalf("expected 200 for unknown callback, got %d", status)
	}
	if len(flows.callbacks) != 1 {
		t.Fatalf("unknown callback reached handler: %#v", flows.callbacks)
	}
}

func TestDispatch_PanicIsContained(t *testing.T) {
	flows := &fakeFlows{panicOn: "/boom"}
	d, db := newDispatcher(t, &fakeRelay{}, flows)
	ctx := context.Background()

	if status := d.Dispatch(ctx, privateUpdate(77, "/boom")); status != http.StatusOK {
		t.Fatalf("expected 200 despite panic, got %d", status)
	}

	// The claim stays held: the update is not reprocessed.
	claimed, err := repo.Claim(ctx, db, UpdateKey(42, privateUpdate(77, "/boom")), time.Minute)
	if err != nil {
		t.Fatalf("claim check: %v", err)
	}
	if claimed {
		t.Fatal("panicked update lost its claim")
	}
}

func TestDispatch_ClaimErrorAcksUpdate(t *testing.T) {
	d, db := newDispatcher(t, &fakeRelay{}, &fakeFlows{})
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.Close()

	// Storage down: still 200 so Telegram does not hammer the endpoint.
	if status := d.Dispatch(context.Background(), privateUpdate(5, "hi")); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}
