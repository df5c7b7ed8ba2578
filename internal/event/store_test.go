package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"eventcert/internal/database"
	"eventcert/internal/layout"
	"eventcert/internal/recipient"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := NewStore(db, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStoreCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &Event{
		OwnerID:   7,
		Title:     "Hackathon",
		Responses: []recipient.Recipient{{Name: "Ada", Email: "ada@example.com"}},
	}
	if err := store.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.ID == "" {
		t.Fatalf("expected snowflake id")
	}

	got, err := store.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Hackathon" || got.RegistrationType != RegistrationUpload {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.CertificateLayout != nil {
		t.Fatalf("new event must have no stored layout")
	}
	if r, ok := got.FindResponse("ada@example.com"); !ok || r.Name != "Ada" {
		t.Fatalf("response not persisted: %+v", got.Responses)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreUpdateKeepsRemovedModules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &Event{OwnerID: 1, Title: "Meetup"}
	if err := store.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	l := layout.Default()
	l.QR = layout.Null[layout.QRField]()
	college := "MIT"
	got, err := store.Update(ctx, e.ID, Changes{CertificateLayout: &l, CollegeName: &college})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.CollegeName != "MIT" {
		t.Fatalf("college not updated: %q", got.CollegeName)
	}
	if got.CertificateLayout == nil || !got.CertificateLayout.QR.IsNull() {
		t.Fatalf("removed qr module was not persisted as null")
	}
	if !got.CertificateLayout.Name.IsSet() {
		t.Fatalf("name module lost on round trip")
	}

	title := "Renamed"
	if _, err := store.Update(ctx, "missing", Changes{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDeliveriesAndSyncable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	google := &Event{OwnerID: 1, Title: "Sheet", RegistrationType: RegistrationGoogle, GoogleSheetID: "abc"}
	upload := &Event{OwnerID: 1, Title: "Upload"}
	for _, e := range []*Event{google, upload} {
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	syncable, err := store.ListSyncable(ctx)
	if err != nil {
		t.Fatalf("list syncable: %v", err)
	}
	if len(syncable) != 1 || syncable[0].ID != google.ID {
		t.Fatalf("unexpected syncable events %+v", syncable)
	}

	for _, d := range []Delivery{
		{EventID: google.ID, Email: "a@x", Kind: "certificate", Status: DeliverySent},
		{EventID: google.ID, Email: "b@x", Kind: "certificate", Status: DeliveryFailed, Error: "boom"},
	} {
		if err := store.RecordDelivery(ctx, d); err != nil {
			t.Fatalf("record delivery: %v", err)
		}
	}
	ds, err := store.ListDeliveries(ctx, google.ID)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(ds) != 2 || ds[0].Email != "b@x" || ds[0].Status != DeliveryFailed {
		t.Fatalf("unexpected deliveries %+v", ds)
	}

	owned, err := store.ListByOwner(ctx, 1)
	if err != nil || len(owned) != 2 {
		t.Fatalf("list by owner: %v %d", err, len(owned))
	}
}

func TestPulseOf(t *testing.T) {
	e := &Event{}
	for i := 0; i < 12; i++ {
		e.Responses = append(e.Responses, recipient.Recipient{Email: fmt.Sprintf("u%d@x", i)})
	}
	p := PulseOf(e)
	if p.Count != 12 || len(p.Recent) != 10 {
		t.Fatalf("unexpected pulse %d/%d", p.Count, len(p.Recent))
	}
	if p.Recent[0].Email != "u11@x" || p.Recent[9].Email != "u2@x" {
		t.Fatalf("recent must be newest first: %+v", p.Recent)
	}

	if empty := PulseOf(&Event{}); empty.Count != 0 || len(empty.Recent) != 0 {
		t.Fatalf("unexpected empty pulse %+v", empty)
	}
}
