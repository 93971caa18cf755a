package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/model"
)

func createTestItem(t *testing.T, database *sql.DB, kind model.ItemKind, name, campus string) *model.Item {
	t.Helper()
	item, err := CreateItem(context.Background(), database, &model.Item{
		Kind:        kind,
		Name:        name,
		Description: "test " + name,
		Category:    "Other",
		Campus:      campus,
		OccurredAt:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		ContactName: "Ana",
	})
	if err != nil {
		t.Fatalf("CreateItem(%s): %v", name, err)
	}
	return item
}

func TestCreateAndGetItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "ana", "ana@example.com", "hash", model.RoleMember)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	owner := user.ID

	item, err := CreateItem(ctx, database, &model.Item{
		Kind:         model.KindLost,
		Name:         "Laptop",
		Description:  "Dell XPS 15",
		Category:     "Electronics",
		Campus:       "North Campus",
		Location:     "Library",
		OccurredAt:   time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		ContactName:  "Ana",
		ContactEmail: "ana@example.com",
		OwnerID:      &owner,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.ID == "" {
		t.Fatal("expected generated ID")
	}
	if item.Status != model.ItemStatusActive {
		t.Errorf("expected status 'active', got %q", item.Status)
	}
	if item.Kind != model.KindLost {
		t.Errorf("expected kind 'lost', got %q", item.Kind)
	}
	if !item.OwnedBy(owner) {
		t.Errorf("expected item to be owned by %d", owner)
	}
	if item.HasImage {
		t.Error("expected no image")
	}

	got, err := GetItem(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Name != "Laptop" || got.Location != "Library" || got.ContactEmail != "ana@example.com" {
		t.Errorf("unexpected item: %+v", got)
	}
	if got.ContactPhone != "" {
		t.Errorf("expected empty phone, got %q", got.ContactPhone)
	}
	if !got.OccurredAt.Equal(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("expected occurrence date to round-trip, got %v", got.OccurredAt)
	}

	missing, err := GetItem(ctx, database, "nope")
	if err != nil {
		t.Fatalf("GetItem missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing item")
	}
}

func TestListItemsFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createTestItem(t, database, model.KindLost, "Blue umbrella", "North Campus")
	createTestItem(t, database, model.KindLost, "Red wallet", "South Campus")
	createTestItem(t, database, model.KindFound, "Blue scarf", "North Campus")

	all, err := ListItems(ctx, database, model.ItemFilter{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 items, got %d", len(all))
	}

	lost, _ := ListItems(ctx, database, model.ItemFilter{Kind: model.KindLost})
	if len(lost) != 2 {
		t.Errorf("expected 2 lost items, got %d", len(lost))
	}

	blue, _ := ListItems(ctx, database, model.ItemFilter{Search: "blue"})
	if len(blue) != 2 {
		t.Errorf("expected 2 items matching 'blue', got %d", len(blue))
	}

	north, _ := ListItems(ctx, database, model.ItemFilter{Campus: "North Campus", Kind: model.KindFound})
	if len(north) != 1 || north[0].Name != "Blue scarf" {
		t.Errorf("expected only the scarf, got %+v", north)
	}

	limited, _ := ListItems(ctx, database, model.ItemFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected 1 item with limit, got %d", len(limited))
	}

	wildcard, _ := ListItems(ctx, database, model.ItemFilter{Search: "%"})
	if len(wildcard) != 0 {
		t.Errorf("expected literal %% search to match nothing, got %d", len(wildcard))
	}
}

func TestListItemsDateRange(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item := createTestItem(t, database, model.KindFound, "Keys", "North Campus")

	inside, _ := ListItems(ctx, database, model.ItemFilter{
		From: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC),
	})
	if len(inside) != 1 || inside[0].ID != item.ID {
		t.Errorf("expected item inside range, got %+v", inside)
	}

	after, _ := ListItems(ctx, database, model.ItemFilter{From: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)})
	if len(after) != 0 {
		t.Errorf("expected no items after range start, got %d", len(after))
	}
}

func TestListCandidates(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createTestItem(t, database, model.KindFound, "F1", "North Campus")
	createTestItem(t, database, model.KindFound, "F2", "North Campus")
	createTestItem(t, database, model.KindFound, "F3", "South Campus")
	createTestItem(t, database, model.KindFound, "F4", "north campus")
	createTestItem(t, database, model.KindLost, "L2", "North Campus")

	candidates, err := ListCandidates(ctx, database, model.KindFound, "North Campus", 0)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.Campus != "North Campus" || c.Kind != model.KindFound {
			t.Errorf("unexpected candidate %+v", c)
		}
	}

	capped, _ := ListCandidates(ctx, database, model.KindFound, "North Campus", 1)
	if len(capped) != 1 {
		t.Errorf("expected 1 capped candidate, got %d", len(capped))
	}

	none, err := ListCandidates(ctx, database, model.KindFound, "West Campus", 0)
	if err != nil {
		t.Fatalf("ListCandidates empty: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no candidates, got %d", len(none))
	}
}

func TestUpdateItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item := createTestItem(t, database, model.KindLost, "Phone", "North Campus")
	item.Description = "Black iPhone with cracked case"
	item.ContactPhone = "+386 40 000 000"
	if err := UpdateItem(ctx, database, item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got.Description != "Black iPhone with cracked case" || got.ContactPhone != "+386 40 000 000" {
		t.Errorf("update not persisted: %+v", got)
	}

	err := UpdateItem(ctx, database, &model.Item{ID: "missing", OccurredAt: time.Now()})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestItemImage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item := createTestItem(t, database, model.KindFound, "Photo Item", "North Campus")
	if err := SetItemImage(ctx, database, item.ID, []byte("full"), []byte("thumb"), "image/png"); err != nil {
		t.Fatalf("SetItemImage: %v", err)
	}

	data, mime, err := GetItemImage(ctx, database, item.ID, false)
	if err != nil {
		t.Fatalf("GetItemImage: %v", err)
	}
	if string(data) != "full" {
		t.Errorf("expected full image data, got %q", string(data))
	}
	if mime != "image/png" {
		t.Errorf("expected mime 'image/png', got %q", mime)
	}

	thumb, _, _ := GetItemImage(ctx, database, item.ID, true)
	if string(thumb) != "thumb" {
		t.Errorf("expected thumbnail data, got %q", string(thumb))
	}

	got, _ := GetItem(ctx, database, item.ID)
	if !got.HasImage {
		t.Error("expected HasImage after upload")
	}

	if err := SetItemImageKey(ctx, database, item.ID, "items/abc.png", "image/png"); err != nil {
		t.Fatalf("SetItemImageKey: %v", err)
	}
	key, _ := GetItemImageKey(ctx, database, item.ID)
	if key != "items/abc.png" {
		t.Errorf("expected image key, got %q", key)
	}
	data, _, _ = GetItemImage(ctx, database, item.ID, false)
	if data != nil {
		t.Error("expected inline image to be cleared when a key is set")
	}
}

func TestPurgeConcludedItems(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	active := createTestItem(t, database, model.KindLost, "Active", "North Campus")
	concluded := createTestItem(t, database, model.KindLost, "Concluded", "North Campus")
	referenced := createTestItem(t, database, model.KindLost, "Referenced", "North Campus")
	found := createTestItem(t, database, model.KindFound, "Found", "North Campus")

	if _, err := CreateMatch(ctx, database, referenced.ID, found.ID, 0.9, "same"); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	for _, id := range []string{concluded.ID, referenced.ID} {
		if _, err := ConcludeItem(ctx, database, id, "", "back home"); err != nil {
			t.Fatalf("ConcludeItem: %v", err)
		}
	}

	// Nothing is old enough yet.
	ids, err := PurgeConcludedItems(ctx, database, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeConcludedItems: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected nothing purged, got %v", ids)
	}

	ids, err = PurgeConcludedItems(ctx, database, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeConcludedItems: %v", err)
	}
	if len(ids) != 1 || ids[0] != concluded.ID {
		t.Errorf("expected only %s purged, got %v", concluded.ID, ids)
	}

	for _, id := range []string{active.ID, referenced.ID, found.ID} {
		if got, _ := GetItem(ctx, database, id); got == nil {
			t.Errorf("expected item %s to survive purge", id)
		}
	}
	if got, _ := GetItem(ctx, database, concluded.ID); got != nil {
		t.Error("expected concluded item to be purged")
	}
}
