package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xponent/shopcore/internal/domain"
)

const testCatalog = `[
	{"id": "p1", "name": "Classic Tote", "category": "tote bags", "brand": "aldo", "color": "black", "price": 59.99, "stock": 4},
	{"name": "City Backpack", "category": "backpacks", "brand": "guess", "color": "navy"},
	{"id": "p3", "name": "Evening Clutch", "category": "clutches", "price": 35.0, "stock": 0}
]`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	return path
}

func TestFileFeedFetchAll(t *testing.T) {
	feed := NewFileFeed(writeCatalog(t, testCatalog))

	products, next, err := feed.FetchBatch(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if next != "" {
		t.Errorf("expected exhausted feed, got cursor %q", next)
	}
	if len(products) != 3 {
		t.Fatalf("expected 3 products, got %d", len(products))
	}

	first := products[0]
	if first.ID != "p1" || first.SourceType != FileFeedID || first.SourceID != "p1" {
		t.Errorf("unexpected identity mapping: %+v", first)
	}
	if first.Status != domain.ProductStatusPending {
		t.Errorf("expected pending status, got %s", first.Status)
	}
	if first.Price == nil || *first.Price != 59.99 {
		t.Errorf("price not mapped: %+v", first.Price)
	}
}

func TestFileFeedPagination(t *testing.T) {
	feed := NewFileFeed(writeCatalog(t, testCatalog))
	ctx := context.Background()

	var all []domain.Product
	cursor := ""
	for rounds := 0; ; rounds++ {
		if rounds > 5 {
			t.Fatal("pagination did not terminate")
		}
		batch, next, err := feed.FetchBatch(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("FetchBatch failed: %v", err)
		}
		all = append(all, batch...)
		if next == "" {
			break
		}
		cursor = next
	}

	if len(all) != 3 {
		t.Errorf("expected 3 products across pages, got %d", len(all))
	}
}

func TestFileFeedGeneratesStableIDs(t *testing.T) {
	feed := NewFileFeed(writeCatalog(t, testCatalog))
	ctx := context.Background()

	first, _, err := feed.FetchBatch(ctx, "", 0)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	second, _, err := feed.FetchBatch(ctx, "", 0)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}

	// The record without an explicit ID must get the same generated ID on
	// every sync so re-ingest updates instead of duplicating.
	if first[1].ID == "" {
		t.Fatal("expected generated ID for record without one")
	}
	if first[1].ID != second[1].ID {
		t.Errorf("generated ID not stable: %s vs %s", first[1].ID, second[1].ID)
	}
}

func TestFileFeedInvalidCursor(t *testing.T) {
	feed := NewFileFeed(writeCatalog(t, testCatalog))
	if _, _, err := feed.FetchBatch(context.Background(), "not-a-number", 10); err == nil {
		t.Error("expected error for invalid cursor")
	}
}

func TestFileFeedMissingFile(t *testing.T) {
	feed := NewFileFeed(filepath.Join(t.TempDir(), "absent.json"))
	if _, _, err := feed.FetchBatch(context.Background(), "", 10); err == nil {
		t.Error("expected error for missing catalog file")
	}
}

func TestFileFeedPastEndIsEmpty(t *testing.T) {
	feed := NewFileFeed(writeCatalog(t, testCatalog))
	products, next, err := feed.FetchBatch(context.Background(), "10", 5)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if len(products) != 0 || next != "" {
		t.Errorf("expected empty terminal batch, got %d products cursor %q", len(products), next)
	}
}
