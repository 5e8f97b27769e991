package migrations

import (
	"io"
	"os"
	"strings"
	"testing"
)

func TestSource_Versions(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	if first != 1 {
		t.Errorf("First() = %d, want 1", first)
	}

	version := first
	for {
		up, _, err := src.ReadUp(version)
		if err != nil {
			t.Fatalf("ReadUp(%d) error = %v", version, err)
		}
		up.Close()

		down, _, err := src.ReadDown(version)
		if err != nil {
			t.Fatalf("ReadDown(%d) error = %v (every migration needs a down)", version, err)
		}
		down.Close()

		next, err := src.Next(version)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			t.Fatalf("Next(%d) error = %v", version, err)
		}
		version = next
	}
}

func TestSource_CreatesLoaderColumns(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	defer src.Close()

	r, _, err := src.ReadUp(1)
	if err != nil {
		t.Fatalf("ReadUp(1) error = %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	sql := string(data)

	if !strings.Contains(sql, "dbo.yelp_restaurants") {
		t.Error("migration does not create dbo.yelp_restaurants")
	}
	for _, col := range []string{
		"latitude", "longitude", "id", "address1", "address2", "address3",
		"city", "country", "state", "name", "rating", "review_count", "tdate",
	} {
		if !strings.Contains(sql, "\n    "+col+" ") {
			t.Errorf("migration missing column %q", col)
		}
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New("notadb://nowhere"); err == nil {
		t.Error("New() expected error for unknown database scheme")
	}
}
