package quiestce

import (
	"testing"

	"github.com/google/uuid"

	"github.com/quiestce/quiestce/directory"
	"github.com/quiestce/quiestce/internal/testutil"
)

func TestRenderPicker(t *testing.T) {
	page, err := renderPicker("xyz", []directory.Identity{testutil.Alice, testutil.Bob})
	if err != nil {
		t.Fatalf("renderPicker() error = %v", err)
	}

	want := `<!DOCTYPE html><html><head><title>Authorization</title></head><body>` +
		`<p><a href="/api/redirect/xyz/` + testutil.Alice.ID.String() + `">Login as Alice</a></p>` +
		`<p><a href="/api/redirect/xyz/` + testutil.Bob.ID.String() + `">Login as Bob</a></p>` +
		`</body></html>`
	if string(page) != want {
		t.Errorf("renderPicker() =\n%s\nwant\n%s", page, want)
	}
}

func TestRenderPicker_Escaping(t *testing.T) {
	id := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	page, err := renderPicker(`a"b/c`, []directory.Identity{{ID: id, Name: "<script>"}})
	if err != nil {
		t.Fatalf("renderPicker() error = %v", err)
	}

	want := `<!DOCTYPE html><html><head><title>Authorization</title></head><body>` +
		`<p><a href="/api/redirect/a%22b%2Fc/` + id.String() + `">Login as &lt;script&gt;</a></p>` +
		`</body></html>`
	if string(page) != want {
		t.Errorf("renderPicker() =\n%s\nwant\n%s", page, want)
	}
}

func TestRenderPicker_Empty(t *testing.T) {
	page, err := renderPicker("xyz", nil)
	if err != nil {
		t.Fatalf("renderPicker() error = %v", err)
	}
	want := `<!DOCTYPE html><html><head><title>Authorization</title></head><body></body></html>`
	if string(page) != want {
		t.Errorf("renderPicker() = %s, want %s", page, want)
	}
}
