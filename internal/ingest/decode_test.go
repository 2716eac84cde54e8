package ingest

import (
	"testing"
	"time"
)

func TestDecodeDeclaredWindows1252(t *testing.T) {
	text, enc := Decode([]byte("\x93VPN\x94 down \x96 caf\xe9"), "windows-1252")
	if text != "“VPN” down – café" || enc != "windows-1252" {
		t.Fatalf("Decode = %q, %q", text, enc)
	}
}

func TestDecodeUTF8BOM(t *testing.T) {
	text, enc := Decode([]byte("\xEF\xBB\xBFNumber,Summary"), "")
	if text != "Number,Summary" || enc != EncodingUTF8 {
		t.Fatalf("Decode = %q, %q", text, enc)
	}
}

func TestDecodeUTF16LE(t *testing.T) {
	raw := []byte{0xFF, 0xFE, 'N', 0, 'o', 0, ',', 0, 'x', 0}
	text, enc := Decode(raw, "")
	if text != "No,x" || enc != EncodingUTF16LE {
		t.Fatalf("Decode = %q, %q", text, enc)
	}
}

func TestDecodeLegacyBytesNeverFail(t *testing.T) {
	raw := []byte("Number,Short description\nINC1,caf\xe9 au lait machine is broken again\n")
	text, enc := Decode(raw, "")
	if enc == EncodingUTF8 || text == "" {
		t.Fatalf("expected a legacy decoding, got %q via %q", text, enc)
	}
	for _, r := range text {
		if r == '\uFFFD' {
			t.Fatalf("replacement rune in %q", text)
		}
	}
}

func TestDecodeBadDeclaredFallsBack(t *testing.T) {
	text, enc := Decode([]byte("plain ascii"), "no-such-charset")
	if text != "plain ascii" || enc != EncodingUTF8 {
		t.Fatalf("Decode = %q, %q", text, enc)
	}
}

func TestDateParser(t *testing.T) {
	p := DateParser{Layouts: []string{"2006-01-02 15:04:05"}, Lenient: true}
	if got := p.Parse("2024-03-01 09:15:00"); got == nil || got.Hour() != 9 {
		t.Fatalf("layout parse failed: %v", got)
	}
	if got := p.Parse("March 5, 2024"); got == nil || got.Day() != 5 || got.Month() != time.March {
		t.Fatalf("lenient parse failed: %v", got)
	}
	if got := p.Parse("tomorrow-ish"); got != nil {
		t.Fatalf("expected nil for garbage, got %v", got)
	}
	strict := DateParser{Layouts: []string{"2006-01-02"}}
	if got := strict.Parse("March 5, 2024"); got != nil {
		t.Fatalf("strict parser should not fall back, got %v", got)
	}
}

func TestResolveColumnsPrefersSpecificAlias(t *testing.T) {
	cols := resolveColumns([]string{"ID", "Number", "Short_Description", "Description"})
	if cols[fieldNumber] != 1 {
		t.Fatalf("expected number column 1, got %d", cols[fieldNumber])
	}
	if cols[fieldShortDescription] != 2 || cols[fieldDescription] != 3 {
		t.Fatalf("unexpected mapping %+v", cols)
	}
}
