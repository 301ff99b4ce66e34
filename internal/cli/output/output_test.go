package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{" json ", FormatJSON, false},
		{"xml", "", true},
	}
	for _, c := range cases {
		got, err := ParseFormat(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPrintTable(t *testing.T) {
	data := NewTableData("NAME", "COUNT")
	data.AddRow("alpha", "1")
	data.AddRow("beta", "22")

	var buf bytes.Buffer
	if err := PrintTable(&buf, data); err != nil {
		t.Fatalf("PrintTable: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"NAME", "COUNT", "alpha", "beta", "22"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	err := SimpleTable(&buf, [][2]string{
		{"pending", "42"},
		{"halted", "false"},
	})
	if err != nil {
		t.Fatalf("SimpleTable: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "pending") || !strings.Contains(out, "42") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestPrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatJSON)

	if err := p.Print(map[string]int{"count": 3}); err != nil {
		t.Fatalf("Print: %v", err)
	}

	var decoded map[string]int
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["count"] != 3 {
		t.Errorf("count = %d, want 3", decoded["count"])
	}
}

func TestPrinter_YAML(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatYAML)

	if err := p.Print(map[string]string{"status": "ok"}); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if !strings.Contains(buf.String(), "status: ok") {
		t.Errorf("unexpected YAML output:\n%s", buf.String())
	}
}

func TestPrinter_TableFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable)

	// Not a TableRenderer, so the printer falls back to JSON.
	if err := p.Print(map[string]bool{"ok": true}); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if !strings.Contains(buf.String(), `"ok": true`) {
		t.Errorf("expected JSON fallback, got:\n%s", buf.String())
	}
}
