package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func TestReadText(t *testing.T) {
	cp1251, err := charmap.Windows1251.NewEncoder().String("Код сооб;Номер наряда")
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	tests := []struct {
		name    string
		input   []byte
		want    string
		wantErr error
	}{
		{
			name:  "utf-8 with BOM",
			input: append([]byte{0xEF, 0xBB, 0xBF}, []byte("Код сооб;Номер наряда")...),
			want:  "Код сооб;Номер наряда",
		},
		{
			name:  "utf-8 without BOM",
			input: []byte("A;B\n1;2"),
			want:  "A;B\n1;2",
		},
		{
			name:  "empty",
			input: []byte{},
			want:  "",
		},
		{
			name:  "only BOM",
			input: []byte{0xEF, 0xBB, 0xBF},
			want:  "",
		},
		{
			name:  "windows-1251 fallback",
			input: []byte(cp1251),
			want:  "Код сооб;Номер наряда",
		},
		{
			name:    "xlsx content",
			input:   []byte("PK\x03\x04rest-of-zip"),
			wantErr: ErrBinarySpreadsheet,
		},
		{
			name:    "xls content",
			input:   []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1},
			wantErr: ErrBinarySpreadsheet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadText(bytes.NewReader(tt.input), TextOptions{})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadText_MaxBytes(t *testing.T) {
	input := strings.Repeat("x", 101)

	_, err := ReadText(strings.NewReader(input), TextOptions{MaxBytes: 100})
	if !errors.Is(err, ErrInputTooLarge) {
		t.Fatalf("err = %v, want ErrInputTooLarge", err)
	}

	got, err := ReadText(strings.NewReader(input[:100]), TextOptions{MaxBytes: 100})
	if err != nil || len(got) != 100 {
		t.Fatalf("exact limit: len %d, err %v", len(got), err)
	}
}

func TestReadText_Progress(t *testing.T) {
	input := strings.Repeat("row;value\n", 1000)

	var last int64
	calls := 0
	_, err := ReadText(strings.NewReader(input), TextOptions{
		Total: int64(len(input)),
		OnProgress: func(read, total int64) {
			if read < last {
				t.Errorf("progress went backwards: %d after %d", read, last)
			}
			if total != int64(len(input)) {
				t.Errorf("total = %d, want %d", total, len(input))
			}
			last = read
			calls++
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls == 0 || last != int64(len(input)) {
		t.Errorf("calls = %d, last = %d; want final report of %d", calls, last, len(input))
	}
}

func TestCountingReader(t *testing.T) {
	data := []byte("hello world, this is test data")
	cr := NewCountingReader(bytes.NewReader(data), int64(len(data)))

	buf := make([]byte, 10)
	n, _ := cr.Read(buf)
	if cr.BytesRead() != int64(n) {
		t.Errorf("BytesRead() = %d, want %d", cr.BytesRead(), n)
	}
	if p := cr.Progress(); p != n*100/len(data) {
		t.Errorf("Progress() = %d, want %d", p, n*100/len(data))
	}

	if _, err := io.ReadAll(cr); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if cr.Progress() != 100 {
		t.Errorf("final Progress() = %d, want 100", cr.Progress())
	}

	unknown := NewCountingReader(bytes.NewReader(data), 0)
	io.ReadAll(unknown)
	if unknown.Progress() != 0 {
		t.Errorf("Progress() with unknown total = %d, want 0", unknown.Progress())
	}
}
