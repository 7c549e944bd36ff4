package framing

import (
	"encoding/json"
	"testing"
)

func TestExtract_Empty(t *testing.T) {
	b := NewBuffer(16, 1024)
	_, status := Extract(b)
	if status != StatusPartial {
		t.Fatalf("expected StatusPartial, got %v", status)
	}
}

func TestExtract_PartialObject(t *testing.T) {
	b := NewBuffer(16, 1024)
	_ = b.Append([]byte(`{"method":"SayHe`))

	_, status := Extract(b)
	if status != StatusPartial {
		t.Fatalf("expected StatusPartial, got %v", status)
	}
	if b.Len() != len(`{"method":"SayHe`) {
		t.Errorf("expected buffer untouched on partial, len=%d", b.Len())
	}
}

func TestExtract_CompleteObject(t *testing.T) {
	b := NewBuffer(16, 1024)
	payload := `{"method":"SayHello","id":1}`
	_ = b.Append([]byte(payload))

	frame, status := Extract(b)
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if string(frame) != payload {
		t.Errorf("expected frame %q, got %q", payload, string(frame))
	}
	if b.Len() != 0 {
		t.Errorf("expected buffer drained, len=%d", b.Len())
	}
}

func TestExtract_ConcatenatedObjects(t *testing.T) {
	b := NewBuffer(16, 1024)
	first := `{"method":"A","id":1}`
	second := `{"method":"B","id":2}`
	_ = b.Append([]byte(first + second))

	frame, status := Extract(b)
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if string(frame) != first {
		t.Errorf("expected first frame %q, got %q", first, string(frame))
	}

	frame2, status2 := Extract(b)
	if status2 != StatusOK {
		t.Fatalf("expected StatusOK on second extract, got %v", status2)
	}
	if string(frame2) != second {
		t.Errorf("expected second frame %q, got %q", second, string(frame2))
	}
	if b.Len() != 0 {
		t.Errorf("expected buffer fully drained, len=%d", b.Len())
	}
}

func TestExtract_InvalidJSON(t *testing.T) {
	b := NewBuffer(16, 1024)
	_ = b.Append([]byte(`{not json at all}`))

	_, status := Extract(b)
	if status != StatusInvalid {
		t.Fatalf("expected StatusInvalid, got %v", status)
	}
}

func TestExtract_ArbitraryByteSplitResilience(t *testing.T) {
	payload := `{"method":"GetCmdFree","params":[],"id":"abc"}`
	for split := 1; split < len(payload); split++ {
		b := NewBuffer(4, 1024)
		_ = b.Append([]byte(payload[:split]))

		if _, status := Extract(b); status == StatusInvalid {
			t.Fatalf("split %d: got StatusInvalid on a genuinely partial prefix", split)
		}

		_ = b.Append([]byte(payload[split:]))
		frame, status := Extract(b)
		if status != StatusOK {
			t.Fatalf("split %d: expected StatusOK once complete, got %v", split, status)
		}
		var got map[string]interface{}
		if err := json.Unmarshal(frame, &got); err != nil {
			t.Fatalf("split %d: frame did not round-trip as JSON: %v", split, err)
		}
	}
}

func TestBuffer_AppendRespectsMax(t *testing.T) {
	b := NewBuffer(4, 8)
	if err := b.Append([]byte("12345678")); err != nil {
		t.Fatalf("unexpected error filling to max: %v", err)
	}
	if err := b.Append([]byte("9")); err == nil {
		t.Fatal("expected ErrBufferFull when exceeding max")
	}
}

func TestBuffer_DrainPrefix(t *testing.T) {
	b := NewBuffer(16, 1024)
	_ = b.Append([]byte("abcdefgh"))

	b.DrainPrefix(3)
	if string(b.AsSlice()) != "defgh" {
		t.Errorf("expected \"defgh\", got %q", string(b.AsSlice()))
	}

	b.DrainPrefix(100)
	if b.Len() != 0 {
		t.Errorf("expected buffer emptied by over-large drain, len=%d", b.Len())
	}
}
