package amqp

import (
	"testing"
)

func TestEntrySyncMessageRoundTrip(t *testing.T) {
	msg := NewEntrySyncMessage(KindTrip, 42, 3)
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	typ, err := messageType(data)
	if err != nil {
		t.Fatalf("message type: %v", err)
	}
	if typ != TypeEntrySync {
		t.Errorf("type = %q, want %q", typ, TypeEntrySync)
	}

	got, err := EntrySyncMessageFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != KindTrip || got.ID != 42 || got.Version != 3 {
		t.Errorf("got %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp must be set")
	}
}

func TestEntryDeleteMessageRoundTrip(t *testing.T) {
	msg := NewEntryDeleteMessage(KindEquipment, 7, 2024)
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	typ, err := messageType(data)
	if err != nil {
		t.Fatalf("message type: %v", err)
	}
	if typ != TypeEntryDelete {
		t.Errorf("type = %q, want %q", typ, TypeEntryDelete)
	}

	got, err := EntryDeleteMessageFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != KindEquipment || got.ID != 7 || got.Year != 2024 {
		t.Errorf("got %+v", got)
	}
}

func TestMessageTypeErrors(t *testing.T) {
	if _, err := messageType([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := messageType([]byte(`{"id": 1}`)); err == nil {
		t.Error("expected error for missing type field")
	}
}

func TestRequeue(t *testing.T) {
	if requeue(permanentError{errTest}) {
		t.Error("permanent errors must not requeue")
	}
	if !requeue(errTest) {
		t.Error("transient errors must requeue")
	}
}

var errTest = &testError{}

type testError struct{}

func (e *testError) Error() string { return "test error" }
