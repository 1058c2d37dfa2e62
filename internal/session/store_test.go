package session

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStoreConversationAndHistory(t *testing.T) {
	s := NewStore(time.Minute, 10)
	defer s.Close()

	s.StoreConversation("sess1", Turn{UserMsg: "hello", Assistant: "hi there"})
	history := s.GetConversationHistory("sess1")
	if len(history) != 1 || history[0].Assistant != "hi there" {
		t.Fatalf("history = %+v", history)
	}
}

func TestStoreTrimsToMaxTurns(t *testing.T) {
	s := NewStore(time.Minute, 2)
	defer s.Close()
	for i := 0; i < 5; i++ {
		s.StoreConversation("sess1", Turn{UserMsg: "q", Assistant: "a"})
	}
	if len(s.GetConversationHistory("sess1")) != 2 {
		t.Errorf("expected trimming to 2 turns, got %d", len(s.GetConversationHistory("sess1")))
	}
}

func TestRetrieveRelevantMemoriesMatchesKeyword(t *testing.T) {
	s := NewStore(time.Minute, 10)
	defer s.Close()
	s.StoreConversation("sess1", Turn{UserMsg: "how do I configure the database", Assistant: "use config.yaml"})
	s.StoreConversation("sess1", Turn{UserMsg: "what's the weather", Assistant: "sunny"})

	matches := s.RetrieveRelevantMemories("sess1", "database configuration", 5)
	if len(matches) != 1 {
		t.Fatalf("matches = %+v, want exactly one", matches)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_cache")
	records := [][]byte{[]byte("one"), []byte("two"), []byte("three")}

	if err := WriteRecords(path, records); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got := ReadRecords(path)
	if len(got) != 3 || string(got[1]) != "two" {
		t.Errorf("got %v, want %v", toStrings(got), toStrings(records))
	}
}

func TestReadRecordsMissingFileReturnsNilNotError(t *testing.T) {
	got := ReadRecords(filepath.Join(t.TempDir(), "does-not-exist"))
	if got != nil {
		t.Errorf("expected nil for missing cache, got %v", got)
	}
}

func toStrings(recs [][]byte) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = string(r)
	}
	return out
}
