package domain

import (
	"reflect"
	"testing"
)

func TestDiffRecord(t *testing.T) {
	t.Run("new record adds everything", func(t *testing.T) {
		added, removed := DiffRecord(Record{}, Record{"name": "hq", "status": "s1"})
		if len(added) != 2 || added["name"] != "hq" {
			t.Errorf("expected both fields added, got %v", added)
		}
		if len(removed) != 0 {
			t.Errorf("expected nothing removed, got %v", removed)
		}
	})

	t.Run("changed field records old value", func(t *testing.T) {
		before := Record{"name": "hq", "description": "old"}
		after := Record{"name": "hq", "description": "new"}
		added, removed := DiffRecord(before, after)
		if added["description"] != "new" {
			t.Errorf("expected description in added, got %v", added)
		}
		if removed["description"] != "old" {
			t.Errorf("expected old description in removed, got %v", removed)
		}
		if _, ok := added["name"]; ok {
			t.Error("unchanged field should not appear in added")
		}
	})

	t.Run("bookkeeping fields are skipped", func(t *testing.T) {
		added, _ := DiffRecord(Record{}, Record{"id": "x", "created_at": "now", "name": "hq"})
		if _, ok := added["id"]; ok {
			t.Error("id should never appear in a diff")
		}
		if _, ok := added["created_at"]; ok {
			t.Error("created_at should never appear in a diff")
		}
	})

	t.Run("numeric widths compare equal", func(t *testing.T) {
		added, _ := DiffRecord(Record{"vid": int64(100)}, Record{"vid": 100})
		if len(added) != 0 {
			t.Errorf("expected no diff for equal numbers, got %v", added)
		}
	})
}

func TestRevertValue(t *testing.T) {
	t.Run("scalar reverts when unchanged", func(t *testing.T) {
		v, ok := RevertValue("new", "new", "old")
		if !ok || v != "old" {
			t.Errorf("expected revert to old, got %v (ok=%v)", v, ok)
		}
	})

	t.Run("scalar keeps out-of-band edit", func(t *testing.T) {
		if _, ok := RevertValue("edited", "new", "old"); ok {
			t.Error("expected no revert when live value differs from journaled value")
		}
	})

	t.Run("scalar added with no prior value reverts to nil", func(t *testing.T) {
		v, ok := RevertValue("new", "new", nil)
		if !ok || v != nil {
			t.Errorf("expected nil revert, got %v (ok=%v)", v, ok)
		}
	})

	t.Run("maps merge", func(t *testing.T) {
		current := map[string]any{"a": "1", "b": "2", "c": "3"}
		added := map[string]any{"a": "1"}
		removed := map[string]any{"d": "4"}
		v, ok := RevertValue(current, added, removed)
		if !ok {
			t.Fatal("expected map revert to succeed")
		}
		want := map[string]any{"b": "2", "c": "3", "d": "4"}
		if !reflect.DeepEqual(v, want) {
			t.Errorf("expected %v, got %v", want, v)
		}
	})

	t.Run("map keeps keys edited since", func(t *testing.T) {
		current := map[string]any{"a": "changed"}
		added := map[string]any{"a": "1"}
		v, ok := RevertValue(current, added, nil)
		if !ok {
			t.Fatal("expected map revert to succeed")
		}
		if v.(map[string]any)["a"] != "changed" {
			t.Errorf("expected edited key to survive, got %v", v)
		}
	})
}
