package telegram

import "testing"

func TestIsAdmin(t *testing.T) {
	am := NewAuthManager("123, 456")

	if !am.IsAdmin(123) || !am.IsAdmin(456) {
		t.Error("listed IDs must be admins")
	}
	if am.IsAdmin(789) {
		t.Error("unlisted ID must not be admin")
	}
}

func TestIsAdmin_EmptyListAllowsAll(t *testing.T) {
	am := NewAuthManager("")

	if !am.IsAdmin(42) {
		t.Error("empty admin list must allow everyone")
	}
}

func TestIsAdmin_MalformedEntriesIgnored(t *testing.T) {
	am := NewAuthManager("123,abc,")

	if !am.IsAdmin(123) {
		t.Error("valid ID must survive malformed neighbors")
	}
	if am.IsAdmin(0) {
		t.Error("malformed entries must not grant access")
	}
}

func TestCheckRateLimit(t *testing.T) {
	am := NewAuthManager("")

	for i := 0; i < 5; i++ {
		if !am.CheckRateLimit(1, 5) {
			t.Fatalf("request %d within limit must pass", i+1)
		}
	}
	if am.CheckRateLimit(1, 5) {
		t.Error("request over limit must be rejected")
	}

	// Лимит на пользователя, не глобальный
	if !am.CheckRateLimit(2, 5) {
		t.Error("another user must have a fresh limit")
	}
}
