package templates

import (
	"regexp"
	"strings"
	"testing"
)

var appNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

func TestAppName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Shop", "shop"},
		{"My Cool_App", "my-cool-app"},
		{"  spaces  ", "spaces"},
		{"already-ok-123", "already-ok-123"},
		{"Ünïcödé Name", "n-c-d--name"},
		{"--leading and trailing--", "leading-and-trailing"},
		{"", "app"},
		{"!!!", "app"},
		{strings.Repeat("a", 80), strings.Repeat("a", maxAppNameLength)},
	}
	for _, tc := range cases {
		if got := AppName(tc.in); got != tc.want {
			t.Errorf("AppName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAppNameIsIdempotentAndValid(t *testing.T) {
	inputs := []string{
		"Shop", "My Cool_App", "a.b.c", "x--y", "ÆØÅ", "UPPER lower 42",
		strings.Repeat("ab-", 30), "-", "a" + strings.Repeat("-", 60) + "b", "日本語",
	}
	for _, in := range inputs {
		once := AppName(in)
		if twice := AppName(once); twice != once {
			t.Errorf("AppName not idempotent for %q: %q then %q", in, once, twice)
		}
		if !appNamePattern.MatchString(once) {
			t.Errorf("AppName(%q) = %q does not match [a-z0-9-]+", in, once)
		}
		if !resourceName.MatchString(once) {
			t.Errorf("AppName(%q) = %q is not a valid resource name", in, once)
		}
	}
}

func TestDatabaseName(t *testing.T) {
	if got := DatabaseName("my-shop"); got != "my_shop" {
		t.Errorf("DatabaseName = %q", got)
	}
}
