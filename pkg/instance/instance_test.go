package instance

import "testing"

func TestIDPrefersEnv(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "cron-7")
	if got := ID("cron"); got != "cron-7" {
		t.Fatalf("expected env id, got %q", got)
	}
}

func TestIDFallsBack(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", " ")
	if got := ID("worker"); got == "" {
		t.Fatal("expected a non-empty id")
	}
}
