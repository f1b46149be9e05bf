package envutil

import (
	"testing"
	"time"
)

func TestIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("CS_TEST_INT", "abc")
	if got := Int("CS_TEST_INT", 7); got != 7 {
		t.Fatalf("Int: want=7 got=%d", got)
	}
	t.Setenv("CS_TEST_INT", " 12 ")
	if got := Int("CS_TEST_INT", 7); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
}

func TestFloatAndBool(t *testing.T) {
	t.Setenv("CS_TEST_FLOAT", "0.85")
	if got := Float("CS_TEST_FLOAT", 0.7); got != 0.85 {
		t.Fatalf("Float: want=0.85 got=%v", got)
	}
	t.Setenv("CS_TEST_BOOL", "off")
	if Bool("CS_TEST_BOOL", true) {
		t.Fatalf("Bool: want=false")
	}
	t.Setenv("CS_TEST_BOOL", "")
	if !Bool("CS_TEST_BOOL", true) {
		t.Fatalf("Bool: want default true")
	}
}

func TestSeconds(t *testing.T) {
	t.Setenv("CS_TEST_SECONDS", "90")
	if got := Seconds("CS_TEST_SECONDS", time.Minute); got != 90*time.Second {
		t.Fatalf("Seconds: want=90s got=%s", got)
	}
	t.Setenv("CS_TEST_SECONDS", "0")
	if got := Seconds("CS_TEST_SECONDS", time.Minute); got != time.Minute {
		t.Fatalf("Seconds: want default got=%s", got)
	}
}
