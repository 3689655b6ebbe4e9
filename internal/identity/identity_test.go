package identity

import (
	"context"
	"testing"
)

func TestU_OTPConfirmer(t *testing.T) {
	ctx := context.Background()
	confirmer := OTPConfirmer{}

	conf, err := confirmer.Confirm(ctx, "482913", "482913")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !conf.Confirmed {
		t.Error("matching code not confirmed")
	}
	if conf.Method != "otp" || conf.ConfirmedAt.IsZero() {
		t.Errorf("unexpected confirmation: %+v", conf)
	}

	conf, err = confirmer.Confirm(ctx, "482913", "000000")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if conf.Confirmed {
		t.Error("wrong code was confirmed")
	}

	conf, _ = confirmer.Confirm(ctx, "", "")
	if conf.Confirmed {
		t.Error("empty reference was confirmed")
	}
}

func TestU_DisplayName(t *testing.T) {
	s := Signer{Name: "Alice Martin", Email: "alice@example.org"}
	if s.DisplayName() != "Alice Martin" {
		t.Errorf("DisplayName = %s", s.DisplayName())
	}
	s.Name = ""
	if s.DisplayName() != "alice@example.org" {
		t.Errorf("DisplayName = %s", s.DisplayName())
	}
}
