package config

import "testing"

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateRejectsSingleFloor(t *testing.T) {
	c := Defaults()
	c.Floors = 1
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for a single-floor configuration")
	}
}

func TestValidateRejectsSamePort(t *testing.T) {
	c := Defaults()
	c.PresencePort = c.BroadcastPort
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error when broadcast and presence ports collide")
	}
}

func TestValidateRejectsStuckTimeoutNotAbovePollInterval(t *testing.T) {
	c := Defaults()
	c.StuckTimeout = c.PollInterval
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error when stuck timeout does not exceed the poll interval")
	}
}
