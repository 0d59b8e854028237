package at_test

import (
	"testing"

	"i4.energy/across/blelink/at"
)

func TestCommand(t *testing.T) {
	tests := []struct {
		name          string
		cmd           at.Command
		request       string
		reply         string
		expectsAnswer bool
	}{
		{name: "Bare probe", cmd: at.Command{}, request: "AT", reply: "OK", expectsAnswer: true},
		{name: "Query without value", cmd: at.Command{Name: at.CmdRenew}, request: "AT+RENEW", reply: "OK+RENEW", expectsAnswer: true},
		{name: "Set mode", cmd: at.Command{Name: at.CmdMode, Value: "1"}, request: "AT+MODE1", reply: "OK+Set:1", expectsAnswer: true},
		{name: "Set service UUID", cmd: at.Command{Name: at.CmdUUID, Value: "0x1800"}, request: "AT+UUID0x1800", reply: "OK+Set:0x1800", expectsAnswer: true},
		{name: "Connect is fire and forget", cmd: at.Connect("D03972A5F1C2"), request: "AT+COND03972A5F1C2", reply: "", expectsAnswer: false},
		{name: "Connect without address waits for reply", cmd: at.Command{Name: at.CmdConnect}, request: "AT+CON", reply: "OK+CON", expectsAnswer: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.Request(); got != tt.request {
				t.Errorf("Request() = %q, expected %q", got, tt.request)
			}
			reply, ok := tt.cmd.Reply()
			if reply != tt.reply || ok != tt.expectsAnswer {
				t.Errorf("Reply() = (%q, %v), expected (%q, %v)", reply, ok, tt.reply, tt.expectsAnswer)
			}
		})
	}
}

func TestInitScript(t *testing.T) {
	expected := []string{
		"AT",
		"AT+RENEW",
		"AT+IMME1",
		"AT+MODE1",
		"AT+COMP1",
		"AT+NOTI1",
		"AT+UUID0x1800",
		"AT+CHAR0x2A80",
		"AT+ROLE1",
	}

	script := at.InitScript()
	if len(script) != len(expected) {
		t.Fatalf("expected %d commands, got %d", len(expected), len(script))
	}
	for i, cmd := range script {
		if cmd.Request() != expected[i] {
			t.Errorf("step %d: expected %q, got %q", i, expected[i], cmd.Request())
		}
	}

	// Callers get their own copy.
	script[0].Name = "X"
	if at.InitScript()[0].Name != "" {
		t.Error("InitScript() should return a fresh slice")
	}
}
