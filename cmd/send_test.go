package cmd

import "testing"

func TestResolveSendText(t *testing.T) {
	original := sendText
	t.Cleanup(func() {
		sendText = original
	})

	sendText = " from-flag "
	if got := resolveSendText([]string{"from", "args"}); got != "from-flag" {
		t.Fatalf("resolveSendText with flag = %q, want %q", got, "from-flag")
	}

	sendText = ""
	if got := resolveSendText([]string{"hello", "world"}); got != "hello world" {
		t.Fatalf("resolveSendText with args = %q, want %q", got, "hello world")
	}

	if got := resolveSendText(nil); got != "" {
		t.Fatalf("resolveSendText without input = %q, want empty", got)
	}
}
