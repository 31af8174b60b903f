package flux

import "testing"

func TestSendAudioBeforeConnectDropsFrame(t *testing.T) {
	client := NewClient()

	if err := client.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("expected frame before connect to be dropped silently, got %v", err)
	}
}

func TestCloseBeforeConnectIsSafe(t *testing.T) {
	client := NewClient()

	client.Close()
	client.Close()

	if err := client.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("expected frame after close to be dropped silently, got %v", err)
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	client := NewClient(
		WithBaseURL("wss://example.test/listen"),
		WithAPIKey("key"),
		WithModel("flux-test"),
		WithEndOfTurnThresholds(0.9, 0.6),
	)

	if client.baseURL != "wss://example.test/listen" {
		t.Fatalf("expected base url override, got %q", client.baseURL)
	}
	if client.model != "flux-test" {
		t.Fatalf("expected model override, got %q", client.model)
	}
	if client.eotThreshold != 0.9 || client.eagerEotThreshold != 0.6 {
		t.Fatalf("expected threshold overrides, got %v and %v", client.eotThreshold, client.eagerEotThreshold)
	}
}
