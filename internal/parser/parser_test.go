package parser

import "testing"

func TestIdentitySplitter_PassesThrough(t *testing.T) {
	var s IdentitySplitter
	split, err := s.Split("some captured output\nwith multiple lines\n")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if split.Response != "some captured output\nwith multiple lines\n" {
		t.Errorf("unexpected Response: %q", split.Response)
	}
	if split.Cleaned != split.Response {
		t.Errorf("expected Cleaned to equal Response for the identity splitter")
	}
	if split.PromptEcho != "" {
		t.Errorf("expected no PromptEcho from the identity splitter, got %q", split.PromptEcho)
	}
}

var _ Splitter = IdentitySplitter{}
