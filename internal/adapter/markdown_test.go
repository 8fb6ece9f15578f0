package adapter

import "testing"

type captureSender struct {
	messages []string
}

func (s *captureSender) SendMessage(text string) error {
	s.messages = append(s.messages, text)
	return nil
}

func TestMarkdownSinkWrapsChunkInCodeBlock(t *testing.T) {
	sender := &captureSender{}
	sink := NewMarkdownSink(sender)

	if err := sink.SendChunk("total 4\ndrwxr-xr-x\n"); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	want := "```\ntotal 4\ndrwxr-xr-x\n```"
	if sender.messages[0] != want {
		t.Errorf("got %q, want %q", sender.messages[0], want)
	}
}

func TestMarkdownSinkEscapesFenceBreakers(t *testing.T) {
	sender := &captureSender{}
	sink := NewMarkdownSink(sender)

	if err := sink.SendChunk("a`b\\c"); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	want := "```\na\\`b\\\\c\n```"
	if sender.messages[0] != want {
		t.Errorf("got %q, want %q", sender.messages[0], want)
	}
}

func TestMarkdownSinkDoesNotDoubleTerminalNewline(t *testing.T) {
	sender := &captureSender{}
	sink := NewMarkdownSink(sender)

	if err := sink.SendChunk("line\n"); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	if got, want := sender.messages[0], "```\nline\n```"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
