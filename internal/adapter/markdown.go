package adapter

import "strings"

// MessageSender posts one chat message.
type MessageSender interface {
	SendMessage(text string) error
}

// MarkdownSink is a TranscriptSink for markdown-rendering chat
// surfaces. Each chunk is delivered verbatim inside a fenced code
// block, with backslashes and backticks escaped so terminal output
// cannot break out of the fence.
type MarkdownSink struct {
	sender MessageSender
}

var codeBlockEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// NewMarkdownSink wraps a message sender.
func NewMarkdownSink(sender MessageSender) *MarkdownSink {
	return &MarkdownSink{sender: sender}
}

// SendChunk posts the chunk as one fenced code block.
func (s *MarkdownSink) SendChunk(text string) error {
	var b strings.Builder
	b.WriteString("```\n")
	codeBlockEscaper.WriteString(&b, text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("```")
	return s.sender.SendMessage(b.String())
}
