package notifier

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xaenox/moodmate/internal/models"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ConsoleSink writes one tagged line per notification:
//
//	[NOTIFY][morning] Good morning!
//	[NOTIFY][user:+911234567890] Your check-in is ready
type ConsoleSink struct {
	mu      sync.Mutex
	w       io.Writer
	charset string
	encoder *encoding.Encoder // nil for UTF-8
}

// NewConsoleSink resolves charset by its WHATWG name ("utf-8", "windows-1252",
// "iso-8859-1", ...). Runes the charset cannot represent are replaced.
func NewConsoleSink(w io.Writer, charset string) (*ConsoleSink, error) {
	s := &ConsoleSink{w: w, charset: "utf-8"}
	if strings.TrimSpace(charset) == "" {
		return s, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return s, fmt.Errorf("unknown console charset %q: %w", charset, err)
	}
	if enc == unicode.UTF8 {
		return s, nil
	}
	name, _ := htmlindex.Name(enc)
	s.charset = name
	s.encoder = encoding.ReplaceUnsupported(enc.NewEncoder())
	return s, nil
}

func (s *ConsoleSink) Name() string {
	return "console"
}

func (s *ConsoleSink) Charset() string {
	return s.charset
}

func (s *ConsoleSink) Deliver(ctx context.Context, n *models.Notification) error {
	tag := string(n.Channel)
	if n.IsDirect() {
		tag = "user:" + n.Recipient
	}

	// s.encoder is stateful
	s.mu.Lock()
	defer s.mu.Unlock()
	line := fmt.Sprintf("[NOTIFY][%s] %s\n", s.safeText(tag), s.safeText(n.Message))
	_, err := io.WriteString(s.w, line)
	return err
}

// safeText never fails: invalid UTF-8 becomes U+FFFD and runes outside the
// console charset become '?'.
func (s *ConsoleSink) safeText(text string) string {
	text = strings.ToValidUTF8(text, "�")
	if s.encoder == nil {
		return text
	}
	encoded, err := s.encoder.String(text)
	if err != nil {
		return text
	}
	// ReplaceUnsupported writes ASCII SUB, which terminals do not show
	return strings.ReplaceAll(encoded, string(rune(encoding.ASCIISub)), "?")
}
