package chat

import (
	"regexp"
	"strings"
)

// MessageFilter reports whether a user message carries enough content to
// update the long-term memory note.
type MessageFilter func(text string) bool

var wordRe = regexp.MustCompile(`[a-zа-яё0-9]+`)

// DefaultAckWords are replies that carry no memorable content.
var DefaultAckWords = []string{
	"ок", "окей", "ok", "okay", "ага", "угу", "да", "нет", "понял", "поняла",
	"ясно", "спасибо", "спс", "мерси", "сенкс", "окейно", "ладно", "хорошо",
	"привет", "здарова", "пока", "бай",
}

// NewAckFilter skips commands, acknowledgements and very short messages.
// A message of at most two words is skipped when every word is in ack or
// when it is shorter than ten characters.
func NewAckFilter(ack []string) MessageFilter {
	set := make(map[string]struct{}, len(ack))
	for _, w := range ack {
		set[strings.ToLower(w)] = struct{}{}
	}

	return func(text string) bool {
		t := strings.TrimSpace(text)
		if t == "" || strings.HasPrefix(t, "/") {
			return false
		}
		words := wordRe.FindAllString(strings.ToLower(t), -1)
		if len(words) == 0 {
			return false
		}
		if len(words) <= 2 {
			allAck := true
			for _, w := range words {
				if _, ok := set[w]; !ok {
					allAck = false
					break
				}
			}
			if allAck || len([]rune(t)) < 10 {
				return false
			}
		}
		return true
	}
}
