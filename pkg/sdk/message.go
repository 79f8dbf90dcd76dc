package sdk

import "strings"

// Message is a parsed chat line. Plugins receive copies; Tags and Params
// are shared with the upstream value, so use Clone before mutating them.
type Message struct {
	Raw     string            `json:"raw"`
	Tags    map[string]string `json:"tags,omitempty"`
	Prefix  string            `json:"prefix,omitempty"`
	Command string            `json:"command"`
	Params  []string          `json:"params,omitempty"`
}

// Channel returns the first param when it names a channel.
func (m Message) Channel() string {
	if len(m.Params) > 0 && strings.HasPrefix(m.Params[0], "#") {
		return m.Params[0]
	}
	return ""
}

// Text returns the trailing param, which for PRIVMSG is the chat text.
func (m Message) Text() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Nick is the nickname part of the prefix.
func (m Message) Nick() string {
	nick, _, _ := strings.Cut(m.Prefix, "!")
	return nick
}

// WithText returns a copy whose trailing param is replaced by text.
func (m Message) WithText(text string) Message {
	out := m.Clone()
	if len(out.Params) == 0 {
		out.Params = []string{text}
	} else {
		out.Params[len(out.Params)-1] = text
	}
	return out
}

func (m Message) Clone() Message {
	out := m
	if m.Tags != nil {
		out.Tags = make(map[string]string, len(m.Tags))
		for k, v := range m.Tags {
			out.Tags[k] = v
		}
	}
	if m.Params != nil {
		out.Params = append([]string(nil), m.Params...)
	}
	return out
}
