package irc

import (
	"errors"
	"strings"

	"github.com/mkpazon/TmiK/pkg/sdk"
)

var ErrEmptyLine = errors.New("empty irc line")

var tagUnescaper = strings.NewReplacer(`\:`, ";", `\s`, " ", `\\`, `\`, `\r`, "\r", `\n`, "\n")

// ParseMessage splits one IRC line (IRCv3 tags included) into a sdk.Message.
// It does not validate commands or parameter counts.
func ParseMessage(line string) (sdk.Message, error) {
	line = strings.TrimRight(line, "\r\n")
	msg := sdk.Message{Raw: line}
	rest := line

	if strings.HasPrefix(rest, "@") {
		var tags string
		tags, rest, _ = strings.Cut(rest[1:], " ")
		msg.Tags = parseTags(tags)
		rest = strings.TrimLeft(rest, " ")
	}
	if strings.HasPrefix(rest, ":") {
		msg.Prefix, rest, _ = strings.Cut(rest[1:], " ")
		rest = strings.TrimLeft(rest, " ")
	}

	msg.Command, rest, _ = strings.Cut(rest, " ")
	if msg.Command == "" {
		return sdk.Message{}, ErrEmptyLine
	}
	msg.Command = strings.ToUpper(msg.Command)

	for rest != "" {
		rest = strings.TrimLeft(rest, " ")
		if strings.HasPrefix(rest, ":") {
			msg.Params = append(msg.Params, rest[1:])
			break
		}
		var p string
		p, rest, _ = strings.Cut(rest, " ")
		if p != "" {
			msg.Params = append(msg.Params, p)
		}
	}
	return msg, nil
}

func parseTags(s string) map[string]string {
	tags := make(map[string]string)
	for _, kv := range strings.Split(s, ";") {
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		tags[k] = tagUnescaper.Replace(v)
	}
	return tags
}

// PrivMsg formats a chat line for channel.
func PrivMsg(channel, text string) string {
	if !strings.HasPrefix(channel, "#") {
		channel = "#" + channel
	}
	return "PRIVMSG " + channel + " :" + text
}
