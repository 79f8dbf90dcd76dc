package plugins

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/mkpazon/TmiK/pkg/sdk"
	"go.uber.org/zap"
)

var builtins = map[string]sdk.Factory{
	"word_filter":  newWordFilter,
	"ignore_users": newIgnoreUsers,
	"uppercase":    newUppercase,
	"rewrite":      newRewrite,
	"prefix":       newPrefix,
	"state_log":    newStateLog,
}

// Builtin returns the factory registered under name.
func Builtin(name string) (sdk.Factory, bool) {
	f, ok := builtins[name]
	return f, ok
}

// BuiltinNames lists the builtin plugins, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func decode(ctx sdk.Context, out interface{}) error {
	if err := mapstructure.Decode(ctx.Config(), out); err != nil {
		return fmt.Errorf("decode plugin config: %w", err)
	}
	return nil
}

// WordFilter drops incoming messages whose text contains any of Words, and
// optionally refuses to send them too.
type WordFilter struct {
	sdk.Base
	Words         []string `mapstructure:"words"`
	CaseSensitive bool     `mapstructure:"case_sensitive"`
	Outgoing      bool     `mapstructure:"outgoing"`
}

func newWordFilter(ctx sdk.Context) (sdk.Plugin, error) {
	f := &WordFilter{}
	if err := decode(ctx, f); err != nil {
		return nil, err
	}
	if len(f.Words) == 0 {
		return nil, fmt.Errorf("word_filter: words is empty")
	}
	return f, nil
}

func (f *WordFilter) Name() string { return "word_filter" }

func (f *WordFilter) FilterIncoming(msg sdk.Message) bool { return !f.contains(msg.Text()) }

func (f *WordFilter) FilterOutgoing(raw string) bool {
	return !f.Outgoing || !f.contains(raw)
}

func (f *WordFilter) contains(text string) bool {
	if !f.CaseSensitive {
		text = strings.ToLower(text)
	}
	for _, w := range f.Words {
		if !f.CaseSensitive {
			w = strings.ToLower(w)
		}
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// IgnoreUsers drops every incoming message sent by one of Users.
type IgnoreUsers struct {
	sdk.Base
	Users []string `mapstructure:"users"`
	set   map[string]struct{}
}

func newIgnoreUsers(ctx sdk.Context) (sdk.Plugin, error) {
	p := &IgnoreUsers{}
	if err := decode(ctx, p); err != nil {
		return nil, err
	}
	p.set = make(map[string]struct{}, len(p.Users))
	for _, u := range p.Users {
		p.set[strings.ToLower(u)] = struct{}{}
	}
	return p, nil
}

func (p *IgnoreUsers) Name() string { return "ignore_users" }

func (p *IgnoreUsers) FilterIncoming(msg sdk.Message) bool {
	_, ignored := p.set[strings.ToLower(msg.Nick())]
	return !ignored
}

// Uppercase upper-cases the text of incoming PRIVMSGs.
type Uppercase struct{ sdk.Base }

func newUppercase(sdk.Context) (sdk.Plugin, error) { return Uppercase{}, nil }

func (Uppercase) Name() string { return "uppercase" }

func (Uppercase) MapIncoming(msg sdk.Message) sdk.Message {
	if msg.Command != "PRIVMSG" {
		return msg
	}
	return msg.WithText(strings.ToUpper(msg.Text()))
}

// Rewrite applies a regexp replacement to outgoing raw lines.
type Rewrite struct {
	sdk.Base
	Pattern string `mapstructure:"pattern"`
	Replace string `mapstructure:"replace"`
	re      *regexp.Regexp
}

func newRewrite(ctx sdk.Context) (sdk.Plugin, error) {
	p := &Rewrite{}
	if err := decode(ctx, p); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}
	p.re = re
	return p, nil
}

func (p *Rewrite) Name() string { return "rewrite" }

func (p *Rewrite) MapOutgoing(raw string) string { return p.re.ReplaceAllString(raw, p.Replace) }

// Prefix prepends Text to the chat text of outgoing PRIVMSGs.
type Prefix struct {
	sdk.Base
	Text string `mapstructure:"text"`
}

func newPrefix(ctx sdk.Context) (sdk.Plugin, error) {
	p := &Prefix{}
	if err := decode(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prefix) Name() string { return "prefix" }

func (p *Prefix) MapOutgoing(raw string) string {
	if !strings.HasPrefix(raw, "PRIVMSG ") {
		return raw
	}
	head, text, ok := strings.Cut(raw, " :")
	if !ok {
		return raw
	}
	return head + " :" + p.Text + text
}

// StateLog writes every connection state change to the log.
type StateLog struct {
	sdk.Base
	log *zap.Logger
}

func newStateLog(ctx sdk.Context) (sdk.Plugin, error) {
	return &StateLog{log: ctx.Log()}, nil
}

func (p *StateLog) Name() string { return "state_log" }

func (p *StateLog) OnConnectionStateChange(state sdk.ConnectionState) {
	p.log.Info("connection state changed", zap.Stringer("state", state))
}
