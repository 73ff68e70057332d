package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser("Shft_Secure_Bot")

	tests := []struct {
		name      string
		text      string
		wantCmd   string
		wantArgs  []string
		isCommand bool
	}{
		{"slash", "/loyalty", "loyalty", nil, true},
		{"args", "/buy 3", "buy", []string{"3"}, true},
		{"start ref", "/start 12345", "start", []string{"12345"}, true},
		{"bang russian", "!Цены", "цены", nil, true},
		{"dot", ".платежи", "платежи", nil, true},
		{"mention", "/prices@shft_secure_bot", "prices", nil, true},
		{"other bot", "/prices@other_bot", "", nil, false},
		{"spaces", "  /buy   12  ", "buy", []string{"12"}, true},
		{"plain text", "привет", "", nil, false},
		{"only prefix", "/", "", nil, false},
		{"empty", "", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := p.ParseCommand(tt.text)
			assert.Equal(t, tt.isCommand, ok)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
