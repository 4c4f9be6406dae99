package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taoyao-code/relayctl/internal/protocol/relay"
)

func TestBoard_Handle(t *testing.T) {
	b := NewBoard(4, 0, nil)

	tests := []struct {
		name string
		req  []byte
		resp []byte
		mask byte
	}{
		{"ping", []byte{0xA5, 0x01, 0, 0}, relay.PongResponse(), 0x00},
		{"set 2 on", []byte{0xA5, 0x03, 2, 1}, relay.OKResponse(), 0x04},
		{"set 0 on", []byte{0xA5, 0x03, 0, 1}, relay.OKResponse(), 0x05},
		{"status", []byte{0xA5, 0x02, 0, 0}, relay.StatusResponse(0x05), 0x05},
		{"toggle 2", []byte{0xA5, 0x04, 2, 0}, relay.OKResponse(), 0x01},
		{"set invalid relay", []byte{0xA5, 0x03, 4, 1}, relay.ErrorResponse(relay.ErrCodeInvalidRelay), 0x01},
		{"toggle invalid relay", []byte{0xA5, 0x04, 7, 0}, relay.ErrorResponse(relay.ErrCodeInvalidRelay), 0x01},
		{"set all masks to relay count", []byte{0xA5, 0x05, 0xFF, 0}, relay.OKResponse(), 0x0F},
		{"set 3 off", []byte{0xA5, 0x03, 3, 0}, relay.OKResponse(), 0x07},
		{"unknown command", []byte{0xA5, 0x10, 0, 0}, relay.ErrorResponse(relay.ErrCodeUnknownCommand), 0x07},
		{"bad magic", []byte{0x00, 0x01, 0, 0}, relay.ErrorResponse(relay.ErrCodeBadMagic), 0x07},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, ok := b.Handle(tt.req)
			assert.True(t, ok)
			assert.Equal(t, tt.resp, resp)
			assert.Equal(t, tt.mask, b.Mask())
		})
	}
}

func TestBoard_ShortRequestIgnored(t *testing.T) {
	b := NewBoard(4, 0, nil)
	resp, ok := b.Handle([]byte{0xA5, 0x01})
	assert.False(t, ok)
	assert.Nil(t, resp)
}

func TestBoard_Defaults(t *testing.T) {
	b := NewBoard(0, 0xFF, nil)
	assert.Equal(t, 4, b.RelayCount())
	assert.Equal(t, byte(0x0F), b.Mask())

	b = NewBoard(8, 0xAA, nil)
	assert.Equal(t, byte(0xAA), b.Mask())
}

func TestBoard_FrameHook(t *testing.T) {
	b := NewBoard(4, 0, nil)
	var seen []relay.Command
	b.SetFrameHook(func(cmd relay.Command) { seen = append(seen, cmd) })

	b.Handle([]byte{0xA5, 0x01, 0, 0})
	b.Handle([]byte{0xA5, 0x05, 0x03, 0})
	b.Handle([]byte{0x00, 0x01, 0, 0}) // magic 错误不计入

	assert.Equal(t, []relay.Command{relay.CmdPing, relay.CmdSetAll}, seen)
}
