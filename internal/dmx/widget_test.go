package dmx

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func feedAll(p *WidgetParser, data []byte) []WidgetMessage {
	var out []WidgetMessage
	for _, b := range data {
		if msg, ok := p.Feed(b); ok {
			out = append(out, msg)
		}
	}
	return out
}

func TestWidgetParser(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []WidgetMessage
		resyncs int
	}{
		{
			name:  "single message",
			input: EncodeWidgetMessage(LabelReceivedDMX, []byte{0, 0, 10, 20}),
			want:  []WidgetMessage{{Label: LabelReceivedDMX, Payload: []byte{0, 0, 10, 20}}},
		},
		{
			name:  "leading garbage skipped",
			input: append([]byte{0x01, 0x02, 0xE7}, EncodeWidgetMessage(LabelReceivedDMX, []byte{0, 0})...),
			want:  []WidgetMessage{{Label: LabelReceivedDMX, Payload: []byte{0, 0}}},
		},
		{
			name:  "zero length payload",
			input: EncodeWidgetMessage(3, nil),
			want:  []WidgetMessage{{Label: 3, Payload: []byte{}}},
		},
		{
			name: "bad end byte resyncs on next start",
			input: append(
				[]byte{0x7E, 5, 2, 0, 0, 0, 0x7E},
				EncodeWidgetMessage(LabelReceivedDMX, []byte{0, 0, 1})[1:]...,
			),
			want:    []WidgetMessage{{Label: LabelReceivedDMX, Payload: []byte{0, 0, 1}}},
			resyncs: 1,
		},
		{
			name:    "oversized length rejected",
			input:   []byte{0x7E, 5, 0xFF, 0xFF},
			resyncs: 1,
		},
		{
			name: "two messages back to back",
			input: append(
				EncodeWidgetMessage(LabelReceivedDMX, []byte{0, 0, 1}),
				EncodeWidgetMessage(LabelReceivedDMX, []byte{0, 0, 2})...,
			),
			want: []WidgetMessage{
				{Label: LabelReceivedDMX, Payload: []byte{0, 0, 1}},
				{Label: LabelReceivedDMX, Payload: []byte{0, 0, 2}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p WidgetParser
			got := feedAll(&p, tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
			if p.Resyncs != tt.resyncs {
				t.Errorf("Resyncs = %d, want %d", p.Resyncs, tt.resyncs)
			}
		})
	}
}

func TestWidgetMessage_DMXPacket(t *testing.T) {
	tests := []struct {
		name    string
		msg     WidgetMessage
		want    []byte
		wantErr error
	}{
		{name: "ok", msg: WidgetMessage{Label: LabelReceivedDMX, Payload: []byte{0, 0, 7, 8}}, want: []byte{0, 7, 8}},
		{name: "overrun", msg: WidgetMessage{Label: LabelReceivedDMX, Payload: []byte{StatusOverrun, 0, 7}}, wantErr: ErrReceiveStatus},
		{name: "queue overflow", msg: WidgetMessage{Label: LabelReceivedDMX, Payload: []byte{StatusQueueOverflow, 0, 7}}, wantErr: ErrReceiveStatus},
		{name: "rdm start code", msg: WidgetMessage{Label: LabelReceivedDMX, Payload: []byte{0, 0xCC, 1}}, wantErr: ErrNotDimmerPacket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.DMXPacket()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("packet mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := (WidgetMessage{Label: 9, Payload: []byte{0, 0}}).DMXPacket(); err == nil {
		t.Error("expected error for non-DMX label")
	}
	if _, err := (WidgetMessage{Label: LabelReceivedDMX, Payload: []byte{0}}).DMXPacket(); err == nil {
		t.Error("expected error for short payload")
	}
}

func TestReceiveAlwaysRequest(t *testing.T) {
	want := []byte{0x7E, LabelReceiveMode, 1, 0, 0, 0xE7}
	if diff := cmp.Diff(want, ReceiveAlwaysRequest()); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}
