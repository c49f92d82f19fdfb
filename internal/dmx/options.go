package dmx

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Line settings for the widget's USB serial bridge. The Enttec protocol
// runs over the bridge at whatever rate the host picks; the 250 kbaud 8N2
// DMX line lives on the far side of the widget.
const (
	DefaultWidgetBaud     = 57600
	DefaultWidgetDataBits = 8
	DefaultWidgetStopBits = 1
)

// PortOptions are the host-side settings for the widget's serial port.
// Zero values take the widget defaults.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

var parities = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

func parityCode(s string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "N", "NONE":
		return "N", true
	case "E", "EVEN":
		return "E", true
	case "O", "ODD":
		return "O", true
	}
	return "", false
}

// Normalize fills widget defaults and rejects settings the bridge cannot use.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultWidgetBaud
	}
	if o.DataBits == 0 {
		o.DataBits = DefaultWidgetDataBits
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = DefaultWidgetStopBits
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	code, ok := parityCode(o.Parity)
	if !ok {
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	o.Parity = code
	return o, nil
}

// SerialMode returns the go.bug.st/serial mode for opening the widget.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	stop := serial.OneStopBit
	if opts.StopBits == 2 {
		stop = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: stop,
		Parity:   parities[opts.Parity],
	}, nil
}
