package clock

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// ntpEpochOffset is the number of seconds between the NTP epoch (1900) and
// the Unix epoch (1970).
const ntpEpochOffset = 2208988800

// fetchNTPOffset performs a single round-trip exchange against host and
// returns the offset to apply to the local clock. The transit time is
// approximated as (t1+t4)/2, which is good enough for second-level schedule
// precision on unstable set-top hardware.
func fetchNTPOffset(ctx context.Context, host string) (time.Duration, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(host, "123"))
	if err != nil {
		return 0, fmt.Errorf("ntp dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, err
	}

	// LI=0, VN=3, Mode=3 (client).
	packet := make([]byte, 48)
	packet[0] = 0x1B

	t1 := time.Now()
	if _, err := conn.Write(packet); err != nil {
		return 0, fmt.Errorf("ntp send: %w", err)
	}
	if _, err := conn.Read(packet); err != nil {
		return 0, fmt.Errorf("ntp receive: %w", err)
	}
	t4 := time.Now()

	// Transmit timestamp: seconds since 1900 plus a 32-bit fraction.
	seconds := binary.BigEndian.Uint32(packet[40:44])
	fraction := binary.BigEndian.Uint32(packet[44:48])
	if seconds == 0 {
		return 0, fmt.Errorf("ntp response carries zero transmit timestamp")
	}

	serverUnixMillis := (int64(seconds)-ntpEpochOffset)*1000 + int64(fraction)*1000/(1<<32)
	serverTime := time.UnixMilli(serverUnixMillis)

	midpoint := t1.Add(t4.Sub(t1) / 2)
	return serverTime.Sub(midpoint), nil
}
