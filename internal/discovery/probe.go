package discovery

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// probeHost checks whether a host answers at all. ICMP echo is tried first
// but needs elevated privileges on most systems, so a TCP dial against a
// few common service ports serves as fallback.
func (s *Scanner) probeHost(ctx context.Context, ip string) bool {
	if err := icmpProbe(ip, s.probeTimeout); err == nil {
		return true
	}

	for _, port := range []string{"80", "443", "22"} {
		d := net.Dialer{Timeout: s.probeTimeout / 2}
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, port))
		if err == nil {
			conn.Close()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

func icmpProbe(dst string, timeout time.Duration) error {
	host, err := net.ResolveIPAddr("ip4", dst)
	if err != nil {
		return err
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return err
	}
	defer conn.Close()

	message := &icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   1,
			Seq:  1,
			Data: []byte("netsentry"),
		},
	}

	data, err := message.Marshal(nil)
	if err != nil {
		return err
	}

	if _, err := conn.WriteTo(data, host); err != nil {
		return err
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	reply := make([]byte, 1500)
	n, _, err := conn.ReadFrom(reply)
	if err != nil {
		return err
	}

	replyMsg, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), reply[:n])
	if err != nil {
		return err
	}
	if replyMsg.Type != ipv4.ICMPTypeEchoReply {
		return net.UnknownNetworkError("unexpected icmp reply type")
	}
	return nil
}
