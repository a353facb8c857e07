package ubidots

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/gray-logic-relay/internal/directory"
	"github.com/nerrad567/gray-logic-relay/internal/metrics"
)

// Socket protocol constants.
const (
	// DefaultSocketHost and DefaultSocketPort address the translate service.
	DefaultSocketHost = "translate.ubidots.com"
	DefaultSocketPort = 9012

	// userAgent is the first field of every line.
	userAgent = "graylogic-relay"

	// deviceLabelPrefix builds a label for entries that have none.
	deviceLabelPrefix = "sigfox-device-"

	// maxDatagramSize is the largest UDP payload over IPv4.
	maxDatagramSize = 65507

	// defaultSocketTimeout bounds a write when ctx has no deadline.
	defaultSocketTimeout = 5 * time.Second
)

// SocketClient writes values with the translate line protocol and delegates
// every directory call to the embedded REST client.
type SocketClient struct {
	*Client

	network string
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewSocketClient wraps rest so that SetValues goes over network ("udp" or
// "tcp") to host:port.
func NewSocketClient(rest *Client, network, host string, port int) (*SocketClient, error) {
	switch network {
	case "udp", "tcp":
	default:
		return nil, fmt.Errorf("unsupported socket network %q", network)
	}
	if host == "" {
		host = DefaultSocketHost
	}
	if port <= 0 {
		port = DefaultSocketPort
	}
	return &SocketClient{
		Client:  rest,
		network: network,
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: defaultSocketTimeout,
	}, nil
}

// SetValues sends the batch as one line. An empty batch is a no-op.
// The session token comes from the embedded client's Authenticate.
func (s *SocketClient) SetValues(ctx context.Context, entry directory.Entry, values []directory.Value) error {
	if len(values) == 0 {
		return nil
	}
	token := s.Token()
	if token == "" {
		return ErrNotAuthenticated
	}

	line := EncodeLine(token, DeviceLabel(entry), values)
	if s.network == "udp" && len(line) > maxDatagramSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(line))
	}

	start := time.Now()
	err := s.send(ctx, line)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	metrics.RemoteRequestDuration.WithLabelValues(opSetValues+"_"+s.network, outcome).Observe(time.Since(start).Seconds())
	return err
}

func (s *SocketClient) send(ctx context.Context, line string) error {
	conn, err := s.dialer.DialContext(ctx, s.network, s.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrRequestFailed, s.addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrRequestFailed, err)
	}

	if _, err := conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("%w: write: %w", ErrRequestFailed, err)
	}
	if s.network == "udp" {
		return nil
	}

	// The TCP endpoint answers each line with OK or ERROR.
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && reply == "" {
		return fmt.Errorf("%w: read reply: %w", ErrRequestFailed, err)
	}
	if strings.HasPrefix(strings.TrimSpace(reply), "ERROR") {
		return fmt.Errorf("%w: %s", ErrRequestFailed, strings.TrimSpace(reply))
	}
	return nil
}

// DeviceLabel returns the label a socket line addresses: the entry's label,
// or one derived from its device ID.
func DeviceLabel(entry directory.Entry) string {
	if entry.Label != "" {
		return entry.Label
	}
	id, _ := directory.NormalizeDeviceID(entry.Name)
	return deviceLabelPrefix + strings.ToLower(id)
}

// EncodeLine formats values for deviceLabel as one protocol line. Values are
// written in name order. Context contributes only lat and lng.
func EncodeLine(token, deviceLabel string, values []directory.Value) string {
	sorted := make([]directory.Value, len(values))
	copy(sorted, values)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	fields := make([]string, 0, len(sorted))
	for _, v := range sorted {
		var b strings.Builder
		b.WriteString(v.Name)
		b.WriteByte(':')
		b.WriteString(formatValue(v.Value))

		lat, okLat := v.Context["lat"]
		lng, okLng := v.Context["lng"]
		if okLat && okLng {
			b.WriteString("$lat=")
			b.WriteString(formatValue(lat))
			b.WriteString("$lng=")
			b.WriteString(formatValue(lng))
		}
		if v.Timestamp > 0 {
			b.WriteByte('@')
			b.WriteString(strconv.FormatInt(v.Timestamp, 10))
		}
		fields = append(fields, b.String())
	}

	return strings.Join([]string{
		userAgent,
		"POST",
		token,
		deviceLabel + "=>" + strings.Join(fields, ","),
		"end",
	}, "|")
}

// formatValue renders a message value the way the protocol expects numbers.
func formatValue(v any) string {
	switch x := v.(type) {
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
