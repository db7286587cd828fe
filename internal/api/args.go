package api

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseScanArgs builds a scan of chatID from key=value arguments:
// from, to (YYYY-MM-DD), type, q and cap. A bare word is taken as the query.
func ParseScanArgs(chatID, args string) (ScanRequest, error) {
	req := ScanRequest{ChatID: chatID}
	var words []string
	for _, tok := range strings.Fields(args) {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			words = append(words, tok)
			continue
		}
		switch strings.ToLower(key) {
		case "from":
			req.StartDate = val
		case "to":
			req.EndDate = val
		case "type":
			req.Type = val
		case "q":
			words = append(words, val)
		case "cap":
			n, err := strconv.Atoi(val)
			if err != nil {
				return ScanRequest{}, fmt.Errorf("cap must be a number, got %q", val)
			}
			req.Cap = &n
		default:
			return ScanRequest{}, fmt.Errorf("unknown scan option %q", key)
		}
	}
	req.Query = strings.Join(words, " ")
	return req, nil
}

// ParseProxy parses "off" or "<type> <host> <port> [user] [pass]".
func ParseProxy(args string) (Proxy, error) {
	f := strings.Fields(args)
	if len(f) == 1 && strings.EqualFold(f[0], "off") {
		return Proxy{}, nil
	}
	if len(f) < 3 || len(f) > 5 {
		return Proxy{}, fmt.Errorf("usage: proxy off | <type> <host> <port> [user] [pass]")
	}
	port, err := strconv.Atoi(f[2])
	if err != nil {
		return Proxy{}, fmt.Errorf("invalid port %q", f[2])
	}
	p := Proxy{Enabled: true, Type: strings.ToLower(f[0]), Host: f[1], Port: port}
	if len(f) > 3 {
		p.Username = f[3]
	}
	if len(f) > 4 {
		p.Password = f[4]
	}
	return p, nil
}
