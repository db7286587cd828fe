package socketio

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

type enginePacketType byte

const (
	engineOpen    enginePacketType = '0'
	engineClose   enginePacketType = '1'
	enginePing    enginePacketType = '2'
	enginePong    enginePacketType = '3'
	engineMessage enginePacketType = '4'
)

type socketPacketType byte

const (
	socketConnect    socketPacketType = '0'
	socketDisconnect socketPacketType = '1'
	socketEvent      socketPacketType = '2'
	socketAck        socketPacketType = '3'
)

// splitNamespace strips an optional "/nsp," prefix.
func splitNamespace(s string) (namespace, rest string) {
	if !strings.HasPrefix(s, "/") {
		return "/", s
	}
	comma := strings.IndexByte(s, ',')
	if comma == -1 {
		return s, ""
	}
	return s[:comma], s[comma+1:]
}

// splitAckID strips an optional leading ack id.
func splitAckID(s string) (id *int, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return nil, s
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return nil, s
	}
	return &v, s[i:]
}

type eventPacket struct {
	Namespace string
	ID        *int
	Event     string
	Args      []json.RawMessage
}

func parseEvent(payload string) (eventPacket, error) {
	if payload == "" || payload[0] != byte(socketEvent) {
		return eventPacket{}, errors.New("not an event packet")
	}
	ns, rest := splitNamespace(payload[1:])
	id, rest := splitAckID(rest)
	if !strings.HasPrefix(rest, "[") {
		return eventPacket{}, errors.New("invalid event payload")
	}
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil {
		return eventPacket{}, err
	}
	if len(arr) == 0 {
		return eventPacket{}, errors.New("missing event name")
	}
	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return eventPacket{}, errors.New("invalid event name")
	}
	return eventPacket{Namespace: ns, ID: id, Event: name, Args: arr[1:]}, nil
}

func writeNamespace(b *strings.Builder, namespace string) {
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
}

// buildEvent encodes a socket.io EVENT packet, without the engine prefix.
func buildEvent(namespace, event string, args ...any) (string, error) {
	arr := make([]any, 0, 1+len(args))
	arr = append(arr, event)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte(byte(socketEvent))
	writeNamespace(&b, namespace)
	b.Write(data)
	return b.String(), nil
}

func buildConnect(namespace, sid string) (string, error) {
	data, err := json.Marshal(map[string]string{"sid": sid})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte(byte(socketConnect))
	writeNamespace(&b, namespace)
	b.Write(data)
	return b.String(), nil
}

func buildAck(namespace string, id int, args ...any) (string, error) {
	if args == nil {
		args = make([]any, 0)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte(byte(socketAck))
	writeNamespace(&b, namespace)
	b.WriteString(strconv.Itoa(id))
	b.Write(data)
	return b.String(), nil
}
