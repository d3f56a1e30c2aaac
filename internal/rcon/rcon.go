// Package rcon implements the Source RCON wire protocol directly over
// net.Conn. No RCON client library appears anywhere in the example
// pack, so this is a from-scratch, stdlib-only exception, grounded on
// the original's connect/auth/cmd flow with Minecraft's RCON quirks
// enabled (see DESIGN.md).
package rcon

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/taurus-fleet/taurus/internal/fleeterrors"
)

// Source RCON packet types.
const (
	typeAuth         int32 = 3
	typeAuthResponse int32 = 2
	typeCommand      int32 = 2
	typeResponse     int32 = 0
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
	readTimeout  = 5 * time.Second

	maxPacketSize = 4096
)

// Target is an RCON endpoint.
type Target struct {
	IP       string
	Port     int
	Password string
}

// Addr returns the host:port dial address, defaulting IP to localhost
// when the session config leaves it blank.
func (t Target) Addr() string {
	ip := t.IP
	if ip == "" {
		ip = "127.0.0.1"
	}
	return net.JoinHostPort(ip, fmt.Sprintf("%d", t.Port))
}

// Send opens a connection, authenticates, and writes cmd, discarding
// the reply body. Failures return an ExternalProcess-kind error and
// never abort the caller's task.
func Send(target Target, cmd string) error {
	_, err := SendWithResponse(target, cmd)
	return err
}

// SendWithResponse is Send plus the server's reply body.
func SendWithResponse(target Target, cmd string) (string, error) {
	conn, err := net.DialTimeout("tcp", target.Addr(), dialTimeout)
	if err != nil {
		return "", fleeterrors.New(fleeterrors.ExternalProcess, "rcon: dial", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	if err := authenticate(conn, r, target.Password); err != nil {
		return "", fleeterrors.New(fleeterrors.ExternalProcess, "rcon: auth", err)
	}

	if err := writePacket(conn, 2, typeCommand, cmd); err != nil {
		return "", fleeterrors.New(fleeterrors.ExternalProcess, "rcon: send command", err)
	}

	_, _, body, err := readPacket(conn, r)
	if err != nil {
		return "", fleeterrors.New(fleeterrors.ExternalProcess, "rcon: read response", err)
	}
	return body, nil
}

func authenticate(conn net.Conn, r *bufio.Reader, password string) error {
	if err := writePacket(conn, 1, typeAuth, password); err != nil {
		return err
	}
	id, typ, _, err := readPacket(conn, r)
	if err != nil {
		return err
	}
	// Minecraft's RCON quirk: the server may emit an empty typeResponse
	// packet before the real auth-response packet. Read one extra packet
	// in that case, off the same buffered reader so no bytes already
	// pulled off the socket are lost.
	if typ == typeResponse {
		id, typ, _, err = readPacket(conn, r)
		if err != nil {
			return err
		}
	}
	if typ != typeAuthResponse || id == -1 {
		return fmt.Errorf("rcon: authentication rejected")
	}
	return nil
}

func writePacket(conn net.Conn, id, packetType int32, body string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	payload := append([]byte(body), 0x00, 0x00)
	size := int32(4 + 4 + len(payload))

	buf := make([]byte, 0, 4+size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(packetType))
	buf = append(buf, payload...)

	_, err := conn.Write(buf)
	return err
}

func readPacket(conn net.Conn, r *bufio.Reader) (id, packetType int32, body string, err error) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	var sizeBuf [4]byte
	if _, err = io.ReadFull(r, sizeBuf[:]); err != nil {
		return 0, 0, "", err
	}
	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size < 10 || size > maxPacketSize {
		return 0, 0, "", fmt.Errorf("rcon: invalid packet size %d", size)
	}

	rest := make([]byte, size)
	if _, err = io.ReadFull(r, rest); err != nil {
		return 0, 0, "", err
	}

	id = int32(binary.LittleEndian.Uint32(rest[0:4]))
	packetType = int32(binary.LittleEndian.Uint32(rest[4:8]))
	body = string(rest[8 : len(rest)-2])
	return id, packetType, body, nil
}
