package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// CurrentSchemaVersion is the wire format version written by Encode.
const CurrentSchemaVersion = 2

const (
	sessionFormatVersionCurrent = 2
	sessionFormatVersionV1      = 1
)

const (
	maxTokenLen   = 1 << 16
	maxPayloadLen = 1 << 20
)

// ErrCorruptRecord is returned when a persisted session blob cannot be decoded.
var ErrCorruptRecord = errors.New("session record corrupt")

// Encode serializes a Session into the versioned binary wire format used for
// encrypted persistence. The layout is length-prefixed: uint8 for the session
// ID, uint16 for tokens, uint32 for the opaque identity payload.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.SessionID) > 255 {
		return nil, errors.New("session id too long")
	}
	buf.WriteByte(byte(len(s.SessionID)))
	buf.WriteString(s.SessionID)

	if err := writeToken(&buf, s.AccessToken); err != nil {
		return nil, err
	}
	if err := writeToken(&buf, s.RefreshToken); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(s.Provider))

	if len(s.User) >= maxPayloadLen {
		return nil, errors.New("identity payload too large")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(s.User))); err != nil {
		return nil, err
	}
	buf.Write(s.User)

	buf.Write(s.Fingerprint[:])

	if err := binary.Write(&buf, binary.BigEndian, s.Generation); err != nil {
		return nil, err
	}

	for _, ts := range []int64{s.CreatedAt, s.ExpiresAt, s.LastRefreshAt, s.LastActiveAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writeToken(buf *bytes.Buffer, token string) error {
	if len(token) >= maxTokenLen {
		return errors.New("token too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(token))); err != nil {
		return err
	}
	buf.WriteString(token)
	return nil
}

// Decode parses a persisted session blob. V1 records (written before the
// generation counter existed) decode with Generation zero and are rewritten
// at the current version on the next save.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if version != sessionFormatVersionCurrent && version != sessionFormatVersionV1 {
		return nil, ErrCorruptRecord
	}

	s := &Session{SchemaVersion: version}

	idLen, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, ErrCorruptRecord
	}
	s.SessionID = string(id)

	if s.AccessToken, err = readToken(reader); err != nil {
		return nil, err
	}
	if s.RefreshToken, err = readToken(reader); err != nil {
		return nil, err
	}

	provider, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	s.Provider = Provider(provider)

	var payloadLen uint32
	if err := binary.Read(reader, binary.BigEndian, &payloadLen); err != nil {
		return nil, ErrCorruptRecord
	}
	if payloadLen >= maxPayloadLen {
		return nil, ErrCorruptRecord
	}
	if payloadLen > 0 {
		s.User = make([]byte, payloadLen)
		if _, err := io.ReadFull(reader, s.User); err != nil {
			return nil, ErrCorruptRecord
		}
	}

	if _, err := io.ReadFull(reader, s.Fingerprint[:]); err != nil {
		return nil, ErrCorruptRecord
	}

	if version == sessionFormatVersionCurrent {
		if err := binary.Read(reader, binary.BigEndian, &s.Generation); err != nil {
			return nil, ErrCorruptRecord
		}
	}

	for _, ts := range []*int64{&s.CreatedAt, &s.ExpiresAt, &s.LastRefreshAt, &s.LastActiveAt} {
		if err := binary.Read(reader, binary.BigEndian, ts); err != nil {
			return nil, ErrCorruptRecord
		}
	}

	return s, nil
}

func readToken(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", ErrCorruptRecord
	}
	token := make([]byte, n)
	if _, err := io.ReadFull(reader, token); err != nil {
		return "", ErrCorruptRecord
	}
	return string(token), nil
}
