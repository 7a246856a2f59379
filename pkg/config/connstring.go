package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Parse errors. All are deterministic validation failures; none are
// retryable.
var (
	ErrWrongFieldCount    = errors.New("connection string must have exactly 3 fields")
	ErrMalformedField     = errors.New("connection string field has wrong key")
	ErrEmptyValue         = errors.New("connection string field has empty value")
	ErrInvalidKeyEncoding = errors.New("shared access key is not valid base64")
)

const (
	hostNamePrefix  = "hostname="
	deviceIDPrefix  = "deviceid="
	sharedKeyPrefix = "sharedaccesskey="
)

// ConnectionString is the parsed form of a device connection string. It is
// immutable after ParseConnectionString returns it.
type ConnectionString struct {
	HostName        string
	DeviceID        string
	SharedAccessKey string // base64, as supplied
	SharedKey       []byte // decoded key material
}

// ParseConnectionString parses a string of the form
//
//	HostName=<host>;DeviceId=<id>;SharedAccessKey=<base64-key>
//
// Field names are case-insensitive but the order is fixed. The shared key
// value is cut by prefix length rather than split on '=', so base64 padding
// inside the key survives.
func ParseConnectionString(raw string) (*ConnectionString, error) {
	segments := strings.Split(raw, ";")
	if len(segments) != 3 {
		return nil, fmt.Errorf("%w: got %d", ErrWrongFieldCount, len(segments))
	}

	hostName, err := fieldValue(segments[0], hostNamePrefix)
	if err != nil {
		return nil, err
	}
	deviceID, err := fieldValue(segments[1], deviceIDPrefix)
	if err != nil {
		return nil, err
	}
	keyB64, err := fieldValue(segments[2], sharedKeyPrefix)
	if err != nil {
		return nil, err
	}

	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}

	return &ConnectionString{
		HostName:        hostName,
		DeviceID:        deviceID,
		SharedAccessKey: keyB64,
		SharedKey:       key,
	}, nil
}

// String re-serializes the connection string in canonical field casing.
// Parsing the result yields an equal ConnectionString.
func (cs *ConnectionString) String() string {
	return "HostName=" + cs.HostName + ";DeviceId=" + cs.DeviceID + ";SharedAccessKey=" + cs.SharedAccessKey
}

func fieldValue(segment, prefix string) (string, error) {
	if len(segment) < len(prefix) || !strings.EqualFold(segment[:len(prefix)], prefix) {
		return "", fmt.Errorf("%w: want %q", ErrMalformedField, strings.TrimSuffix(prefix, "="))
	}
	value := segment[len(prefix):]
	if value == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyValue, strings.TrimSuffix(prefix, "="))
	}
	return value, nil
}
