package remote

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ProfileParams is the typed form of the extra-parameter string handed to
// the traffic profile.
type ProfileParams struct {
	PacketName   string
	NbMTU        int
	NbIOAM       int
	InsertionDEX bool
	EncapMode    bool
}

const (
	keyPacketName   = "ioamPacketName"
	keyNbMTU        = "nbMTU"
	keyNbIOAM       = "nbIOAM"
	keyInsertionDEX = "insertionDEX"
	keyEncapMode    = "encapMode"
)

var profileKeys = []string{keyPacketName, keyNbMTU, keyNbIOAM, keyInsertionDEX, keyEncapMode}

var (
	ErrEmptyPacketName = errors.New("ioam packet name cannot be empty")
	ErrNegativeCount   = errors.New("nbMTU and nbIOAM cannot be < 0")
	ErrZeroCounts      = errors.New("cannot have both nbMTU and nbIOAM set to 0")
)

func (p ProfileParams) Validate() error {
	if p.PacketName == "" && !p.InsertionDEX {
		return ErrEmptyPacketName
	}
	if p.NbMTU < 0 || p.NbIOAM < 0 {
		return ErrNegativeCount
	}
	if p.NbMTU == 0 && p.NbIOAM == 0 {
		return ErrZeroCounts
	}
	return nil
}

// Encode renders the parameters in the fixed key order the profile expects:
// ioamPacketName=X,nbMTU=N,nbIOAM=M,insertionDEX=True,encapMode=False.
func (p ProfileParams) Encode() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if strings.ContainsAny(p.PacketName, ",=") {
		return "", fmt.Errorf("packet name %q contains a separator", p.PacketName)
	}
	return strings.Join([]string{
		keyPacketName + "=" + p.PacketName,
		keyNbMTU + "=" + strconv.Itoa(p.NbMTU),
		keyNbIOAM + "=" + strconv.Itoa(p.NbIOAM),
		keyInsertionDEX + "=" + pyBool(p.InsertionDEX),
		keyEncapMode + "=" + pyBool(p.EncapMode),
	}, ","), nil
}

// ParseProfileParams is the strict inverse of Encode. Unknown, duplicate
// and missing keys are errors, as are badly typed values.
func ParseProfileParams(s string) (ProfileParams, error) {
	var p ProfileParams
	seen := make(map[string]bool, len(profileKeys))

	for _, field := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return p, fmt.Errorf("field %q: expected key=value", field)
		}
		if seen[key] {
			return p, fmt.Errorf("duplicate key %s", key)
		}
		seen[key] = true

		var err error
		switch key {
		case keyPacketName:
			p.PacketName = value
		case keyNbMTU:
			p.NbMTU, err = strconv.Atoi(value)
		case keyNbIOAM:
			p.NbIOAM, err = strconv.Atoi(value)
		case keyInsertionDEX:
			p.InsertionDEX, err = parsePyBool(value)
		case keyEncapMode:
			p.EncapMode, err = parsePyBool(value)
		default:
			return p, fmt.Errorf("unknown key %s", key)
		}
		if err != nil {
			return p, fmt.Errorf("key %s: %w", key, err)
		}
	}

	for _, key := range profileKeys {
		if !seen[key] {
			return p, fmt.Errorf("missing key %s", key)
		}
	}
	return p, p.Validate()
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parsePyBool(s string) (bool, error) {
	switch s {
	case "True":
		return true, nil
	case "False":
		return false, nil
	default:
		return false, fmt.Errorf("expected True or False, got %q", s)
	}
}
