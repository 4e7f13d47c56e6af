package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

type IDType string

const (
	IDTypeGate    IDType = "gate"
	IDTypeMessage IDType = "msg"
)

var validIDTypes = map[IDType]bool{
	IDTypeGate:    true,
	IDTypeMessage: true,
}

var idRegex = regexp.MustCompile(`^(gate|msg)_[0-9]{10}_[0-9a-zA-Z]{22}$`)

// GenerateID builds a sortable, collision-resistant identifier:
// <type>_<unix seconds, 10 digits>_<short uuid>.
func GenerateID(idType IDType) (string, error) {
	if !validIDTypes[idType] {
		return "", fmt.Errorf("invalid ID type: %s", idType)
	}
	return fmt.Sprintf("%s_%010d_%s", idType, time.Now().Unix(), shortuuid.New()), nil
}

func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}
