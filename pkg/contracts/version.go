package contracts

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
)

// supportedMajor is the artifact contract major version this build reads.
var supportedMajor = semver.MustParse(canonicalize.ContractVersion).Major()

// CheckContractVersion rejects records written under an incompatible
// contract major version.
func CheckContractVersion(v string) error {
	if v == "" {
		return emptyField("contract_version")
	}
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return invalidValue("contract_version", err.Error())
	}
	if parsed.Major() != supportedMajor {
		return invalidValue("contract_version", fmt.Sprintf("major version %d is not supported (want %d)", parsed.Major(), supportedMajor))
	}
	return nil
}
