package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"
)

// Credentials identify the organization/project a request talks to. The token
// is sent as the basic-auth username with an empty password.
type Credentials struct {
	Organization string
	Project      string
	Team         string
	Token        string
}

// Parameter names used on the query string and in validation errors.
const (
	ParamOrganization = "organization"
	ParamProject      = "project"
	ParamTeam         = "team"
	ParamToken        = "personalAccessToken"
)

func required(value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("is required")
	}
	return nil
}

// Validate reports every missing required parameter as a criterio.FieldErrors.
func (c Credentials) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run(ParamOrganization, c.Organization, required),
		criterio.Run(ParamProject, c.Project, required),
		criterio.Run(ParamToken, c.Token, required),
	)
}

// MissingParameters lists the fields named by a validation error, in order.
func MissingParameters(err error) []string {
	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, fe.Field)
	}
	return names
}

// MissingParametersMessage renders the user facing text for a failed
// Credentials.Validate, e.g. "Missing required query parameter(s): project, personalAccessToken".
func MissingParametersMessage(err error) string {
	names := MissingParameters(err)
	if len(names) == 0 {
		return ""
	}
	return fmt.Sprintf("Missing required query parameter(s): %s", strings.Join(names, ", "))
}

// Key identifies the credentials for caching. The token enters only as a
// hash, so entries loaded with one token are not served to another.
func (c Credentials) Key() string {
	sum := sha256.Sum256([]byte(c.Token))
	return c.Organization + "/" + c.Project + "/" + c.Team + "/" + hex.EncodeToString(sum[:8])
}
