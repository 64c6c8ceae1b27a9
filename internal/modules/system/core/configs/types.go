package configs

import (
	_ "embed"
	"errors"
	"regexp"
	"sync"
)

const configKey = "configs"

// maskedSecret replaces stored credentials in every read path. Patches that
// send the placeholder back keep the stored value untouched.
const maskedSecret = "********"

var (
	errUnknownProviderAssignment  = errors.New("model assignment references an unknown ai provider")
	errDisabledProviderAssignment = errors.New("model assignment references a disabled ai provider")
)

//go:embed form_schema.template.json
var formSchemaTemplateRaw []byte

var providerNameUUIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var (
	formSchemaLoadOnce sync.Once
	formSchemaTemplate map[string]interface{}
	formSchemaLoadErr  error
)

type providerSelectOption struct {
	Label string
	Value string
}
