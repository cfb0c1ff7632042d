package validate

import (
	"github.com/go-playground/validator/v10"
)

// Validate is the shared validator instance, it caches struct metadata so should not be recreated.
var Validate = validator.New()
