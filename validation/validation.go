// Package validation holds construction-time checks shared by every engine component.
package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// ErrInvalidConfig is returned (wrapped) by every constructor receiving bad thresholds
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct validates tagged config struct and wraps any violation into ErrInvalidConfig.
// The component name prefixes the message.
func Struct(component string, cfg interface{}) error {
	err := instance().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrapf(ErrInvalidConfig, "%s: %s", component, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fe.Namespace()+" must satisfy "+fe.Tag()+"="+fe.Param()+" (got "+fmt.Sprint(fe.Value())+")")
		} else {
			msgs = append(msgs, fe.Namespace()+" must satisfy "+fe.Tag()+" (got "+fmt.Sprint(fe.Value())+")")
		}
	}
	return errors.Wrapf(ErrInvalidConfig, "%s: %s", component, strings.Join(msgs, "; "))
}

// Fail wraps ErrInvalidConfig for cross-field rules that tags can not express
func Fail(component, format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, component+": "+format, args...)
}
