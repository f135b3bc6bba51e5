package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var versionTriple = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("plainfile", func(fl validator.FieldLevel) bool {
			return isPlainFileName(fl.Field().String())
		})
		_ = validate.RegisterValidation("versiontriple", func(fl validator.FieldLevel) bool {
			return versionTriple.MatchString(fl.Field().String())
		})
	})
	return validate
}

// isPlainFileName reports whether name is a single path element that stays
// inside the directory it is joined to
func isPlainFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name
}

// validateStruct runs the tag rules and reports the first violation in plain words
func validateStruct(c *Config) error {
	err := structValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return fieldError(fieldErrs[0])
}

func fieldError(fe validator.FieldError) error {
	switch fe.Namespace() {
	case "Config.Server.Name":
		return fmt.Errorf("server name cannot be empty")
	case "Config.Server.Port":
		return fmt.Errorf("invalid server port: %v", fe.Value())
	case "Config.Server.Host":
		return fmt.Errorf("server host cannot be empty")
	case "Config.Server.ReadTimeout", "Config.Server.WriteTimeout":
		return fmt.Errorf("invalid server timeout: %v", fe.Value())
	case "Config.Repository.VersionFile":
		if fe.Tag() == "required" {
			return fmt.Errorf("version file name cannot be empty")
		}
		return fmt.Errorf("version file must be a plain file name at the repository root: %v", fe.Value())
	case "Config.Repository.SeedVersion":
		if fe.Tag() == "required" {
			return fmt.Errorf("seed version cannot be empty")
		}
		return fmt.Errorf("seed version must be major.minor.patch: %v", fe.Value())
	case "Config.Logging.Format":
		return fmt.Errorf("invalid log format: %v", fe.Value())
	default:
		return fmt.Errorf("invalid %s: %v (%s)", fe.Namespace(), fe.Value(), fe.Tag())
	}
}
