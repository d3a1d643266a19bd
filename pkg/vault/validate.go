package vault

import (
	"regexp"
	"strings"
)

// MaxNameLength bounds credential and service names.
const MaxNameLength = 64

var (
	credentialNameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	serviceNameRe    = regexp.MustCompile(`^[a-zA-Z0-9._@-]+$`)
	envVarRe         = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
)

// ValidateCredentialName checks a credential name against the allowed
// pattern. Names become filenames in the credstore, so path separators and
// traversal sequences are rejected outright.
func ValidateCredentialName(name string) error {
	if name == "" {
		return NewValidationError("credential name must not be empty")
	}
	if len(name) > MaxNameLength {
		return NewValidationErrorf("credential name exceeds %d characters", MaxNameLength)
	}
	if !credentialNameRe.MatchString(name) {
		return NewValidationErrorf("credential name %q contains characters outside [a-zA-Z0-9._-]", name)
	}
	if strings.Contains(name, "..") || name == "." {
		return NewValidationErrorf("credential name %q must not contain traversal sequences", name)
	}
	return nil
}

// NormalizeServiceName strips a trailing ".service" unit suffix so that
// "auth.service" and "auth" refer to the same service.
func NormalizeServiceName(service string) string {
	return strings.TrimSuffix(service, ".service")
}

// ValidateServiceName checks a (normalized) service name.
func ValidateServiceName(service string) error {
	if service == "" {
		return NewValidationError("service name must not be empty")
	}
	if len(service) > MaxNameLength {
		return NewValidationErrorf("service name exceeds %d characters", MaxNameLength)
	}
	if !serviceNameRe.MatchString(service) {
		return NewValidationErrorf("service name %q contains characters outside [a-zA-Z0-9._@-]", service)
	}
	if strings.Contains(service, "..") {
		return NewValidationErrorf("service name %q must not contain traversal sequences", service)
	}
	return nil
}

// ValidateEnvVar checks an exposure environment variable name. The shell
// convention applies: uppercase, digits and underscores, not starting with
// a digit.
func ValidateEnvVar(name string) error {
	if name == "" {
		return NewValidationError("environment variable name must not be empty")
	}
	if !envVarRe.MatchString(name) {
		return NewValidationErrorf("environment variable %q must match [A-Z][A-Z0-9_]*", name)
	}
	return nil
}

// ValidateSecret checks plaintext secret material before it is handed to the
// encryption oracle.
func ValidateSecret(secret []byte) error {
	if len(secret) == 0 {
		return NewValidationError("secret must not be empty")
	}
	if len(secret) > MaxSecretSize {
		return NewValidationErrorf("secret exceeds the maximum size of %d bytes", MaxSecretSize)
	}
	return nil
}
