package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrResolution           = errors.New("target resolution failed")
	ErrContract             = errors.New("collaborator contract violated")
	ErrPersistence          = errors.New("persistence failed")
	ErrConvergenceExhausted = errors.New("convergence loop exhausted")
	ErrDiscordNotConfigured = errors.New("discord client not configured")
)

type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error for field %s (value: %v): %s", e.Field, e.Value, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// WrapConfigError is NewConfigError with an underlying cause.
func WrapConfigError(field string, value interface{}, message string, err error) *ConfigError {
	ce := NewConfigError(field, value, message)
	ce.Err = err
	return ce
}

type ResolutionError struct {
	Domain string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("could not resolve %s", e.Domain)
	}
	return fmt.Sprintf("could not resolve %s: %v", e.Domain, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

func NewResolutionError(domain string, err error) *ResolutionError {
	return &ResolutionError{Domain: domain, Err: err}
}

// ContractError is raised when a stage fails or returns a payload that does
// not match its declared shape.
type ContractError struct {
	Stage string
	Err   error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

func (e *ContractError) Is(target error) bool { return target == ErrContract }

func NewContractError(stage string, err error) *ContractError {
	return &ContractError{Stage: stage, Err: err}
}

type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func NewPersistenceError(op, path string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Path: path, Err: err}
}

// ConvergenceError reports a propose/review loop that hit its iteration cap.
type ConvergenceError struct {
	Loop     string
	Attempts int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s loop did not converge after %d attempts", e.Loop, e.Attempts)
}

func (e *ConvergenceError) Is(target error) bool { return target == ErrConvergenceExhausted }

func NewConvergenceError(loop string, attempts int) *ConvergenceError {
	return &ConvergenceError{Loop: loop, Attempts: attempts}
}

// Fatal reports whether err must abort the whole multi-target run rather
// than only the current target.
func Fatal(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
