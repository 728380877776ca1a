package cli

import "fmt"

// ConfigError reports an invalid or unloadable configuration value. Field
// is the dotted path to the offending setting ("server.listen_address");
// it may be empty when the configuration as a whole failed to load.
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a ConfigError for a configuration field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError wraps a failure from a subcommand, naming the verb that
// failed while keeping the cause reachable through errors.Is/As.
type CommandError struct {
	Command string
	Err     error
}

// NewCommandError wraps err as a CommandError for the named command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
