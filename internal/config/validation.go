package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct constraints and the cross-field rules that struct
// tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var problems []string
	if !c.Telegram.Enabled && !c.Matrix.Enabled && !c.Web.Enabled {
		problems = append(problems, "at least one of telegram, matrix or web must be enabled")
	}
	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		problems = append(problems, "telegram.token is required when telegram is enabled")
	}
	if c.Matrix.Enabled {
		if c.Matrix.Homeserver == "" {
			problems = append(problems, "matrix.homeserver is required when matrix is enabled")
		}
		if !strings.HasPrefix(c.Matrix.UserID, "@") || !strings.Contains(c.Matrix.UserID, ":") {
			problems = append(problems, "matrix.user_id must look like @user:server")
		}
		if c.Matrix.AccessToken == "" {
			problems = append(problems, "matrix.access_token is required when matrix is enabled")
		}
	}
	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && strings.TrimSpace(task.Schedule) == "" {
			problems = append(problems, fmt.Sprintf("scheduler.tasks.%s.schedule is required when enabled", name))
		}
	}
	if !strings.Contains(c.Messages.ResetDone, "%d") {
		problems = append(problems, "messages.reset_done must contain %d")
	}
	for key, msg := range map[string]string{
		"messages.forget_done":   c.Messages.ForgetDone,
		"messages.forget_absent": c.Messages.ForgetAbsent,
	} {
		if !strings.Contains(msg, "%s") {
			problems = append(problems, key+" must contain %s")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
