package hcl

import (
	"fmt"
	"sort"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/taskgridgo/internal/config"
	"github.com/vk/taskgridgo/internal/task"
)

// translateTask converts a decoded task block into the agnostic model.
func (l *Loader) translateTask(b *taskBlock) (*task.Task, error) {
	t := &task.Task{
		ID:        b.ID,
		Kind:      b.Kind,
		DependsOn: b.DependsOn,
	}
	if b.Name != nil {
		t.Name = *b.Name
	}
	if b.Priority != nil {
		t.Priority = *b.Priority
	}
	if b.Retries != nil {
		t.MaxRetries = *b.Retries
	}
	if b.Idempotent != nil {
		t.Idempotent = *b.Idempotent
	}

	var err error
	if t.EstDuration, err = parseOptionalDuration("duration", b.Duration); err != nil {
		return nil, fmt.Errorf("task %q: %w", b.ID, err)
	}
	t.EstDuration = config.EstimateOrDefault(t.EstDuration)
	if t.Timeout, err = parseOptionalDuration("timeout", b.Timeout); err != nil {
		return nil, fmt.Errorf("task %q: %w", b.ID, err)
	}

	if b.Resources != nil {
		if b.Resources.CPU != nil {
			t.Resources.CPUPercent = *b.Resources.CPU
		}
		if b.Resources.Memory != nil {
			t.Resources.MemoryMB = *b.Resources.Memory
		}
		if b.Resources.Exclusive != nil {
			t.Resources.Exclusive = *b.Resources.Exclusive
		}
	}

	if b.Arguments != nil {
		if t.Args, err = decodeArguments(b.Arguments); err != nil {
			return nil, fmt.Errorf("task %q: %w", b.ID, err)
		}
	}
	return t, nil
}

// decodeArguments evaluates the free-form attributes of an arguments
// block into strings. Expressions are constant; there is no eval context
// to resolve references against.
func decodeArguments(b *argumentsBlock) (map[string]string, error) {
	attrs, diags := b.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid arguments block: %w", diags)
	}
	if len(attrs) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make(map[string]string, len(attrs))
	for _, name := range names {
		val, diags := attrs[name].Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("argument %q: %w", name, diags)
		}
		str, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, fmt.Errorf("argument %q is not convertible to string: %w", name, err)
		}
		args[name] = str.AsString()
	}
	return args, nil
}

// translateSettings converts a decoded settings block. Unset fields stay
// zero so Normalize can fill the defaults.
func (l *Loader) translateSettings(b *settingsBlock) (config.Settings, error) {
	var s config.Settings

	if b.Limits != nil {
		if b.Limits.CPU != nil {
			s.Limits.CPUPercent = *b.Limits.CPU
		}
		if b.Limits.Memory != nil {
			s.Limits.MemoryMB = *b.Limits.Memory
		}
		if b.Limits.ExclusiveSlots != nil {
			s.Limits.ExclusiveSlots = *b.Limits.ExclusiveSlots
		}
	}

	if b.Retry != nil {
		if b.Retry.MaxRetries != nil {
			s.Retry.MaxRetries = *b.Retry.MaxRetries
		}
		var err error
		if s.Retry.BaseDelay, err = parseOptionalDuration("base_delay", b.Retry.BaseDelay); err != nil {
			return s, err
		}
		if s.Retry.MaxDelay, err = parseOptionalDuration("max_delay", b.Retry.MaxDelay); err != nil {
			return s, err
		}
	}

	if b.Weights != nil {
		if b.Weights.Dependents != nil {
			s.Weights.Dependents = *b.Weights.Dependents
		}
		if b.Weights.InverseDuration != nil {
			s.Weights.InverseDuration = *b.Weights.InverseDuration
		}
		if b.Weights.CriticalPathBoost != nil {
			s.Weights.CriticalPathBoost = *b.Weights.CriticalPathBoost
		}
	}

	if b.StarvationRounds != nil {
		s.StarvationRounds = *b.StarvationRounds
	}
	return s, nil
}

func parseOptionalDuration(field string, raw *string) (time.Duration, error) {
	if raw == nil || *raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, *raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative %s %q", field, *raw)
	}
	return d, nil
}
