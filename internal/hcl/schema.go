package hcl

import "github.com/hashicorp/hcl/v2"

// gridFile decodes the top-level blocks of one .hcl grid file.
type gridFile struct {
	Tasks    []*taskBlock   `hcl:"task,block"`
	Settings *settingsBlock `hcl:"settings,block"`
	Remain   hcl.Body       `hcl:",remain"`
}

// taskBlock is the HCL-specific shape of a `task "<kind>" "<id>"` block.
type taskBlock struct {
	Kind string `hcl:"kind,label"`
	ID   string `hcl:"id,label"`

	Name       *string  `hcl:"name,optional"`
	DependsOn  []string `hcl:"depends_on,optional"`
	Priority   *int     `hcl:"priority,optional"`
	Duration   *string  `hcl:"duration,optional"`
	Retries    *int     `hcl:"retries,optional"`
	Timeout    *string  `hcl:"timeout,optional"`
	Idempotent *bool    `hcl:"idempotent,optional"`

	Resources *resourcesBlock `hcl:"resources,block"`
	Arguments *argumentsBlock `hcl:"arguments,block"`
}

type resourcesBlock struct {
	CPU       *int  `hcl:"cpu,optional"`
	Memory    *int  `hcl:"memory,optional"`
	Exclusive *bool `hcl:"exclusive,optional"`
}

// argumentsBlock captures free-form key/value attributes for the task's
// handler.
type argumentsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// settingsBlock is the HCL-specific shape of the run-level `settings`
// block.
type settingsBlock struct {
	Limits           *limitsBlock  `hcl:"limits,block"`
	Retry            *retryBlock   `hcl:"retry,block"`
	Weights          *weightsBlock `hcl:"weights,block"`
	StarvationRounds *int          `hcl:"starvation_rounds,optional"`
}

type limitsBlock struct {
	CPU            *int `hcl:"cpu,optional"`
	Memory         *int `hcl:"memory,optional"`
	ExclusiveSlots *int `hcl:"exclusive_slots,optional"`
}

type retryBlock struct {
	MaxRetries *int    `hcl:"max_retries,optional"`
	BaseDelay  *string `hcl:"base_delay,optional"`
	MaxDelay   *string `hcl:"max_delay,optional"`
}

type weightsBlock struct {
	Dependents        *float64 `hcl:"dependents,optional"`
	InverseDuration   *float64 `hcl:"inverse_duration,optional"`
	CriticalPathBoost *float64 `hcl:"critical_path_boost,optional"`
}
