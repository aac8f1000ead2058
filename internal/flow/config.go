package flow

// Step is one digit-collection point in the call flow. Everything the IVR
// needs to run the step (length, timeout, wording) is data here, so batch
// layout changes never touch the state machine.
type Step struct {
	// Field names the collected datum and doubles as the route parameter.
	Field string

	// Digits is the provider-enforced input length.
	Digits int

	// GatherTimeoutSeconds bounds how long the provider waits for input.
	GatherTimeoutSeconds int

	// Prompt and EntryPrompt are spoken before gathering.
	Prompt      string
	EntryPrompt string

	// RejectedPrompt is spoken when the operator rejects this field and the
	// caller is sent back to re-enter it.
	RejectedPrompt string

	// PauseOnLength adds a fixed pause after an entry of exactly this many
	// digits. Provider-interaction nicety, not a validity rule; 0 disables.
	PauseOnLength      int
	PauseLengthSeconds int
}

// Batch is a group of steps validated together by one decision vector. The
// batch's stage name owns the retry/correction counters for its wait loop.
type Batch struct {
	Stage string
	Steps []Step
}

// Width is the decision-vector length for the batch.
func (b Batch) Width() int { return len(b.Steps) }

// Complete reports whether every step of the batch has collected digits.
func (b Batch) Complete(fields map[string]string) bool {
	for _, st := range b.Steps {
		if fields[st.Field] == "" {
			return false
		}
	}
	return true
}

// Config is the full flow layout plus the wait-protocol bounds.
type Config struct {
	Batches []Batch

	// RetryLimit is the number of no-decision wait cycles tolerated per
	// stage before aborting.
	RetryLimit int

	// CorrectionLimit bounds how many corrections a stage allows within one
	// batch before aborting.
	CorrectionLimit int

	// WaitSeconds is the pause between decision polls.
	WaitSeconds int
}

// DefaultConfig is the production three-field identity flow: two short
// verification codes followed by the identity document number, validated as
// a single batch.
func DefaultConfig() Config {
	return Config{
		Batches: []Batch{
			{
				Stage: "identity",
				Steps: []Step{
					{
						Field:                "code4",
						Digits:               4,
						GatherTimeoutSeconds: 20,
						Prompt:               "Please enter the 4 digit verification code.",
						EntryPrompt:          "Enter the 4 digits now.",
						RejectedPrompt:       "The first verification code appears to be incorrect. Please enter it again.",
					},
					{
						Field:                "code3",
						Digits:               3,
						GatherTimeoutSeconds: 20,
						Prompt:               "Now enter the second 3 digit code.",
						EntryPrompt:          "Enter the 3 digits now.",
						RejectedPrompt:       "The second verification code appears to be incorrect. Please enter it again.",
					},
					{
						Field:                "document",
						Digits:               10,
						GatherTimeoutSeconds: 30,
						Prompt:               "Please enter your identity document number.",
						EntryPrompt:          "Enter your 10 digit document number now.",
						RejectedPrompt:       "The document number appears to be incorrect. Please enter it again.",
						PauseOnLength:        7,
						PauseLengthSeconds:   3,
					},
				},
			},
		},
		RetryLimit:      8,
		CorrectionLimit: 3,
		WaitSeconds:     10,
	}
}

// FirstStep returns the entry point of the flow.
func (c Config) FirstStep() (Step, bool) {
	if len(c.Batches) == 0 || len(c.Batches[0].Steps) == 0 {
		return Step{}, false
	}
	return c.Batches[0].Steps[0], true
}

// StepByField locates a step and its batch.
func (c Config) StepByField(field string) (Batch, Step, int, bool) {
	for _, b := range c.Batches {
		for i, st := range b.Steps {
			if st.Field == field {
				return b, st, i, true
			}
		}
	}
	return Batch{}, Step{}, 0, false
}

// BatchByStage locates a batch by its stage name.
func (c Config) BatchByStage(stage string) (Batch, bool) {
	for _, b := range c.Batches {
		if b.Stage == stage {
			return b, true
		}
	}
	return Batch{}, false
}

// BatchByWidth resolves a batch from a decision-vector length. Operator
// commands carry no stage name, so the width is the routing key; a width
// shared by two batches is ambiguous and refused.
func (c Config) BatchByWidth(n int) (Batch, bool) {
	var found Batch
	matches := 0
	for _, b := range c.Batches {
		if b.Width() == n {
			found = b
			matches++
		}
	}
	if matches != 1 {
		return Batch{}, false
	}
	return found, true
}

// nextStep returns the step after index i within the batch, if any.
func (b Batch) nextStep(i int) (Step, bool) {
	if i+1 < len(b.Steps) {
		return b.Steps[i+1], true
	}
	return Step{}, false
}
