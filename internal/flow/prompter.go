package flow

// Prompter is the operator interaction surface. The login flow is
// deliberately human-in-the-loop: verification codes arrive out of band,
// and some checkpoints can only be judged by a person looking at the
// browser window. Implementations block until the operator answers.
type Prompter interface {
	// Confirm asks a yes/no question and returns the answer.
	Confirm(message string) (bool, error)

	// Choose presents options and returns the selected index.
	Choose(message string, options []string) (int, error)

	// Input asks for a free-form line of text.
	Input(message string) (string, error)
}
