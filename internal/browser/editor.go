package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandEditor runs a configured editor command against a temp file
// holding the text and returns the file's contents afterwards. The command
// may reference {} as the file path placeholder; without one the path is
// appended.
type CommandEditor struct {
	Command string
}

// Edit implements Editor.
func (e CommandEditor) Edit(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(e.Command) == "" {
		return "", NewUnsupported("no external editor configured")
	}

	f, err := os.CreateTemp("", "coordinator-edit-*.txt")
	if err != nil {
		return "", fmt.Errorf("editor temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		_ = os.Remove(path)
	}()

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return "", fmt.Errorf("editor temp write: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("editor temp close: %w", err)
	}

	args := strings.Fields(e.Command)
	replaced := false
	for i, a := range args {
		if a == "{}" {
			args[i] = path
			replaced = true
		}
	}
	if !replaced {
		args = append(args, path)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor %q: %w", args[0], err)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("editor temp read: %w", err)
	}
	return string(edited), nil
}
