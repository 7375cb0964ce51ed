package automount

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// templateVars carries the substitution values for a mount/unmount command
// template: %r expands to the root name, %m to the mount point, %% to a
// literal percent. Grounded on run_template(), which performs the same
// three substitutions via a two-pass length-then-fill expansion; here the
// expansion happens token by token after tokenization instead, since Go
// strings don't need a preallocated-length pass.
type templateVars struct {
	rootName   string
	mountPoint string
}

func (v templateVars) expand(tok string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(tok) {
			return "", fmt.Errorf("automount: dangling %% at end of template token %q", tok)
		}
		switch tok[i] {
		case 'r':
			b.WriteString(v.rootName)
		case 'm':
			b.WriteString(v.mountPoint)
		case '%':
			b.WriteByte('%')
		default:
			return "", fmt.Errorf("automount: unknown template directive %%%c in %q", tok[i], tok)
		}
	}
	return b.String(), nil
}

// tokenizeTemplate splits a command template into argv words the way a shell
// would, but without invoking one: words are separated by unquoted
// whitespace, a backslash escapes the following character, and single or
// double quotes group whitespace into one word. This mirrors the original
// implementation's run_template() tokenizer, which exists specifically so
// mount/unmount commands run via fork+exec instead of system(), avoiding a
// shell-injection surface when root names come from directory traversal.
func tokenizeTemplate(template string) ([]string, error) {
	var (
		tokens []string
		cur    strings.Builder
		inTok  bool
		quote  byte
	)
	flush := func() {
		if inTok {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inTok = false
		}
	}

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
				continue
			}
			if c == '\\' && i+1 < len(template) && (template[i+1] == quote || template[i+1] == '\\') {
				i++
				cur.WriteByte(template[i])
				continue
			}
			cur.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			inTok = true
		case c == '\\':
			if i+1 >= len(template) {
				return nil, fmt.Errorf("automount: trailing backslash in template %q", template)
			}
			i++
			cur.WriteByte(template[i])
			inTok = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
			inTok = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("automount: unterminated quote in template %q", template)
	}
	flush()
	if len(tokens) == 0 {
		return nil, fmt.Errorf("automount: empty command template")
	}
	return tokens, nil
}

// buildCommand tokenizes template and expands %r/%m/%% in each resulting
// argv word.
func buildCommand(template string, vars templateVars) ([]string, error) {
	tokens, err := tokenizeTemplate(template)
	if err != nil {
		return nil, err
	}
	argv := make([]string, len(tokens))
	for i, tok := range tokens {
		expanded, err := vars.expand(tok)
		if err != nil {
			return nil, err
		}
		argv[i] = expanded
	}
	return argv, nil
}

// runTemplate executes template (after %r/%m expansion) via fork+exec, with
// no shell interposed -- argv[0] is resolved against PATH the way exec.Command
// resolves it, matching the original's execvp() call. The child's stdout and
// stderr are inherited from this process, not captured: the mount/unmount
// programs are free to print to the controlling terminal the way the
// original's forked child does, since it never redirects them either. A
// non-zero exit or a failure to even start the process is reported as an
// error; the caller (the mount/unmount engine) decides how to react.
func runTemplate(ctx context.Context, template string, vars templateVars) error {
	argv, err := buildCommand(template, vars)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("automount: command %q failed: %w", template, err)
	}
	return nil
}
