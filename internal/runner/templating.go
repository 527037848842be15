package runner

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/google/uuid"
)

// TemplateData is available to message templates as {{.Seq}} and {{.RequestID}}.
type TemplateData struct {
	Seq       uint64
	RequestID string
}

// MessageTemplate renders the per-request message. Plain strings skip the template
// engine entirely.
type MessageTemplate struct {
	raw  string
	tmpl *template.Template

	fileCache map[string][]string
	mu        sync.RWMutex
}

// ParseMessage compiles text. Besides the dot fields it understands the shorthands
// {{uuid}}, {{requestID}} and {{seq}}, and the functions randomInt, randomChoice and
// randomLine.
func ParseMessage(text string) (*MessageTemplate, error) {
	m := &MessageTemplate{
		raw:       text,
		fileCache: make(map[string][]string),
	}
	if !strings.Contains(text, "{{") {
		return m, nil
	}

	funcs := template.FuncMap{
		"uuid":         uuid.NewString,
		"randomInt":    randomInt,
		"randomChoice": randomChoice,
		"randomLine":   m.randomLine,
	}
	t, err := template.New("message").Funcs(funcs).Parse(preprocess(text))
	if err != nil {
		return nil, fmt.Errorf("invalid message template: %w", err)
	}
	m.tmpl = t
	return m, nil
}

// Render produces the message for one request.
func (m *MessageTemplate) Render(data TemplateData) (string, error) {
	if m.tmpl == nil {
		return m.raw, nil
	}
	var buf bytes.Buffer
	if err := m.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// preprocess maps the naked variables to template fields.
func preprocess(s string) string {
	s = strings.ReplaceAll(s, "{{requestID}}", "{{.RequestID}}")
	s = strings.ReplaceAll(s, "{{seq}}", "{{.Seq}}")
	return s
}

func randomInt(min, max int) int {
	if max <= min {
		return min
	}
	return rand.Intn(max-min) + min
}

func randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[rand.Intn(len(choices))]
}

func (m *MessageTemplate) randomLine(filename string) (string, error) {
	m.mu.RLock()
	lines, ok := m.fileCache[filename]
	m.mu.RUnlock()

	if !ok {
		var err error
		if lines, err = m.loadLines(filename); err != nil {
			return "", err
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[rand.Intn(len(lines))], nil
}

func (m *MessageTemplate) loadLines(filename string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double check
	if lines, ok := m.fileCache[filename]; ok {
		return lines, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s': %w", filename, err)
	}

	var loaded []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			loaded = append(loaded, line)
		}
	}
	m.fileCache[filename] = loaded
	return loaded, nil
}
