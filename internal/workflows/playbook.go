package workflows

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/EloyM96/avisor/internal/models"
)

// Playbook is the parsed, immutable representation of one workflow
// descriptor. Paths are absolute after loading.
type Playbook struct {
	Name        string
	Path        string
	SourcePath  string
	MappingPath string
	RulesetPath string
	Actions     []models.Action
	QuietHours  *models.QuietHours
}

// PlaybookNotFoundError marks an identifier with no matching descriptor
type PlaybookNotFoundError struct {
	Name string
	Dir  string
}

func (e *PlaybookNotFoundError) Error() string {
	return fmt.Sprintf("Playbook '%s' no encontrado en %s", e.Name, e.Dir)
}

// PlaybookError marks a descriptor that parsed but is not usable
type PlaybookError struct {
	Playbook string
	Reason   string
}

func (e *PlaybookError) Error() string {
	return fmt.Sprintf("playbook '%s': %s", e.Playbook, e.Reason)
}

type playbookDoc struct {
	Name       string          `yaml:"name"`
	Source     sourceDoc       `yaml:"source"`
	Mapping    string          `yaml:"mapping" validate:"required"`
	Ruleset    string          `yaml:"ruleset" validate:"required"`
	Actions    []models.Action `yaml:"actions" validate:"required,min=1"`
	QuietHours *quietHoursDoc  `yaml:"quiet_hours"`
}

type sourceDoc struct {
	Path string `yaml:"path" validate:"required"`
}

type quietHoursDoc struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Loader reads playbook descriptors from a directory. Asset references
// resolve relative to the playbook file first, then to the repository
// root two levels above the playbooks directory.
type Loader struct {
	playbooksDir string
	root         string
	validate     *validator.Validate
	logger       arbor.ILogger
}

func NewLoader(playbooksDir string, logger arbor.ILogger) *Loader {
	abs, err := filepath.Abs(playbooksDir)
	if err != nil {
		abs = playbooksDir
	}
	return &Loader{
		playbooksDir: abs,
		root:         filepath.Dir(filepath.Dir(abs)),
		validate:     validator.New(),
		logger:       logger,
	}
}

// Load parses the named playbook. The identifier may carry the .yaml
// extension or omit it.
func (l *Loader) Load(identifier string) (*Playbook, error) {
	path, err := l.resolvePlaybookPath(identifier)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook %s: %w", path, err)
	}

	var doc playbookDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &PlaybookError{Playbook: filepath.Base(path), Reason: fmt.Sprintf("YAML inválido: %v", err)}
	}

	if err := l.validate.Struct(&doc); err != nil {
		return nil, &PlaybookError{Playbook: filepath.Base(path), Reason: fmt.Sprintf("el playbook carece de la ruta necesaria: %v", err)}
	}

	name := doc.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	quietHours, err := parseQuietHours(doc.QuietHours)
	if err != nil {
		return nil, &PlaybookError{Playbook: filepath.Base(path), Reason: err.Error()}
	}

	playbook := &Playbook{
		Name:        name,
		Path:        path,
		SourcePath:  l.resolveRelatedPath(path, doc.Source.Path),
		MappingPath: l.resolveRelatedPath(path, doc.Mapping),
		RulesetPath: l.resolveRelatedPath(path, doc.Ruleset),
		Actions:     doc.Actions,
		QuietHours:  quietHours,
	}

	l.logger.Debug().
		Str("playbook", playbook.Name).
		Str("source", playbook.SourcePath).
		Int("actions", len(playbook.Actions)).
		Msg("Playbook loaded")

	return playbook, nil
}

func (l *Loader) resolvePlaybookPath(identifier string) (string, error) {
	filename := identifier
	if !strings.HasSuffix(filename, ".yaml") && !strings.HasSuffix(filename, ".yml") {
		filename += ".yaml"
	}
	path := filepath.Join(l.playbooksDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", &PlaybookNotFoundError{Name: identifier, Dir: l.playbooksDir}
	}
	return path, nil
}

func (l *Loader) resolveRelatedPath(playbookPath, value string) string {
	if filepath.IsAbs(value) {
		return value
	}
	local := filepath.Join(filepath.Dir(playbookPath), value)
	if _, err := os.Stat(local); err == nil {
		return local
	}
	rootCandidate := filepath.Join(l.root, value)
	if _, err := os.Stat(rootCandidate); err == nil {
		return rootCandidate
	}
	return local
}

func parseQuietHours(doc *quietHoursDoc) (*models.QuietHours, error) {
	if doc == nil || doc.Start == "" || doc.End == "" {
		return nil, nil
	}
	return models.ParseQuietHours(doc.Start, doc.End)
}
