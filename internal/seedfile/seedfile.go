// Package seedfile reads and writes seed batches as YAML, JSON or TOML
// documents and ships the built-in demo batch.
package seedfile

import (
	"bytes"
	"eegrecords/internal/core"
	"eegrecords/pkg/domain"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format names a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// ErrUnknownFormat is returned for file extensions other than yaml, yml, json and toml.
var ErrUnknownFormat = errors.New("seedfile: unknown format")

// Document is the on-disk shape of a seed batch.
type Document struct {
	Patients []Patient `yaml:"patients" json:"patients" toml:"patients"`
}

// Patient is one entry of a seed document. BirthDate is an ISO date.
type Patient struct {
	FullName    string    `yaml:"full_name" json:"full_name" toml:"full_name"`
	BirthDate   string    `yaml:"birth_date" json:"birth_date" toml:"birth_date"`
	ContactInfo string    `yaml:"contact_info" json:"contact_info" toml:"contact_info"`
	Sessions    []Session `yaml:"sessions,omitempty" json:"sessions,omitempty" toml:"sessions,omitempty"`
}

// Session is one session entry of a seed document.
type Session struct {
	DaysAgo         int    `yaml:"days_ago" json:"days_ago" toml:"days_ago"`
	DurationMinutes *int   `yaml:"duration_minutes,omitempty" json:"duration_minutes,omitempty" toml:"duration_minutes,omitempty"`
	Technician      string `yaml:"technician" json:"technician" toml:"technician"`
	Conclusion      string `yaml:"conclusion" json:"conclusion" toml:"conclusion"`
}

// FormatOf infers the format from a file name.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Load reads a seed batch from path.
func Load(path string) ([]core.PatientSpec, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	specs, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

// Decode reads a seed document. YAML and JSON documents may also be a bare
// list of patients.
func Decode(r io.Reader, format Format) ([]core.PatientSpec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read seed document: %w", err)
	}
	var doc Document
	switch format {
	case FormatYAML:
		err = decodeYAML(data, &doc)
	case FormatJSON:
		err = decodeJSON(data, &doc)
	case FormatTOML:
		_, err = toml.Decode(string(data), &doc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s seed document: %w", format, err)
	}
	return doc.Specs()
}

func decodeYAML(data []byte, doc *Document) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	if len(node.Content) == 0 {
		return nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		return node.Content[0].Decode(&doc.Patients)
	}
	return node.Content[0].Decode(doc)
}

func decodeJSON(data []byte, doc *Document) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &doc.Patients)
	}
	return json.Unmarshal(trimmed, doc)
}

// Specs converts the document into orchestrator input.
func (d Document) Specs() ([]core.PatientSpec, error) {
	specs := make([]core.PatientSpec, 0, len(d.Patients))
	for i, p := range d.Patients {
		birth, err := domain.ParseDate(p.BirthDate)
		if err != nil {
			return nil, fmt.Errorf("patient %d (%s): %w", i, p.FullName, err)
		}
		spec := core.PatientSpec{
			FullName:    p.FullName,
			BirthDate:   birth,
			ContactInfo: p.ContactInfo,
		}
		for _, s := range p.Sessions {
			spec.Sessions = append(spec.Sessions, core.SessionSpec(s))
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// FromSpecs builds a document from orchestrator input.
func FromSpecs(specs []core.PatientSpec) Document {
	doc := Document{Patients: make([]Patient, 0, len(specs))}
	for _, spec := range specs {
		p := Patient{
			FullName:    spec.FullName,
			BirthDate:   domain.DateOf(spec.BirthDate).Format("2006-01-02"),
			ContactInfo: spec.ContactInfo,
		}
		for _, s := range spec.Sessions {
			p.Sessions = append(p.Sessions, Session(s))
		}
		doc.Patients = append(doc.Patients, p)
	}
	return doc
}

// Encode writes specs as a seed document.
func Encode(w io.Writer, format Format, specs []core.PatientSpec) error {
	doc := FromSpecs(specs)
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatTOML:
		return toml.NewEncoder(w).Encode(doc)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}
