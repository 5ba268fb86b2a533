// Package pattern reads and writes pattern files: an XML document holding the
// rule, its parameters and the chemical grids, laid out like VTK image data
// so external viewers can open it.
package pattern

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"rdsim/internal/core"
	"rdsim/internal/sims/formula"
)

// FormatVersion is the newest format this package understands.
const FormatVersion = 1

// timestepParam is the parameter name the timestep is stored under.
const timestepParam = "timestep"

// File is the on-disk document.
type File struct {
	XMLName   xml.Name  `xml:"VTKFile"`
	Type      string    `xml:"type,attr"`
	Version   string    `xml:"version,attr"`
	ByteOrder string    `xml:"byte_order,attr"`
	RD        RD        `xml:"RD"`
	Image     ImageData `xml:"ImageData"`
}

// RD carries everything the simulator needs beyond the raw grids.
type RD struct {
	FormatVersion int        `xml:"format_version,attr"`
	Description   string     `xml:"description"`
	Rule          Rule       `xml:"rule"`
	Generator     *Generator `xml:"initial_pattern_generator"`
}

// Rule names the reaction law and its parameters. For inbuilt rules Name is
// the implementation name.
type Rule struct {
	Type        string   `xml:"type,attr"`
	Name        string   `xml:"name,attr"`
	Chemicals   int      `xml:"number_of_chemicals,attr,omitempty"`
	Description string   `xml:"description"`
	Params      []Param  `xml:"param"`
	Formula     *Formula `xml:"formula"`
}

type Param struct {
	Name  string  `xml:"name,attr"`
	Value float64 `xml:",chardata"`
}

type Formula struct {
	Text string `xml:",chardata"`
}

// Generator controls whether loading regenerates the initial pattern
// instead of importing the stored grids.
type Generator struct {
	ApplyWhenLoading bool `xml:"apply_when_loading,attr"`
}

type ImageData struct {
	WholeExtent string `xml:"WholeExtent,attr"`
	Origin      string `xml:"Origin,attr"`
	Spacing     string `xml:"Spacing,attr"`
	Piece       Piece  `xml:"Piece"`
}

type Piece struct {
	Extent    string      `xml:"Extent,attr"`
	PointData []DataArray `xml:"PointData>DataArray"`
}

// DataArray holds one chemical in x-fastest order.
type DataArray struct {
	Type   string `xml:"type,attr"`
	Name   string `xml:"Name,attr"`
	Format string `xml:"format,attr"`
	Values string `xml:",chardata"`
}

// ApplyWhenLoading reports whether the initial pattern should be generated
// on load.
func (f *File) ApplyWhenLoading() bool {
	return f.RD.Generator != nil && f.RD.Generator.ApplyWhenLoading
}

// Shape parses the grid extents.
func (f *File) Shape() (core.Shape, error) {
	fields := strings.Fields(f.Image.WholeExtent)
	if len(fields) != 6 {
		return core.Shape{}, fmt.Errorf("%w: malformed extent %q", core.ErrInvalidShape, f.Image.WholeExtent)
	}
	var ext [6]int
	for i, s := range fields {
		v, err := strconv.Atoi(s)
		if err != nil {
			return core.Shape{}, fmt.Errorf("%w: malformed extent %q", core.ErrInvalidShape, f.Image.WholeExtent)
		}
		ext[i] = v
	}
	s := core.Shape{X: ext[1] - ext[0] + 1, Y: ext[3] - ext[2] + 1, Z: ext[5] - ext[4] + 1}
	if !s.Valid() {
		return core.Shape{}, fmt.Errorf("%w: extent %q", core.ErrInvalidShape, f.Image.WholeExtent)
	}
	return s, nil
}

// Chemicals returns the chemical count: the number of stored grids, or the
// count recorded on the rule when the grids were omitted.
func (f *File) Chemicals() int {
	if n := len(f.Image.Piece.PointData); n > 0 {
		return n
	}
	return f.RD.Rule.Chemicals
}

// Grid decodes the stored chemical grids.
func (f *File) Grid() (*core.Grid, error) {
	shape, err := f.Shape()
	if err != nil {
		return nil, err
	}
	g, err := core.NewGrid(shape, f.Chemicals())
	if err != nil {
		return nil, err
	}
	for c, arr := range f.Image.Piece.PointData {
		dst := g.Channel(c)
		fields := strings.Fields(arr.Values)
		if len(fields) != len(dst) {
			return nil, fmt.Errorf("%w: chemical %q has %d values, want %d", core.ErrInvalidShape, arr.Name, len(fields), len(dst))
		}
		for i, s := range fields {
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("chemical %q value %d: %w", arr.Name, i, err)
			}
			dst[i] = float32(v)
		}
	}
	return g, nil
}

// Read decodes a pattern file. If the document cannot be decoded and
// declares a newer format version, the error says so.
func Read(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f := &File{}
	if err := xml.Unmarshal(data, f); err != nil {
		return nil, newerVersionHint(data, fmt.Errorf("parsing pattern: %w", err))
	}
	if f.RD.Rule.Type == "" {
		return nil, newerVersionHint(data, errors.New("parsing pattern: missing rule"))
	}
	return f, nil
}

func newerVersionHint(data []byte, err error) error {
	v, ok := sniffVersion(data)
	if !ok {
		return err
	}
	return newerVersionError(v, err)
}

func newerVersionError(v int, err error) error {
	if v <= FormatVersion {
		return err
	}
	return fmt.Errorf("this pattern was written by a newer version (format %d, supported %d); download a newer version: %w",
		v, FormatVersion, err)
}

// sniffVersion finds the format_version attribute without decoding the
// rest of the document.
func sniffVersion(data []byte) (int, bool) {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err != nil {
			return 0, false
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "RD" {
			continue
		}
		for _, a := range se.Attr {
			if a.Name.Local == "format_version" {
				v, err := strconv.Atoi(strings.TrimSpace(a.Value))
				return v, err == nil
			}
		}
		return 0, false
	}
}

// Write encodes f as an indented XML document.
func Write(w io.Writer, f *File) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(f); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// FromEngine captures an engine's rule, parameters and grid.
func FromEngine(e core.Engine) (*File, error) {
	img := e.Image()
	if img == nil {
		return nil, fmt.Errorf("%w: nothing to save before allocation", core.ErrUnsupportedConfiguration)
	}
	s := img.Shape()
	rule := Rule{
		Type:        string(e.Kind()),
		Name:        e.RuleName(),
		Chemicals:   img.Channels(),
		Description: e.RuleDescription(),
		Params:      []Param{{Name: timestepParam, Value: e.Timestep()}},
	}
	if e.Kind() == core.KindInbuilt {
		rule.Name = e.Implementation()
	}
	for _, p := range e.Parameters() {
		rule.Params = append(rule.Params, Param{Name: p.Name, Value: p.Value})
	}
	if fe, ok := e.(core.FormulaEngine); ok {
		rule.Formula = &Formula{Text: fe.Formula()}
	}
	extent := fmt.Sprintf("0 %d 0 %d 0 %d", s.X-1, s.Y-1, s.Z-1)
	f := &File{
		Type:      "ImageData",
		Version:   "0.1",
		ByteOrder: "LittleEndian",
		RD: RD{
			FormatVersion: FormatVersion,
			Description:   e.PatternDescription(),
			Rule:          rule,
			Generator:     &Generator{},
		},
		Image: ImageData{
			WholeExtent: extent,
			Origin:      "0 0 0",
			Spacing:     "1 1 1",
			Piece:       Piece{Extent: extent},
		},
	}
	for c := 0; c < img.Channels(); c++ {
		f.Image.Piece.PointData = append(f.Image.Piece.PointData, DataArray{
			Type:   "Float32",
			Name:   formula.ChemicalName(c),
			Format: "ascii",
			Values: formatValues(img.Channel(c)),
		})
	}
	return f, nil
}

func formatValues(vals []float32) string {
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	return b.String()
}

// Engine builds an engine from the file: inbuilt rules resolve through the
// registry and formula rules always get a formula engine configured by
// opts. The returned engine is unmodified with a zero step counter.
func (f *File) Engine(opts core.Options) (core.Engine, error) {
	shape, err := f.Shape()
	if err != nil {
		return nil, err
	}
	e, err := f.newEngine(opts)
	if err != nil {
		return nil, err
	}
	if err := f.configure(e, shape); err != nil {
		_ = e.Close()
		return nil, err
	}
	e.SetTimestepsTaken(0)
	e.SetModified(false)
	return e, nil
}

func (f *File) newEngine(opts core.Options) (core.Engine, error) {
	rule := f.RD.Rule
	switch core.RuleKind(rule.Type) {
	case core.KindInbuilt:
		return core.NewInbuilt(rule.Name, opts)
	case core.KindFormula:
		fe, err := core.NewFormula(opts)
		if err != nil {
			return nil, err
		}
		if rule.Formula != nil {
			fe.SetFormula(rule.Formula.Text)
		}
		fe.ClearParameters()
		for _, p := range rule.Params {
			if p.Name == timestepParam {
				continue
			}
			if err := fe.AddParameter(p.Name, p.Value); err != nil {
				_ = fe.Close()
				return nil, err
			}
		}
		return fe, nil
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", core.ErrUnsupportedConfiguration, rule.Type)
	}
}

func (f *File) configure(e core.Engine, shape core.Shape) error {
	rule := f.RD.Rule
	for _, p := range rule.Params {
		if p.Name == timestepParam {
			if err := core.CheckTimestep(p.Value); err != nil {
				return err
			}
			e.SetTimestep(p.Value)
			continue
		}
		if e.Kind() == core.KindInbuilt {
			if err := e.SetParameterValueByName(p.Name, p.Value); err != nil {
				return err
			}
		}
	}
	if rule.Name != "" {
		e.SetRuleName(rule.Name)
	}
	e.SetRuleDescription(rule.Description)
	e.SetPatternDescription(f.RD.Description)

	if err := e.Allocate(shape.X, shape.Y, shape.Z, f.Chemicals()); err != nil {
		return err
	}
	if f.ApplyWhenLoading() {
		return e.GenerateInitialPattern()
	}
	g, err := f.Grid()
	if err != nil {
		return err
	}
	return e.CopyFromImage(g)
}

// Load reads a pattern file and builds its engine. A file from a newer
// format version still loads; the engine is returned together with a
// *core.NewerVersionWarning.
func Load(path string, opts core.Options) (core.Engine, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	f, err := Read(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	e, err := f.Engine(opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, newerVersionError(f.RD.FormatVersion, err))
	}
	e.SetFilename(path)
	if f.RD.FormatVersion > FormatVersion {
		return e, &core.NewerVersionWarning{FileVersion: f.RD.FormatVersion, SupportedVersion: FormatVersion}
	}
	return e, nil
}

// Save writes the engine's pattern to path. The document is written to a
// temporary file beside path and renamed into place, so a failed save
// leaves any existing file untouched.
func Save(path string, e core.Engine) error {
	f, err := FromEngine(e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := Write(tmp, f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
