package formula

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"rdsim/internal/core"
)

// Entry is the kernel function every generated program exports.
const Entry = "rd_compute"

// MaxChemicals bounds the chemical count; chemicals are named a..z.
const MaxChemicals = 26

// ErrInvalidName reports a parameter name the kernel cannot declare.
var ErrInvalidName = errors.New("rd: invalid parameter name")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reserved = map[string]bool{
	"timestep": true,
	"input":    true,
	"output":   true,
	"width":    true,
	"height":   true,
	"depth":    true,
}

// ChemicalName returns the identifier the formula uses for chemical i.
func ChemicalName(i int) string {
	return string(rune('a' + i))
}

func checkName(name string, chemicals int) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("%w: %q is not an identifier", ErrInvalidName, name)
	}
	if reserved[name] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	for _, prefix := range []string{"rd_", "laplacian_", "delta_"} {
		if strings.HasPrefix(name, prefix) {
			return fmt.Errorf("%w: %q uses reserved prefix %q", ErrInvalidName, name, prefix)
		}
	}
	for c := 0; c < chemicals; c++ {
		if name == ChemicalName(c) {
			return fmt.Errorf("%w: %q names a chemical", ErrInvalidName, name)
		}
	}
	return nil
}

// Source generates the OpenCL kernel for formula over the given chemical
// count and parameters. Inside the formula every chemical c is readable as
// c and laplacian_c, and the formula assigns its rate of change to delta_c.
// Each parameter is a const float kernel argument following timestep, so
// value changes never require a rebuild.
func Source(formula string, chemicals int, params core.ParameterList) (string, error) {
	if chemicals < 1 || chemicals > MaxChemicals {
		return "", fmt.Errorf("%w: formula rules support 1 to %d chemicals, got %d",
			core.ErrUnsupportedConfiguration, MaxChemicals, chemicals)
	}
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if err := checkName(p.Name, chemicals); err != nil {
			return "", err
		}
		if seen[p.Name] {
			return "", fmt.Errorf("%w: %q declared twice", ErrInvalidName, p.Name)
		}
		seen[p.Name] = true
	}

	var b strings.Builder
	b.WriteString("__kernel void " + Entry + "(\n")
	b.WriteString("    __global const float* input,\n")
	b.WriteString("    __global float* output,\n")
	b.WriteString("    const int width,\n")
	b.WriteString("    const int height,\n")
	b.WriteString("    const int depth,\n")
	b.WriteString("    const float timestep")
	for _, p := range params {
		fmt.Fprintf(&b, ",\n    const float %s", p.Name)
	}
	b.WriteString(")\n{\n")
	b.WriteString(`    const int rd_x = get_global_id(0);
    const int rd_y = get_global_id(1);
    const int rd_z = get_global_id(2);
    const int rd_cells = width * height * depth;
    const int rd_xm = (rd_x - 1 + width) % width;
    const int rd_xp = (rd_x + 1) % width;
    const int rd_ym = (rd_y - 1 + height) % height;
    const int rd_yp = (rd_y + 1) % height;
    const int rd_zm = (rd_z - 1 + depth) % depth;
    const int rd_zp = (rd_z + 1) % depth;
    const int rd_i = (rd_z * height + rd_y) * width + rd_x;
    const int rd_n[6] = {
        (rd_z * height + rd_y) * width + rd_xm,
        (rd_z * height + rd_y) * width + rd_xp,
        (rd_z * height + rd_ym) * width + rd_x,
        (rd_z * height + rd_yp) * width + rd_x,
        (rd_zm * height + rd_y) * width + rd_x,
        (rd_zp * height + rd_y) * width + rd_x,
    };
`)
	for c := 0; c < chemicals; c++ {
		n := ChemicalName(c)
		fmt.Fprintf(&b, "    __global const float* rd_in_%s = input + %d * rd_cells;\n", n, c)
		fmt.Fprintf(&b, "    const float %s = rd_in_%s[rd_i];\n", n, n)
		fmt.Fprintf(&b, "    float laplacian_%s = 0.0f;\n", n)
		fmt.Fprintf(&b, "    for (int rd_k = 0; rd_k < 6; rd_k++) laplacian_%s += rd_in_%s[rd_n[rd_k]] - %s;\n", n, n, n)
		fmt.Fprintf(&b, "    float delta_%s = 0.0f;\n", n)
	}
	b.WriteString("\n    // formula\n")
	for _, line := range strings.Split(strings.TrimRight(formula, "\n"), "\n") {
		b.WriteString("    " + line + "\n")
	}
	b.WriteString("\n")
	for c := 0; c < chemicals; c++ {
		n := ChemicalName(c)
		fmt.Fprintf(&b, "    output[%d * rd_cells + rd_i] = %s + timestep * delta_%s;\n", c, n, n)
	}
	b.WriteString("}\n")
	return b.String(), nil
}
