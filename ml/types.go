// types.go - Datentypen und Konstanten fuer ML-Operationen
// Dieses Modul definiert DType fuer die Serialisierung von Gewichten.
package ml

import (
	"fmt"
	"strings"
)

// DType represents the on-disk element type of serialized tensors. In memory
// tensors are always float64.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
)

// ParseDType parses the names used in configuration files and safetensors
// headers.
func ParseDType(s string) (DType, error) {
	switch strings.ToUpper(s) {
	case "F32", "FLOAT32", "":
		return DTypeF32, nil
	case "F16", "FLOAT16":
		return DTypeF16, nil
	case "BF16", "BFLOAT16":
		return DTypeBF16, nil
	default:
		return DTypeOther, fmt.Errorf("unsupported dtype %q", s)
	}
}

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	default:
		return "other"
	}
}

// Size returns the number of bytes per element.
func (d DType) Size() int {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 0
	}
}
