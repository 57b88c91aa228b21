// Package price normalizes the variant price shapes the commerce backend has
// returned over time into a single minor-unit amount.
package price

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "price").Logger()

// Shape identifies which backend representation a price was read from.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeMissing
	ShapeNumber
	ShapeNumericString
	ShapeCalculatedAmount
	ShapeAmount
)

func (s Shape) String() string {
	switch s {
	case ShapeMissing:
		return "missing"
	case ShapeNumber:
		return "number"
	case ShapeNumericString:
		return "numeric_string"
	case ShapeCalculatedAmount:
		return "calculated_amount"
	case ShapeAmount:
		return "amount"
	default:
		return "unrecognized"
	}
}

// Price is the result of parsing a raw price value. Amount is 0 whenever Shape
// is ShapeMissing or ShapeUnrecognized.
type Price struct {
	Shape  Shape
	Amount int64
}

// Recognized reports whether the raw value matched one of the known shapes.
func (p Price) Recognized() bool {
	return p.Shape != ShapeUnrecognized && p.Shape != ShapeMissing
}

// Parse matches raw against every known shape in turn.
func Parse(raw json.RawMessage) Price {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Price{Shape: ShapeMissing}
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Price{Shape: ShapeUnrecognized}
		}
		amount, ok := parseNumeric(s)
		if !ok {
			return Price{Shape: ShapeUnrecognized}
		}
		return Price{Shape: ShapeNumericString, Amount: amount}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Price{Shape: ShapeUnrecognized}
		}
		if v, ok := obj["calculated_amount"]; ok {
			if amount, ok := scalar(v); ok {
				return Price{Shape: ShapeCalculatedAmount, Amount: amount}
			}
		}
		if v, ok := obj["amount"]; ok {
			if amount, ok := scalar(v); ok {
				return Price{Shape: ShapeAmount, Amount: amount}
			}
		}
		return Price{Shape: ShapeUnrecognized}
	default:
		amount, ok := parseNumeric(string(trimmed))
		if !ok {
			return Price{Shape: ShapeUnrecognized}
		}
		return Price{Shape: ShapeNumber, Amount: amount}
	}
}

// Extract returns the amount for raw, or 0 with a logged warning when the shape
// is not one we know.
func Extract(raw json.RawMessage) int64 {
	p := Parse(raw)
	if !p.Recognized() {
		logger.Warn().Str("shape", p.Shape.String()).Str("raw", string(raw)).Msg("Unrecognized price shape, defaulting to 0")
	}
	return p.Amount
}

// scalar accepts a JSON number or numeric string nested inside a price object.
func scalar(raw json.RawMessage) (int64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, false
		}
		return parseNumeric(s)
	}
	return parseNumeric(string(trimmed))
}

func parseNumeric(s string) (int64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(math.Round(f)), true
}
